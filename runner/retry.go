package runner

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/goliatone/go-errors"
)

// RetryStrategy returns how long to wait before retry attempt+1. attempt
// starts at 0 and err is the failure that triggered the retry.
type RetryStrategy interface {
	SleepDuration(attempt int, err error) time.Duration
}

// NoDelayStrategy retries immediately.
type NoDelayStrategy struct{}

func (NoDelayStrategy) SleepDuration(int, error) time.Duration { return 0 }

// ConstantDelayStrategy waits the same Delay before every retry.
type ConstantDelayStrategy struct {
	Delay time.Duration
}

func (c ConstantDelayStrategy) SleepDuration(int, error) time.Duration { return c.Delay }

// ExponentialBackoffStrategy grows the delay by Factor per attempt, capped
// at Max when Max is positive:
//
//	ExponentialBackoffStrategy{Base: 100 * time.Millisecond, Factor: 2, Max: 5 * time.Second}
type ExponentialBackoffStrategy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(float64(e.Base) * math.Pow(e.Factor, float64(attempt)))
	if e.Max > 0 && delay > e.Max {
		return e.Max
	}
	return delay
}

// JitterStrategy spreads the delays of Strategy by up to Fraction in
// either direction so commands retried by many runs at once do not
// hit their backend in lockstep. Rand defaults to math/rand/v2.
type JitterStrategy struct {
	Strategy RetryStrategy
	Fraction float64
	Rand     func() float64
}

func (j JitterStrategy) SleepDuration(attempt int, err error) time.Duration {
	if j.Strategy == nil {
		return 0
	}
	base := j.Strategy.SleepDuration(attempt, err)
	if base <= 0 || j.Fraction <= 0 {
		return base
	}
	sample := rand.Float64
	if j.Rand != nil {
		sample = j.Rand
	}
	spread := (sample()*2 - 1) * j.Fraction
	d := time.Duration(float64(base) * (1 + spread))
	if d < 0 {
		return 0
	}
	return d
}

// IsRetryable reports whether err is worth another attempt. Context
// errors and go-errors values in the bad input, validation or not found
// categories are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		switch ge.Category {
		case errors.CategoryBadInput, errors.CategoryValidation, errors.CategoryNotFound:
			return false
		}
	}
	return true
}
