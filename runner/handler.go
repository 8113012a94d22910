package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type Option func(*Handler)

func WithTimeout(t time.Duration) Option {
	return func(r *Handler) {
		r.timeout = t
	}
}

func WithDeadline(d time.Time) Option {
	return func(r *Handler) {
		r.deadline = d
	}
}

func WithMaxRetries(max int) Option {
	return func(r *Handler) {
		if max < 0 {
			max = 0
		}
		r.maxRetries = max
	}
}

func WithErrorHandler(h func(error)) Option {
	return func(r *Handler) {
		if h == nil {
			h = func(err error) {}
		}
		r.errorHandler = h
	}
}

func WithLogger(l Logger) Option {
	return func(r *Handler) {
		r.logger = l
	}
}

// WithRetryStrategy lets you define a custom retry/backoff approach.
func WithRetryStrategy(s RetryStrategy) Option {
	return func(r *Handler) {
		r.retryStrategy = s
	}
}

// WithAfter replaces time.After for the waits between retries, so a fake
// clock can drive them.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(r *Handler) {
		if after != nil {
			r.after = after
		}
	}
}

// WithRetryIf decides which failures are retried. The default is
// IsRetryable.
func WithRetryIf(fn func(error) bool) Option {
	return func(r *Handler) {
		if fn != nil {
			r.retryIf = fn
		}
	}
}

// Handler runs a function with timeout, deadline and retry settings.
type Handler struct {
	mu sync.Mutex

	logger        Logger
	errorHandler  func(error)
	retryStrategy RetryStrategy
	retryIf       func(error) bool
	after         func(time.Duration) <-chan time.Time

	runs           int
	successfulRuns int

	maxRetries int
	timeout    time.Duration
	deadline   time.Time
}

// NewHandler constructs a Handler from various options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	r := &Handler{
		errorHandler:  func(err error) {},
		retryStrategy: NoDelayStrategy{},
		retryIf:       IsRetryable,
		after:         time.After,
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	return r
}

// Run calls fn until it succeeds, fails permanently or the retry budget is
// spent. Every intermediate failure goes to the error handler; the last
// one is returned.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	h.mu.Lock()
	maxRetries := h.maxRetries
	strategy := h.retryStrategy
	retryIf := h.retryIf
	h.mu.Unlock()

	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts++
		err = fn(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil || !retryIf(err) {
			break
		}

		if attempt < maxRetries {
			h.errorHandler(errors.Wrap(err, errors.CategoryExternal,
				fmt.Sprintf("run failed, attempt %d of %d", attempt+1, maxRetries+1),
			).WithTextCode("RUN_ATTEMPT_FAILED"))

			if strategy != nil {
				if delay := strategy.SleepDuration(attempt, err); delay > 0 {
					if sleepErr := h.sleep(ctx, delay); sleepErr != nil {
						err = sleepErr
						break
					}
				}
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.runs++
	if err == nil {
		h.successfulRuns++
		return nil
	}

	h.logError("run failed after %d attempts: %v", attempts, err)
	return errors.Wrap(err, errors.CategoryExternal, fmt.Sprintf("run failed after %d attempts", attempts)).
		WithTextCode("RUN_FAILED").
		WithMetadata(map[string]any{
			"attempts":    attempts,
			"max_retries": maxRetries,
			"timeout":     h.timeout.String(),
		})
}

// Runs returns the number of completed Run calls and how many succeeded.
func (h *Handler) Runs() (total, successful int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs, h.successfulRuns
}

func (h *Handler) logError(format string, args ...any) {
	if h.logger != nil {
		h.logger.Error(format, args...)
	}
}

// contextWithSettings bounds parent by the earlier of the timeout and the
// deadline.
func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	deadline := h.deadline
	if h.timeout > 0 {
		if byTimeout := time.Now().Add(h.timeout); deadline.IsZero() || byTimeout.Before(deadline) {
			deadline = byTimeout
		}
	}
	if deadline.IsZero() {
		return parent, func() {}
	}
	return context.WithDeadline(parent, deadline)
}

func (h *Handler) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.after(d):
		return nil
	}
}
