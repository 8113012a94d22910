package interp

import "time"

const (
	// DefaultTickInterval approximates one frame at 60 Hz.
	DefaultTickInterval = time.Second / 60
	// DefaultPollInterval is how often steady loops check their gate.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultLoopTimeout bounds While and Until loops.
	DefaultLoopTimeout = 60 * time.Second
	// DefaultMaxCallDepth bounds nested Call steps.
	DefaultMaxCallDepth = 16
)

// Clock is the time source for every suspension point.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
