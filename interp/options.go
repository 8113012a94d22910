package interp

import (
	"time"

	"github.com/goliatone/go-fxscript"
	"github.com/goliatone/go-fxscript/runner"
)

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithFactory sets the effect factory used by Play, While and Until.
func WithFactory(f fxscript.Factory) Option {
	return func(i *Interpreter) {
		i.factory = f
	}
}

// WithScriptProvider sets the provider Call steps load other scripts from.
func WithScriptProvider(p fxscript.ScriptProvider) Option {
	return func(i *Interpreter) {
		i.provider = p
	}
}

// WithCommandExecutor sets the collaborator Cmd steps delegate to.
func WithCommandExecutor(c fxscript.CommandExecutor) Option {
	return func(i *Interpreter) {
		i.commands = c
	}
}

func WithLogger(l Logger) Option {
	return func(i *Interpreter) {
		i.logger = normalizeLogger(l)
	}
}

func WithClock(c Clock) Option {
	return func(i *Interpreter) {
		if c != nil {
			i.clock = c
		}
	}
}

// WithTickInterval sets the yield between one-shot loop iterations.
func WithTickInterval(d time.Duration) Option {
	return func(i *Interpreter) {
		if d > 0 {
			i.tick = d
		}
	}
}

// WithPollInterval sets how often steady loops check their gate.
func WithPollInterval(d time.Duration) Option {
	return func(i *Interpreter) {
		if d > 0 {
			i.poll = d
		}
	}
}

// WithLoopTimeout sets the While/Until timeout used when a step has none.
func WithLoopTimeout(d time.Duration) Option {
	return func(i *Interpreter) {
		if d > 0 {
			i.loopTimeout = d
		}
	}
}

// WithEventBus shares bus with other interpreters.
func WithEventBus(bus *EventBus) Option {
	return func(i *Interpreter) {
		if bus != nil {
			i.bus = bus
		}
	}
}

// WithRand replaces the uniform [0,1) source used by Chance conditions.
func WithRand(fn func() float64) Option {
	return func(i *Interpreter) {
		if fn != nil {
			i.rand = fn
		}
	}
}

func WithMaxCallDepth(n int) Option {
	return func(i *Interpreter) {
		if n > 0 {
			i.maxDepth = n
		}
	}
}

// WithPanicLogger receives panics recovered from effect handlers.
func WithPanicLogger(l fxscript.PanicLogger) Option {
	return func(i *Interpreter) {
		i.panicLogger = l
	}
}

// DefaultCommandRetry is the backoff between Cmd retries unless
// WithCommandRetryStrategy replaces it.
var DefaultCommandRetry runner.RetryStrategy = runner.JitterStrategy{
	Strategy: runner.ExponentialBackoffStrategy{Base: 50 * time.Millisecond, Factor: 2, Max: 2 * time.Second},
	Fraction: 0.2,
}

// WithCommandRetryStrategy sets the backoff between Cmd retries.
func WithCommandRetryStrategy(s runner.RetryStrategy) Option {
	return func(i *Interpreter) {
		i.cmdRetry = s
	}
}
