package orchestrator

import (
	"time"

	"github.com/goliatone/go-fxscript"
	"github.com/goliatone/go-fxscript/interp"
)

// Option configures a Manager.
type Option func(*Manager)

// WithProvider sets where Trigger loads scripts from. The same provider
// serves Call steps inside runs.
func WithProvider(p fxscript.ScriptProvider) Option {
	return func(m *Manager) {
		m.provider = p
	}
}

// WithFactory sets the effect factory every run uses.
func WithFactory(f fxscript.Factory) Option {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithCommandExecutor sets the collaborator Cmd steps delegate to.
func WithCommandExecutor(c fxscript.CommandExecutor) Option {
	return func(m *Manager) {
		m.commands = c
	}
}

func WithLogger(l interp.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithReplicator enables publishing of triggers marked Replicate.
func WithReplicator(r Replicator) Option {
	return func(m *Manager) {
		m.replicator = r
	}
}

func WithMetrics(r MetricsRecorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithOrigin names this node in published triggers.
func WithOrigin(origin string) Option {
	return func(m *Manager) {
		if origin != "" {
			m.origin = origin
		}
	}
}

// WithSentSet replaces the echo-suppression set.
func WithSentSet(s *SentSet) Option {
	return func(m *Manager) {
		if s != nil {
			m.sent = s
		}
	}
}

// WithSweepInterval sets how often the background job sweeps expired
// sent ids and finished runs.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepEvery = d
		}
	}
}

// WithRetention sets how long finished runs stay visible to Wait and
// Status.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithInterpreterOptions appends options applied to every run.
func WithInterpreterOptions(opts ...interp.Option) Option {
	return func(m *Manager) {
		m.interpOpts = append(m.interpOpts, opts...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}
