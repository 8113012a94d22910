package effects

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-fxscript"
	"github.com/goliatone/go-fxscript/interp"
)

// Builtin effect ids.
const (
	EffectLog   = "log"
	EffectNoop  = "noop"
	EffectEmit  = "emit"
	EffectPulse = "pulse"
)

// RegisterBuiltins adds the engine's own effects to r. They are useful
// for tests, dry runs and scripts that only orchestrate other effects.
func RegisterBuiltins(r *Registry) error {
	var err error
	for id, ctor := range map[string]Constructor{
		EffectLog:   newLogEffect,
		EffectNoop:  newNoopEffect,
		EffectEmit:  newEmitEffect,
		EffectPulse: newPulseEffect,
	} {
		err = errors.Join(err, r.Register(id, ctor))
	}
	return err
}

// logEffect writes its "message" param.
type logEffect struct {
	logger interp.Logger
	local  fxscript.EffectContext
}

func newLogEffect(deps Deps, local fxscript.EffectContext) (fxscript.Handler, error) {
	return &logEffect{logger: deps.Logger, local: local}, nil
}

func (e *logEffect) Execute(ctx context.Context, ec *fxscript.ExecContext) error {
	msg, _ := e.local.Param("message")
	logger := e.logger.WithContext(ctx)
	if fl, ok := logger.(interp.FieldsLogger); ok {
		logger = fl.WithFields(map[string]any{
			"script_id": e.local.ScriptID,
			"effect":    e.local.EffectID,
		})
	}
	logger.Info("%v (actor=%v patients=%d)", msg, ec.Actor, len(ec.Patients))
	return nil
}

func newNoopEffect(Deps, fxscript.EffectContext) (fxscript.Handler, error) {
	return fxscript.HandlerFunc(func(context.Context, *fxscript.ExecContext) error { return nil }), nil
}

// emitEffect fires the "event" param on the running interpreter with the
// "payload" param.
type emitEffect struct {
	local fxscript.EffectContext
}

func newEmitEffect(_ Deps, local fxscript.EffectContext) (fxscript.Handler, error) {
	name, ok := local.Param("event")
	if !ok || fmt.Sprint(name) == "" {
		return nil, errors.New("emit effect requires an event param", errors.CategoryBadInput).
			WithTextCode("EFFECT_PARAM_MISSING")
	}
	return &emitEffect{local: local}, nil
}

func (e *emitEffect) Execute(_ context.Context, ec *fxscript.ExecContext) error {
	if ec == nil || ec.Runtime == nil {
		return errors.New("emit effect requires a runtime", errors.CategoryInternal).
			WithTextCode("EFFECT_NO_RUNTIME")
	}
	name, _ := e.local.Param("event")
	payload, _ := e.local.Param("payload")
	ec.Runtime.Emit(fmt.Sprint(name), payload)
	return nil
}

// Pulse is a steady effect: it stays present from Execute until Stop, or
// until its optional "duration" (seconds) elapses on the injected clock.
type Pulse struct {
	mu       sync.Mutex
	clock    interp.Clock
	logger   interp.Logger
	local    fxscript.EffectContext
	params   map[string]any
	started  time.Time
	duration time.Duration
	active   bool
	stopped  bool
}

func newPulseEffect(deps Deps, local fxscript.EffectContext) (fxscript.Handler, error) {
	p := &Pulse{
		clock:  deps.Clock,
		logger: deps.Logger,
		local:  local,
		params: make(map[string]any, len(local.Params)),
	}
	for k, v := range local.Params {
		p.params[k] = v
	}
	if d, ok := local.Param("duration"); ok {
		secs, ok := toSeconds(d)
		if !ok {
			return nil, errors.New(fmt.Sprintf("pulse duration %v is not a number", d), errors.CategoryBadInput).
				WithTextCode("EFFECT_PARAM_INVALID")
		}
		p.duration = secs
	}
	return p, nil
}

func (p *Pulse) IsSteady() bool { return true }

func (p *Pulse) Execute(context.Context, *fxscript.ExecContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.started = p.clock.Now()
	p.active = true
	p.logger.Debug("pulse %s started", p.local.EffectID)
	return nil
}

// IsRunning reports false once stopped or once the duration elapsed.
func (p *Pulse) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active || p.stopped {
		return false
	}
	if p.duration > 0 && p.clock.Now().Sub(p.started) >= p.duration {
		return false
	}
	return true
}

func (p *Pulse) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	p.active = false
	p.logger.Debug("pulse %s stopped", p.local.EffectID)
	return nil
}

func (p *Pulse) OnParameterChanged(name string, value any, _ *fxscript.ExecContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params[name] = value
}

// Param returns the current value of a parameter, including live updates.
func (p *Pulse) Param(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.params[name]
	return v, ok
}

func toSeconds(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second, true
	case int64:
		return time.Duration(n) * time.Second, true
	case float64:
		return time.Duration(n * float64(time.Second)), true
	case float32:
		return time.Duration(float64(n) * float64(time.Second)), true
	default:
		return 0, false
	}
}
