package interp

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-fxscript"
)

// fakeFactory builds handlers from per-id constructors and records every
// Create call.
type fakeFactory struct {
	mu      sync.Mutex
	ctors   map[string]func(local fxscript.EffectContext) (fxscript.Handler, error)
	created []string
	locals  []fxscript.EffectContext
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{ctors: map[string]func(fxscript.EffectContext) (fxscript.Handler, error){}}
}

func (f *fakeFactory) on(id string, ctor func(local fxscript.EffectContext) (fxscript.Handler, error)) *fakeFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[id] = ctor
	return f
}

func (f *fakeFactory) handler(id string, h fxscript.Handler) *fakeFactory {
	return f.on(id, func(fxscript.EffectContext) (fxscript.Handler, error) { return h, nil })
}

func (f *fakeFactory) Create(id string, local fxscript.EffectContext) (fxscript.Handler, error) {
	f.mu.Lock()
	ctor, ok := f.ctors[id]
	f.created = append(f.created, id)
	f.locals = append(f.locals, local)
	f.mu.Unlock()
	if !ok {
		return nil, fxscript.ErrUnknownEffect
	}
	return ctor(local)
}

func (f *fakeFactory) lastLocal() fxscript.EffectContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locals[len(f.locals)-1]
}

// callLog collects effect invocations across goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

func recordHandler(log *callLog, name string) fxscript.Handler {
	return fxscript.HandlerFunc(func(context.Context, *fxscript.ExecContext) error {
		log.add(name)
		return nil
	})
}

// steadyHandler models a continuous effect.
type steadyHandler struct {
	executes atomic.Int32
	stops    atomic.Int32
	running  atomic.Bool
	started  chan struct{}
	once     sync.Once

	mu     sync.Mutex
	params map[string]any
}

func newSteadyHandler() *steadyHandler {
	h := &steadyHandler{started: make(chan struct{}), params: map[string]any{}}
	h.running.Store(true)
	return h
}

func (h *steadyHandler) Execute(context.Context, *fxscript.ExecContext) error {
	h.executes.Add(1)
	h.once.Do(func() { close(h.started) })
	return nil
}

func (h *steadyHandler) IsSteady() bool  { return true }
func (h *steadyHandler) IsRunning() bool { return h.running.Load() }

func (h *steadyHandler) Stop() error {
	h.stops.Add(1)
	h.running.Store(false)
	return nil
}

func (h *steadyHandler) OnParameterChanged(name string, value any, _ *fxscript.ExecContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.params[name] = value
}

func (h *steadyHandler) param(name string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.params[name]
	return v, ok
}

// mapProvider serves scripts from memory.
type mapProvider map[string]*fxscript.Script

func (p mapProvider) Load(_ context.Context, id string) (*fxscript.Script, error) {
	return p[id], nil
}

func quietLogger() Logger {
	return NewFmtLogger(&bytes.Buffer{})
}

func script(id string, root fxscript.Step) *fxscript.Script {
	return &fxscript.Script{ID: id, Root: root}
}

func newTestInterpreter(t *testing.T, s *fxscript.Script, seed fxscript.Seed, opts ...Option) *Interpreter {
	t.Helper()
	base := []Option{
		WithLogger(quietLogger()),
		WithTickInterval(2 * time.Millisecond),
		WithPollInterval(5 * time.Millisecond),
	}
	it, err := New(s, seed, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new interpreter: %v", err)
	}
	return it
}

func startAsync(it *Interpreter) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- it.Start(context.Background())
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("interpreter did not finish")
		return nil
	}
}
