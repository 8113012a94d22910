package effects

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-fxscript"
	"github.com/goliatone/go-fxscript/interp"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNamespacingDefault(t *testing.T) {
	if got := defaultNamespace("ns", "id"); got != "ns::id" {
		t.Fatalf("expected ns::id, got %s", got)
	}
	if got := defaultNamespace("", " id "); got != "id" {
		t.Fatalf("expected id when namespace empty, got %s", got)
	}
}

func TestRegistryConflict(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("beam", newNoopEffect); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	err := reg.Register("beam", newNoopEffect)
	if err == nil {
		t.Fatalf("expected conflict error")
	}
	assert.Equal(t, fxscript.ErrCodeEffectAlreadyRegistered, fxscript.ErrorCode(err))

	require.NoError(t, reg.RegisterNamespaced("fire", "beam", newNoopEffect))
	_, ok := reg.Lookup("fire::beam")
	assert.True(t, ok)
	assert.Equal(t, []string{"beam", "fire::beam"}, reg.IDs())

	err = reg.Register("", newNoopEffect)
	assert.Equal(t, fxscript.ErrCodeEffectRegisterInvalid, fxscript.ErrorCode(err))
	assert.Error(t, reg.Register("x", nil))
}

func TestRegistryCreateUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Create("missing", fxscript.EffectContext{})
	require.Error(t, err)
	assert.Equal(t, fxscript.ErrCodeUnknownEffect, fxscript.ErrorCode(err))
}

func TestRegistryInjectsDepsAndEffectID(t *testing.T) {
	clock := &manualClock{now: time.Unix(100, 0)}
	var got Deps
	var gotLocal fxscript.EffectContext
	reg := NewRegistry(WithClock(clock))
	require.NoError(t, reg.Register("spark", func(deps Deps, local fxscript.EffectContext) (fxscript.Handler, error) {
		got, gotLocal = deps, local
		return newNoopEffect(deps, local)
	}))

	_, err := reg.Create(" spark ", fxscript.EffectContext{Params: map[string]any{"k": 1}})
	require.NoError(t, err)
	assert.Equal(t, clock, got.Clock)
	assert.NotNil(t, got.Logger)
	assert.Equal(t, "spark", gotLocal.EffectID, "id is trimmed before it reaches the handler")
	assert.Equal(t, 1, gotLocal.Params["k"])
}

func TestRegistryPlayRunsStartThenExecute(t *testing.T) {
	var order []string
	reg := NewRegistry()
	require.NoError(t, reg.RegisterHandler("fx", &orderedHandler{order: &order}))

	require.NoError(t, reg.Play(context.Background(), "fx", fxscript.EffectContext{}, &fxscript.ExecContext{}))
	assert.Equal(t, []string{"start", "execute"}, order)
}

type orderedHandler struct {
	order *[]string
}

func (h *orderedHandler) Start() error {
	*h.order = append(*h.order, "start")
	return nil
}

func (h *orderedHandler) Execute(context.Context, *fxscript.ExecContext) error {
	*h.order = append(*h.order, "execute")
	return nil
}

func TestLogEffectWritesMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	reg := NewRegistry(WithLogger(interp.NewFmtLogger(buf)))
	require.NoError(t, RegisterBuiltins(reg))

	err := reg.Play(context.Background(), EffectLog, fxscript.EffectContext{
		ScriptID: "intro",
		Params:   map[string]any{"message": "hello"},
	}, &fxscript.ExecContext{Actor: "hero"})
	require.NoError(t, err)
	if !strings.Contains(buf.String(), "hello") || !strings.Contains(buf.String(), "script_id=intro") {
		t.Fatalf("expected log line with message and fields, got %q", buf.String())
	}
}

func TestEmitEffectRequiresEvent(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	_, err := reg.Create(EffectEmit, fxscript.EffectContext{})
	assert.Error(t, err)
}

func TestPulseLifecycle(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	reg := NewRegistry(WithClock(clock))
	require.NoError(t, RegisterBuiltins(reg))

	h, err := reg.Create(EffectPulse, fxscript.EffectContext{Params: map[string]any{"duration": 2, "width": 1}})
	require.NoError(t, err)
	pulse := h.(*Pulse)

	assert.True(t, fxscript.IsSteady(pulse))
	assert.False(t, pulse.IsRunning(), "not running before execute")
	require.NoError(t, pulse.Execute(context.Background(), &fxscript.ExecContext{}))
	assert.True(t, pulse.IsRunning())

	pulse.OnParameterChanged("width", 4, nil)
	w, _ := pulse.Param("width")
	assert.Equal(t, 4, w)

	clock.advance(2 * time.Second)
	assert.False(t, pulse.IsRunning(), "duration elapsed")

	require.NoError(t, pulse.Stop())
	require.NoError(t, pulse.Stop())
}

func TestPulseRejectsInvalidDuration(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))
	_, err := reg.Create(EffectPulse, fxscript.EffectContext{Params: map[string]any{"duration": "long"}})
	assert.Error(t, err)
}

func TestBuiltinsDriveInterpreter(t *testing.T) {
	reg := NewRegistry(WithLogger(interp.NewFmtLogger(&bytes.Buffer{})))
	require.NoError(t, RegisterBuiltins(reg))

	s := &fxscript.Script{ID: "aura", Root: fxscript.Parallel{Branches: []fxscript.Branch{
		{Step: fxscript.Until{Event: "fade", Step: fxscript.Play{Effect: EffectPulse}}},
		{Step: fxscript.Sequence{Steps: []fxscript.Step{
			fxscript.Wait{Seconds: 0.03},
			fxscript.Play{Effect: EffectEmit, Params: map[string]any{"event": "fade", "payload": "done"}},
		}}},
	}}}

	it, err := interp.New(s, fxscript.Seed{},
		interp.WithFactory(reg),
		interp.WithLogger(interp.NewFmtLogger(&bytes.Buffer{})),
		interp.WithPollInterval(5*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, it.Start(context.Background()))
	assert.True(t, it.Events().Fired("fade"))
	assert.Empty(t, it.LiveEffects())
}
