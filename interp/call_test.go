package interp

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-fxscript"
	"github.com/goliatone/go-fxscript/runner"
)

func TestCallSeedsChildWithCallerContextAndArgs(t *testing.T) {
	factory := newFakeFactory().handler("hit", recordHandler(&callLog{}, "hit"))
	provider := mapProvider{
		"impact": script("impact", fxscript.Play{
			Effect: "hit",
			Params: map[string]any{
				"power": fxscript.ParseRef("$power"),
				"mode":  fxscript.ParseRef("$mode"),
			},
		}),
	}

	it := newTestInterpreter(t, script("caller", fxscript.Sequence{Steps: []fxscript.Step{
		fxscript.SetVar{Name: "mode", Value: "heavy"},
		fxscript.Call{Script: "impact", Args: map[string]any{"power": 9}},
	}}), fxscript.Seed{Actor: "hero"}, WithFactory(factory), WithScriptProvider(provider))

	require.NoError(t, it.Start(context.Background()))
	local := factory.lastLocal()
	assert.Equal(t, "impact", local.ScriptID)
	assert.Equal(t, "hero", local.Actor)
	assert.Equal(t, 9, local.Params["power"])
	assert.Equal(t, "heavy", local.Params["mode"])
}

func TestCallNamedEntryInSameScript(t *testing.T) {
	s := &fxscript.Script{
		ID: "multi",
		Sequences: map[string][]fxscript.Step{
			"main":  {fxscript.Call{Entry: "flash"}},
			"flash": {fxscript.SetVar{Name: "flashed", Value: true, Global: true}},
		},
	}
	bus := NewEventBus()
	flashed := false
	bus.Subscribe("flashed", func(any) { flashed = true })
	s.Sequences["flash"] = append(s.Sequences["flash"], fxscript.EmitEvent{Name: "flashed"})

	it := newTestInterpreter(t, s, fxscript.Seed{}, WithEventBus(bus))
	require.NoError(t, it.Start(context.Background()))
	assert.True(t, flashed, "child shares the event bus")
	_, ok := it.GetVar("flashed")
	assert.False(t, ok, "child store is its own")
}

func TestCallMissingScriptIsNoop(t *testing.T) {
	log := &callLog{}
	factory := newFakeFactory().handler("after", recordHandler(log, "after"))

	it := newTestInterpreter(t, script("caller", fxscript.Sequence{Steps: []fxscript.Step{
		fxscript.Call{Script: "ghost"},
		fxscript.Play{Effect: "after"},
	}}), fxscript.Seed{}, WithFactory(factory), WithScriptProvider(mapProvider{}))

	require.NoError(t, it.Start(context.Background()))
	assert.Equal(t, []string{"after"}, log.list())
}

func TestCallPropagatesChildError(t *testing.T) {
	factory := newFakeFactory().
		handler("bad", fxscript.HandlerFunc(func(context.Context, *fxscript.ExecContext) error {
			return stderrors.New("child broke")
		}))
	provider := mapProvider{"child": script("child", fxscript.Play{Effect: "bad"})}

	it := newTestInterpreter(t, script("caller", fxscript.Call{Script: "child"}), fxscript.Seed{},
		WithFactory(factory), WithScriptProvider(provider))

	err := it.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, fxscript.ErrCodeHandlerFailed, fxscript.ErrorCode(err))
	assert.Contains(t, err.Error(), "child broke")
}

func TestCallHonorsMaxDepth(t *testing.T) {
	it := newTestInterpreter(t, script("loop", fxscript.Call{}), fxscript.Seed{}, WithMaxCallDepth(3))

	err := it.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, fxscript.ErrCodeCallDepth, fxscript.ErrorCode(err))
}

func TestCallChildFollowsCancelAndParameters(t *testing.T) {
	beam := newSteadyHandler()
	factory := newFakeFactory().handler("beam", beam)
	provider := mapProvider{
		"channel": script("channel", fxscript.Until{Event: "never", Step: fxscript.Play{Effect: "beam"}}),
	}

	it := newTestInterpreter(t, script("caller", fxscript.Call{Script: "channel"}), fxscript.Seed{},
		WithFactory(factory), WithScriptProvider(provider))

	done := startAsync(it)
	<-beam.started

	it.UpdateParameter("width", 3)
	v, ok := beam.param("width")
	require.True(t, ok, "parameter reaches handlers of called scripts")
	assert.Equal(t, 3, v)

	it.Cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, int32(1), beam.stops.Load())
}

func TestCmdFailureIsNotFatal(t *testing.T) {
	var attempts atomic.Int32
	var gotArgs map[string]any
	commands := fxscript.CommandFunc(func(_ context.Context, name string, args map[string]any) error {
		attempts.Add(1)
		gotArgs = args
		return stderrors.New("backend unavailable")
	})

	it := newTestInterpreter(t, script("cmd", fxscript.Sequence{Steps: []fxscript.Step{
		fxscript.Cmd{Name: "shake", Args: map[string]any{"who": fxscript.ParseRef("$actor")}, Retries: 2},
		fxscript.SetVar{Name: "after", Value: true, Global: true},
	}}), fxscript.Seed{Actor: "hero"},
		WithCommandExecutor(commands),
		WithCommandRetryStrategy(runner.NoDelayStrategy{}),
	)

	require.NoError(t, it.Start(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, map[string]any{"who": "hero"}, gotArgs)
	after, _ := it.GetVar("after")
	assert.Equal(t, true, after)
}

func TestCmdTimeout(t *testing.T) {
	commands := fxscript.CommandFunc(func(ctx context.Context, _ string, _ map[string]any) error {
		<-ctx.Done()
		return ctx.Err()
	})

	it := newTestInterpreter(t, script("cmd", fxscript.Cmd{Name: "slow", Timeout: 0.02}), fxscript.Seed{},
		WithCommandExecutor(commands))

	start := time.Now()
	require.NoError(t, it.Start(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestCmdWithoutExecutorIsNoop(t *testing.T) {
	it := newTestInterpreter(t, script("cmd", fxscript.Cmd{Name: "shake"}), fxscript.Seed{})
	require.NoError(t, it.Start(context.Background()))
}
