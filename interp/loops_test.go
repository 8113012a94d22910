package interp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-fxscript"
)

func TestWhileSteadyStopsOnceWhenBranchCompletes(t *testing.T) {
	beam := newSteadyHandler()
	factory := newFakeFactory().handler("beam", beam)

	it := newTestInterpreter(t, script("while", fxscript.Parallel{Branches: []fxscript.Branch{
		{ID: "charge", Step: fxscript.Wait{Seconds: 0.1}},
		{Step: fxscript.While{Branch: "charge", Step: fxscript.Play{Effect: "beam"}}},
	}}), fxscript.Seed{}, WithFactory(factory))

	start := time.Now()
	require.NoError(t, it.Start(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int32(1), beam.executes.Load())
	assert.Equal(t, int32(1), beam.stops.Load())
	assert.Empty(t, it.LiveEffects())
}

func TestWhileSteadyStopsOnceWhenHandlerFinishes(t *testing.T) {
	beam := newSteadyHandler()
	factory := newFakeFactory().handler("beam", beam)

	it := newTestInterpreter(t, script("while", fxscript.Parallel{Branches: []fxscript.Branch{
		{ID: "charge", Step: fxscript.Wait{Seconds: 5}},
		{Step: fxscript.While{Branch: "charge", Step: fxscript.Play{Effect: "beam"}}},
	}}), fxscript.Seed{}, WithFactory(factory))

	done := startAsync(it)
	<-beam.started
	beam.running.Store(false)

	// the charge branch still runs; cancel once the loop has exited
	require.Eventually(t, func() bool { return beam.stops.Load() == 1 }, time.Second, 5*time.Millisecond)
	it.Cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, int32(1), beam.stops.Load())
}

func TestWhileSteadyStopsOnceOnTimeout(t *testing.T) {
	beam := newSteadyHandler()
	factory := newFakeFactory().handler("beam", beam)

	it := newTestInterpreter(t, script("while", fxscript.While{
		Branch:  "nowhere",
		Timeout: 0.05,
		Step:    fxscript.Play{Effect: "beam"},
	}), fxscript.Seed{}, WithFactory(factory))

	start := time.Now()
	require.NoError(t, it.Start(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int32(1), beam.stops.Load())
}

func TestWhileSteadyStopsOnceOnCancel(t *testing.T) {
	beam := newSteadyHandler()
	factory := newFakeFactory().handler("beam", beam)

	it := newTestInterpreter(t, script("until", fxscript.Until{
		Event: "never",
		Step:  fxscript.Play{Effect: "beam"},
	}), fxscript.Seed{}, WithFactory(factory))

	done := startAsync(it)
	<-beam.started
	it.Cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, int32(1), beam.stops.Load())
}

func TestUntilOneShotRepeatsUntilEvent(t *testing.T) {
	log := &callLog{}
	factory := newFakeFactory().handler("spark", recordHandler(log, "spark"))

	it := newTestInterpreter(t, script("until", fxscript.Parallel{Branches: []fxscript.Branch{
		{Step: fxscript.Sequence{Steps: []fxscript.Step{
			fxscript.Wait{Seconds: 0.05},
			fxscript.EmitEvent{Name: "landed"},
		}}},
		{Step: fxscript.Until{Event: "landed", Step: fxscript.Play{Effect: "spark"}}},
	}}), fxscript.Seed{}, WithFactory(factory))

	require.NoError(t, it.Start(context.Background()))
	invoked := len(log.list())
	assert.Greater(t, invoked, 1, "one-shot child must be re-invoked every tick")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, invoked, len(log.list()), "no invocation after the event fired")
}

func TestUntilAlreadyFiredSkipsChild(t *testing.T) {
	log := &callLog{}
	factory := newFakeFactory().handler("spark", recordHandler(log, "spark"))
	bus := NewEventBus()
	bus.Emit("landed", nil)

	it := newTestInterpreter(t, script("until", fxscript.Until{
		Event: "landed",
		Step:  fxscript.Play{Effect: "spark"},
	}), fxscript.Seed{}, WithFactory(factory), WithEventBus(bus))

	require.NoError(t, it.Start(context.Background()))
	assert.Empty(t, log.list())
}

func TestClassificationFailureFallsBackToOneShot(t *testing.T) {
	attempts := 0
	factory := newFakeFactory().on("flaky", func(fxscript.EffectContext) (fxscript.Handler, error) {
		attempts++
		return nil, fxscript.ErrUnknownEffect
	})

	it := newTestInterpreter(t, script("until", fxscript.Until{
		Event:   "never",
		Timeout: 0.03,
		Step:    fxscript.Play{Effect: "flaky"},
	}), fxscript.Seed{}, WithFactory(factory))

	require.NoError(t, it.Start(context.Background()))
	assert.Greater(t, attempts, 2, "loop keeps ticking after failed classification")
}

func TestUpdateParameterReachesLiveListeners(t *testing.T) {
	beam := newSteadyHandler()
	factory := newFakeFactory().handler("beam", beam)

	it := newTestInterpreter(t, script("params", fxscript.Until{
		Event: "release",
		Step:  fxscript.Play{Effect: "beam"},
	}), fxscript.Seed{}, WithFactory(factory))

	done := startAsync(it)
	<-beam.started
	require.Len(t, it.LiveEffects(), 1)

	it.UpdateParameter("intensity", 0.8)
	v, ok := beam.param("intensity")
	require.True(t, ok)
	assert.Equal(t, 0.8, v)
	got, _ := it.GetVar("intensity")
	assert.Equal(t, 0.8, got)

	it.Emit("release", nil)
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, int32(1), beam.stops.Load())
	assert.Empty(t, it.LiveEffects())
}

// A steady handler started by a plain Play is fire-and-forget: cancel
// does not stop it. This pins the current behavior.
func TestCancelDoesNotStopSteadyHandlerStartedByPlainPlay(t *testing.T) {
	aura := newSteadyHandler()
	factory := newFakeFactory().handler("aura", aura)

	it := newTestInterpreter(t, script("aura", fxscript.Sequence{Steps: []fxscript.Step{
		fxscript.Play{Effect: "aura"},
		fxscript.Wait{Seconds: 30},
	}}), fxscript.Seed{}, WithFactory(factory))

	done := startAsync(it)
	<-aura.started
	it.Cancel()
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, int32(0), aura.stops.Load())
	assert.True(t, aura.IsRunning())
}

func TestPauseBlocksDispatchUntilResume(t *testing.T) {
	log := &callLog{}
	var it *Interpreter
	factory := newFakeFactory().
		handler("first", fxscript.HandlerFunc(func(context.Context, *fxscript.ExecContext) error {
			log.add("first")
			it.Pause()
			return nil
		})).
		handler("second", recordHandler(log, "second"))

	it = newTestInterpreter(t, script("pause", fxscript.Sequence{Steps: []fxscript.Step{
		fxscript.Play{Effect: "first"},
		fxscript.Play{Effect: "second"},
	}}), fxscript.Seed{}, WithFactory(factory))

	done := startAsync(it)
	require.Eventually(t, it.IsPaused, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []string{"first"}, log.list())

	it.Resume()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, []string{"first", "second"}, log.list())
}

func TestCancelReleasesPausedRun(t *testing.T) {
	log := &callLog{}
	var it *Interpreter
	factory := newFakeFactory().
		handler("first", fxscript.HandlerFunc(func(context.Context, *fxscript.ExecContext) error {
			it.Pause()
			return nil
		})).
		handler("second", recordHandler(log, "second"))

	it = newTestInterpreter(t, script("pause", fxscript.Sequence{Steps: []fxscript.Step{
		fxscript.Play{Effect: "first"},
		fxscript.Play{Effect: "second"},
	}}), fxscript.Seed{}, WithFactory(factory))

	done := startAsync(it)
	require.Eventually(t, it.IsPaused, time.Second, time.Millisecond)
	it.Cancel()
	require.NoError(t, waitDone(t, done))
	assert.Empty(t, log.list())
}
