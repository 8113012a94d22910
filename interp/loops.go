package interp

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-fxscript"
)

func (i *Interpreter) execRepeat(ctx context.Context, ec *fxscript.ExecContext, r fxscript.Repeat) error {
	interval := seconds(r.Interval)

	if r.UntilEvent != "" {
		if interval <= 0 {
			interval = i.tick
		}
		for n := 0; r.Times <= 0 || n < r.Times; n++ {
			if i.bus.Fired(r.UntilEvent) || i.stopped(ctx) {
				return nil
			}
			if err := i.execStep(ctx, ec, r.Step); err != nil {
				return err
			}
			if i.bus.Fired(r.UntilEvent) {
				return nil
			}
			if !i.sleep(ctx, interval) {
				return nil
			}
		}
		return nil
	}

	for n := 0; n < r.Times; n++ {
		if i.stopped(ctx) {
			return nil
		}
		if err := i.execStep(ctx, ec, r.Step); err != nil {
			return err
		}
		if interval > 0 && n < r.Times-1 && !i.sleep(ctx, interval) {
			return nil
		}
	}
	return nil
}

// gate reports whether a While/Until loop should exit.
type gate func() bool

func (i *Interpreter) execWhile(ctx context.Context, ec *fxscript.ExecContext, w fxscript.While) error {
	logger := i.loggerFor(ctx, ec, map[string]any{"step_kind": string(fxscript.KindWhile), "branch": w.Branch})
	warned := false
	g := func() bool {
		done, known := i.branches.done(w.Branch)
		if !known && !warned {
			warned = true
			logger.Warn("while references unknown branch %q, running until timeout", w.Branch)
		}
		return done
	}
	return i.gatedLoop(ctx, ec, w.Step, seconds(w.Timeout), g, logger)
}

func (i *Interpreter) execUntil(ctx context.Context, ec *fxscript.ExecContext, u fxscript.Until) error {
	logger := i.loggerFor(ctx, ec, map[string]any{"step_kind": string(fxscript.KindUntil), "event": u.Event})
	g := func() bool {
		return i.bus.Fired(u.Event)
	}
	return i.gatedLoop(ctx, ec, u.Step, seconds(u.Timeout), g, logger)
}

// gatedLoop runs child under g. A single steady Play runs once and is kept
// alive until the gate opens; anything else is re-run once per tick.
func (i *Interpreter) gatedLoop(ctx context.Context, ec *fxscript.ExecContext, child fxscript.Step, timeout time.Duration, g gate, logger Logger) error {
	if timeout <= 0 {
		timeout = i.loopTimeout
	}
	deadline := i.clock.After(timeout)

	if play, ok := child.(fxscript.Play); ok {
		local := i.effectContext(ctx, ec, play)
		h, err := i.classify(local)
		switch {
		case err != nil:
			logger.Debug("effect %s classification failed, looping as one-shot: %v", local.EffectID, err)
		case fxscript.IsSteady(h):
			return i.steadyLoop(ctx, ec, local, h, deadline, g, logger)
		}
	}

	for {
		if g() || i.stopped(ctx) {
			return nil
		}
		if err := i.execStep(ctx, ec, child); err != nil {
			return err
		}
		if g() {
			return nil
		}
		select {
		case <-deadline:
			logger.Info("loop timed out after %s", timeout)
			return nil
		case <-i.clock.After(i.tick):
		case <-ctx.Done():
			return nil
		case <-i.control.Done():
			return nil
		}
	}
}

func (i *Interpreter) classify(local fxscript.EffectContext) (fxscript.Handler, error) {
	if i.factory == nil {
		return nil, ErrNoFactory
	}
	var h fxscript.Handler
	err := fxscript.Guard("create "+local.EffectID, i.panicLogger, map[string]any{"effect": local.EffectID}, func() error {
		var err error
		h, err = i.factory.Create(local.EffectID, local)
		return err
	})
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrNoHandler
	}
	return h, nil
}

// steadyLoop keeps h alive until the gate opens, the deadline passes, the
// handler reports it finished or the run is canceled. Stop is called once
// on every exit path.
func (i *Interpreter) steadyLoop(ctx context.Context, ec *fxscript.ExecContext, local fxscript.EffectContext, h fxscript.Handler, deadline <-chan time.Time, g gate, logger Logger) error {
	hec := handlerContext(ec, local)
	id := i.running.add(local.EffectID, h, hec)
	defer i.running.remove(id)

	var once sync.Once
	stop := func(reason string) {
		once.Do(func() {
			s, ok := h.(fxscript.Stopper)
			if !ok {
				return
			}
			logger.Debug("stopping steady effect %s: %s", local.EffectID, reason)
			err := fxscript.Guard("stop "+local.EffectID, i.panicLogger, map[string]any{"effect": local.EffectID}, s.Stop)
			if err != nil {
				logger.Warn("steady effect %s stop failed: %v", local.EffectID, err)
			}
		})
	}
	defer stop("exit")

	if err := i.invoke(ctx, hec, local, h); err != nil {
		stop("error")
		return err
	}

	for {
		if g() {
			stop("gate")
			return nil
		}
		if r, ok := h.(fxscript.RunningReporter); ok && !r.IsRunning() {
			stop("finished")
			return nil
		}
		if i.stopped(ctx) {
			stop("canceled")
			return nil
		}
		select {
		case <-deadline:
			logger.Info("steady effect %s timed out", local.EffectID)
			stop("timeout")
			return nil
		case <-i.clock.After(i.poll):
		case <-ctx.Done():
		case <-i.control.Done():
		}
	}
}
