package interp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-fxscript"
	"github.com/goliatone/go-fxscript/runner"
)

// execStep is the single dispatch point. Canceled dispatches are no-ops;
// paused dispatches block until resumed.
func (i *Interpreter) execStep(ctx context.Context, ec *fxscript.ExecContext, step fxscript.Step) error {
	if i.stopped(ctx) {
		return nil
	}
	if err := i.control.WaitIfPaused(ctx); err != nil {
		return nil
	}

	var err error
	switch s := step.(type) {
	case nil:
		return nil
	case fxscript.Play:
		err = i.execPlay(ctx, ec, s)
	case fxscript.Wait:
		i.sleep(ctx, seconds(s.Seconds))
	case fxscript.Sequence:
		err = i.execSequence(ctx, ec, s)
	case fxscript.Parallel:
		err = i.execParallel(ctx, ec, s)
	case fxscript.Repeat:
		err = i.execRepeat(ctx, ec, s)
	case fxscript.ForEach:
		err = i.execForEach(ctx, ec, s)
	case fxscript.LodSwitch:
		err = i.execLodSwitch(ctx, ec, s)
	case fxscript.Call:
		err = i.execCall(ctx, ec, s)
	case fxscript.If:
		if i.evalCondition(ctx, ec, s.Cond) {
			err = i.execStep(ctx, ec, s.Then)
		} else if s.Else != nil {
			err = i.execStep(ctx, ec, s.Else)
		}
	case fxscript.EmitEvent:
		i.loggerFor(ctx, ec, map[string]any{"event": s.Name}).Debug("emit %s", s.Name)
		i.bus.Emit(s.Name, i.resolveValue(ec, s.Payload))
	case fxscript.WaitEvent:
		i.execWaitEvent(ctx, ec, s)
	case fxscript.SetVar:
		value := i.resolveValue(ec, s.Value)
		ec.Vars.Set(s.Name, value)
		if s.Global {
			i.store.Set(s.Name, value)
		}
	case fxscript.Cmd:
		i.execCmd(ctx, ec, s)
	case fxscript.While:
		err = i.execWhile(ctx, ec, s)
	case fxscript.Until:
		err = i.execUntil(ctx, ec, s)
	default:
		i.loggerFor(ctx, ec, map[string]any{"step_kind": string(fxscript.KindOf(step))}).
			Warn("unknown step type %q ignored", fxscript.KindOf(step))
		return nil
	}

	if err == nil {
		return nil
	}
	var ge *errors.Error
	if !errors.As(err, &ge) {
		return errors.Wrap(err, errors.CategoryHandler, fmt.Sprintf("%s step failed", step.Kind())).
			WithTextCode(fxscript.ErrCodeStepFailed).
			WithMetadata(map[string]any{
				"script_id": ec.ScriptID,
				"step_kind": string(step.Kind()),
			})
	}
	// the innermost step that failed keeps its kind
	if _, ok := ge.Metadata["step_kind"]; !ok {
		ge.WithMetadata(map[string]any{"step_kind": string(step.Kind())})
	}
	return err
}

func (i *Interpreter) execSequence(ctx context.Context, ec *fxscript.ExecContext, s fxscript.Sequence) error {
	for _, child := range s.Steps {
		if i.stopped(ctx) {
			return nil
		}
		if err := i.execStep(ctx, ec, child); err != nil {
			return err
		}
	}
	return nil
}

// execParallel registers every branch before any starts so While steps in
// one branch can gate on a sibling.
func (i *Interpreter) execParallel(ctx context.Context, ec *fxscript.ExecContext, p fxscript.Parallel) error {
	if len(p.Branches) == 0 {
		return nil
	}

	ids := make([]string, len(p.Branches))
	var prefix string
	for idx, b := range p.Branches {
		id := b.ID
		if id == "" {
			if prefix == "" {
				prefix = i.branches.nextParallel()
			}
			id = fmt.Sprintf("%s.%d", prefix, idx)
		}
		ids[idx] = id
		i.branches.register(id)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(p.Branches))
	for idx, b := range p.Branches {
		wg.Add(1)
		go func(index int, branch fxscript.Branch, forked *fxscript.ExecContext) {
			defer wg.Done()
			defer i.branches.complete(ids[index])
			errs[index] = i.execStep(ctx, forked, branch.Step)
		}(idx, b, ec.Fork())
	}
	wg.Wait()

	var finalErr error
	var failedIDs []string
	for idx, err := range errs {
		if err == nil {
			continue
		}
		failedIDs = append(failedIDs, ids[idx])
		finalErr = errors.Join(finalErr, err)
	}
	if finalErr == nil {
		return nil
	}
	perr := errors.New(fmt.Sprintf("parallel completed with %d failures out of %d branches",
		len(failedIDs), len(p.Branches)), errors.CategoryHandler).
		WithTextCode(fxscript.ErrCodeParallelFailed).
		WithMetadata(map[string]any{
			"script_id":       ec.ScriptID,
			"total_branches":  len(p.Branches),
			"failed_branches": failedIDs,
		})
	perr.Source = finalErr
	return perr
}

func (i *Interpreter) execForEach(ctx context.Context, ec *fxscript.ExecContext, f fxscript.ForEach) error {
	logger := i.loggerFor(ctx, ec, map[string]any{"step_kind": string(fxscript.KindForEach)})
	value, ok := i.resolve(ec, f.Collection)
	if !ok {
		logger.Warn("foreach collection %s did not resolve", f.Collection)
		return nil
	}
	items, ok := toList(value)
	if !ok {
		logger.Warn("foreach collection %s is %T, not a list", f.Collection, value)
		return nil
	}
	for idx, item := range items {
		if i.stopped(ctx) {
			return nil
		}
		iter := ec.Fork()
		iter.Vars.Set(f.As, item)
		if f.IndexAs != "" {
			iter.Vars.Set(f.IndexAs, idx)
		}
		if err := i.execStep(ctx, iter, f.Step); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interpreter) execLodSwitch(ctx context.Context, ec *fxscript.ExecContext, l fxscript.LodSwitch) error {
	lod := ec.LOD
	if lod == "" {
		lod = fxscript.DefaultLOD
	}
	child, ok := l.Cases[lod]
	if !ok {
		i.loggerFor(ctx, ec, nil).Debug("lod_switch has no case for %s", lod)
		return nil
	}
	return i.execStep(ctx, ec, child)
}

func (i *Interpreter) execCall(ctx context.Context, ec *fxscript.ExecContext, c fxscript.Call) error {
	logger := i.loggerFor(ctx, ec, map[string]any{"step_kind": string(fxscript.KindCall)})
	if i.depth+1 > i.maxDepth {
		return errors.New(fmt.Sprintf("call depth %d exceeds limit %d", i.depth+1, i.maxDepth), errors.CategoryBadInput).
			WithTextCode(fxscript.ErrCodeCallDepth).
			WithMetadata(map[string]any{
				"script_id": ec.ScriptID,
				"target":    c.Script,
				"entry":     c.Entry,
			})
	}

	script := i.script
	if c.Script != "" && c.Script != i.script.ID {
		if i.provider == nil {
			logger.Warn("call to %s skipped: no script provider", c.Script)
			return nil
		}
		loaded, err := i.provider.Load(ctx, c.Script)
		if err != nil {
			logger.Warn("call to %s skipped: %v", c.Script, err)
			return nil
		}
		if loaded == nil {
			logger.Warn("call to %s skipped: script not found", c.Script)
			return nil
		}
		script = loaded
	}

	entry := c.Entry
	if entry == "" {
		entry = fxscript.MainEntry
	}
	if _, ok := script.Entry(entry); !ok {
		logger.Warn("call to %s skipped: no entry %s", script.ID, entry)
		return nil
	}

	vars := ec.Vars.Snapshot()
	for k, v := range c.Args {
		vars[k] = i.resolveValue(ec, v)
	}
	child, err := i.spawn(script, fxscript.Seed{
		Actor:    ec.Actor,
		Patients: ec.Patients,
		Vars:     vars,
		LOD:      ec.LOD,
	})
	if err != nil {
		return err
	}
	defer i.release(child)

	logger.Debug("calling %s entry %s at depth %d", script.ID, entry, child.depth)
	return child.StartEntry(ctx, entry)
}

func (i *Interpreter) execWaitEvent(ctx context.Context, ec *fxscript.ExecContext, w fxscript.WaitEvent) {
	payload, ok := i.bus.Wait(ctx, i.clock, w.Name, seconds(w.Timeout), i.control.Done())
	if !ok {
		if !i.stopped(ctx) {
			i.loggerFor(ctx, ec, map[string]any{"event": w.Name}).
				Debug("wait_event %s timed out after %.2fs", w.Name, w.Timeout)
		}
		return
	}
	if w.As != "" {
		ec.Vars.Set(w.As, payload)
	}
}

// execCmd never fails the script: command errors are logged.
func (i *Interpreter) execCmd(ctx context.Context, ec *fxscript.ExecContext, c fxscript.Cmd) {
	logger := i.loggerFor(ctx, ec, map[string]any{"step_kind": string(fxscript.KindCmd), "command": c.Name})
	if i.commands == nil {
		logger.Warn("cmd %s skipped: no command executor", c.Name)
		return
	}

	args := make(map[string]any, len(c.Args))
	for k, v := range c.Args {
		args[k] = i.resolveValue(ec, v)
	}

	opts := []runner.Option{
		runner.WithTimeout(seconds(c.Timeout)),
		runner.WithMaxRetries(c.Retries),
		runner.WithLogger(logger),
		runner.WithAfter(i.clock.After),
		runner.WithErrorHandler(func(err error) {
			logger.Debug("cmd %s attempt failed: %v", c.Name, err)
		}),
	}
	if i.cmdRetry != nil {
		opts = append(opts, runner.WithRetryStrategy(i.cmdRetry))
	}
	h := runner.NewHandler(opts...)

	err := h.Run(ctx, func(ctx context.Context) error {
		return fxscript.Guard("cmd "+c.Name, i.panicLogger, map[string]any{"command": c.Name}, func() error {
			return i.commands.ExecuteCommand(ctx, c.Name, args)
		})
	})
	if err != nil {
		logger.Warn("cmd %s failed: %v", c.Name, err)
	}
}

// execPlay creates the handler and runs it to completion. A factory that
// cannot create the effect is logged and skipped.
func (i *Interpreter) execPlay(ctx context.Context, ec *fxscript.ExecContext, p fxscript.Play) error {
	local := i.effectContext(ctx, ec, p)
	h, ok := i.createHandler(ctx, ec, local)
	if !ok {
		return nil
	}
	return i.runHandler(ctx, ec, local, h)
}

func (i *Interpreter) createHandler(ctx context.Context, ec *fxscript.ExecContext, local fxscript.EffectContext) (fxscript.Handler, bool) {
	logger := i.loggerFor(ctx, ec, map[string]any{"effect": local.EffectID})
	if i.factory == nil {
		logger.Warn("effect %s skipped: no factory", local.EffectID)
		return nil, false
	}
	var h fxscript.Handler
	err := fxscript.Guard("create "+local.EffectID, i.panicLogger, map[string]any{"effect": local.EffectID}, func() error {
		var err error
		h, err = i.factory.Create(local.EffectID, local)
		return err
	})
	if err != nil {
		logger.Warn("effect %s could not be created: %v", local.EffectID, err)
		return nil, false
	}
	if h == nil {
		logger.Warn("effect %s skipped: factory returned no handler", local.EffectID)
		return nil, false
	}
	return h, true
}

// runHandler registers h as live for the duration of Start and Execute.
func (i *Interpreter) runHandler(ctx context.Context, ec *fxscript.ExecContext, local fxscript.EffectContext, h fxscript.Handler) error {
	hec := handlerContext(ec, local)
	id := i.running.add(local.EffectID, h, hec)
	defer i.running.remove(id)
	return i.invoke(ctx, hec, local, h)
}

// invoke calls Start, when implemented, then Execute. Errors and panics
// become handler failures.
func (i *Interpreter) invoke(ctx context.Context, hec *fxscript.ExecContext, local fxscript.EffectContext, h fxscript.Handler) error {
	fields := map[string]any{
		"script_id": hec.ScriptID,
		"effect":    local.EffectID,
	}
	err := fxscript.Guard("effect "+local.EffectID, i.panicLogger, fields, func() error {
		if s, ok := h.(fxscript.Starter); ok {
			if err := s.Start(); err != nil {
				return err
			}
		}
		return h.Execute(ctx, hec)
	})
	if err == nil || fxscript.HasCode(err, fxscript.ErrCodeHandlerFailed) {
		return err
	}
	return errors.Wrap(err, errors.CategoryHandler, fmt.Sprintf("effect %s failed", local.EffectID)).
		WithTextCode(fxscript.ErrCodeHandlerFailed).
		WithMetadata(fields)
}

// effectContext merges the Play fields over ec. Source and Target replace
// the actor and patients only when they resolve.
func (i *Interpreter) effectContext(ctx context.Context, ec *fxscript.ExecContext, p fxscript.Play) fxscript.EffectContext {
	local := fxscript.EffectContext{
		EffectID: strings.TrimSpace(p.Effect),
		ScriptID: ec.ScriptID,
		Actor:    ec.Actor,
		Patients: ec.Patients,
		Params:   make(map[string]any, len(p.Params)),
		Vars:     ec.Vars.Snapshot(),
		LOD:      ec.LOD,
	}
	for k, v := range p.Params {
		local.Params[k] = i.resolveValue(ec, v)
	}

	logger := i.loggerFor(ctx, ec, map[string]any{"effect": local.EffectID})
	if !p.Source.IsZero() {
		if v, ok := i.resolve(ec, p.Source); ok && v != nil {
			local.Actor = v
		} else {
			logger.Debug("source %s did not resolve", p.Source)
		}
	}
	if !p.Target.IsZero() {
		if v, ok := i.resolve(ec, p.Target); ok && v != nil {
			local.Patients = toSubjects(v)
		} else {
			logger.Debug("target %s did not resolve", p.Target)
		}
	}
	return local
}

func handlerContext(ec *fxscript.ExecContext, local fxscript.EffectContext) *fxscript.ExecContext {
	cp := *ec
	cp.Actor = local.Actor
	cp.Patients = local.Patients
	return &cp
}
