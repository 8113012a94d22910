package interp

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-fxscript"
	"github.com/goliatone/go-fxscript/runner"
)

var _ fxscript.Runtime = (*Interpreter)(nil)

// Interpreter walks one Script's step tree. An Interpreter runs once;
// build a new one per trigger.
type Interpreter struct {
	script *fxscript.Script
	root   *fxscript.ExecContext
	store  *fxscript.Vars

	factory     fxscript.Factory
	provider    fxscript.ScriptProvider
	commands    fxscript.CommandExecutor
	logger      Logger
	panicLogger fxscript.PanicLogger
	clock       Clock
	bus         *EventBus
	rand        func() float64
	cmdRetry    runner.RetryStrategy

	tick        time.Duration
	poll        time.Duration
	loopTimeout time.Duration
	maxDepth    int
	depth       int

	control  *runner.Control
	branches *branchTracker
	running  *runningRegistry

	childMu  sync.Mutex
	children map[*Interpreter]struct{}

	startOnce sync.Once
}

// New builds an interpreter for script with a root context derived from
// seed.
func New(script *fxscript.Script, seed fxscript.Seed, opts ...Option) (*Interpreter, error) {
	if script == nil || strings.TrimSpace(script.ID) == "" {
		return nil, errors.New("interpreter requires a script with an id", errors.CategoryBadInput).
			WithTextCode(fxscript.ErrCodeInvalidScript)
	}

	i := &Interpreter{
		script:      script,
		store:       fxscript.NewVars(nil),
		logger:      NewFmtLogger(nil),
		clock:       RealClock(),
		bus:         NewEventBus(),
		rand:        rand.Float64,
		tick:        DefaultTickInterval,
		poll:        DefaultPollInterval,
		loopTimeout: DefaultLoopTimeout,
		maxDepth:    DefaultMaxCallDepth,
		cmdRetry:    DefaultCommandRetry,
		branches:    newBranchTracker(),
		running:     newRunningRegistry(),
		children:    make(map[*Interpreter]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	if i.control == nil {
		i.control = runner.NewControl(nil)
	}
	i.root = i.buildContext(seed)
	return i, nil
}

// buildContext applies the per-run defaults: source, target, targets,
// item fields, then the caller's explicit vars.
func (i *Interpreter) buildContext(seed fxscript.Seed) *fxscript.ExecContext {
	vars := fxscript.NewVars(nil)
	if seed.Actor != nil {
		vars.Set("source", seed.Actor)
	}
	if len(seed.Patients) > 0 {
		vars.Set("target", seed.Patients[0])
		targets := make([]any, len(seed.Patients))
		copy(targets, seed.Patients)
		vars.Set("targets", targets)
	}
	for k, v := range seed.Item {
		vars.Set(k, v)
	}
	for k, v := range seed.Vars {
		vars.Set(k, v)
	}

	lod := strings.TrimSpace(seed.LOD)
	if lod == "" {
		lod = fxscript.DefaultLOD
	}
	return &fxscript.ExecContext{
		Actor:    seed.Actor,
		Patients: seed.Patients,
		Vars:     vars,
		ScriptID: i.script.ID,
		LOD:      lod,
		Runtime:  i,
	}
}

// Start runs the main entry. It returns nil when the run completes or is
// canceled through Cancel, ctx.Err() when ctx ends first and the first
// fatal dispatch error otherwise.
func (i *Interpreter) Start(ctx context.Context) error {
	return i.StartEntry(ctx, fxscript.MainEntry)
}

// StartEntry runs the named entry of the script.
func (i *Interpreter) StartEntry(ctx context.Context, name string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	entry, ok := i.script.Entry(name)
	if !ok {
		return errors.New("script has no entry "+name, errors.CategoryNotFound).
			WithTextCode(fxscript.ErrCodeInvalidScript).
			WithMetadata(map[string]any{"script_id": i.script.ID, "entry": name})
	}

	started := false
	i.startOnce.Do(func() { started = true })
	if !started {
		return errors.New("interpreter already started", errors.CategoryConflict).
			WithTextCode(fxscript.ErrCodeStepFailed).
			WithMetadata(map[string]any{"script_id": i.script.ID})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-i.control.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	logger := i.loggerFor(ctx, i.root, nil)
	logger.Debug("script %s started at entry %s", i.script.ID, name)

	err := i.execStep(runCtx, i.root, entry)

	if ctxErr := ctx.Err(); ctxErr != nil {
		i.control.Cancel(ctxErr)
		logger.Debug("script %s stopped: %v", i.script.ID, ctxErr)
		return ctxErr
	}
	if err != nil && i.control.IsCancelled() && errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		err = i.annotate(err)
		logger.Error("script %s failed: %v", i.script.ID, err)
		return err
	}
	logger.Debug("script %s finished", i.script.ID)
	return nil
}

func (i *Interpreter) annotate(err error) error {
	var ge *errors.Error
	if !errors.As(err, &ge) {
		return errors.Wrap(err, errors.CategoryHandler, "script "+i.script.ID+" failed").
			WithTextCode(fxscript.ErrCodeStepFailed).
			WithMetadata(map[string]any{"script_id": i.script.ID})
	}
	if _, ok := ge.Metadata["script_id"]; !ok {
		ge.WithMetadata(map[string]any{"script_id": i.script.ID})
	}
	return err
}

// Cancel makes every later dispatch a no-op and wakes suspended steps.
// Called scripts are canceled with their caller.
func (i *Interpreter) Cancel() {
	i.control.Cancel(nil)
}

// Pause blocks the next dispatch until Resume or Cancel.
func (i *Interpreter) Pause() {
	i.control.Pause()
}

func (i *Interpreter) Resume() {
	i.control.Resume()
}

func (i *Interpreter) IsCancelled() bool {
	return i.control.IsCancelled()
}

func (i *Interpreter) IsPaused() bool {
	return i.control.IsPaused()
}

func (i *Interpreter) ScriptID() string {
	return i.script.ID
}

// Context returns the root execution context.
func (i *Interpreter) Context() *fxscript.ExecContext {
	return i.root
}

// Events returns the bus this interpreter emits on.
func (i *Interpreter) Events() *EventBus {
	return i.bus
}

func (i *Interpreter) Emit(name string, payload any) {
	i.bus.Emit(name, payload)
}

// WaitEvent blocks until name fires, timeout elapses, ctx ends or the
// interpreter is canceled. A zero timeout waits without bound.
func (i *Interpreter) WaitEvent(ctx context.Context, name string, timeout time.Duration) (any, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	return i.bus.Wait(ctx, i.clock, name, timeout, i.control.Done())
}

// SetVar writes the interpreter store.
func (i *Interpreter) SetVar(name string, value any) {
	i.store.Set(name, value)
}

// GetVar reads the interpreter store, falling back to the root context.
func (i *Interpreter) GetVar(name string) (any, bool) {
	if v, ok := i.store.Get(name); ok {
		return v, true
	}
	return i.root.Lookup(name)
}

// UpdateParameter records value under name and notifies every live
// handler that listens for parameter changes, including those of called
// scripts.
func (i *Interpreter) UpdateParameter(name string, value any) {
	i.store.Set(name, value)
	i.root.Vars.Set(name, value)
	notified := i.running.notify(name, value)
	i.loggerFor(context.Background(), i.root, nil).
		Debug("parameter %s updated, %d live handlers notified", name, notified)

	for _, child := range i.childList() {
		child.UpdateParameter(name, value)
	}
}

// LiveEffects lists the ids of handlers currently registered as running.
func (i *Interpreter) LiveEffects() []string {
	return i.running.ids()
}

func (i *Interpreter) childList() []*Interpreter {
	i.childMu.Lock()
	defer i.childMu.Unlock()
	out := make([]*Interpreter, 0, len(i.children))
	for c := range i.children {
		out = append(out, c)
	}
	return out
}

// spawn builds the interpreter for a Call step. It shares collaborators
// and the event bus, and follows this interpreter's pause and cancel.
func (i *Interpreter) spawn(script *fxscript.Script, seed fxscript.Seed) (*Interpreter, error) {
	child, err := New(script, seed,
		WithFactory(i.factory),
		WithScriptProvider(i.provider),
		WithCommandExecutor(i.commands),
		WithLogger(i.logger),
		WithPanicLogger(i.panicLogger),
		WithClock(i.clock),
		WithEventBus(i.bus),
		WithRand(i.rand),
		WithCommandRetryStrategy(i.cmdRetry),
		WithTickInterval(i.tick),
		WithPollInterval(i.poll),
		WithLoopTimeout(i.loopTimeout),
		WithMaxCallDepth(i.maxDepth),
		withControl(runner.NewControl(i.control)),
		withDepth(i.depth+1),
	)
	if err != nil {
		return nil, err
	}
	i.childMu.Lock()
	i.children[child] = struct{}{}
	i.childMu.Unlock()
	return child, nil
}

func (i *Interpreter) release(child *Interpreter) {
	i.childMu.Lock()
	delete(i.children, child)
	i.childMu.Unlock()
	child.control.Cancel(nil)
}

func withControl(c *runner.Control) Option {
	return func(i *Interpreter) {
		i.control = c
	}
}

func withDepth(d int) Option {
	return func(i *Interpreter) {
		i.depth = d
	}
}

// stopped reports whether dispatch should become a no-op.
func (i *Interpreter) stopped(ctx context.Context) bool {
	return i.control.IsCancelled() || ctx.Err() != nil
}

// sleep suspends for d on the interpreter clock. It reports false when
// the wait was cut short by cancellation.
func (i *Interpreter) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !i.stopped(ctx)
	}
	select {
	case <-i.clock.After(d):
		return !i.stopped(ctx)
	case <-ctx.Done():
		return false
	case <-i.control.Done():
		return false
	}
}

func (i *Interpreter) loggerFor(ctx context.Context, ec *fxscript.ExecContext, fields map[string]any) Logger {
	base := map[string]any{"script_id": i.script.ID}
	if ec != nil && ec.ScriptID != "" {
		base["script_id"] = ec.ScriptID
	}
	return withLoggerFields(i.logger.WithContext(ctx), mergeFields(base, fields))
}
