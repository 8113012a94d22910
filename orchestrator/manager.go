package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	rcron "github.com/robfig/cron/v3"

	"github.com/goliatone/go-fxscript"
	"github.com/goliatone/go-fxscript/interp"
)

const (
	DefaultSweepInterval = 30 * time.Second
	DefaultRetention     = 5 * time.Minute
)

// RunID identifies one triggered interpreter run.
type RunID string

type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCanceled  RunStatus = "canceled"
)

// TriggerRequest starts a script. Replicate publishes the trigger to
// peers through the configured Replicator.
type TriggerRequest struct {
	ScriptID  string
	Entry     string
	Seed      fxscript.Seed
	Replicate bool
}

// RunInfo is a snapshot of one run.
type RunInfo struct {
	ID         RunID
	ScriptID   string
	Entry      string
	Status     RunStatus
	Paused     bool
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

type run struct {
	id       RunID
	scriptID string
	entry    string
	it       *interp.Interpreter
	started  time.Time
	done     chan struct{}

	// guarded by Manager.mu
	status   RunStatus
	finished time.Time
	err      error
}

// Manager creates and tracks interpreter runs, fans parameter updates out
// to them and suppresses replicated triggers echoed back to this node.
type Manager struct {
	mu   sync.RWMutex
	runs map[RunID]*run

	provider   fxscript.ScriptProvider
	factory    fxscript.Factory
	commands   fxscript.CommandExecutor
	logger     interp.Logger
	replicator Replicator
	metrics    MetricsRecorder
	interpOpts []interp.Option
	sent       *SentSet
	origin     string
	now        func() time.Time

	sweepEvery time.Duration
	retention  time.Duration
	cronMu     sync.Mutex
	cron       *rcron.Cron

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager builds a manager. Runs outlive the context passed to
// Trigger; they end on completion, Cancel, CancelAll or Close.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		runs:       make(map[RunID]*run),
		logger:     interp.NewFmtLogger(nil),
		metrics:    noopMetrics{},
		origin:     uuid.NewString(),
		now:        time.Now,
		sweepEvery: DefaultSweepInterval,
		retention:  DefaultRetention,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.sent == nil {
		m.sent = NewSentSet(DefaultSentTTL, DefaultSentCapacity, m.now)
	}
	m.baseCtx, m.stop = context.WithCancel(context.Background())
	return m
}

// Origin is the node name stamped on published triggers.
func (m *Manager) Origin() string {
	return m.origin
}

// Trigger loads the script and starts it on its own goroutine.
func (m *Manager) Trigger(ctx context.Context, req TriggerRequest) (RunID, error) {
	if m.provider == nil {
		return "", errors.New("no script provider configured", errors.CategoryInternal).
			WithTextCode(fxscript.ErrCodeScriptNotFound)
	}
	script, err := m.provider.Load(ctx, req.ScriptID)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryExternal, "load script "+req.ScriptID).
			WithMetadata(map[string]any{"script_id": req.ScriptID})
	}
	if script == nil {
		return "", errors.New("script not found: "+req.ScriptID, errors.CategoryNotFound).
			WithTextCode(fxscript.ErrCodeScriptNotFound).
			WithMetadata(map[string]any{"script_id": req.ScriptID})
	}

	opts := []interp.Option{
		interp.WithLogger(m.logger),
		interp.WithScriptProvider(m.provider),
	}
	if m.factory != nil {
		opts = append(opts, interp.WithFactory(m.factory))
	}
	if m.commands != nil {
		opts = append(opts, interp.WithCommandExecutor(m.commands))
	}
	opts = append(opts, m.interpOpts...)

	it, err := interp.New(script, req.Seed, opts...)
	if err != nil {
		return "", err
	}

	r := &run{
		id:       RunID(uuid.NewString()),
		scriptID: script.ID,
		entry:    req.Entry,
		it:       it,
		started:  m.now(),
		done:     make(chan struct{}),
		status:   StatusRunning,
	}

	m.mu.Lock()
	if m.baseCtx.Err() != nil {
		m.mu.Unlock()
		return "", errors.New("manager is closed", errors.CategoryConflict).
			WithTextCode(fxscript.ErrCodeRunNotFound)
	}
	m.runs[r.id] = r
	m.wg.Add(1)
	m.mu.Unlock()

	go m.execute(r)

	if req.Replicate {
		m.publish(ctx, script.ID, req)
	}
	m.loggerFor(r).Debug("run started")
	return r.id, nil
}

func (m *Manager) execute(r *run) {
	defer m.wg.Done()
	err := r.it.StartEntry(m.baseCtx, r.entry)
	elapsed := m.now().Sub(r.started)

	status := StatusCompleted
	switch {
	case r.it.IsCancelled():
		status = StatusCanceled
		err = nil
	case err != nil:
		status = StatusFailed
	}

	m.metrics.RecordDuration(r.scriptID, elapsed)
	if status == StatusFailed {
		m.metrics.RecordError(r.scriptID)
		m.loggerFor(r).Error("run failed: %v", err)
	} else {
		m.metrics.RecordSuccess(r.scriptID)
		m.loggerFor(r).Debug("run %s after %s", status, elapsed)
	}

	m.mu.Lock()
	r.status = status
	r.err = err
	r.finished = m.now()
	m.mu.Unlock()
	close(r.done)
}

func (m *Manager) publish(ctx context.Context, scriptID string, req TriggerRequest) {
	if m.replicator == nil {
		m.logger.Debug("replication requested for %s but no replicator is configured", scriptID)
		return
	}
	t := ReplicatedTrigger{
		ID:       uuid.NewString(),
		Origin:   m.origin,
		ScriptID: scriptID,
		Entry:    req.Entry,
		Seed:     req.Seed,
	}
	m.sent.Add(t.ID)
	if err := m.replicator.Publish(ctx, t); err != nil {
		m.logger.Warn("replicate %s failed: %v", scriptID, err)
	}
}

// Receive starts a trigger published by a peer. Triggers this node sent,
// or already received, are dropped and report false.
func (m *Manager) Receive(ctx context.Context, t ReplicatedTrigger) (RunID, bool, error) {
	if t.Origin == m.origin || m.sent.Contains(t.ID) {
		m.logger.Trace("dropping echoed trigger %s for %s", t.ID, t.ScriptID)
		return "", false, nil
	}
	m.sent.Add(t.ID)
	id, err := m.Trigger(ctx, TriggerRequest{ScriptID: t.ScriptID, Entry: t.Entry, Seed: t.Seed})
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (m *Manager) lookup(id RunID) (*run, error) {
	m.mu.RLock()
	r, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errors.New(fmt.Sprintf("run %s not found", id), errors.CategoryNotFound).
			WithTextCode(fxscript.ErrCodeRunNotFound).
			WithMetadata(map[string]any{"run_id": string(id)})
	}
	return r, nil
}

func (m *Manager) Cancel(id RunID) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	r.it.Cancel()
	return nil
}

func (m *Manager) Pause(id RunID) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	r.it.Pause()
	return nil
}

func (m *Manager) Resume(id RunID) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	r.it.Resume()
	return nil
}

// CancelAll cancels every live run.
func (m *Manager) CancelAll() {
	for _, r := range m.live() {
		r.it.Cancel()
	}
}

// UpdateParameter forwards the update to every live run and returns how
// many received it.
func (m *Manager) UpdateParameter(name string, value any) int {
	live := m.live()
	for _, r := range live {
		r.it.UpdateParameter(name, value)
	}
	return len(live)
}

// Wait blocks until the run finishes and returns its error. A canceled
// run returns nil.
func (m *Manager) Wait(ctx context.Context, id RunID) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return r.err
}

// Status returns a snapshot of the run.
func (m *Manager) Status(id RunID) (RunInfo, error) {
	r, err := m.lookup(id)
	if err != nil {
		return RunInfo{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return r.info(), nil
}

// Active lists live runs ordered by start time.
func (m *Manager) Active() []RunInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RunInfo, 0, len(m.runs))
	for _, r := range m.runs {
		if r.status == StatusRunning {
			out = append(out, r.info())
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].StartedAt.Equal(out[b].StartedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].StartedAt.Before(out[b].StartedAt)
	})
	return out
}

func (m *Manager) live() []*run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*run, 0, len(m.runs))
	for _, r := range m.runs {
		if r.status == StatusRunning {
			out = append(out, r)
		}
	}
	return out
}

// Sweep expires sent ids and forgets runs finished longer ago than the
// retention. It returns the number of runs forgotten.
func (m *Manager) Sweep() int {
	expired := m.sent.Sweep()
	cutoff := m.now().Add(-m.retention)

	m.mu.Lock()
	forgotten := 0
	for id, r := range m.runs {
		if r.status != StatusRunning && r.finished.Before(cutoff) {
			delete(m.runs, id)
			forgotten++
		}
	}
	m.mu.Unlock()

	if expired > 0 || forgotten > 0 {
		m.logger.Trace("sweep expired %d sent ids, forgot %d runs", expired, forgotten)
	}
	return forgotten
}

// Start schedules the periodic sweep.
func (m *Manager) Start(_ context.Context) error {
	m.cronMu.Lock()
	defer m.cronMu.Unlock()
	if m.cron != nil {
		return nil
	}
	c := rcron.New(rcron.WithLogger(cronLogger{logger: m.logger}))
	spec := fmt.Sprintf("@every %s", m.sweepEvery)
	if _, err := c.AddFunc(spec, func() { m.Sweep() }); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "schedule sweep")
	}
	c.Start()
	m.cron = c
	return nil
}

// Stop halts the sweep job, waiting for a running sweep to return or ctx
// to end.
func (m *Manager) Stop(ctx context.Context) error {
	m.cronMu.Lock()
	c := m.cron
	m.cron = nil
	m.cronMu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the sweep, cancels every run and waits for them to return.
func (m *Manager) Close(ctx context.Context) error {
	stopErr := m.Stop(ctx)
	m.mu.Lock()
	m.stop()
	m.mu.Unlock()
	m.CancelAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loggerFor(r *run) interp.Logger {
	fields := map[string]any{"run_id": string(r.id), "script_id": r.scriptID}
	if fl, ok := m.logger.(interp.FieldsLogger); ok {
		return fl.WithFields(fields)
	}
	return m.logger
}

func (r *run) info() RunInfo {
	return RunInfo{
		ID:         r.id,
		ScriptID:   r.scriptID,
		Entry:      r.entry,
		Status:     r.status,
		Paused:     r.status == StatusRunning && r.it.IsPaused(),
		StartedAt:  r.started,
		FinishedAt: r.finished,
		Err:        r.err,
	}
}

// cronLogger routes robfig/cron logging through the run logger.
type cronLogger struct {
	logger interp.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Trace("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: %s %v: %v", msg, keysAndValues, err)
}
