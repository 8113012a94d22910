package fxscript

import (
	"context"
	"sync"
	"time"
)

// DefaultLOD is the detail level used when none is supplied.
const DefaultLOD = "medium"

// Subject is an actor or patient entity. The engine never inspects it.
type Subject = any

// Runtime is the view of the owning interpreter handed to handlers
// through ExecContext.
type Runtime interface {
	ScriptID() string
	GetVar(name string) (any, bool)
	SetVar(name string, value any)
	Emit(name string, payload any)
	WaitEvent(ctx context.Context, name string, timeout time.Duration) (any, bool)
	IsCancelled() bool
	IsPaused() bool
}

// Vars is a variable mapping safe for use across branch goroutines.
type Vars struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewVars copies initial into a new mapping.
func NewVars(initial map[string]any) *Vars {
	v := &Vars{values: make(map[string]any, len(initial))}
	for k, val := range initial {
		v.values[k] = val
	}
	return v
}

func (v *Vars) Get(name string) (any, bool) {
	if v == nil {
		return nil, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.values[name]
	return val, ok
}

func (v *Vars) Set(name string, value any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.values == nil {
		v.values = make(map[string]any)
	}
	v.values[name] = value
}

func (v *Vars) Delete(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.values, name)
}

func (v *Vars) Len() int {
	if v == nil {
		return 0
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.values)
}

// Snapshot returns a shallow copy of the mapping.
func (v *Vars) Snapshot() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]any, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// Clone copies the mapping by value. Values themselves are not cloned.
func (v *Vars) Clone() *Vars {
	return NewVars(v.Snapshot())
}

// ExecContext is threaded through every step.
type ExecContext struct {
	Actor    Subject
	Patients []Subject
	Vars     *Vars
	ScriptID string
	LOD      string
	Runtime  Runtime
}

// Fork returns a copy for a parallel branch or loop iteration. Vars are
// copied by value; Actor and Patients alias the parent's subjects.
func (c *ExecContext) Fork() *ExecContext {
	cp := *c
	cp.Vars = c.Vars.Clone()
	return &cp
}

// Lookup reads name from the context variables.
func (c *ExecContext) Lookup(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	return c.Vars.Get(name)
}

// Seed is the caller-supplied partial context an interpreter is built from.
type Seed struct {
	Actor    Subject
	Patients []Subject
	Vars     map[string]any
	// Item fields are exposed as same-named variables.
	Item map[string]any
	LOD  string
}

// EffectContext is the local context a Play builds for one effect
// invocation: the step fields merged over the execution context.
type EffectContext struct {
	EffectID string
	ScriptID string
	Actor    Subject
	Patients []Subject
	Params   map[string]any
	Vars     map[string]any
	LOD      string
}

// Param returns a resolved step parameter.
func (e EffectContext) Param(name string) (any, bool) {
	v, ok := e.Params[name]
	return v, ok
}
