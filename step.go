package fxscript

// StepKind identifies a step variant.
type StepKind string

const (
	KindPlay      StepKind = "play"
	KindWait      StepKind = "wait"
	KindSequence  StepKind = "sequence"
	KindParallel  StepKind = "parallel"
	KindRepeat    StepKind = "repeat"
	KindForEach   StepKind = "foreach"
	KindLodSwitch StepKind = "lod_switch"
	KindCall      StepKind = "call"
	KindIf        StepKind = "if"
	KindEmitEvent StepKind = "emit_event"
	KindWaitEvent StepKind = "wait_event"
	KindSetVar    StepKind = "set_var"
	KindCmd       StepKind = "cmd"
	KindWhile     StepKind = "while"
	KindUntil     StepKind = "until"
)

// Step is one node of a script. The set of implementations is closed:
// only the types in this package satisfy it.
type Step interface {
	Kind() StepKind
	step()
}

// Play invokes an effect by id.
type Play struct {
	Effect string
	Source Ref
	Target Ref
	Params map[string]any
}

// Wait suspends for Seconds.
type Wait struct {
	Seconds float64
}

// Sequence runs Steps in order.
type Sequence struct {
	Steps []Step
}

// Branch is one child of a Parallel. ID is optional; While steps
// reference branches by it.
type Branch struct {
	ID   string
	Step Step
}

// Parallel runs every branch concurrently and joins on all of them.
type Parallel struct {
	Branches []Branch
}

// Repeat runs Step Times times, or until UntilEvent has fired when set.
type Repeat struct {
	Times      int
	UntilEvent string
	// Interval is an optional pause in seconds between iterations.
	Interval float64
	Step     Step
}

// ForEach runs Step once per element of the resolved Collection.
type ForEach struct {
	Collection Ref
	As         string
	IndexAs    string
	Step       Step
}

// LodSwitch selects a child by the context detail level.
type LodSwitch struct {
	Cases map[string]Step
}

// Call runs another script, or a named sequence of the current one when
// Script is empty.
type Call struct {
	Script string
	Entry  string
	Args   map[string]any
}

// If branches on Cond.
type If struct {
	Cond Condition
	Then Step
	Else Step
}

// EmitEvent fires Name on the event bus.
type EmitEvent struct {
	Name    string
	Payload any
}

// WaitEvent suspends until Name fires or Timeout seconds elapse.
// Zero Timeout waits without bound. The payload is bound under As when set.
type WaitEvent struct {
	Name    string
	Timeout float64
	As      string
}

// SetVar binds Name in the current context, and in the interpreter store
// when Global is set.
type SetVar struct {
	Name   string
	Value  any
	Global bool
}

// Cmd delegates to the external command executor.
type Cmd struct {
	Name    string
	Args    map[string]any
	Timeout float64
	Retries int
}

// While runs Step while the parallel branch named Branch is in flight.
type While struct {
	Branch  string
	Timeout float64
	Step    Step
}

// Until runs Step until Event fires.
type Until struct {
	Event   string
	Timeout float64
	Step    Step
}

func (Play) Kind() StepKind      { return KindPlay }
func (Wait) Kind() StepKind      { return KindWait }
func (Sequence) Kind() StepKind  { return KindSequence }
func (Parallel) Kind() StepKind  { return KindParallel }
func (Repeat) Kind() StepKind    { return KindRepeat }
func (ForEach) Kind() StepKind   { return KindForEach }
func (LodSwitch) Kind() StepKind { return KindLodSwitch }
func (Call) Kind() StepKind      { return KindCall }
func (If) Kind() StepKind        { return KindIf }
func (EmitEvent) Kind() StepKind { return KindEmitEvent }
func (WaitEvent) Kind() StepKind { return KindWaitEvent }
func (SetVar) Kind() StepKind    { return KindSetVar }
func (Cmd) Kind() StepKind       { return KindCmd }
func (While) Kind() StepKind     { return KindWhile }
func (Until) Kind() StepKind     { return KindUntil }

func (Play) step()      {}
func (Wait) step()      {}
func (Sequence) step()  {}
func (Parallel) step()  {}
func (Repeat) step()    {}
func (ForEach) step()   {}
func (LodSwitch) step() {}
func (Call) step()      {}
func (If) step()        {}
func (EmitEvent) step() {}
func (WaitEvent) step() {}
func (SetVar) step()    {}
func (Cmd) step()       {}
func (While) step()     {}
func (Until) step()     {}

// Unknown carries a step tag the loader did not recognise. The
// interpreter logs it and treats it as a no-op.
type Unknown struct {
	Type string
}

func (u Unknown) Kind() StepKind { return StepKind(u.Type) }
func (Unknown) step()            {}

// KindOf returns the kind of s, or "unknown" for nil.
func KindOf(s Step) StepKind {
	if s == nil {
		return "unknown"
	}
	return s.Kind()
}
