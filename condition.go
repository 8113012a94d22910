package fxscript

// ConditionKind identifies a condition variant.
type ConditionKind string

const (
	CondVarEquals  ConditionKind = "var_equals"
	CondVarExists  ConditionKind = "var_exists"
	CondChance     ConditionKind = "chance"
	CondHasTargets ConditionKind = "has_targets"
	CondHasSource  ConditionKind = "has_source"
	CondIsVarTrue  ConditionKind = "is_var_true"
	CondIsVarFalse ConditionKind = "is_var_false"
	CondNot        ConditionKind = "not"
	CondAll        ConditionKind = "all"
	CondAny        ConditionKind = "any"
)

// Condition is the closed set of predicates an If step can branch on.
type Condition interface {
	ConditionKind() ConditionKind
	condition()
}

// VarEquals holds when variable Name is strictly equal to Value.
type VarEquals struct {
	Name  string
	Value any
}

// VarExists holds when Name is bound, whatever its value.
type VarExists struct {
	Name string
}

// Chance holds when a uniform sample in [0,1) is below P.
type Chance struct {
	P float64
}

// HasTargets holds when the context has at least Min patients. Zero Min
// means 1 unless AllowEmpty is set, in which case it always holds.
type HasTargets struct {
	Min        int
	AllowEmpty bool
}

// HasSource holds when the context has an actor.
type HasSource struct{}

// IsVarTrue holds when Name is exactly true. Default is used when unset.
type IsVarTrue struct {
	Name    string
	Default bool
}

// IsVarFalse holds when Name is exactly false. An unset variable holds
// unless DefaultFalse is set.
type IsVarFalse struct {
	Name         string
	DefaultFalse bool
}

// Not negates Cond.
type Not struct {
	Cond Condition
}

// All holds when every condition holds. An empty list holds.
type All struct {
	Conds []Condition
}

// Any holds when at least one condition holds.
type Any struct {
	Conds []Condition
}

// UnknownCondition carries an unrecognised tag; it always evaluates false.
type UnknownCondition struct {
	Type string
}

func (VarEquals) ConditionKind() ConditionKind          { return CondVarEquals }
func (VarExists) ConditionKind() ConditionKind          { return CondVarExists }
func (Chance) ConditionKind() ConditionKind             { return CondChance }
func (HasTargets) ConditionKind() ConditionKind         { return CondHasTargets }
func (HasSource) ConditionKind() ConditionKind          { return CondHasSource }
func (IsVarTrue) ConditionKind() ConditionKind          { return CondIsVarTrue }
func (IsVarFalse) ConditionKind() ConditionKind         { return CondIsVarFalse }
func (Not) ConditionKind() ConditionKind                { return CondNot }
func (All) ConditionKind() ConditionKind                { return CondAll }
func (Any) ConditionKind() ConditionKind                { return CondAny }
func (c UnknownCondition) ConditionKind() ConditionKind { return ConditionKind(c.Type) }

func (VarEquals) condition()        {}
func (VarExists) condition()        {}
func (Chance) condition()           {}
func (HasTargets) condition()       {}
func (HasSource) condition()        {}
func (IsVarTrue) condition()        {}
func (IsVarFalse) condition()       {}
func (Not) condition()              {}
func (All) condition()              {}
func (Any) condition()              {}
func (UnknownCondition) condition() {}
