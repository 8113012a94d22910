package interp

import (
	"context"
	"reflect"

	"github.com/goliatone/go-fxscript"
)

// evalCondition never fails: unknown or nil conditions are false.
func (i *Interpreter) evalCondition(ctx context.Context, ec *fxscript.ExecContext, cond fxscript.Condition) bool {
	switch c := cond.(type) {
	case fxscript.VarEquals:
		v, ok := i.lookup(ec, c.Name)
		if !ok {
			return false
		}
		want := c.Value
		if ref, isRef := want.(fxscript.Ref); isRef {
			want, _ = i.resolve(ec, ref)
		}
		return valuesEqual(v, want)
	case fxscript.VarExists:
		_, ok := i.lookup(ec, c.Name)
		return ok
	case fxscript.Chance:
		return i.rand() < c.P
	case fxscript.HasTargets:
		need := c.Min
		if need <= 0 {
			if c.AllowEmpty {
				return true
			}
			need = 1
		}
		return len(ec.Patients) >= need
	case fxscript.HasSource:
		return ec.Actor != nil
	case fxscript.IsVarTrue:
		v, ok := i.lookup(ec, c.Name)
		if !ok {
			return c.Default
		}
		return v == true
	case fxscript.IsVarFalse:
		v, ok := i.lookup(ec, c.Name)
		if !ok {
			return !c.DefaultFalse
		}
		return v == false
	case fxscript.Not:
		return !i.evalCondition(ctx, ec, c.Cond)
	case fxscript.All:
		for _, sub := range c.Conds {
			if !i.evalCondition(ctx, ec, sub) {
				return false
			}
		}
		return true
	case fxscript.Any:
		for _, sub := range c.Conds {
			if i.evalCondition(ctx, ec, sub) {
				return true
			}
		}
		return false
	case nil:
		i.loggerFor(ctx, ec, nil).Warn("missing condition evaluated as false")
		return false
	default:
		i.loggerFor(ctx, ec, nil).Warn("unknown condition %q evaluated as false", cond.ConditionKind())
		return false
	}
}

// valuesEqual is strict equality except that numbers of any Go numeric
// type compare by value.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
