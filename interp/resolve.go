package interp

import (
	"reflect"

	"github.com/goliatone/go-fxscript"
)

// lookup reads name from the live context, falling back to the store.
func (i *Interpreter) lookup(ec *fxscript.ExecContext, name string) (any, bool) {
	if v, ok := ec.Lookup(name); ok {
		return v, true
	}
	return i.store.Get(name)
}

// resolve evaluates ref against ec. ok is false when the ref points at
// something that is not there.
func (i *Interpreter) resolve(ec *fxscript.ExecContext, ref fxscript.Ref) (any, bool) {
	switch ref.Kind {
	case fxscript.RefLiteral:
		return ref.Literal, true
	case fxscript.RefActor:
		return ec.Actor, ec.Actor != nil
	case fxscript.RefPatients:
		out := make([]any, len(ec.Patients))
		copy(out, ec.Patients)
		return out, true
	case fxscript.RefPatient:
		if ref.Index < 0 || ref.Index >= len(ec.Patients) {
			return nil, false
		}
		return ec.Patients[ref.Index], true
	case fxscript.RefVar:
		return i.lookup(ec, ref.Name)
	default:
		return nil, false
	}
}

// resolveValue replaces every Ref inside v with its resolved value.
// Unresolved refs become nil.
func (i *Interpreter) resolveValue(ec *fxscript.ExecContext, v any) any {
	switch t := v.(type) {
	case fxscript.Ref:
		out, _ := i.resolve(ec, t)
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = i.resolveValue(ec, val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for idx, val := range t {
			out[idx] = i.resolveValue(ec, val)
		}
		return out
	default:
		return v
	}
}

// toList accepts any slice or array.
func toList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for idx := range out {
		out[idx] = rv.Index(idx).Interface()
	}
	return out, true
}

func toSubjects(v any) []fxscript.Subject {
	if items, ok := toList(v); ok {
		return items
	}
	return []fxscript.Subject{v}
}
