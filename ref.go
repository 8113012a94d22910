package fxscript

import (
	"fmt"
	"strconv"
	"strings"
)

// RefKind identifies what a Ref points at.
type RefKind int

const (
	// RefNone is the zero Ref: nothing to resolve.
	RefNone RefKind = iota
	RefLiteral
	RefActor
	RefPatients
	RefPatient
	RefVar
)

// Ref is a subject or variable reference parsed once at load time.
//
//	$actor        the initiating subject
//	$patients     every patient
//	$patient      the first patient
//	$patient[N]   the Nth patient
//	$name         variable lookup, context first then store
//
// Anything else is a literal value.
type Ref struct {
	Kind    RefKind
	Index   int
	Name    string
	Literal any
}

// IsZero reports whether r is unset.
func (r Ref) IsZero() bool {
	return r.Kind == RefNone
}

// String renders r back into its source form.
func (r Ref) String() string {
	switch r.Kind {
	case RefActor:
		return "$actor"
	case RefPatients:
		return "$patients"
	case RefPatient:
		if r.Index == 0 {
			return "$patient"
		}
		return fmt.Sprintf("$patient[%d]", r.Index)
	case RefVar:
		return "$" + r.Name
	case RefLiteral:
		return fmt.Sprint(r.Literal)
	default:
		return ""
	}
}

// Literal wraps v as a literal Ref.
func Literal(v any) Ref {
	return Ref{Kind: RefLiteral, Literal: v}
}

// ParseRef parses s. The empty string yields the zero Ref.
func ParseRef(s string) Ref {
	if s == "" {
		return Ref{}
	}
	if !strings.HasPrefix(s, "$") || len(s) == 1 {
		return Literal(s)
	}
	body := s[1:]
	switch body {
	case "actor":
		return Ref{Kind: RefActor}
	case "patients":
		return Ref{Kind: RefPatients}
	case "patient":
		return Ref{Kind: RefPatient}
	}
	if strings.HasPrefix(body, "patient[") && strings.HasSuffix(body, "]") {
		idx, err := strconv.Atoi(body[len("patient[") : len(body)-1])
		if err == nil && idx >= 0 {
			return Ref{Kind: RefPatient, Index: idx}
		}
	}
	return Ref{Kind: RefVar, Name: body}
}

// RefOf parses v when it is a string and wraps it as a literal otherwise.
func RefOf(v any) Ref {
	switch t := v.(type) {
	case nil:
		return Ref{}
	case Ref:
		return t
	case string:
		return ParseRef(t)
	default:
		return Literal(v)
	}
}

// CompileValue walks v and replaces every string that parses as a
// reference with its Ref, so resolution never re-parses. Maps and slices
// are copied.
func CompileValue(v any) any {
	switch t := v.(type) {
	case string:
		r := ParseRef(t)
		if r.Kind == RefLiteral {
			return t
		}
		return r
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = CompileValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = CompileValue(val)
		}
		return out
	default:
		return v
	}
}
