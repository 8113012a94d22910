package fxscript

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-errors"
)

// MainEntry is the sequence started by default.
const MainEntry = "main"

// Script is an immutable, loadable tree of steps. Either Root is set or
// Sequences holds named step lists including "main".
type Script struct {
	ID        string
	Root      Step
	Sequences map[string][]Step
	Meta      map[string]any
}

// Entry returns the step to run for name. An empty name means main.
func (s *Script) Entry(name string) (Step, bool) {
	if s == nil {
		return nil, false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = MainEntry
	}
	if name == MainEntry && s.Root != nil {
		return s.Root, true
	}
	steps, ok := s.Sequences[name]
	if !ok {
		return nil, false
	}
	return Sequence{Steps: steps}, true
}

// EntryNames lists the named sequences in sorted order.
func (s *Script) EntryNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Sequences)+1)
	if s.Root != nil {
		names = append(names, MainEntry)
	}
	for name := range s.Sequences {
		if name == MainEntry && s.Root != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate performs best-effort structural validation. It does not
// resolve effects or called scripts; those fail softly at dispatch time.
func (s *Script) Validate() error {
	if s == nil {
		return errors.New("script is nil", errors.CategoryValidation).
			WithTextCode(ErrCodeInvalidScript)
	}
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("script id is required", errors.CategoryValidation).
			WithTextCode(ErrCodeInvalidScript)
	}
	if _, ok := s.Entry(MainEntry); !ok {
		return errors.New("script requires a root step or a main sequence", errors.CategoryValidation).
			WithTextCode(ErrCodeInvalidScript).
			WithMetadata(map[string]any{"script_id": s.ID})
	}

	var problems []string
	visit := func(path string, st Step) {
		problems = append(problems, validateStep(path, st)...)
	}
	if s.Root != nil {
		visit("root", s.Root)
	}
	for _, name := range s.EntryNames() {
		for i, st := range s.Sequences[name] {
			visit(fmt.Sprintf("%s[%d]", name, i), st)
		}
	}
	if len(problems) > 0 {
		return errors.New(fmt.Sprintf("script %s invalid: %s", s.ID, problems[0]), errors.CategoryValidation).
			WithTextCode(ErrCodeInvalidScript).
			WithMetadata(map[string]any{
				"script_id": s.ID,
				"problems":  problems,
			})
	}
	return nil
}

func validateStep(path string, st Step) []string {
	var out []string
	switch t := st.(type) {
	case nil:
		out = append(out, path+": step is nil")
	case Play:
		if strings.TrimSpace(t.Effect) == "" {
			out = append(out, path+": play requires effect")
		}
	case Wait:
		if t.Seconds < 0 {
			out = append(out, path+": wait seconds must be >= 0")
		}
	case Sequence:
		for i, c := range t.Steps {
			out = append(out, validateStep(fmt.Sprintf("%s.steps[%d]", path, i), c)...)
		}
	case Parallel:
		seen := map[string]bool{}
		for i, b := range t.Branches {
			if b.ID != "" {
				if seen[b.ID] {
					out = append(out, fmt.Sprintf("%s.branches[%d]: duplicate branch id %q", path, i, b.ID))
				}
				seen[b.ID] = true
			}
			out = append(out, validateStep(fmt.Sprintf("%s.branches[%d]", path, i), b.Step)...)
		}
	case Repeat:
		if t.Times < 0 {
			out = append(out, path+": repeat times must be >= 0")
		}
		out = append(out, validateStep(path+".step", t.Step)...)
	case ForEach:
		if t.As == "" {
			out = append(out, path+": foreach requires as")
		}
		out = append(out, validateStep(path+".step", t.Step)...)
	case LodSwitch:
		for k, c := range t.Cases {
			out = append(out, validateStep(path+".cases."+k, c)...)
		}
	case Call:
		if t.Script == "" && t.Entry == "" {
			out = append(out, path+": call requires script or entry")
		}
	case If:
		if t.Cond == nil {
			out = append(out, path+": if requires condition")
		}
		out = append(out, validateStep(path+".then", t.Then)...)
		if t.Else != nil {
			out = append(out, validateStep(path+".else", t.Else)...)
		}
	case EmitEvent:
		if t.Name == "" {
			out = append(out, path+": emit_event requires name")
		}
	case WaitEvent:
		if t.Name == "" {
			out = append(out, path+": wait_event requires name")
		}
	case SetVar:
		if t.Name == "" {
			out = append(out, path+": set_var requires name")
		}
	case Cmd:
		if t.Name == "" {
			out = append(out, path+": cmd requires name")
		}
	case While:
		if t.Timeout < 0 {
			out = append(out, path+": while timeout must be >= 0")
		}
		out = append(out, validateStep(path+".step", t.Step)...)
	case Until:
		if t.Timeout < 0 {
			out = append(out, path+": until timeout must be >= 0")
		}
		out = append(out, validateStep(path+".step", t.Step)...)
	}
	return out
}
