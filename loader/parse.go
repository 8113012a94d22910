package loader

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-fxscript"
)

// Document is the on-disk shape of a script. Either Root or Sequences
// (with a "main" entry) is set.
type Document struct {
	ID        string                 `yaml:"id"`
	Meta      map[string]any         `yaml:"meta"`
	Root      yaml.Node              `yaml:"root"`
	Sequences map[string][]yaml.Node `yaml:"sequences"`
}

// stepNode carries the union of every step's fields; Type selects which
// ones apply.
type stepNode struct {
	Type string `yaml:"type"`

	Effect string         `yaml:"effect"`
	Source any            `yaml:"source"`
	Target any            `yaml:"target"`
	Params map[string]any `yaml:"params"`

	Seconds  float64     `yaml:"seconds"`
	Steps    []yaml.Node `yaml:"steps"`
	Branches []yaml.Node `yaml:"branches"`
	Step     yaml.Node   `yaml:"step"`

	Times      int     `yaml:"times"`
	UntilEvent string  `yaml:"until_event"`
	Interval   float64 `yaml:"interval"`

	Collection any    `yaml:"collection"`
	As         string `yaml:"as"`
	IndexAs    string `yaml:"index_as"`

	Cases map[string]yaml.Node `yaml:"cases"`

	Script string         `yaml:"script"`
	Entry  string         `yaml:"entry"`
	Args   map[string]any `yaml:"args"`

	Cond yaml.Node `yaml:"cond"`
	Then yaml.Node `yaml:"then"`
	Else yaml.Node `yaml:"else"`

	Name    string  `yaml:"name"`
	Payload any     `yaml:"payload"`
	Timeout float64 `yaml:"timeout"`
	Value   any     `yaml:"value"`
	Global  bool    `yaml:"global"`
	Retries int     `yaml:"retries"`

	Branch string `yaml:"branch"`
	Event  string `yaml:"event"`
}

type conditionNode struct {
	Type    string      `yaml:"type"`
	Name    string      `yaml:"name"`
	Value   any         `yaml:"value"`
	P       float64     `yaml:"p"`
	Min     *int        `yaml:"min"`
	Default *bool       `yaml:"default"`
	Cond    yaml.Node   `yaml:"cond"`
	Conds   []yaml.Node `yaml:"conds"`
}

// Parse decodes a YAML or JSON script document and validates it.
func Parse(data []byte) (*fxscript.Script, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	script, err := doc.Script()
	if err != nil {
		return nil, err
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return script, nil
}

func decodeDocument(data []byte) (Document, error) {
	var doc Document
	// yaml can handle JSON too, so a single attempt is fine
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, parseError(err, "script document is not valid YAML or JSON", 0)
	}
	doc.ID = strings.TrimSpace(doc.ID)
	return doc, nil
}

// Script converts the document into its step tree, parsing every
// reference once.
func (d Document) Script() (*fxscript.Script, error) {
	s := &fxscript.Script{
		ID:   strings.TrimSpace(d.ID),
		Meta: d.Meta,
	}
	if present(&d.Root) {
		root, err := decodeStep(&d.Root)
		if err != nil {
			return nil, err
		}
		s.Root = root
	}
	if len(d.Sequences) > 0 {
		s.Sequences = make(map[string][]fxscript.Step, len(d.Sequences))
		for name, nodes := range d.Sequences {
			steps, err := decodeSteps(nodes)
			if err != nil {
				return nil, err
			}
			s.Sequences[name] = steps
		}
	}
	return s, nil
}

func decodeSteps(nodes []yaml.Node) ([]fxscript.Step, error) {
	steps := make([]fxscript.Step, 0, len(nodes))
	for idx := range nodes {
		st, err := decodeStep(&nodes[idx])
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, nil
}

// present reports whether a yaml.Node field was set. Absent keys leave
// the zero node.
func present(node *yaml.Node) bool {
	return node != nil && node.Kind != 0
}

func decodeOptionalStep(node *yaml.Node) (fxscript.Step, error) {
	if !present(node) {
		return nil, nil
	}
	return decodeStep(node)
}

func decodeStep(node *yaml.Node) (fxscript.Step, error) {
	if node.Kind == yaml.SequenceNode {
		var nodes []yaml.Node
		if err := node.Decode(&nodes); err != nil {
			return nil, parseError(err, "invalid step list", node.Line)
		}
		steps, err := decodeSteps(nodes)
		if err != nil {
			return nil, err
		}
		return fxscript.Sequence{Steps: steps}, nil
	}

	var n stepNode
	if err := node.Decode(&n); err != nil {
		return nil, parseError(err, "invalid step", node.Line)
	}
	kind := fxscript.StepKind(strings.ToLower(strings.TrimSpace(n.Type)))
	if kind == "" {
		return nil, parseError(nil, "step requires a type", node.Line)
	}

	switch kind {
	case fxscript.KindPlay:
		return fxscript.Play{
			Effect: n.Effect,
			Source: fxscript.RefOf(n.Source),
			Target: fxscript.RefOf(n.Target),
			Params: compileMap(n.Params),
		}, nil
	case fxscript.KindWait:
		return fxscript.Wait{Seconds: n.Seconds}, nil
	case fxscript.KindSequence:
		steps, err := decodeSteps(n.Steps)
		if err != nil {
			return nil, err
		}
		return fxscript.Sequence{Steps: steps}, nil
	case fxscript.KindParallel:
		branches := make([]fxscript.Branch, 0, len(n.Branches))
		for idx := range n.Branches {
			b, err := decodeBranch(&n.Branches[idx])
			if err != nil {
				return nil, err
			}
			branches = append(branches, b)
		}
		return fxscript.Parallel{Branches: branches}, nil
	case fxscript.KindRepeat:
		child, err := requireChild(&n.Step, kind, node.Line)
		if err != nil {
			return nil, err
		}
		return fxscript.Repeat{Times: n.Times, UntilEvent: n.UntilEvent, Interval: n.Interval, Step: child}, nil
	case fxscript.KindForEach:
		child, err := requireChild(&n.Step, kind, node.Line)
		if err != nil {
			return nil, err
		}
		return fxscript.ForEach{
			Collection: fxscript.RefOf(n.Collection),
			As:         n.As,
			IndexAs:    n.IndexAs,
			Step:       child,
		}, nil
	case fxscript.KindLodSwitch:
		cases := make(map[string]fxscript.Step, len(n.Cases))
		for lod, caseNode := range n.Cases {
			st, err := decodeStep(&caseNode)
			if err != nil {
				return nil, err
			}
			cases[lod] = st
		}
		return fxscript.LodSwitch{Cases: cases}, nil
	case fxscript.KindCall:
		return fxscript.Call{Script: n.Script, Entry: n.Entry, Args: compileMap(n.Args)}, nil
	case fxscript.KindIf:
		if !present(&n.Cond) {
			return nil, parseError(nil, "if requires cond", node.Line)
		}
		cond, err := decodeCondition(&n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := requireChild(&n.Then, kind, node.Line)
		if err != nil {
			return nil, err
		}
		otherwise, err := decodeOptionalStep(&n.Else)
		if err != nil {
			return nil, err
		}
		return fxscript.If{Cond: cond, Then: then, Else: otherwise}, nil
	case fxscript.KindEmitEvent:
		return fxscript.EmitEvent{Name: n.Name, Payload: fxscript.CompileValue(n.Payload)}, nil
	case fxscript.KindWaitEvent:
		return fxscript.WaitEvent{Name: n.Name, Timeout: n.Timeout, As: n.As}, nil
	case fxscript.KindSetVar:
		return fxscript.SetVar{Name: n.Name, Value: fxscript.CompileValue(n.Value), Global: n.Global}, nil
	case fxscript.KindCmd:
		return fxscript.Cmd{Name: n.Name, Args: compileMap(n.Args), Timeout: n.Timeout, Retries: n.Retries}, nil
	case fxscript.KindWhile:
		child, err := requireChild(&n.Step, kind, node.Line)
		if err != nil {
			return nil, err
		}
		return fxscript.While{Branch: n.Branch, Timeout: n.Timeout, Step: child}, nil
	case fxscript.KindUntil:
		child, err := requireChild(&n.Step, kind, node.Line)
		if err != nil {
			return nil, err
		}
		return fxscript.Until{Event: n.Event, Timeout: n.Timeout, Step: child}, nil
	default:
		return fxscript.Unknown{Type: string(kind)}, nil
	}
}

// decodeBranch accepts {id, step} or a bare step carrying an optional id.
func decodeBranch(node *yaml.Node) (fxscript.Branch, error) {
	var head struct {
		ID   string    `yaml:"id"`
		Type string    `yaml:"type"`
		Step yaml.Node `yaml:"step"`
	}
	if node.Kind == yaml.MappingNode {
		if err := node.Decode(&head); err != nil {
			return fxscript.Branch{}, parseError(err, "invalid branch", node.Line)
		}
	}
	if head.Type == "" && present(&head.Step) {
		st, err := decodeStep(&head.Step)
		if err != nil {
			return fxscript.Branch{}, err
		}
		return fxscript.Branch{ID: head.ID, Step: st}, nil
	}
	st, err := decodeStep(node)
	if err != nil {
		return fxscript.Branch{}, err
	}
	return fxscript.Branch{ID: head.ID, Step: st}, nil
}

func requireChild(node *yaml.Node, kind fxscript.StepKind, line int) (fxscript.Step, error) {
	if !present(node) {
		return nil, parseError(nil, fmt.Sprintf("%s requires a step", kind), line)
	}
	return decodeStep(node)
}

func decodeCondition(node *yaml.Node) (fxscript.Condition, error) {
	var n conditionNode
	if err := node.Decode(&n); err != nil {
		return nil, parseError(err, "invalid condition", node.Line)
	}
	switch fxscript.ConditionKind(strings.ToLower(strings.TrimSpace(n.Type))) {
	case fxscript.CondVarEquals:
		return fxscript.VarEquals{Name: n.Name, Value: fxscript.CompileValue(n.Value)}, nil
	case fxscript.CondVarExists:
		return fxscript.VarExists{Name: n.Name}, nil
	case fxscript.CondChance:
		return fxscript.Chance{P: n.P}, nil
	case fxscript.CondHasTargets:
		var c fxscript.HasTargets
		if n.Min != nil {
			c.Min = *n.Min
			c.AllowEmpty = *n.Min <= 0
		}
		return c, nil
	case fxscript.CondHasSource:
		return fxscript.HasSource{}, nil
	case fxscript.CondIsVarTrue:
		c := fxscript.IsVarTrue{Name: n.Name}
		if n.Default != nil {
			c.Default = *n.Default
		}
		return c, nil
	case fxscript.CondIsVarFalse:
		c := fxscript.IsVarFalse{Name: n.Name}
		if n.Default != nil {
			c.DefaultFalse = !*n.Default
		}
		return c, nil
	case fxscript.CondNot:
		if !present(&n.Cond) {
			return nil, parseError(nil, "not requires cond", node.Line)
		}
		inner, err := decodeCondition(&n.Cond)
		if err != nil {
			return nil, err
		}
		return fxscript.Not{Cond: inner}, nil
	case fxscript.CondAll, fxscript.CondAny:
		conds := make([]fxscript.Condition, 0, len(n.Conds))
		for idx := range n.Conds {
			c, err := decodeCondition(&n.Conds[idx])
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		if fxscript.ConditionKind(strings.ToLower(n.Type)) == fxscript.CondAll {
			return fxscript.All{Conds: conds}, nil
		}
		return fxscript.Any{Conds: conds}, nil
	case "":
		return nil, parseError(nil, "condition requires a type", node.Line)
	default:
		return fxscript.UnknownCondition{Type: n.Type}, nil
	}
}

func compileMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return fxscript.CompileValue(m).(map[string]any)
}

func parseError(src error, msg string, line int) error {
	meta := map[string]any{}
	if line > 0 {
		meta["line"] = line
		msg = fmt.Sprintf("%s (line %d)", msg, line)
	}
	if src == nil {
		return errors.New(msg, errors.CategoryValidation).
			WithTextCode(fxscript.ErrCodeParseFailed).
			WithMetadata(meta)
	}
	return errors.Wrap(src, errors.CategoryValidation, msg).
		WithTextCode(fxscript.ErrCodeParseFailed).
		WithMetadata(meta)
}
