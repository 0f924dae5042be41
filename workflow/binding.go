package workflow

import "strings"

// RefPrefix marks a string input as a reference rather than a literal.
const RefPrefix = "$"

// BindingKind tags the three binding forms.
type BindingKind int

const (
	BindingLiteral BindingKind = iota
	BindingStepRef
	BindingStepFieldRef
)

func (k BindingKind) String() string {
	switch k {
	case BindingStepRef:
		return "step_ref"
	case BindingStepFieldRef:
		return "step_field_ref"
	default:
		return "literal"
	}
}

// Binding is a parsed input value: Literal(value) | StepRef(name) | StepFieldRef(name, field).
type Binding struct {
	Kind  BindingKind
	Value any    // literal value
	Name  string // referenced step or initial input
	Field string // selected field of a structured result
	Raw   string // original reference text
}

// FieldProvider lets structured results other than maps expose named fields
// to "$step.field" bindings.
type FieldProvider interface {
	Fields() map[string]any
}

// ParseBinding classifies v. Only strings starting with "$" are references;
// the first "." separates the step name from the field.
func ParseBinding(v any) Binding {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, RefPrefix) {
		return Binding{Kind: BindingLiteral, Value: v}
	}
	body := strings.TrimPrefix(s, RefPrefix)
	if name, field, found := strings.Cut(body, "."); found {
		return Binding{Kind: BindingStepFieldRef, Name: name, Field: field, Raw: s}
	}
	return Binding{Kind: BindingStepRef, Name: body, Raw: s}
}

// IsReference reports whether b refers to another value.
func (b Binding) IsReference() bool {
	return b.Kind != BindingLiteral
}

// Resolve materializes b against prior step results and the initial inputs.
// Unresolvable references fall back to the original reference text.
func (b Binding) Resolve(results, initial map[string]any) any {
	switch b.Kind {
	case BindingStepRef:
		if v, ok := results[b.Name]; ok {
			return v
		}
		if v, ok := initial[b.Name]; ok {
			return v
		}
		return b.Raw

	case BindingStepFieldRef:
		if v, ok := results[b.Name]; ok {
			return selectField(v, b.Field)
		}
		if v, ok := initial[b.Name+"."+b.Field]; ok {
			return v
		}
		return b.Raw

	default:
		return b.Value
	}
}

// selectField returns field of a structured value, nil when the field is
// absent, and the whole value when it is not structured.
func selectField(v any, field string) any {
	switch t := v.(type) {
	case map[string]any:
		return t[field]
	case map[string]string:
		if s, ok := t[field]; ok {
			return s
		}
		return nil
	case FieldProvider:
		return t.Fields()[field]
	default:
		return v
	}
}

// ResolveInputs resolves every declared input of a step.
func ResolveInputs(inputs, results, initial map[string]any) map[string]any {
	out := make(map[string]any, len(inputs))
	for k, v := range inputs {
		out[k] = ParseBinding(v).Resolve(results, initial)
	}
	return out
}

// EvaluateCondition reports whether a guard allows its step to run. A
// reference guard is true iff the referenced step has a result; for
// "$step.field" only the step name is looked up and the field is ignored.
// Any other guard, including none, is true.
func EvaluateCondition(condition string, results map[string]any) bool {
	if condition == "" {
		return true
	}
	b := ParseBinding(condition)
	if !b.IsReference() {
		return true
	}
	_, ok := results[b.Name]
	return ok
}
