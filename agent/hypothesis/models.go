package hypothesis

import (
	"encoding/json"
	"fmt"
)

// Hypothesis is an original, unrefined hypothesis.
type Hypothesis struct {
	Text    string            `json:"text"`
	Context map[string]string `json:"context,omitempty"`
}

// RefinedHypothesis is the refiner's typed output.
type RefinedHypothesis struct {
	Text         string   `json:"text"`
	Original     string   `json:"original"`
	Improvements []string `json:"improvements,omitempty"`
}

// Analysis is the analyzer's typed output.
type Analysis struct {
	Text        string   `json:"text"`
	Hypothesis  string   `json:"hypothesis"`
	Strengths   []string `json:"strengths,omitempty"`
	Weaknesses  []string `json:"weaknesses,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Revision is the reviser's typed output.
type Revision struct {
	Text     string   `json:"text"`
	Original string   `json:"original"`
	Analysis string   `json:"analysis"`
	Changes  []string `json:"changes,omitempty"`
}

func (h Hypothesis) String() string        { return h.Text }
func (r RefinedHypothesis) String() string { return r.Text }
func (a Analysis) String() string          { return a.Text }
func (r Revision) String() string          { return r.Text }

// Fields exposes the models to $step.field bindings.

func (h Hypothesis) Fields() map[string]any {
	return map[string]any{"text": h.Text, "context": h.Context}
}

func (r RefinedHypothesis) Fields() map[string]any {
	return map[string]any{"text": r.Text, "original": r.Original, "improvements": r.Improvements}
}

func (a Analysis) Fields() map[string]any {
	return map[string]any{
		"text":        a.Text,
		"hypothesis":  a.Hypothesis,
		"strengths":   a.Strengths,
		"weaknesses":  a.Weaknesses,
		"suggestions": a.Suggestions,
	}
}

func (r Revision) Fields() map[string]any {
	return map[string]any{"text": r.Text, "original": r.Original, "analysis": r.Analysis, "changes": r.Changes}
}

// fromMap decodes the JSON-object form of a model. It requires every key in
// required to be present so that arbitrary maps are not mistaken for models.
func fromMap(v any, out any, required ...string) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	for _, k := range required {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func asHypothesis(v any) (Hypothesis, bool) {
	switch h := v.(type) {
	case Hypothesis:
		return h, true
	case *Hypothesis:
		if h != nil {
			return *h, true
		}
	}
	var h Hypothesis
	if fromMap(v, &h, "text") {
		return h, true
	}
	return Hypothesis{}, false
}

func asRefined(v any) (RefinedHypothesis, bool) {
	switch r := v.(type) {
	case RefinedHypothesis:
		return r, true
	case *RefinedHypothesis:
		if r != nil {
			return *r, true
		}
	}
	var r RefinedHypothesis
	if fromMap(v, &r, "text", "original") {
		return r, true
	}
	return RefinedHypothesis{}, false
}

func asAnalysis(v any) (Analysis, bool) {
	switch a := v.(type) {
	case Analysis:
		return a, true
	case *Analysis:
		if a != nil {
			return *a, true
		}
	}
	var a Analysis
	if fromMap(v, &a, "text", "hypothesis") {
		return a, true
	}
	return Analysis{}, false
}

// text renders any untyped input the way it would print.
func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}
