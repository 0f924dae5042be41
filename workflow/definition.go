package workflow

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the serializable form of a workflow.
type Definition struct {
	Name     string           `json:"name" yaml:"name"`
	Steps    []StepDefinition `json:"steps" yaml:"steps"`
	Parallel [][]string       `json:"parallel,omitempty" yaml:"parallel,omitempty"`
}

// LoadDefinition parses a YAML definition. JSON documents are valid YAML and
// parse as well.
func LoadDefinition(r io.Reader) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read workflow definition: %w", err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
	}
	def.normalize()
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &def, nil
}

// LoadDefinitionFile loads a definition from a .yaml, .yml or .json file.
func LoadDefinitionFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var def Definition
		if err := json.NewDecoder(f).Decode(&def); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
		}
		def.normalize()
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		return &def, nil
	}
	return LoadDefinition(f)
}

// Validate checks names and dependencies without building an engine.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: definition has no name", ErrInvalidWorkflow)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: definition %q has no steps", ErrInvalidWorkflow, d.Name)
	}
	p := d.Build()
	if err := p.Validate(); err != nil {
		return err
	}
	return p.ValidateGroups()
}

// Build creates a Pipeline from the definition.
func (d *Definition) Build(opts ...Option) *Pipeline {
	p := NewPipeline(d.Name, opts...)
	for _, s := range d.Steps {
		p.AddStepDefinition(s)
	}
	for _, g := range d.Parallel {
		p.AddParallelSteps(g...)
	}
	return p
}

// ToYAML renders the definition.
func (d *Definition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// normalize converts nested YAML maps into map[string]any so literal inputs
// look the same whether they came from YAML or JSON.
func (d *Definition) normalize() {
	for i := range d.Steps {
		for k, v := range d.Steps[i].Inputs {
			d.Steps[i].Inputs[k] = normalizeValue(v)
		}
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeValue(inner)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[fmt.Sprint(k)] = normalizeValue(inner)
		}
		return out
	case []any:
		for i, inner := range t {
			t[i] = normalizeValue(inner)
		}
		return t
	default:
		return v
	}
}
