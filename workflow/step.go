package workflow

// Status is the lifecycle state of a step or of a whole run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StepDefinition declares one workflow node.
type StepDefinition struct {
	Name       string         `json:"name" yaml:"name"`
	Capability string         `json:"capability" yaml:"capability"`
	Inputs     map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	DependsOn  []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Condition  string         `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// clone returns a copy that shares no mutable state with s.
func (s StepDefinition) clone() StepDefinition {
	out := s
	if s.Inputs != nil {
		out.Inputs = make(map[string]any, len(s.Inputs))
		for k, v := range s.Inputs {
			out.Inputs[k] = v
		}
	}
	if s.DependsOn != nil {
		out.DependsOn = append([]string(nil), s.DependsOn...)
	}
	return out
}

func stepNames(steps []StepDefinition) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}
