package workflow

import (
	"fmt"
	"time"
)

// StepResult records one step's outcome.
type StepResult struct {
	Status     Status `json:"status"`
	Result     any    `json:"result"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// WorkflowResult is the terminal record of one Execute call. StepOrder lists
// the recorded steps in the order they were resolved.
type WorkflowResult struct {
	ID           string                `json:"id"`
	WorkflowName string                `json:"workflow_name"`
	Status       Status                `json:"status"`
	Steps        map[string]StepResult `json:"steps"`
	StepOrder    []string              `json:"step_order,omitempty"`
	FinalResult  any                   `json:"final_result"`
	Error        string                `json:"error,omitempty"`
	StartedAt    time.Time             `json:"started_at"`
	FinishedAt   time.Time             `json:"finished_at"`
}

// Duration returns the wall time of the run.
func (r *WorkflowResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// StepValue returns the recorded result of a step, or nil.
func (r *WorkflowResult) StepValue(name string) any {
	return r.Steps[name].Result
}

// AbortError carries the step whose invocation aborted a run.
type AbortError struct {
	Step  string
	Cause error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Cause)
}

func (e *AbortError) Unwrap() error { return e.Cause }

// Aggregator builds the final result of a run from the declared steps and
// their recorded outcomes.
type Aggregator interface {
	Aggregate(declared []StepDefinition, steps map[string]StepResult) any
}

// AggregatorFunc adapts a function into an Aggregator.
type AggregatorFunc func(declared []StepDefinition, steps map[string]StepResult) any

func (f AggregatorFunc) Aggregate(declared []StepDefinition, steps map[string]StepResult) any {
	return f(declared, steps)
}

// LastDeclared returns the result of the last step in declaration order, or
// nil if that step did not complete.
var LastDeclared Aggregator = AggregatorFunc(func(declared []StepDefinition, steps map[string]StepResult) any {
	if len(declared) == 0 {
		return nil
	}
	last, ok := steps[declared[len(declared)-1].Name]
	if !ok || last.Status != StatusCompleted {
		return nil
	}
	return last.Result
})

// overallStatus derives the run status from the recorded step statuses.
func overallStatus(steps map[string]StepResult) Status {
	allSkipped := true
	for _, s := range steps {
		if s.Status == StatusFailed {
			return StatusFailed
		}
		if s.Status != StatusSkipped {
			allSkipped = false
		}
	}
	if allSkipped {
		return StatusSkipped
	}
	return StatusCompleted
}
