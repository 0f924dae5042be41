package workflow

import "time"

// EventType names a step transition.
type EventType string

const (
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventStepSkipped   EventType = "step_skipped"
)

// Event is emitted to a Listener on every step transition.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Workflow  string    `json:"workflow"`
	Step      string    `json:"step"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Listener observes step transitions. It is called synchronously from
// Execute and must not block for long.
type Listener func(Event)

// Recorder receives workflow run metrics.
type Recorder interface {
	RecordWorkflowStarted(workflow string)
	RecordWorkflowCompleted(workflow, status string, d time.Duration)
	RecordWorkflowFailed(workflow, errorType string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWorkflowStarted(string)                          {}
func (nopRecorder) RecordWorkflowCompleted(string, string, time.Duration) {}
func (nopRecorder) RecordWorkflowFailed(string, string)                   {}
