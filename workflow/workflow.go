package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/agent"
	"github.com/BaSui01/experimentkit/internal/ctxkeys"
)

// ErrInvalidWorkflow is returned for malformed step declarations.
var ErrInvalidWorkflow = errors.New("invalid workflow")

// CapabilityLookup resolves a capability by name. *agent.Registry satisfies it.
type CapabilityLookup interface {
	Capability(name string) (agent.Capability, error)
}

// LookupFunc adapts a function into a CapabilityLookup.
type LookupFunc func(name string) (agent.Capability, error)

func (f LookupFunc) Capability(name string) (agent.Capability, error) { return f(name) }

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(w *Workflow) {
		if rec != nil {
			w.recorder = rec
		}
	}
}

// WithAggregator replaces the default LastDeclared aggregation.
func WithAggregator(a Aggregator) Option {
	return func(w *Workflow) {
		if a != nil {
			w.aggregator = a
		}
	}
}

// WithListener registers a step transition observer.
func WithListener(l Listener) Option {
	return func(w *Workflow) {
		if l != nil {
			w.listeners = append(w.listeners, l)
		}
	}
}

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(w *Workflow) {
		if tracer != nil {
			w.tracer = tracer
		}
	}
}

// Workflow is an ordered set of step definitions and the engine that runs
// them. Step definitions persist across Execute calls; results do not.
type Workflow struct {
	name       string
	steps      []StepDefinition
	buildErrs  []error
	logger     *zap.Logger
	recorder   Recorder
	aggregator Aggregator
	listeners  []Listener
	tracer     trace.Tracer
}

// New creates an empty workflow.
func New(name string, opts ...Option) *Workflow {
	w := &Workflow{
		name:       name,
		logger:     zap.NewNop(),
		recorder:   nopRecorder{},
		aggregator: LastDeclared,
		tracer:     otel.Tracer("experimentkit/workflow"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "workflow"), zap.String("workflow", name))
	return w
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Steps returns a copy of the declared steps in declaration order.
func (w *Workflow) Steps() []StepDefinition {
	out := make([]StepDefinition, len(w.steps))
	for i, s := range w.steps {
		out[i] = s.clone()
	}
	return out
}

// AddStep declares a step and returns w for chaining.
func (w *Workflow) AddStep(name, capability string, inputs map[string]any, dependsOn []string, condition string) *Workflow {
	return w.AddStepDefinition(StepDefinition{
		Name:       name,
		Capability: capability,
		Inputs:     inputs,
		DependsOn:  dependsOn,
		Condition:  condition,
	})
}

// AddStepDefinition declares a step. Declaration problems are reported by
// Validate and Execute rather than here so chains stay fluent.
func (w *Workflow) AddStepDefinition(step StepDefinition) *Workflow {
	switch {
	case step.Name == "":
		w.buildErrs = append(w.buildErrs, fmt.Errorf("%w: step with empty name", ErrInvalidWorkflow))
	case step.Capability == "":
		w.buildErrs = append(w.buildErrs, fmt.Errorf("%w: step %q has no capability", ErrInvalidWorkflow, step.Name))
	}
	for _, s := range w.steps {
		if s.Name == step.Name && step.Name != "" {
			w.buildErrs = append(w.buildErrs, fmt.Errorf("%w: duplicate step %q", ErrInvalidWorkflow, step.Name))
			break
		}
	}
	w.steps = append(w.steps, step.clone())
	return w
}

// Validate reports declaration errors and unresolvable dependencies.
func (w *Workflow) Validate() error {
	if len(w.buildErrs) > 0 {
		return errors.Join(w.buildErrs...)
	}
	_, err := ResolveOrder(w.steps)
	return err
}

// ExecutionOrder returns the order Execute will use.
func (w *Workflow) ExecutionOrder() ([]StepDefinition, error) {
	if len(w.buildErrs) > 0 {
		return nil, errors.Join(w.buildErrs...)
	}
	return ResolveOrder(w.steps)
}

// Batches reports groups of mutually independent steps.
func (w *Workflow) Batches() ([][]StepDefinition, error) {
	if len(w.buildErrs) > 0 {
		return nil, errors.Join(w.buildErrs...)
	}
	return ResolveBatches(w.steps)
}

// stepOutcome is the result of running one step: a value or a classified failure.
type stepOutcome struct {
	status Status
	value  any
	err    error
	reason string
}

// run holds the state of one Execute call.
type run struct {
	id        string
	initial   map[string]any
	results   map[string]any
	completed map[string]bool
	steps     map[string]StepResult
	order     []string
}

// Execute runs the workflow with initial inputs. Declaration and dependency
// errors are returned before any step runs; every other outcome, including a
// failed step, is reported through the returned WorkflowResult.
func (w *Workflow) Execute(ctx context.Context, lookup CapabilityLookup, initial map[string]any) (*WorkflowResult, error) {
	order, err := w.ExecutionOrder()
	if err != nil {
		w.logger.Error("workflow cannot be scheduled", zap.Error(err))
		w.recorder.RecordWorkflowFailed(w.name, errorType(err))
		return nil, err
	}
	if lookup == nil {
		return nil, fmt.Errorf("%w: nil capability lookup", ErrInvalidWorkflow)
	}
	if initial == nil {
		initial = map[string]any{}
	}

	r := &run{
		id:        uuid.NewString(),
		initial:   initial,
		results:   make(map[string]any, len(order)),
		completed: make(map[string]bool, len(order)),
		steps:     make(map[string]StepResult, len(order)),
	}
	result := &WorkflowResult{
		ID:           r.id,
		WorkflowName: w.name,
		StartedAt:    time.Now(),
	}

	ctx, span := w.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.name", w.name),
		attribute.String("workflow.run_id", r.id),
		attribute.Int("workflow.steps", len(order)),
	))
	defer span.End()
	ctx = ctxkeys.WithRunID(ctx, r.id)

	logger := w.logger.With(zap.String("run_id", r.id))
	logger.Info("starting workflow")
	w.recorder.RecordWorkflowStarted(w.name)

	var abort *AbortError
	for _, step := range order {
		out := w.runStep(ctx, lookup, r, step, logger)
		if out.err != nil {
			abort = &AbortError{Step: step.Name, Cause: out.err}
			break
		}
	}

	result.Steps = r.steps
	result.StepOrder = r.order
	result.FinishedAt = time.Now()

	if abort != nil {
		result.Status = StatusFailed
		result.Error = abort.Error()
		span.RecordError(abort)
		span.SetStatus(codes.Error, abort.Error())
		w.recorder.RecordWorkflowFailed(w.name, errorType(abort.Cause))
		logger.Error("workflow failed",
			zap.String("step", abort.Step),
			zap.Duration("duration", result.Duration()),
			zap.Error(abort.Cause),
		)
		return result, nil
	}

	result.Status = overallStatus(r.steps)
	result.FinalResult = w.aggregator.Aggregate(w.steps, r.steps)
	span.SetAttributes(attribute.String("workflow.status", string(result.Status)))
	w.recorder.RecordWorkflowCompleted(w.name, string(result.Status), result.Duration())
	logger.Info("workflow finished",
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration()),
	)
	return result, nil
}

func (w *Workflow) runStep(ctx context.Context, lookup CapabilityLookup, r *run, step StepDefinition, logger *zap.Logger) stepOutcome {
	logger = logger.With(zap.String("step", step.Name))

	for _, dep := range step.DependsOn {
		if !r.completed[dep] {
			logger.Warn("step has unmet dependencies, skipping", zap.String("dependency", dep))
			return w.record(r, step, stepOutcome{status: StatusSkipped, reason: "unmet dependency " + dep}, 0)
		}
	}
	if !EvaluateCondition(step.Condition, r.results) {
		logger.Info("step condition not met, skipping", zap.String("condition", step.Condition))
		return w.record(r, step, stepOutcome{status: StatusSkipped, reason: "condition " + step.Condition + " not met"}, 0)
	}

	r.steps[step.Name] = StepResult{Status: StatusRunning}
	w.emit(Event{Type: EventStepStarted, RunID: r.id, Step: step.Name})

	start := time.Now()
	out := w.invoke(ctx, lookup, r, step)
	elapsed := time.Since(start)

	if out.err != nil {
		logger.Error("step failed", zap.Duration("duration", elapsed), zap.Error(out.err))
	} else {
		logger.Info("step completed", zap.Duration("duration", elapsed))
	}
	return w.record(r, step, out, elapsed)
}

func (w *Workflow) invoke(ctx context.Context, lookup CapabilityLookup, r *run, step StepDefinition) (out stepOutcome) {
	defer func() {
		if p := recover(); p != nil {
			out = stepOutcome{status: StatusFailed, err: agent.NewExecutionError(step.Capability, fmt.Errorf("panic: %v", p))}
		}
	}()

	inputs := ResolveInputs(step.Inputs, r.results, r.initial)

	c, err := lookup.Capability(step.Capability)
	if err != nil {
		return stepOutcome{status: StatusFailed, err: err}
	}
	value, err := c.Invoke(ctx, inputs)
	if err != nil {
		return stepOutcome{status: StatusFailed, err: err}
	}
	return stepOutcome{status: StatusCompleted, value: value}
}

func (w *Workflow) record(r *run, step StepDefinition, out stepOutcome, elapsed time.Duration) stepOutcome {
	sr := StepResult{Status: out.status, DurationMS: elapsed.Milliseconds()}
	ev := Event{RunID: r.id, Step: step.Name}

	switch out.status {
	case StatusCompleted:
		sr.Result = out.value
		r.results[step.Name] = out.value
		r.completed[step.Name] = true
		ev.Type, ev.Result = EventStepCompleted, out.value
	case StatusFailed:
		sr.Error = out.err.Error()
		ev.Type, ev.Error = EventStepFailed, sr.Error
	case StatusSkipped:
		ev.Type, ev.Reason = EventStepSkipped, out.reason
	}

	r.steps[step.Name] = sr
	r.order = append(r.order, step.Name)
	w.emit(ev)
	return out
}

func (w *Workflow) emit(ev Event) {
	if len(w.listeners) == 0 {
		return
	}
	ev.Workflow = w.name
	ev.Timestamp = time.Now()
	for _, l := range w.listeners {
		l(ev)
	}
}

func errorType(err error) string {
	if errors.Is(err, ErrDependencyResolution) {
		return "dependency_resolution"
	}
	if errors.Is(err, ErrInvalidWorkflow) {
		return "invalid_workflow"
	}
	return string(agent.ErrorCode(err))
}
