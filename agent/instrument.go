package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/internal/ctxkeys"
)

// Recorder receives capability execution metrics.
type Recorder interface {
	RecordAgentExecution(agent, provider string)
	RecordAgentDuration(agent, status string, d time.Duration)
	RecordAgentError(agent, errorType string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAgentExecution(string, string)                {}
func (nopRecorder) RecordAgentDuration(string, string, time.Duration) {}
func (nopRecorder) RecordAgentError(string, string)                    {}

// InstrumentOption configures Instrument.
type InstrumentOption func(*instrumented)

// WithLogger sets the logger for lifecycle events.
func WithLogger(logger *zap.Logger) InstrumentOption {
	return func(i *instrumented) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) InstrumentOption {
	return func(i *instrumented) {
		if rec != nil {
			i.recorder = rec
		}
	}
}

// WithProviderLabel tags events with the LLM provider behind the capability.
func WithProviderLabel(provider string) InstrumentOption {
	return func(i *instrumented) { i.provider = provider }
}

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) InstrumentOption {
	return func(i *instrumented) {
		if tracer != nil {
			i.tracer = tracer
		}
	}
}

type instrumented struct {
	inner    Capability
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
	provider string
}

// Instrument wraps c so that every invocation is logged, timed, counted and
// traced, and every failure surfaces as an *ExecutionError.
func Instrument(c Capability, opts ...InstrumentOption) Capability {
	i := &instrumented{
		inner:    c,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer("experimentkit/agent"),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With(zap.String("agent_name", c.Name()))
	return i
}

func (i *instrumented) Name() string { return i.inner.Name() }

// Unwrap returns the decorated capability.
func (i *instrumented) Unwrap() Capability { return i.inner }

func (i *instrumented) Invoke(ctx context.Context, inputs map[string]any) (any, error) {
	name := i.inner.Name()
	provider := i.provider
	if provider == "" {
		provider = "unknown"
	}

	ctx, span := i.tracer.Start(ctx, "agent.invoke", trace.WithAttributes(
		attribute.String("agent.name", name),
		attribute.String("agent.provider", provider),
	))
	defer span.End()

	logger := i.logger
	if id, ok := ctxkeys.RunID(ctx); ok {
		logger = logger.With(zap.String("run_id", id))
	}
	if id, ok := ctxkeys.RequestID(ctx); ok {
		logger = logger.With(zap.String("request_id", id))
	}
	if sub, ok := ctxkeys.Subject(ctx); ok {
		logger = logger.With(zap.String("subject", sub))
	}

	logger.Info("executing agent", zap.String("provider", provider))
	i.recorder.RecordAgentExecution(name, provider)

	start := time.Now()
	result, err := i.inner.Invoke(ctx, inputs)
	elapsed := time.Since(start)

	if err != nil {
		errType := string(ErrorCode(err))
		i.recorder.RecordAgentDuration(name, "error", elapsed)
		i.recorder.RecordAgentError(name, errType)
		span.RecordError(err)
		span.SetStatus(codes.Error, errType)
		logger.Error("agent failed",
			zap.Duration("duration", elapsed),
			zap.String("error_type", errType),
			zap.Error(err),
		)
		return nil, NewExecutionError(name, err)
	}

	i.recorder.RecordAgentDuration(name, "success", elapsed)
	logger.Info("agent completed", zap.Duration("duration", elapsed))
	return result, nil
}
