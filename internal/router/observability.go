package router

import (
	"context"
	"time"
)

// MetricsSink receives counters/histograms emitted by a run. A nil sink is
// valid; Router checks for it before every call.
type MetricsSink interface {
	ObserveRun(outcome string, duration time.Duration)
	ObserveToolCall(adapterID, outcome string, duration time.Duration)
}

// Span is the minimal tracing surface the Router needs from a span,
// satisfied by an OpenTelemetry span or a no-op.
type Span interface {
	SetAttribute(key string, value any)
	End()
}

// Tracer starts spans for a run and its steps. A nil tracer is valid.
type Tracer interface {
	StartRunSpan(ctx context.Context, runID string) (context.Context, Span)
	StartStepSpan(ctx context.Context, stepID string) (context.Context, Span)
}
