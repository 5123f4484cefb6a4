package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "vendora"

// StartAppendSpan starts a span for one event append.
func StartAppendSpan(ctx context.Context, aggregateType, aggregateID, eventName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "event.append",
		trace.WithAttributes(
			attribute.String("aggregate.type", aggregateType),
			attribute.String("aggregate.id", aggregateID),
			attribute.String("event.name", eventName),
		),
	)
}

// StartReplaySpan starts a span for a replay run.
func StartReplaySpan(ctx context.Context, from string, projectors []string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "replay",
		trace.WithAttributes(
			attribute.String("replay.from", from),
			attribute.StringSlice("replay.projectors", projectors),
		),
	)
}

// StartProjectSpan starts a span for one projector handling one event.
func StartProjectSpan(ctx context.Context, projector, eventID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "project",
		trace.WithAttributes(
			attribute.String("projector.name", projector),
			attribute.String("event.id", eventID),
		),
	)
}
