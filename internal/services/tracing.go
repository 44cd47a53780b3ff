package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dm-service/internal/observability"
)

var tracer = otel.Tracer("dm-service/services")

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// endSpan closes the span and counts the operation outcome by error kind.
func endSpan(span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err).Error())
	}
	span.End()
	observability.ObserveCoreOp(op, outcome(err))
}

func outcome(err error) string {
	switch Kind(err) {
	case nil:
		return "ok"
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	case ErrConflict:
		return "conflict"
	case ErrForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}
