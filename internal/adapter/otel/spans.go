package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "memcore"

// StartStoreSpan starts a span for the fact store pipeline.
func StartStoreSpan(ctx context.Context, ownerID string, explicit bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "store_fact",
		trace.WithAttributes(
			attribute.String("owner.id", ownerID),
			attribute.Bool("fact.explicit", explicit),
		),
	)
}

// StartRetrieveSpan starts a span for the retrieval pipeline.
func StartRetrieveSpan(ctx context.Context, ownerID, category string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "retrieve_context",
		trace.WithAttributes(
			attribute.String("owner.id", ownerID),
			attribute.String("category.primary", category),
		),
	)
}

// StartValidateSpan starts a span for the answer validator chain.
func StartValidateSpan(ctx context.Context, ownerID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "validate_answer",
		trace.WithAttributes(
			attribute.String("owner.id", ownerID),
		),
	)
}
