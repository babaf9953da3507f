package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/marketdesk/admin/internal/services"

var tracer = otel.Tracer(instrumentationName)

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func newCounter(name, description string) metric.Int64Counter {
	counter, err := otel.GetMeterProvider().Meter(instrumentationName).Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return nil
	}
	return counter
}

func addCount(ctx context.Context, counter metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if counter == nil || n == 0 {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attrs...))
}
