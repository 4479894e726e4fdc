package factory

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for builder operations.
var (
	tracer = otel.Tracer("modelfactory.factory")
	meter  = otel.Meter("modelfactory.factory")
)

var (
	modelsCreated metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		modelsCreated, metricsErr = meter.Int64Counter(
			"modelfactory_models_created_total",
			metric.WithDescription("Total number of models persisted by builders"),
		)
	})
	return metricsErr
}

// startCreateSpan creates a span for one builder create.
func startCreateSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.Create",
		trace.WithAttributes(
			attribute.String("factory.model", model),
		),
	)
}

// endCreateSpan records the outcome on a create span and ends it.
func endCreateSpan(span trace.Span, created int, err error) {
	span.SetAttributes(attribute.Int("factory.created", created))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// recordCreated adds created models to the counter.
func recordCreated(ctx context.Context, model string, n int) {
	if n == 0 {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}
	modelsCreated.Add(ctx, int64(n), metric.WithAttributes(attribute.String("model", model)))
}
