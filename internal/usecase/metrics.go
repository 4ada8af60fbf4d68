package usecase

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/example/fitmirror/internal/repository"
)

const instrumentationName = "github.com/example/fitmirror/internal/usecase"

// MetricsSummary represents aggregated fitting insights.
type MetricsSummary struct {
	TotalSessions     int64                  `json:"total_sessions"`
	AverageConfidence float64                `json:"average_confidence"`
	BySize            []repository.SizeCount `json:"by_size"`
}

// GetMetricsSummary aggregates persisted fitting sessions.
func (uc *FittingUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	agg, err := uc.sessions.AggregateSessions(ctx)
	if err != nil {
		return nil, err
	}
	bySize := agg.BySize
	if bySize == nil {
		bySize = []repository.SizeCount{}
	}
	return &MetricsSummary{
		TotalSessions:     agg.TotalCount,
		AverageConfidence: agg.AverageConfidence,
		BySize:            bySize,
	}, nil
}

type instruments struct {
	requests        metric.Int64Counter
	duration        metric.Float64Histogram
	recommendations metric.Int64Counter
}

func newInstruments(meter metric.Meter) *instruments {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	requests, err := meter.Int64Counter("fitmirror.requests",
		metric.WithDescription("Fitting requests by operation and outcome"))
	if err != nil {
		requests = noop.Int64Counter{}
	}
	duration, err := meter.Float64Histogram("fitmirror.request.duration",
		metric.WithDescription("End-to-end processing time"),
		metric.WithUnit("ms"))
	if err != nil {
		duration = noop.Float64Histogram{}
	}
	recommendations, err := meter.Int64Counter("fitmirror.recommendations",
		metric.WithDescription("Recommended sizes by label and strategy"))
	if err != nil {
		recommendations = noop.Int64Counter{}
	}

	return &instruments{requests: requests, duration: duration, recommendations: recommendations}
}

func (i *instruments) observe(ctx context.Context, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", ErrorKind(err)),
	)
	// ctx may already be past its deadline; metrics are recorded regardless.
	ctx = context.WithoutCancel(ctx)
	i.requests.Add(ctx, 1, attrs)
	i.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
}

func (i *instruments) recommended(ctx context.Context, label, strategy string) {
	i.recommendations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("size", label),
		attribute.String("strategy", strategy),
	))
}
