package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/assessd/internal/vectorstore"

// tracer is looked up per call so spans follow the current global provider.
func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Metrics holds vector store instruments.
type Metrics struct {
	buildDuration metric.Float64Histogram
	queryDuration metric.Float64Histogram
	entries       metric.Int64Gauge
	errors        metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	m.buildDuration, err = meter.Float64Histogram(
		"assessd.vectorstore.build_duration_seconds",
		metric.WithDescription("Duration of full index builds, including embedding"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		logger.Warn("failed to create build duration histogram", zap.Error(err))
	}

	m.queryDuration, err = meter.Float64Histogram(
		"assessd.vectorstore.query_duration_seconds",
		metric.WithDescription("Duration of similarity queries, including query embedding"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		logger.Warn("failed to create query duration histogram", zap.Error(err))
	}

	m.entries, err = meter.Int64Gauge(
		"assessd.vectorstore.entries",
		metric.WithDescription("Entries in the most recently built or loaded index"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		logger.Warn("failed to create entries gauge", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"assessd.vectorstore.errors_total",
		metric.WithDescription("Vector store errors by provider and operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}
	return m
}

func (m *Metrics) recordBuild(ctx context.Context, provider string, d time.Duration, entries int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	if m.buildDuration != nil {
		m.buildDuration.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil {
		m.recordError(ctx, provider, "build")
		return
	}
	m.recordEntries(ctx, provider, entries)
}

func (m *Metrics) recordQuery(ctx context.Context, provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	if m.queryDuration != nil {
		m.queryDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
	}
	if err != nil {
		m.recordError(ctx, provider, "query")
	}
}

func (m *Metrics) recordEntries(ctx context.Context, provider string, entries int) {
	if m == nil || m.entries == nil {
		return
	}
	m.entries.Record(ctx, int64(entries), metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *Metrics) recordError(ctx context.Context, provider, op string) {
	if m == nil || m.errors == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", op),
	))
}
