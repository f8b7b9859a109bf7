package store

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/lemonberrylabs/condeval/pkg/store"

// metrics holds the store's OpenTelemetry instruments.
type metrics struct {
	evaluations metric.Int64Counter
	failures    metric.Int64Counter
	latency     metric.Float64Histogram
	rules       metric.Int64UpDownCounter
}

// newMetrics creates the store instruments. If an instrument cannot be
// created the store falls back to no-op instruments.
func newMetrics(mp metric.MeterProvider) *metrics {
	m, err := createMetrics(mp)
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op instruments",
			slog.String("error", err.Error()))
		m, _ = createMetrics(noop.NewMeterProvider())
	}
	return m
}

func createMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)

	evaluations, err := meter.Int64Counter("condeval.rule.evaluations",
		metric.WithDescription("Number of rule evaluations"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("condeval.rule.failures",
		metric.WithDescription("Number of rule evaluations that failed"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("condeval.rule.latency_ms",
		metric.WithDescription("Rule evaluation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	rules, err := meter.Int64UpDownCounter("condeval.rules",
		metric.WithDescription("Number of stored rules"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		evaluations: evaluations,
		failures:    failures,
		latency:     latency,
		rules:       rules,
	}, nil
}

func (m *metrics) recordEvaluation(ctx context.Context, rule string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("rule", rule))

	m.evaluations.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(d.Microseconds())/1000, attrs)
	if err != nil {
		m.failures.Add(ctx, 1, attrs)
	}
}

func (m *metrics) ruleCount(delta int64) {
	m.rules.Add(context.Background(), delta)
}
