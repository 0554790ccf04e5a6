package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "demoplatform"

// Metrics holds all demo-platform metric instruments.
type Metrics struct {
	SessionsCreated metric.Int64Counter
	SessionsDeleted metric.Int64Counter
	SessionsExpired metric.Int64Counter
	BugsReported    metric.Int64Counter
	CleanupOrphans  metric.Int64Counter
	CleanupErrors   metric.Int64Counter
	CleanupDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsCreated, err = meter.Int64Counter("demoplatform.sessions.created",
		metric.WithDescription("Number of demo sessions created"))
	if err != nil {
		return nil, err
	}

	m.SessionsDeleted, err = meter.Int64Counter("demoplatform.sessions.deleted",
		metric.WithDescription("Number of demo sessions deleted by an admin"))
	if err != nil {
		return nil, err
	}

	m.SessionsExpired, err = meter.Int64Counter("demoplatform.sessions.expired",
		metric.WithDescription("Number of demo sessions reaped after expiry"))
	if err != nil {
		return nil, err
	}

	m.BugsReported, err = meter.Int64Counter("demoplatform.bugs.reported",
		metric.WithDescription("Number of injected bug events reported"))
	if err != nil {
		return nil, err
	}

	m.CleanupOrphans, err = meter.Int64Counter("demoplatform.cleanup.orphans",
		metric.WithDescription("Number of orphaned sessions found by cleanup runs"))
	if err != nil {
		return nil, err
	}

	m.CleanupErrors, err = meter.Int64Counter("demoplatform.cleanup.errors",
		metric.WithDescription("Number of per-resource failures during cleanup"))
	if err != nil {
		return nil, err
	}

	m.CleanupDuration, err = meter.Float64Histogram("demoplatform.cleanup.duration_seconds",
		metric.WithDescription("Cleanup run duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordBug counts a bug event with its severity and demo site attached.
func (m *Metrics) RecordBug(ctx context.Context, severity, site string) {
	if m == nil {
		return
	}
	m.BugsReported.Add(ctx, 1, metric.WithAttributes(
		attribute.String("severity", severity),
		attribute.String("demo", site),
	))
}
