package manager

import (
	"context"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	attribute "go.opentelemetry.io/otel/attribute"
	metric "go.opentelemetry.io/otel/metric"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type metrics struct {
	sessions metric.Int64Counter
	parts    metric.Int64Counter
	bytes    metric.Int64Counter
	merges   metric.Int64Counter
	aborts   metric.Int64Counter
	expired  metric.Int64Counter
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newMetrics(meter metric.Meter) (*metrics, error) {
	self := new(metrics)

	var err error
	if self.sessions, err = meter.Int64Counter(metricName("sessions"), metric.WithDescription("Upload sessions started")); err != nil {
		return nil, err
	}
	if self.parts, err = meter.Int64Counter(metricName("parts"), metric.WithDescription("Parts stored")); err != nil {
		return nil, err
	}
	if self.bytes, err = meter.Int64Counter(metricName("bytes"), metric.WithDescription("Part bytes stored"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if self.merges, err = meter.Int64Counter(metricName("merges"), metric.WithDescription("Merges finished, by outcome")); err != nil {
		return nil, err
	}
	if self.aborts, err = meter.Int64Counter(metricName("aborts"), metric.WithDescription("Upload sessions aborted")); err != nil {
		return nil, err
	}
	if self.expired, err = meter.Int64Counter(metricName("expired"), metric.WithDescription("Idle upload sessions removed")); err != nil {
		return nil, err
	}

	// Return success
	return self, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (m *metrics) merged(ctx context.Context, status schema.Status) {
	m.merges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func metricName(name string) string {
	return schema.SchemaName + "." + name
}
