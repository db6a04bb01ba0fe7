package preview

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/noah-isme/backend-billing/internal/preview"

type sessionMetrics struct {
	fires    metric.Int64Counter
	stale    metric.Int64Counter
	failures metric.Int64Counter
}

// newSessionMetrics binds counters on the global meter provider. Instrument
// creation errors leave the counter nil and recording becomes a no-op.
func newSessionMetrics() *sessionMetrics {
	meter := otel.Meter(meterName)
	m := &sessionMetrics{}
	m.fires, _ = meter.Int64Counter("preview.calculations",
		metric.WithDescription("Preview calculations started."))
	m.stale, _ = meter.Int64Counter("preview.stale_discarded",
		metric.WithDescription("Preview results dropped because a newer request superseded them."))
	m.failures, _ = meter.Int64Counter("preview.failures",
		metric.WithDescription("Preview calculations that failed and were swallowed."))
	return m
}

func (m *sessionMetrics) fired(ctx context.Context) {
	if m != nil && m.fires != nil {
		m.fires.Add(ctx, 1)
	}
}

func (m *sessionMetrics) discarded(ctx context.Context) {
	if m != nil && m.stale != nil {
		m.stale.Add(ctx, 1)
	}
}

func (m *sessionMetrics) failed(ctx context.Context) {
	if m != nil && m.failures != nil {
		m.failures.Add(ctx, 1)
	}
}
