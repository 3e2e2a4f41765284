package hedge

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the decision instruments.
type metrics struct {
	// decisions counts decisions by mode, reason and outcome.
	decisions metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	decisions, err := meter.Int64Counter(
		"readhedge.decisions",
		metric.WithDescription("Number of read hedging decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{decisions: decisions}, nil
}

func (m *metrics) recordDecision(ctx context.Context, attrs ...attribute.KeyValue) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}
