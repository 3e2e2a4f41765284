package params

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the metric instruments for parameter changes.
type metrics struct {
	// updates counts accepted changes per parameter and source.
	updates metric.Int64Counter

	// rejected counts changes refused by validation or name lookup.
	rejected metric.Int64Counter
}

// newMetrics creates the instruments and registers the observable gauges
// that report the store's current values.
func newMetrics(meter metric.Meter, s *Store) (*metrics, error) {
	m := &metrics{}
	var err error

	m.updates, err = meter.Int64Counter(
		"readhedge.params.updates",
		metric.WithDescription("Number of accepted server parameter changes"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	m.rejected, err = meter.Int64Counter(
		"readhedge.params.rejected",
		metric.WithDescription("Number of rejected server parameter changes"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	enabled, err := meter.Int64ObservableGauge(
		"readhedge.params.hedging_enabled",
		metric.WithDescription("1 when readHedgingMode is on, 0 when off"),
	)
	if err != nil {
		return nil, err
	}

	maxTime, err := meter.Int64ObservableGauge(
		"readhedge.params.max_time_for_hedged_reads",
		metric.WithDescription("Current maxTimeMSForHedgedReads"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := s.Snapshot()
		var on int64
		if snap.HedgingEnabled() {
			on = 1
		}
		o.ObserveInt64(enabled, on)
		o.ObserveInt64(maxTime, int64(snap.MaxTimeMSForHedgedReads))
		return nil
	}, enabled, maxTime)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metrics) recordUpdate(ctx context.Context, parameter string, source Source) {
	m.updates.Add(ctx, 1, metric.WithAttributes(
		attribute.String("parameter", parameter),
		attribute.String("source", string(source)),
	))
}

// unknownParameterLabel replaces unregistered names in metric attributes.
const unknownParameterLabel = "unknown"

func (m *metrics) recordRejected(ctx context.Context, parameter string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("parameter", parameter),
	))
}
