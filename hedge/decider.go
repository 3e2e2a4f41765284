package hedge

import (
	"context"
	"errors"
	"fmt"

	"github.com/kroma-labs/readhedge/params"
	"github.com/kroma-labs/readhedge/readpref"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SnapshotSource provides the parameter snapshot for each decision.
// *params.Store satisfies it.
type SnapshotSource interface {
	Snapshot() params.Snapshot
}

// Decider evaluates read preferences against live server parameters.
type Decider struct {
	source  SnapshotSource
	tracer  trace.Tracer
	metrics *metrics
	logger  zerolog.Logger
}

// NewDecider creates a Decider reading parameters from source.
func NewDecider(source SnapshotSource, opts ...Option) (*Decider, error) {
	if source == nil {
		return nil, errors.New("hedge: snapshot source is required")
	}

	cfg := newConfig(opts...)
	m, err := newMetrics(cfg.MeterProvider.Meter(scope))
	if err != nil {
		return nil, fmt.Errorf("hedge: create metrics: %w", err)
	}

	return &Decider{
		source:  source,
		tracer:  cfg.TracerProvider.Tracer(scope),
		metrics: m,
		logger:  cfg.Logger,
	}, nil
}

// Decide takes one snapshot and evaluates pref against it.
func (d *Decider) Decide(ctx context.Context, pref readpref.ReadPreference) Decision {
	ctx, span := d.tracer.Start(ctx, "hedge.Decide", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	decision := Evaluate(pref, d.source.Snapshot())

	attrs := []attribute.KeyValue{
		attribute.String("readhedge.mode", pref.Mode.String()),
		attribute.String("readhedge.reason", string(decision.Reason)),
		attribute.Bool("readhedge.hedged", decision.Hedge),
	}
	span.SetAttributes(attrs...)
	if decision.Hedge {
		span.SetAttributes(attribute.Int(
			"readhedge.max_time_ms_for_hedged_reads",
			decision.Options.MaxTimeMSForHedgedReads,
		))
	}
	d.metrics.recordDecision(ctx, attrs...)

	d.logger.Debug().
		Str("mode", pref.Mode.String()).
		Str("reason", string(decision.Reason)).
		Bool("hedged", decision.Hedge).
		Int("max_time_ms_for_hedged_reads", decision.Options.MaxTimeMSForHedgedReads).
		Msg("read hedging decision")

	return decision
}
