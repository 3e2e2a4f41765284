package hedge

import (
	"bytes"
	"context"
	"testing"

	"github.com/kroma-labs/readhedge/params"
	"github.com/kroma-labs/readhedge/readpref"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type staticSource params.Snapshot

func (s staticSource) Snapshot() params.Snapshot { return params.Snapshot(s) }

func TestNewDecider(t *testing.T) {
	t.Run("given nil source, then fails", func(t *testing.T) {
		_, err := NewDecider(nil)
		assert.Error(t, err)
	})

	t.Run("given store, then succeeds", func(t *testing.T) {
		store, err := params.NewStore()
		require.NoError(t, err)

		d, err := NewDecider(store)
		require.NoError(t, err)
		assert.NotNil(t, d)
	})
}

func TestDecider_Decide(t *testing.T) {
	type args struct {
		snap params.Snapshot
		pref readpref.ReadPreference
	}

	tests := []struct {
		name       string
		args       args
		wantHedge  bool
		wantReason Reason
		wantAttrs  []attribute.KeyValue
	}{
		{
			name: "given nearest and hedging on, then span records implicit hedge",
			args: args{
				snap: params.Snapshot{ReadHedgingMode: params.HedgingOn, MaxTimeMSForHedgedReads: 15},
				pref: readpref.ReadPreference{Mode: readpref.Nearest},
			},
			wantHedge:  true,
			wantReason: ReasonImplicit,
			wantAttrs: []attribute.KeyValue{
				attribute.String("readhedge.mode", "nearest"),
				attribute.String("readhedge.reason", "implicit"),
				attribute.Bool("readhedge.hedged", true),
				attribute.Int("readhedge.max_time_ms_for_hedged_reads", 15),
			},
		},
		{
			name: "given hedging off, then span records global off",
			args: args{
				snap: params.Snapshot{ReadHedgingMode: params.HedgingOff, MaxTimeMSForHedgedReads: 15},
				pref: readpref.ReadPreference{Mode: readpref.Secondary, Hedge: readpref.HedgeEnabled()},
			},
			wantHedge:  false,
			wantReason: ReasonGlobalOff,
			wantAttrs: []attribute.KeyValue{
				attribute.String("readhedge.mode", "secondary"),
				attribute.String("readhedge.reason", "global_off"),
				attribute.Bool("readhedge.hedged", false),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			exporter := tracetest.NewInMemoryExporter()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			defer tp.Shutdown(ctx)
			defer mp.Shutdown(ctx)

			d, err := NewDecider(staticSource(tt.args.snap),
				WithTracerProvider(tp),
				WithMeterProvider(mp),
			)
			require.NoError(t, err)

			got := d.Decide(ctx, tt.args.pref)
			assert.Equal(t, tt.wantHedge, got.Hedge)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, tt.args.snap, got.Snapshot)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, "hedge.Decide", spans[0].Name)
			assert.ElementsMatch(t, tt.wantAttrs, spans[0].Attributes)

			var rm metricdata.ResourceMetrics
			require.NoError(t, reader.Collect(ctx, &rm))
			require.Len(t, rm.ScopeMetrics, 1)
			require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
			m := rm.ScopeMetrics[0].Metrics[0]
			assert.Equal(t, "readhedge.decisions", m.Name)
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(1), sum.DataPoints[0].Value)
			reason, ok := sum.DataPoints[0].Attributes.Value("readhedge.reason")
			require.True(t, ok)
			assert.Equal(t, string(tt.wantReason), reason.AsString())
		})
	}
}

func TestDecider_ObservesStoreChanges(t *testing.T) {
	ctx := context.Background()
	store, err := params.NewStore()
	require.NoError(t, err)

	var buf bytes.Buffer
	d, err := NewDecider(store, WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	require.NoError(t, err)

	pref := readpref.ReadPreference{Mode: readpref.Nearest, Hedge: readpref.HedgeDefault()}
	assert.True(t, d.Decide(ctx, pref).Hedge)

	require.NoError(t, store.Set(ctx, params.ReadHedgingMode, params.HedgingOff))
	assert.False(t, d.Decide(ctx, pref).Hedge, "a decision after Set sees the new value")

	require.NoError(t, store.Reset(ctx, params.ReadHedgingMode))
	require.NoError(t, store.Set(ctx, params.MaxTimeMSForHedgedReads, 100))
	got := d.Decide(ctx, pref)
	assert.True(t, got.Hedge)
	assert.Equal(t, 100, got.Options.MaxTimeMSForHedgedReads)

	assert.Contains(t, buf.String(), `"message":"read hedging decision"`)
}
