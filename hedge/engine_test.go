package hedge

import (
	"context"
	"testing"
	"time"

	"github.com/kroma-labs/readhedge/params"
	"github.com/kroma-labs/readhedge/readpref"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHedgeOptions_Scenarios(t *testing.T) {
	type args struct {
		parameters map[string]any
		doc        string
	}

	tests := []struct {
		name       string
		args       args
		wantHedge  bool
		wantMaxMS  int
		wantReason Reason
	}{
		{
			name: "given defaults and primaryPreferred with empty hedge, then hedges explicitly",
			args: args{
				doc: `{"mode": "primaryPreferred", "hedge": {}}`,
			},
			wantHedge:  true,
			wantMaxMS:  10,
			wantReason: ReasonExplicit,
		},
		{
			name: "given defaults and nearest without hedge, then hedges implicitly",
			args: args{
				doc: `{"mode": "nearest"}`,
			},
			wantHedge:  true,
			wantMaxMS:  10,
			wantReason: ReasonImplicit,
		},
		{
			name: "given defaults and nearest with hedge disabled, then does not hedge",
			args: args{
				doc: `{"mode": "nearest", "hedge": {"enabled": false}}`,
			},
			wantHedge:  false,
			wantReason: ReasonOptedOut,
		},
		{
			name: "given read hedging mode off and explicit opt-in, then does not hedge",
			args: args{
				parameters: map[string]any{params.ReadHedgingMode: "off"},
				doc:        `{"mode": "nearest", "hedge": {}}`,
			},
			wantHedge:  false,
			wantReason: ReasonGlobalOff,
		},
		{
			name: "given max time 100, then hedges with budget 100",
			args: args{
				parameters: map[string]any{
					params.ReadHedgingMode:         "on",
					params.MaxTimeMSForHedgedReads: 100,
				},
				doc: `{"mode": "nearest", "hedge": {}}`,
			},
			wantHedge:  true,
			wantMaxMS:  100,
			wantReason: ReasonExplicit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, err := params.NewStore()
			require.NoError(t, err)

			for name, value := range tt.args.parameters {
				require.NoError(t, store.Set(ctx, name, value))
			}
			defer func() {
				for name := range tt.args.parameters {
					require.NoError(t, store.Reset(ctx, name))
				}
				assert.Equal(t, params.DefaultParameters(), store.Parameters())
			}()

			pref, err := readpref.Parse([]byte(tt.args.doc))
			require.NoError(t, err)

			got, ok := ExtractHedgeOptions(pref, store.Snapshot())
			assert.Equal(t, tt.wantHedge, ok)
			if tt.wantHedge {
				assert.Equal(t, tt.wantMaxMS, got.MaxTimeMSForHedgedReads)
			} else {
				assert.Equal(t, HedgeOptions{}, got)
			}

			assert.Equal(t, tt.wantReason, Evaluate(pref, store.Snapshot()).Reason)
		})
	}
}

// hedgeStates enumerates every shape the hedge directive can take.
func hedgeStates() map[string]*readpref.HedgeSpec {
	return map[string]*readpref.HedgeSpec{
		"absent":   nil,
		"empty":    readpref.HedgeDefault(),
		"enabled":  readpref.HedgeEnabled(),
		"disabled": readpref.HedgeDisabled(),
	}
}

func TestEvaluate_Matrix(t *testing.T) {
	snapshots := []params.Snapshot{
		{ReadHedgingMode: params.HedgingOn, MaxTimeMSForHedgedReads: 0},
		{ReadHedgingMode: params.HedgingOn, MaxTimeMSForHedgedReads: 10},
		{ReadHedgingMode: params.HedgingOn, MaxTimeMSForHedgedReads: 2500},
		{ReadHedgingMode: params.HedgingOff, MaxTimeMSForHedgedReads: 10},
		{ReadHedgingMode: params.HedgingOff, MaxTimeMSForHedgedReads: 0},
	}

	for _, mode := range readpref.Modes() {
		for hedgeName, spec := range hedgeStates() {
			for _, snap := range snapshots {
				// Primary with a hedge directive is not a valid preference but
				// the engine must still settle it.
				pref := readpref.ReadPreference{Mode: mode, Hedge: spec}
				d := Evaluate(pref, snap)
				opts, ok := ExtractHedgeOptions(pref, snap)

				label := mode.String() + "/" + hedgeName + "/" + string(snap.ReadHedgingMode)
				assert.Equal(t, d.Hedge, ok, label)
				assert.Equal(t, d.Options, opts, label)
				assert.Equal(t, snap, d.Snapshot, label)

				switch {
				case snap.ReadHedgingMode == params.HedgingOff:
					assert.False(t, ok, "global off always wins: %s", label)
					assert.Equal(t, ReasonGlobalOff, d.Reason, label)
				case mode == readpref.Primary:
					assert.False(t, ok, "primary never hedges: %s", label)
					assert.Equal(t, ReasonModeIneligible, d.Reason, label)
				case hedgeName == "disabled":
					assert.False(t, ok, "opt-out wins over eligibility: %s", label)
					assert.Equal(t, ReasonOptedOut, d.Reason, label)
				default:
					assert.True(t, ok, label)
					assert.Equal(t, snap.MaxTimeMSForHedgedReads, opts.MaxTimeMSForHedgedReads, label)
					if spec == nil {
						assert.Equal(t, ReasonImplicit, d.Reason, label)
					} else {
						assert.Equal(t, ReasonExplicit, d.Reason, label)
					}
				}
			}
		}
	}
}

func TestEvaluate_UnknownInputs(t *testing.T) {
	t.Run("given unrecognized hedging mode, then treats it as off", func(t *testing.T) {
		snap := params.Snapshot{ReadHedgingMode: "maybe", MaxTimeMSForHedgedReads: 10}
		_, ok := ExtractHedgeOptions(readpref.ReadPreference{Mode: readpref.Nearest}, snap)
		assert.False(t, ok)
	})

	t.Run("given undeclared mode, then does not hedge", func(t *testing.T) {
		snap := params.DefaultParameters().Snapshot()
		d := Evaluate(readpref.ReadPreference{Mode: readpref.Mode(99)}, snap)
		assert.False(t, d.Hedge)
		assert.Equal(t, ReasonModeIneligible, d.Reason)
	})
}

func TestHedgeOptions_MaxTime(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, HedgeOptions{MaxTimeMSForHedgedReads: 10}.MaxTime())
	assert.Equal(t, time.Duration(0), HedgeOptions{}.MaxTime())
}
