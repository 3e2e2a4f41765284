package hedge

import (
	"time"

	"github.com/kroma-labs/readhedge/params"
	"github.com/kroma-labs/readhedge/readpref"
)

// HedgeOptions are the resolved settings for a hedged read.
type HedgeOptions struct {
	// MaxTimeMSForHedgedReads is the time budget, in milliseconds, applied to
	// each hedged attempt.
	MaxTimeMSForHedgedReads int `json:"maxTimeMSForHedgedReads"`
}

// MaxTime returns the per-hedge budget as a duration.
func (o HedgeOptions) MaxTime() time.Duration {
	return time.Duration(o.MaxTimeMSForHedgedReads) * time.Millisecond
}

// Reason names the rule that settled a decision.
type Reason string

const (
	// ReasonGlobalOff: readHedgingMode is off.
	ReasonGlobalOff Reason = "global_off"
	// ReasonModeIneligible: the mode has a single possible target.
	ReasonModeIneligible Reason = "mode_ineligible"
	// ReasonOptedOut: the read preference carries hedge.enabled=false.
	ReasonOptedOut Reason = "opted_out"
	// ReasonExplicit: the read preference carries a hedge directive opting in.
	ReasonExplicit Reason = "explicit"
	// ReasonImplicit: no directive, the mode alone makes the read eligible.
	ReasonImplicit Reason = "implicit"
)

// Decision is the outcome of evaluating one read preference.
type Decision struct {
	// Hedge reports whether hedging is authorized. Options is only
	// meaningful when it is true.
	Hedge    bool
	Options  HedgeOptions
	Reason   Reason
	Snapshot params.Snapshot
}

// Evaluate runs the decision and reports which rule settled it.
// It is total: every input yields a definite decision.
func Evaluate(pref readpref.ReadPreference, snap params.Snapshot) Decision {
	d := Decision{Snapshot: snap}

	switch {
	case !snap.HedgingEnabled():
		d.Reason = ReasonGlobalOff
	case !pref.Mode.MultiTarget():
		// Also covers a primary preference that carries a hedge directive.
		d.Reason = ReasonModeIneligible
	case pref.Hedge != nil && pref.Hedge.OptedOut():
		d.Reason = ReasonOptedOut
	default:
		d.Hedge = true
		d.Options = HedgeOptions{MaxTimeMSForHedgedReads: snap.MaxTimeMSForHedgedReads}
		d.Reason = ReasonImplicit
		if pref.Hedge != nil {
			d.Reason = ReasonExplicit
		}
	}
	return d
}

// ExtractHedgeOptions returns the hedge options for pref, or false when the
// read must not be hedged.
func ExtractHedgeOptions(pref readpref.ReadPreference, snap params.Snapshot) (HedgeOptions, bool) {
	d := Evaluate(pref, snap)
	return d.Options, d.Hedge
}
