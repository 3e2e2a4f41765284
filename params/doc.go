// Package params holds the runtime-mutable server parameters that govern read
// hedging and serves consistent point-in-time snapshots of them.
//
// Two parameters are defined:
//
//	readHedgingMode          "on" | "off"   default "on"
//	maxTimeMSForHedgedReads  integer >= 0   default 10
//
// The Store keeps both in a single immutable Parameters value behind an
// atomic pointer. Writers serialize on a mutex and swap in a new value, so a
// Snapshot never observes a mix of old and new fields and never blocks.
//
// Example:
//
//	store, err := params.NewStore(params.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	// Administrative change, validated before it is applied.
//	if err := store.Set(ctx, params.MaxTimeMSForHedgedReads, 100); err != nil {
//	    return err // *params.ValidationError or *params.UnknownParameterError
//	}
//
//	// Hot path.
//	snap := store.Snapshot()
package params
