// Package hedge decides whether a single read is hedged across replicas and
// with what per-hedge time budget.
//
// The decision combines the caller's read preference with a snapshot of the
// server parameters. Checks run in a fixed order and the first one that
// applies wins:
//
//  1. readHedgingMode is off: no hedging, whatever the operation asked for
//  2. mode is primary: no hedging, a single target admits no redundancy
//  3. hedge.enabled is false: no hedging, the caller opted out
//  4. otherwise: hedge with maxTimeMSForHedgedReads from the snapshot
//
// Every non-primary mode is eligible without an explicit hedge directive.
//
// ExtractHedgeOptions is the pure decision. Decider wraps it for the routing
// hot path: it takes the snapshot from a params.Store and records a span and a
// decision counter.
//
//	decider, err := hedge.NewDecider(store)
//	if err != nil {
//	    return err
//	}
//	if d := decider.Decide(ctx, pref); d.Hedge {
//	    dispatchHedged(ctx, req, d.Options.MaxTime())
//	}
package hedge
