// Package readpref models a caller's replica-selection intent for a single
// read: the read preference mode and an optional hedge directive.
//
// A ReadPreference is normally built from its JSON document form:
//
//	pref, err := readpref.Parse([]byte(`{"mode": "nearest", "hedge": {}}`))
//	if err != nil {
//	    return err // *readpref.ParseError, errors.Is(err, readpref.ErrInvalidDocument)
//	}
//
// or directly in code:
//
//	pref := readpref.ReadPreference{
//	    Mode:  readpref.Nearest,
//	    Hedge: readpref.HedgeDisabled(),
//	}
//
// # Hedge directive
//
// The hedge sub-document has three observable states:
//
//   - absent: no explicit directive, hedging follows the mode's eligibility
//   - present, enabled unset or true: explicit opt-in
//   - present, enabled false: explicit opt-out
//
// A hedge directive on a primary read preference is invalid because a single
// fixed target admits no redundancy. Validate and Parse reject it.
package readpref
