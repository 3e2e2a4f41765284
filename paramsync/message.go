package paramsync

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kroma-labs/readhedge/params"
)

// Hash field names.
const (
	fieldReadHedgingMode = params.ReadHedgingMode
	fieldMaxTimeMS       = params.MaxTimeMSForHedgedReads
	fieldVersion         = "version"
	fieldOrigin          = "origin"
	fieldUpdatedAt       = "updatedAt"
)

// Message is the announcement sent on the change channel after the hash has
// been written. Receivers reload the hash; the message only says who changed
// what.
type Message struct {
	Origin     string    `json:"origin"`
	Parameters []string  `json:"parameters"`
	At         time.Time `json:"at"`
}

// hashValue renders the named parameter of p as stored in the hash.
func hashValue(p params.Parameters, name string) (string, error) {
	switch name {
	case params.ReadHedgingMode:
		return string(p.ReadHedgingMode), nil
	case params.MaxTimeMSForHedgedReads:
		return strconv.Itoa(p.MaxTimeMSForHedgedReads), nil
	}
	return "", &params.UnknownParameterError{Name: name}
}

// storedParameters is the decoded fleet hash.
type storedParameters struct {
	Parameters params.Parameters
	Version    int64
	Origin     string
}

// parseHash reads parameters back from the stored hash. ok is false when the
// hash does not exist. A hash written before versioning reads as version 0.
func parseHash(fields map[string]string) (stored storedParameters, ok bool, err error) {
	if len(fields) == 0 {
		return storedParameters{}, false, nil
	}

	mode, found := fields[fieldReadHedgingMode]
	if !found {
		return storedParameters{}, true, fmt.Errorf("stored parameters missing %q", fieldReadHedgingMode)
	}
	rawMS, found := fields[fieldMaxTimeMS]
	if !found {
		return storedParameters{}, true, fmt.Errorf("stored parameters missing %q", fieldMaxTimeMS)
	}
	ms, err := strconv.Atoi(rawMS)
	if err != nil {
		return storedParameters{}, true, fmt.Errorf("stored %q is not an integer: %w", fieldMaxTimeMS, err)
	}

	var version int64
	if raw, found := fields[fieldVersion]; found {
		version, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return storedParameters{}, true, fmt.Errorf("stored %q is not an integer: %w", fieldVersion, err)
		}
	}

	stored = storedParameters{
		Parameters: params.Parameters{
			ReadHedgingMode:         params.HedgingMode(mode),
			MaxTimeMSForHedgedReads: ms,
		},
		Version: version,
		Origin:  fields[fieldOrigin],
	}
	return stored, true, stored.Parameters.Validate()
}
