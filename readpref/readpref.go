package readpref

import (
	json "github.com/goccy/go-json"
)

// TagSet is one ordered preference of member tags, e.g. {"dc": "east"}.
type TagSet map[string]string

// HedgeSpec is the explicit hedge directive attached to a read preference.
//
// A nil Enabled means "hedge, using the server defaults".
type HedgeSpec struct {
	Enabled *bool
}

// HedgeDefault returns a directive equivalent to an empty hedge document.
func HedgeDefault() *HedgeSpec {
	return &HedgeSpec{}
}

// HedgeEnabled returns a directive with enabled explicitly set to true.
func HedgeEnabled() *HedgeSpec {
	enabled := true
	return &HedgeSpec{Enabled: &enabled}
}

// HedgeDisabled returns a directive with enabled explicitly set to false.
func HedgeDisabled() *HedgeSpec {
	enabled := false
	return &HedgeSpec{Enabled: &enabled}
}

// OptedOut reports whether the directive explicitly disables hedging.
func (h HedgeSpec) OptedOut() bool {
	return h.Enabled != nil && !*h.Enabled
}

// ReadPreference is a parsed, caller-supplied read preference.
//
// Treat values as immutable once built; copies share the Hedge directive and
// tag sets.
type ReadPreference struct {
	// Mode selects eligible members.
	Mode Mode

	// Hedge is the explicit hedge directive, nil when the document had none.
	Hedge *HedgeSpec

	// Tags are carried for member selection and are not interpreted here.
	Tags []TagSet

	// MaxStalenessSeconds is carried for member selection. Zero means unset.
	MaxStalenessSeconds int64
}

// Validate checks the structural invariants of the read preference.
func (p ReadPreference) Validate() error {
	if !p.Mode.Valid() {
		return &ParseError{Field: "mode", Reason: "unknown read preference mode " + p.Mode.String()}
	}
	if p.Mode == Primary {
		if p.Hedge != nil {
			return &ParseError{Field: "hedge", Reason: "hedging is not allowed with mode primary"}
		}
		if len(p.Tags) > 0 {
			return &ParseError{Field: "tags", Reason: "tag sets are not allowed with mode primary"}
		}
		if p.MaxStalenessSeconds > 0 {
			return &ParseError{
				Field:  "maxStalenessSeconds",
				Reason: "maxStalenessSeconds is not allowed with mode primary",
			}
		}
	}
	if p.MaxStalenessSeconds < 0 {
		return &ParseError{Field: "maxStalenessSeconds", Reason: "must be non-negative"}
	}
	return nil
}

type hedgeDocument struct {
	Enabled *bool `json:"enabled,omitempty"`
}

type document struct {
	Mode                Mode           `json:"mode"`
	Hedge               *hedgeDocument `json:"hedge,omitempty"`
	Tags                []TagSet       `json:"tags,omitempty"`
	MaxStalenessSeconds int64          `json:"maxStalenessSeconds,omitempty"`
}

// MarshalJSON renders the read preference in its document form.
func (p ReadPreference) MarshalJSON() ([]byte, error) {
	doc := document{
		Mode:                p.Mode,
		Tags:                p.Tags,
		MaxStalenessSeconds: p.MaxStalenessSeconds,
	}
	if p.Hedge != nil {
		doc.Hedge = &hedgeDocument{Enabled: p.Hedge.Enabled}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON parses the document form with the same rules as Parse.
func (p *ReadPreference) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
