package readpref

import (
	"bytes"
	"sort"

	json "github.com/goccy/go-json"
)

// Document field names.
const (
	fieldMode                = "mode"
	fieldHedge               = "hedge"
	fieldHedgeEnabled        = "enabled"
	fieldTags                = "tags"
	fieldMaxStalenessSeconds = "maxStalenessSeconds"
)

// Parse builds a ReadPreference from its JSON document form.
//
// The document must be an object with a string "mode". An optional "hedge"
// object may carry a boolean "enabled"; an empty hedge object is an opt-in
// with server defaults. "tags" and "maxStalenessSeconds" are accepted and
// carried. Any other field is rejected. The result is validated before it is
// returned.
func Parse(data []byte) (ReadPreference, error) {
	fields, err := decodeObject(data, "")
	if err != nil {
		return ReadPreference{}, err
	}

	var pref ReadPreference

	rawMode, ok := fields[fieldMode]
	if !ok {
		return ReadPreference{}, &ParseError{Field: fieldMode, Reason: "field is required"}
	}
	var name *string
	if err := json.Unmarshal(rawMode, &name); err != nil || name == nil {
		return ReadPreference{}, &ParseError{Field: fieldMode, Reason: "must be a string"}
	}
	pref.Mode, err = ParseMode(*name)
	if err != nil {
		return ReadPreference{}, &ParseError{Field: fieldMode, Reason: err.Error()}
	}

	if raw, ok := fields[fieldHedge]; ok {
		pref.Hedge, err = parseHedge(raw)
		if err != nil {
			return ReadPreference{}, err
		}
	}

	if raw, ok := fields[fieldTags]; ok {
		if err := json.Unmarshal(raw, &pref.Tags); err != nil {
			return ReadPreference{}, &ParseError{
				Field:  fieldTags,
				Reason: "must be an array of objects with string values",
			}
		}
	}

	if raw, ok := fields[fieldMaxStalenessSeconds]; ok {
		if err := json.Unmarshal(raw, &pref.MaxStalenessSeconds); err != nil {
			return ReadPreference{}, &ParseError{
				Field:  fieldMaxStalenessSeconds,
				Reason: "must be an integer",
			}
		}
	}

	for _, key := range sortedKeys(fields) {
		switch key {
		case fieldMode, fieldHedge, fieldTags, fieldMaxStalenessSeconds:
		default:
			return ReadPreference{}, &ParseError{Field: key, Reason: "unrecognized field"}
		}
	}

	if err := pref.Validate(); err != nil {
		return ReadPreference{}, err
	}
	return pref, nil
}

func parseHedge(raw json.RawMessage) (*HedgeSpec, error) {
	fields, err := decodeObject(raw, fieldHedge)
	if err != nil {
		return nil, err
	}

	spec := &HedgeSpec{}
	for _, key := range sortedKeys(fields) {
		if key != fieldHedgeEnabled {
			return nil, &ParseError{Field: fieldHedge + "." + key, Reason: "unrecognized field"}
		}
		var enabled *bool
		if err := json.Unmarshal(fields[key], &enabled); err != nil || enabled == nil {
			return nil, &ParseError{Field: fieldHedge + "." + key, Reason: "must be a boolean"}
		}
		spec.Enabled = enabled
	}
	return spec, nil
}

// decodeObject splits a JSON object into its raw fields. Anything other than
// an object, including null, is rejected.
func decodeObject(data []byte, field string) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &ParseError{Field: field, Reason: "must be an object"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, &ParseError{Field: field, Reason: "malformed JSON: " + err.Error()}
	}
	return fields, nil
}

// sortedKeys keeps error reporting deterministic across map iteration orders.
func sortedKeys(fields map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
