package params

import (
	"fmt"
	"math"
	"strconv"
)

// Parameter names as exposed on the administrative surface.
const (
	ReadHedgingMode         = "readHedgingMode"
	MaxTimeMSForHedgedReads = "maxTimeMSForHedgedReads"
)

// Defaults applied at process start and restored by Reset.
const (
	DefaultReadHedgingMode         = HedgingOn
	DefaultMaxTimeMSForHedgedReads = 10
)

// maxTimeMSLimit bounds maxTimeMSForHedgedReads to the 32-bit range the
// dispatch layer carries on the wire.
const maxTimeMSLimit = math.MaxInt32

// HedgingMode is the global read hedging switch.
type HedgingMode string

const (
	// HedgingOn allows per-operation hedging decisions.
	HedgingOn HedgingMode = "on"
	// HedgingOff suppresses hedging for every operation.
	HedgingOff HedgingMode = "off"
)

// ParseHedgingMode accepts exactly "on" or "off".
func ParseHedgingMode(s string) (HedgingMode, error) {
	switch HedgingMode(s) {
	case HedgingOn, HedgingOff:
		return HedgingMode(s), nil
	}
	return "", &ValidationError{
		Parameter: ReadHedgingMode,
		Value:     s,
		Reason:    `must be "on" or "off"`,
	}
}

// Parameters is the full set of hedging parameters. A Store never mutates a
// Parameters value once published.
type Parameters struct {
	ReadHedgingMode         HedgingMode `json:"readHedgingMode"`
	MaxTimeMSForHedgedReads int         `json:"maxTimeMSForHedgedReads"`
}

// DefaultParameters returns the registered defaults.
func DefaultParameters() Parameters {
	return Parameters{
		ReadHedgingMode:         DefaultReadHedgingMode,
		MaxTimeMSForHedgedReads: DefaultMaxTimeMSForHedgedReads,
	}
}

// Validate checks every field.
func (p Parameters) Validate() error {
	if _, err := ParseHedgingMode(string(p.ReadHedgingMode)); err != nil {
		return err
	}
	if _, err := validateMaxTimeMS(p.MaxTimeMSForHedgedReads); err != nil {
		return err
	}
	return nil
}

// Snapshot returns a read-only copy for a single decision.
func (p Parameters) Snapshot() Snapshot {
	return Snapshot{
		ReadHedgingMode:         p.ReadHedgingMode,
		MaxTimeMSForHedgedReads: p.MaxTimeMSForHedgedReads,
	}
}

// Snapshot is a consistent point-in-time copy of the hedging parameters,
// captured once per routing decision.
type Snapshot struct {
	ReadHedgingMode         HedgingMode `json:"readHedgingMode"`
	MaxTimeMSForHedgedReads int         `json:"maxTimeMSForHedgedReads"`
}

// HedgingEnabled reports whether the global switch allows hedging.
func (s Snapshot) HedgingEnabled() bool {
	return s.ReadHedgingMode == HedgingOn
}

// Names returns the registered parameter names.
func Names() []string {
	return []string{ReadHedgingMode, MaxTimeMSForHedgedReads}
}

// Value returns the value of the named parameter in p.
func (p Parameters) Value(name string) (any, error) {
	switch name {
	case ReadHedgingMode:
		return p.ReadHedgingMode, nil
	case MaxTimeMSForHedgedReads:
		return p.MaxTimeMSForHedgedReads, nil
	}
	return nil, &UnknownParameterError{Name: name}
}

// assign validates value for name and stores it in p.
func (p *Parameters) assign(name string, value any) error {
	switch name {
	case ReadHedgingMode:
		mode, err := coerceHedgingMode(value)
		if err != nil {
			return err
		}
		p.ReadHedgingMode = mode
	case MaxTimeMSForHedgedReads:
		ms, err := coerceMaxTimeMS(value)
		if err != nil {
			return err
		}
		p.MaxTimeMSForHedgedReads = ms
	default:
		return &UnknownParameterError{Name: name}
	}
	return nil
}

// copyField copies name from src into p.
func (p *Parameters) copyField(name string, src Parameters) error {
	switch name {
	case ReadHedgingMode:
		p.ReadHedgingMode = src.ReadHedgingMode
	case MaxTimeMSForHedgedReads:
		p.MaxTimeMSForHedgedReads = src.MaxTimeMSForHedgedReads
	default:
		return &UnknownParameterError{Name: name}
	}
	return nil
}

// ParseValue converts the textual form of a parameter value, as found in
// environment variables or command lines, into the value Set expects.
func ParseValue(name, raw string) (any, error) {
	switch name {
	case ReadHedgingMode:
		mode, err := ParseHedgingMode(raw)
		if err != nil {
			return nil, err
		}
		return mode, nil
	case MaxTimeMSForHedgedReads:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &ValidationError{Parameter: name, Value: raw, Reason: "must be an integer"}
		}
		ms, err := coerceMaxTimeMS(n)
		if err != nil {
			return nil, err
		}
		return ms, nil
	}
	return nil, &UnknownParameterError{Name: name}
}

func coerceHedgingMode(value any) (HedgingMode, error) {
	switch v := value.(type) {
	case HedgingMode:
		return ParseHedgingMode(string(v))
	case string:
		return ParseHedgingMode(v)
	}
	return "", &ValidationError{
		Parameter: ReadHedgingMode,
		Value:     value,
		Reason:    fmt.Sprintf("must be a string, got %T", value),
	}
}

func coerceMaxTimeMS(value any) (int, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case uint:
		if uint64(v) > maxTimeMSLimit {
			return 0, outOfRange(value)
		}
		n = int64(v)
	case uint64:
		if v > maxTimeMSLimit {
			return 0, outOfRange(value)
		}
		n = int64(v)
	case float32:
		return coerceFloatMaxTimeMS(float64(v), value)
	case float64:
		return coerceFloatMaxTimeMS(v, value)
	default:
		return 0, &ValidationError{
			Parameter: MaxTimeMSForHedgedReads,
			Value:     value,
			Reason:    fmt.Sprintf("must be an integer, got %T", value),
		}
	}
	return validateMaxTimeMS64(n, value)
}

// coerceFloatMaxTimeMS accepts integral floats, the form JSON numbers decode to.
func coerceFloatMaxTimeMS(f float64, original any) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, &ValidationError{
			Parameter: MaxTimeMSForHedgedReads,
			Value:     original,
			Reason:    "must be an integer",
		}
	}
	if f < 0 {
		return 0, negative(original)
	}
	if f > maxTimeMSLimit {
		return 0, outOfRange(original)
	}
	return int(f), nil
}

func validateMaxTimeMS(ms int) (int, error) {
	return validateMaxTimeMS64(int64(ms), ms)
}

func validateMaxTimeMS64(n int64, original any) (int, error) {
	if n < 0 {
		return 0, negative(original)
	}
	if n > maxTimeMSLimit {
		return 0, outOfRange(original)
	}
	return int(n), nil
}

func negative(value any) error {
	return &ValidationError{
		Parameter: MaxTimeMSForHedgedReads,
		Value:     value,
		Reason:    "must be greater than or equal to 0",
	}
}

func outOfRange(value any) error {
	return &ValidationError{
		Parameter: MaxTimeMSForHedgedReads,
		Value:     value,
		Reason:    fmt.Sprintf("must be less than or equal to %d", maxTimeMSLimit),
	}
}
