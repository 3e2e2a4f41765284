package readpref

import "fmt"

// Mode selects which replica set members are acceptable read targets.
type Mode uint8

const (
	// Primary reads only from the primary. The zero value.
	Primary Mode = iota
	// PrimaryPreferred reads from the primary, falling back to secondaries.
	PrimaryPreferred
	// Secondary reads only from secondaries.
	Secondary
	// SecondaryPreferred reads from secondaries, falling back to the primary.
	SecondaryPreferred
	// Nearest reads from the member with the lowest network latency.
	Nearest
)

var modeNames = [...]string{
	Primary:            "primary",
	PrimaryPreferred:   "primaryPreferred",
	Secondary:          "secondary",
	SecondaryPreferred: "secondaryPreferred",
	Nearest:            "nearest",
}

// Modes returns every known mode in declaration order.
func Modes() []Mode {
	return []Mode{Primary, PrimaryPreferred, Secondary, SecondaryPreferred, Nearest}
}

// ParseMode returns the Mode for its wire name. Names are case-sensitive.
func ParseMode(name string) (Mode, error) {
	for m, n := range modeNames {
		if n == name {
			return Mode(m), nil
		}
	}
	return Primary, fmt.Errorf("unknown read preference mode %q", name)
}

// String returns the wire name of the mode.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return int(m) < len(modeNames)
}

// MultiTarget reports whether more than one member can ever serve a read in
// this mode. Only such modes can be hedged.
func (m Mode) MultiTarget() bool {
	return m.Valid() && m != Primary
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid read preference mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
