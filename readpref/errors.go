package readpref

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument is matched by every error Parse and Validate return.
var ErrInvalidDocument = errors.New("readpref: invalid read preference document")

// ParseError describes why a read preference document was rejected.
type ParseError struct {
	// Field is the offending document field, empty for whole-document errors.
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("readpref: invalid read preference: %s", e.Reason)
	}
	return fmt.Sprintf("readpref: invalid field %q: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidDocument.
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidDocument
}
