package params

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownParameter is matched by errors for unregistered parameter names.
	ErrUnknownParameter = errors.New("params: unknown parameter")

	// ErrValidation is matched by errors for rejected parameter values.
	ErrValidation = errors.New("params: invalid parameter value")
)

// UnknownParameterError reports an operation on an unregistered name.
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("params: unknown parameter %q", e.Name)
}

// Is reports whether target is ErrUnknownParameter.
func (e *UnknownParameterError) Is(target error) bool {
	return target == ErrUnknownParameter
}

// ValidationError reports a value that violates a parameter's type or range.
// The store is left unchanged when one is returned.
type ValidationError struct {
	Parameter string
	Value     any
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("params: invalid value %v for %q: %s", e.Value, e.Parameter, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
