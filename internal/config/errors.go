package config

import (
	"errors"
	"fmt"
)

// ErrConfigInvalid is returned when the configuration is invalid.
var ErrConfigInvalid = errors.New("invalid configuration")

// ValidationError represents an error in configuration validation.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: field %q with value %v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap lets errors.Is match ErrConfigInvalid.
func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}
