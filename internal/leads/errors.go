package leads

import (
	"errors"
	"fmt"
)

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrUnknownField is returned when the completion field set names a field we do not collect
	ErrUnknownField = errors.New("unknown lead field")
)

// ValidationError names the first field that failed validation.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func required(f Field) *ValidationError {
	return &ValidationError{Field: f, Reason: "is required"}
}
