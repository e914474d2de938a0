package acr

import (
	"errors"
	"fmt"
)

// ErrACRNotFound is returned when an ACR id does not resolve.
var ErrACRNotFound = errors.New("acr not found")

// ValidationError reports malformed caller input. Field names the offending
// request field using its JSON name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func required(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "is required"}
}
