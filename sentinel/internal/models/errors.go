package models

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineStopped is returned for events submitted after shutdown began.
	ErrEngineStopped = errors.New("engine stopped")

	// ErrInvalidTransition is returned when an incident status change is not
	// allowed from its current status.
	ErrInvalidTransition = errors.New("invalid incident status transition")
)

// ValidationError reports a malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a lookup miss, e.g. an unknown incident id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// IsNotFound reports whether err wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
