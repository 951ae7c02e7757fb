package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned for unknown monitor, validator or incident ids
	ErrNotFound = errors.New("not found")
	// ErrIncidentClosed is returned when mutating a resolved incident
	ErrIncidentClosed = errors.New("incident is closed")
	// ErrDuplicateTick is returned when a tick id has already been stored
	ErrDuplicateTick = errors.New("duplicate tick")
	// ErrOverloaded is returned when a registration is shed to protect ingestion
	ErrOverloaded = errors.New("overloaded, try again later")
)

// ValidationError describes why an input was rejected
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid is shorthand for building a ValidationError
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
