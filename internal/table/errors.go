package table

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three failure kinds a pipeline run can produce.
var (
	// ErrValidation indicates a malformed table shape, duplicate identifiers
	// or columns, or a reserved column name collision.
	ErrValidation = errors.New("validation failed")

	// ErrMatch indicates that two tables share no identifiers on an axis, or
	// that filtering left no samples.
	ErrMatch = errors.New("match failed")

	// ErrParameter indicates an invalid user-supplied parameter.
	ErrParameter = errors.New("invalid parameter")
)

// ValidationError describes a problem with a single table.
type ValidationError struct {
	Table   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: %s", e.Table, e.Message)
	}
	return e.Message
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError with a formatted message.
func NewValidationError(table, format string, args ...any) *ValidationError {
	return &ValidationError{Table: table, Message: fmt.Sprintf(format, args...)}
}

// MatchError describes an identifier overlap problem between tables.
type MatchError struct {
	Axis    string // "feature" or "sample"
	Message string
}

// Error implements the error interface
func (e *MatchError) Error() string {
	return e.Message
}

// Is implements errors.Is support
func (e *MatchError) Is(target error) bool {
	return target == ErrMatch
}

// NewMatchError creates a new MatchError with a formatted message.
func NewMatchError(axis, format string, args ...any) *MatchError {
	return &MatchError{Axis: axis, Message: fmt.Sprintf(format, args...)}
}

// ParameterError describes an invalid parameter value.
type ParameterError struct {
	Name    string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s %v: %s", e.Name, e.Value, e.Message)
}

// Is implements errors.Is support
func (e *ParameterError) Is(target error) bool {
	return target == ErrParameter
}

// NewParameterError creates a new ParameterError.
func NewParameterError(name string, value any, message string) *ParameterError {
	return &ParameterError{Name: name, Value: value, Message: message}
}
