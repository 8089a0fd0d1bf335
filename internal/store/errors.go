package store

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors returned by store operations. Callers match them with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("already processed")
	ErrInUse                = errors.New("still in use")
	ErrDuplicate            = errors.New("already exists")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrForbidden            = errors.New("forbidden")
)

// ValidationError carries field-level messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
