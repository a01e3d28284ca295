package crud

import (
	"errors"
	"sort"
	"strings"
)

// CRUD errors.
var (
	// ErrTableNotFound indicates the table is not registered.
	ErrTableNotFound = errors.New("crud: table not found")

	// ErrNotFound indicates no row matches the primary key.
	ErrNotFound = errors.New("crud: row not found")

	// ErrUnknownColumn indicates a column that does not exist or is not accessible.
	ErrUnknownColumn = errors.New("crud: unknown column")

	// ErrInvalidQuery indicates malformed list parameters.
	ErrInvalidQuery = errors.New("crud: invalid query")

	// ErrValidation indicates values that cannot be stored.
	ErrValidation = errors.New("crud: validation failed")
)

// ValidationError lists per-column problems with submitted values.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func fieldError(column, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{column: msg}}
}
