package tableadmin

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidConfig is returned when the admin or a table configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTableNotFound is returned when a table is not registered with the admin
	ErrTableNotFound = errors.New("table not found")

	// ErrTableExists is returned when registering a table name twice
	ErrTableExists = errors.New("table already registered")

	// ErrUnknownColumn is returned when a configuration names a missing column
	ErrUnknownColumn = errors.New("unknown column")

	// ErrReadOnly is returned for write operations on a read-only admin or table
	ErrReadOnly = errors.New("read only")

	// ErrActionNotFound is returned when a table has no action with the requested name
	ErrActionNotFound = errors.New("action not found")

	// ErrRejected is returned when a table validator refuses an operation
	ErrRejected = errors.New("operation rejected")

	// ErrMediaNotConfigured is returned when a column has no media storage
	ErrMediaNotConfigured = errors.New("media storage not configured")
)

// AdminError represents an error with additional context
type AdminError struct {
	Op      string         // Operation that failed
	Table   string         // Table if applicable
	Err     error          // Underlying error
	Context map[string]any // Additional context
}

// Error implements the error interface
func (e *AdminError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s (table=%s): %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *AdminError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *AdminError) WithContext(key string, value any) *AdminError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewAdminError creates a new AdminError
func NewAdminError(op string, err error) *AdminError {
	return &AdminError{
		Op:  op,
		Err: err,
	}
}

// NewTableError creates a new AdminError for a table operation
func NewTableError(op, table string, err error) *AdminError {
	return &AdminError{
		Op:    op,
		Table: table,
		Err:   err,
	}
}
