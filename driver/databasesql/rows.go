package databasesql

import (
	"database/sql"
)

// rowsWrapper adapts *sql.Rows to driver.Rows.
type rowsWrapper struct {
	rows *sql.Rows
	cols []string
}

func newRows(rows *sql.Rows) (*rowsWrapper, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &rowsWrapper{rows: rows, cols: cols}, nil
}

// Close closes the Rows. The error is surfaced through Err.
func (r *rowsWrapper) Close() {
	_ = r.rows.Close()
}

func (r *rowsWrapper) Err() error             { return r.rows.Err() }
func (r *rowsWrapper) Next() bool             { return r.rows.Next() }
func (r *rowsWrapper) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *rowsWrapper) Columns() []string      { return r.cols }

// Values scans the current row into generic values. Textual []byte values
// returned by drivers such as lib/pq are converted to strings.
func (r *rowsWrapper) Values() ([]any, error) {
	vals := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok {
			vals[i] = string(b)
		}
	}
	return vals, nil
}
