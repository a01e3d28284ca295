package pgxv5

import (
	"net/netip"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// rowsWrapper adapts pgx.Rows to driver.Rows.
type rowsWrapper struct {
	pgx.Rows
}

// Columns returns the names of the result fields.
func (r *rowsWrapper) Columns() []string {
	fields := r.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols
}

// Values returns the decoded row with pgx-specific types normalized.
func (r *rowsWrapper) Values() ([]any, error) {
	vals, err := r.Rows.Values()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		vals[i] = normalize(v)
	}
	return vals, nil
}

// normalize converts pgx native values into types that encode cleanly as JSON.
func normalize(v any) any {
	switch v := v.(type) {
	case [16]byte:
		return uuid.UUID(v).String()
	case pgtype.Numeric:
		if !v.Valid {
			return nil
		}
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case pgtype.Interval:
		if !v.Valid {
			return nil
		}
		iv, err := v.Value()
		if err != nil {
			return nil
		}
		return iv
	case pgtype.Time:
		if !v.Valid {
			return nil
		}
		tv, err := v.Value()
		if err != nil {
			return nil
		}
		return tv
	case netip.Prefix:
		return v.String()
	case []any:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	default:
		return v
	}
}
