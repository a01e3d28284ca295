package driver

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// IsConstraintError reports whether err is an integrity constraint violation
// such as a duplicate unique value or a restricted foreign key.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	// modernc sqlite reports e.g. "constraint failed: UNIQUE constraint failed: studio.name (2067)".
	return strings.Contains(err.Error(), "constraint failed")
}
