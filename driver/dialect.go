package driver

import (
	"strconv"

	"github.com/lib/pq"
)

// Dialect describes the SQL differences between supported databases.
type Dialect interface {
	// Name returns the dialect name ("postgres" or "sqlite").
	Name() string

	// Placeholder returns the bind parameter marker for the n-th (1-based) argument.
	Placeholder(n int) string

	// QuoteIdent quotes a table or column identifier.
	QuoteIdent(name string) string

	// ILike returns the case-insensitive LIKE operator.
	ILike() string

	// AutoIncrementPrimaryKey returns the column definition of an integer
	// primary key assigned by the database.
	AutoIncrementPrimaryKey() string

	// TimestampType returns the column type used for timestamps with time zone.
	TimestampType() string
}

// Postgres is the PostgreSQL dialect.
var Postgres Dialect = postgresDialect{}

// SQLite is the SQLite dialect.
var SQLite Dialect = sqliteDialect{}

type postgresDialect struct{}

func (postgresDialect) Name() string                    { return "postgres" }
func (postgresDialect) Placeholder(n int) string        { return "$" + strconv.Itoa(n) }
func (postgresDialect) QuoteIdent(name string) string   { return pq.QuoteIdentifier(name) }
func (postgresDialect) ILike() string                   { return "ILIKE" }
func (postgresDialect) AutoIncrementPrimaryKey() string { return "BIGSERIAL PRIMARY KEY" }
func (postgresDialect) TimestampType() string           { return "TIMESTAMPTZ" }

type sqliteDialect struct{}

func (sqliteDialect) Name() string             { return "sqlite" }
func (sqliteDialect) Placeholder(n int) string { return "?" + strconv.Itoa(n) }

// QuoteIdent uses standard double quoting, which SQLite accepts.
func (sqliteDialect) QuoteIdent(name string) string { return pq.QuoteIdentifier(name) }

// ILike returns LIKE; SQLite's LIKE is case-insensitive for ASCII.
func (sqliteDialect) ILike() string { return "LIKE" }

func (sqliteDialect) AutoIncrementPrimaryKey() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}
func (sqliteDialect) TimestampType() string { return "TIMESTAMP" }

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, bool) {
	switch name {
	case "postgres", "postgresql", "pgx":
		return Postgres, true
	case "sqlite", "sqlite3":
		return SQLite, true
	}
	return nil, false
}

// Rebind rewrites $N placeholders of a PostgreSQL style query for d.
// Placeholders inside string literals are not supported.
func Rebind(d Dialect, query string) string {
	if d.Name() == "postgres" {
		return query
	}
	out := make([]byte, 0, len(query))
	for i := 0; i < len(query); i++ {
		if query[i] != '$' {
			out = append(out, query[i])
			continue
		}
		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}
		if j == i+1 {
			out = append(out, '$')
			continue
		}
		n, _ := strconv.Atoi(query[i+1 : j])
		out = append(out, d.Placeholder(n)...)
		i = j - 1
	}
	return string(out)
}
