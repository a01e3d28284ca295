// Package databasesql provides a database/sql driver implementation for tableadmin.
//
// It works with any database/sql driver whose SQL matches one of the
// supported dialects, typically github.com/lib/pq for PostgreSQL and
// modernc.org/sqlite for SQLite:
//
//	db, _ := sql.Open("sqlite", "file:admin.db")
//	drv := databasesql.New(db, driver.SQLite)
package databasesql

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/youssefsiam38/tableadmin/driver"
)

// Driver implements driver.Driver using database/sql.
type Driver struct {
	db      *sql.DB
	dialect driver.Dialect
}

// New creates a new database/sql driver using the provided connection.
// A nil dialect defaults to PostgreSQL.
func New(db *sql.DB, dialect driver.Dialect) *Driver {
	if dialect == nil {
		dialect = driver.Postgres
	}
	return &Driver{db: db, dialect: dialect}
}

// GetExecutor returns an executor for non-transactional operations.
func (d *Driver) GetExecutor() driver.Executor {
	return &Executor{db: d.db}
}

// UnwrapExecutor converts a *sql.Tx to an ExecutorTx.
func (d *Driver) UnwrapExecutor(tx *sql.Tx) driver.ExecutorTx {
	return &ExecutorTx{tx: tx}
}

// UnwrapTx extracts the *sql.Tx from an ExecutorTx.
func (d *Driver) UnwrapTx(execTx driver.ExecutorTx) *sql.Tx {
	switch tx := execTx.(type) {
	case *ExecutorTx:
		return tx.tx
	case *savepointTx:
		return tx.parent.tx
	}
	return nil
}

// Begin starts a new transaction.
func (d *Driver) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &ExecutorTx{tx: tx}, nil
}

// PoolIsSet returns true if the driver has a database configured.
func (d *Driver) PoolIsSet() bool {
	return d.db != nil
}

// Dialect returns the configured SQL dialect.
func (d *Driver) Dialect() driver.Dialect {
	return d.dialect
}

// DB returns the underlying database connection.
func (d *Driver) DB() *sql.DB {
	return d.db
}

// Executor wraps *sql.DB for non-transactional operations.
type Executor struct {
	db *sql.DB
}

// Begin starts a new transaction.
func (e *Executor) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &ExecutorTx{tx: tx}, nil
}

// Exec executes a query that doesn't return rows.
func (e *Executor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Query executes a query that returns rows.
func (e *Executor) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return newRows(rows)
}

// QueryRow executes a query that returns at most one row.
func (e *Executor) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return e.db.QueryRowContext(ctx, query, args...)
}

// ExecutorTx wraps *sql.Tx for transactional operations.
type ExecutorTx struct {
	tx        *sql.Tx
	savepoint atomic.Int64
}

// Begin creates a savepoint inside the transaction.
func (e *ExecutorTx) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	name := fmt.Sprintf("tableadmin_sp_%d", e.savepoint.Add(1))
	if _, err := e.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, err
	}
	return &savepointTx{parent: e, name: name}, nil
}

// Exec executes a query that doesn't return rows within the transaction.
func (e *ExecutorTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := e.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Query executes a query that returns rows within the transaction.
func (e *ExecutorTx) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	rows, err := e.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return newRows(rows)
}

// QueryRow executes a query that returns at most one row within the transaction.
func (e *ExecutorTx) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return e.tx.QueryRowContext(ctx, query, args...)
}

// Commit commits the transaction.
func (e *ExecutorTx) Commit(ctx context.Context) error {
	return e.tx.Commit()
}

// Rollback rolls back the transaction.
func (e *ExecutorTx) Rollback(ctx context.Context) error {
	return e.tx.Rollback()
}

// savepointTx is a nested transaction implemented with SAVEPOINT.
type savepointTx struct {
	parent *ExecutorTx
	name   string
}

func (s *savepointTx) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	return s.parent.Begin(ctx)
}

func (s *savepointTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return s.parent.Exec(ctx, query, args...)
}

func (s *savepointTx) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return s.parent.Query(ctx, query, args...)
}

func (s *savepointTx) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return s.parent.QueryRow(ctx, query, args...)
}

func (s *savepointTx) Commit(ctx context.Context) error {
	_, err := s.parent.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+s.name)
	return err
}

func (s *savepointTx) Rollback(ctx context.Context) error {
	_, err := s.parent.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+s.name)
	return err
}

// Compile-time check
var _ driver.Driver[*sql.Tx] = (*Driver)(nil)
