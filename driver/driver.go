// Package driver provides database driver abstractions for tableadmin.
//
// This package defines the interfaces that database drivers must implement
// to back the admin. It supports multiple database backends (pgx/v5,
// database/sql with lib/pq or modernc sqlite) through a generic driver
// pattern, and a Dialect describing the SQL differences between them.
package driver

import (
	"context"
)

// Driver provides database operations for the admin.
// TTx is the native transaction type (e.g., pgx.Tx for pgx/v5, *sql.Tx for database/sql).
//
// Implementations should be created using the driver-specific New() functions:
//   - github.com/youssefsiam38/tableadmin/driver/pgxv5.New(pool)
//   - github.com/youssefsiam38/tableadmin/driver/databasesql.New(db, dialect)
type Driver[TTx any] interface {
	// GetExecutor returns an executor for non-transactional operations.
	// The returned Executor uses the underlying connection pool.
	GetExecutor() Executor

	// UnwrapExecutor converts a native transaction to an ExecutorTx.
	// This allows admin operations to join user-provided transactions.
	UnwrapExecutor(tx TTx) ExecutorTx

	// UnwrapTx extracts the native transaction from an ExecutorTx.
	UnwrapTx(execTx ExecutorTx) TTx

	// Begin starts a new transaction and returns an ExecutorTx.
	Begin(ctx context.Context) (ExecutorTx, error)

	// PoolIsSet returns true if the driver has a database pool configured.
	PoolIsSet() bool

	// Dialect describes the SQL flavour spoken by the underlying database.
	Dialect() Dialect
}

// Beginner is an interface for types that can begin transactions.
// This is used internally to handle driver abstraction in non-generic contexts.
type Beginner interface {
	Begin(ctx context.Context) (ExecutorTx, error)
}

// Conn is the non-generic view of a Driver used by packages that do not
// care about the native transaction type.
type Conn interface {
	Beginner
	GetExecutor() Executor
	Dialect() Dialect
}

// ExecutorFor returns the executor stored in ctx, or the pool executor of c.
func ExecutorFor(ctx context.Context, c Conn) Executor {
	if exec := ExecutorFromContext(ctx); exec != nil {
		return exec
	}
	return c.GetExecutor()
}

// InTx runs fn inside a transaction. If ctx already carries a transaction a
// savepoint is used instead, so nested calls compose.
func InTx(ctx context.Context, c Conn, fn func(ctx context.Context) error) (err error) {
	var tx ExecutorTx
	if outer := ExecutorFromContext(ctx); outer != nil {
		tx, err = outer.Begin(ctx)
	} else {
		tx, err = c.Begin(ctx)
	}
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(WithExecutor(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
