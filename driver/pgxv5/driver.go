// Package pgxv5 backs the admin with a pgx/v5 connection pool.
//
// This is the recommended driver for PostgreSQL. Nested transactions use
// savepoints, which pgx opens for Begin calls on a pgx.Tx.
//
// Usage:
//
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	drv := pgxv5.New(pool)
//	admin, _ := tableadmin.New(ctx, drv, cfg, tables...)
package pgxv5

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/tableadmin/driver"
)

// querier is the part of the API shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Driver implements driver.Driver for pgx/v5.
type Driver struct {
	pool *pgxpool.Pool
}

var _ driver.Driver[pgx.Tx] = (*Driver)(nil)

// New creates a driver over pool.
func New(pool *pgxpool.Pool) *Driver {
	return &Driver{pool: pool}
}

func (d *Driver) GetExecutor() driver.Executor { return executor{d.pool} }

func (d *Driver) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	return executor{d.pool}.Begin(ctx)
}

// UnwrapExecutor lets the admin join a transaction the caller started.
func (d *Driver) UnwrapExecutor(tx pgx.Tx) driver.ExecutorTx { return &executorTx{tx: tx} }

// UnwrapTx returns the pgx.Tx behind an executor created by this driver.
func (d *Driver) UnwrapTx(exec driver.ExecutorTx) pgx.Tx { return exec.(*executorTx).tx }

func (d *Driver) PoolIsSet() bool { return d.pool != nil }

func (d *Driver) Dialect() driver.Dialect { return driver.Postgres }

// Pool returns the underlying pool.
func (d *Driver) Pool() *pgxpool.Pool { return d.pool }

type executor struct {
	q querier
}

func (e executor) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	tx, err := e.q.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &executorTx{tx: tx}, nil
}

func (e executor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := e.q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (e executor) Query(ctx context.Context, sql string, args ...any) (driver.Rows, error) {
	rows, err := e.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &rowsWrapper{rows}, nil
}

func (e executor) QueryRow(ctx context.Context, sql string, args ...any) driver.Row {
	return e.q.QueryRow(ctx, sql, args...)
}

type executorTx struct {
	tx pgx.Tx
}

func (e *executorTx) Begin(ctx context.Context) (driver.ExecutorTx, error) {
	return executor{e.tx}.Begin(ctx)
}

func (e *executorTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return executor{e.tx}.Exec(ctx, sql, args...)
}

func (e *executorTx) Query(ctx context.Context, sql string, args ...any) (driver.Rows, error) {
	return executor{e.tx}.Query(ctx, sql, args...)
}

func (e *executorTx) QueryRow(ctx context.Context, sql string, args ...any) driver.Row {
	return e.tx.QueryRow(ctx, sql, args...)
}

func (e *executorTx) Commit(ctx context.Context) error   { return e.tx.Commit(ctx) }
func (e *executorTx) Rollback(ctx context.Context) error { return e.tx.Rollback(ctx) }
