package main

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/driver"
	"github.com/youssefsiam38/tableadmin/driver/databasesql"
	"github.com/youssefsiam38/tableadmin/driver/pgxv5"
	"github.com/youssefsiam38/tableadmin/schema"
)

// internalTablePrefix names the tables created by tableadmin itself: users,
// sessions and leadership leases.
const internalTablePrefix = "tableadmin_"

// database is an open connection able to build admins on top of it.
type database struct {
	conn     driver.Conn
	newAdmin func(ctx context.Context, cfg tableadmin.Config, tables ...*tableadmin.TableConfig) (*tableadmin.Admin, error)
	close    func()
}

// openDatabase connects to url. sqlite:// and file: URLs use SQLite, the
// others PostgreSQL through pgx or lib/pq.
func openDatabase(ctx context.Context, url, pgDriver string) (*database, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		db, err := sql.Open("sqlite", strings.TrimPrefix(url, "sqlite://"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return sqlDatabase(db, driver.SQLite), nil

	case pgDriver == "pq":
		db, err := sql.Open("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return sqlDatabase(db, driver.Postgres), nil

	default:
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		drv := pgxv5.New(pool)
		return &database{
			conn: drv,
			newAdmin: func(ctx context.Context, cfg tableadmin.Config, tables ...*tableadmin.TableConfig) (*tableadmin.Admin, error) {
				return tableadmin.New(ctx, drv, cfg, tables...)
			},
			close: pool.Close,
		}, nil
	}
}

func sqlDatabase(db *sql.DB, dialect driver.Dialect) *database {
	drv := databasesql.New(db, dialect)
	return &database{
		conn: drv,
		newAdmin: func(ctx context.Context, cfg tableadmin.Config, tables ...*tableadmin.TableConfig) (*tableadmin.Admin, error) {
			return tableadmin.New(ctx, drv, cfg, tables...)
		},
		close: func() { _ = db.Close() },
	}
}

// Close releases the connection.
func (d *database) Close() { d.close() }

// buildAdmin creates an admin from the configuration file at path. Without
// configured tables every table of the database is listed.
func (d *database) buildAdmin(ctx context.Context, e envConfig, path string, log tableadmin.Logger) (*tableadmin.Admin, error) {
	fc, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	tables, err := e.tableConfigs(ctx, fc)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		if tables, err = d.allTables(ctx, log); err != nil {
			return nil, err
		}
	}
	return d.newAdmin(ctx, e.adminConfig(fc, log), tables...)
}

// allTables returns a configuration for every user table of the database.
// The admin's own tables and tables without a single-column primary key
// are skipped.
func (d *database) allTables(ctx context.Context, log tableadmin.Logger) ([]*tableadmin.TableConfig, error) {
	names, err := schema.ListTables(ctx, d.conn.GetExecutor(), d.conn.Dialect())
	if err != nil {
		return nil, err
	}
	names = slices.DeleteFunc(names, func(name string) bool {
		return strings.HasPrefix(name, internalTablePrefix)
	})
	if len(names) == 0 {
		return nil, nil
	}
	tables, err := schema.Inspect(ctx, d.conn.GetExecutor(), d.conn.Dialect(), names...)
	if err != nil {
		return nil, err
	}
	var out []*tableadmin.TableConfig
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			log.Warn("skipping table", "table", t.Name, "error", err)
			continue
		}
		out = append(out, &tableadmin.TableConfig{Name: t.Name})
	}
	return out, nil
}
