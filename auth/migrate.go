package auth

import (
	"context"
	"fmt"

	"github.com/youssefsiam38/tableadmin/driver"
)

// Table names used by the auth package.
const (
	UsersTable    = "tableadmin_users"
	SessionsTable = "tableadmin_sessions"
)

// Migrate creates the users and sessions tables if they do not exist.
func Migrate(ctx context.Context, conn driver.Conn) error {
	d := conn.Dialect()
	ts := d.TimestampType()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			username VARCHAR(100) NOT NULL UNIQUE,
			password VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL DEFAULT '',
			first_name VARCHAR(100) NOT NULL DEFAULT '',
			last_name VARCHAR(100) NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			admin BOOLEAN NOT NULL DEFAULT FALSE,
			superuser BOOLEAN NOT NULL DEFAULT FALSE,
			last_login %s
		)`, UsersTable, d.AutoIncrementPrimaryKey(), ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			token VARCHAR(100) NOT NULL UNIQUE,
			user_id BIGINT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
			expiry_date %s NOT NULL,
			max_expiry_date %s NOT NULL
		)`, SessionsTable, d.AutoIncrementPrimaryKey(), UsersTable, ts, ts),
	}

	return driver.InTx(ctx, conn, func(ctx context.Context) error {
		exec := driver.ExecutorFor(ctx, conn)
		for _, stmt := range stmts {
			if _, err := exec.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migrate auth tables: %w", err)
			}
		}
		return nil
	})
}
