package leadership

import (
	"context"
	"fmt"
	"time"

	"github.com/youssefsiam38/tableadmin/driver"
)

// LeasesTable holds one row per lease.
const LeasesTable = "tableadmin_leases"

// SQLStore keeps leases in the admin database. Times are stored as Unix
// milliseconds so that PostgreSQL and SQLite compare them the same way.
type SQLStore struct {
	conn driver.Conn
	now  func() time.Time
}

// NewSQLStore returns a store using conn.
func NewSQLStore(conn driver.Conn) *SQLStore {
	return &SQLStore{conn: conn, now: time.Now}
}

// Migrate creates the leases table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.conn.GetExecutor().Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name VARCHAR(100) PRIMARY KEY,
		leader_id VARCHAR(255) NOT NULL,
		elected_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`, LeasesTable))
	if err != nil {
		return fmt.Errorf("migrate leases table: %w", err)
	}
	return nil
}

func (s *SQLStore) q(query string) string {
	return driver.Rebind(s.conn.Dialect(), fmt.Sprintf(query, LeasesTable))
}

// AttemptElect implements Store.
func (s *SQLStore) AttemptElect(ctx context.Context, p *ElectParams) (bool, error) {
	now := s.now()
	n, err := s.conn.GetExecutor().Exec(ctx, s.q(`
		INSERT INTO %[1]s (name, leader_id, elected_at, expires_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET leader_id = excluded.leader_id, elected_at = excluded.elected_at, expires_at = excluded.expires_at
		WHERE %[1]s.expires_at < $3 OR %[1]s.leader_id = $2`),
		p.Name, p.LeaderID, now.UnixMilli(), now.Add(p.TTL).UnixMilli())
	if err != nil {
		return false, fmt.Errorf("elect %s: %w", p.Name, err)
	}
	return n == 1, nil
}

// AttemptReelect implements Store.
func (s *SQLStore) AttemptReelect(ctx context.Context, p *ElectParams) (bool, error) {
	now := s.now()
	n, err := s.conn.GetExecutor().Exec(ctx, s.q(`
		UPDATE %[1]s SET expires_at = $1
		WHERE name = $2 AND leader_id = $3 AND expires_at >= $4`),
		now.Add(p.TTL).UnixMilli(), p.Name, p.LeaderID, now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("reelect %s: %w", p.Name, err)
	}
	return n == 1, nil
}

// Resign implements Store.
func (s *SQLStore) Resign(ctx context.Context, name, leaderID string) error {
	_, err := s.conn.GetExecutor().Exec(ctx, s.q(`DELETE FROM %[1]s WHERE name = $1 AND leader_id = $2`), name, leaderID)
	if err != nil {
		return fmt.Errorf("resign %s: %w", name, err)
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
