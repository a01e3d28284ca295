// Package testutil provides test utilities for tableadmin
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/youssefsiam38/tableadmin/driver"
	"github.com/youssefsiam38/tableadmin/driver/databasesql"
	_ "modernc.org/sqlite"
)

// FixtureSchema creates a small movie database used across package tests.
// director <- movie (cascade) <- ticket (cascade), studio <- movie (set null).
var FixtureSchema = []string{
	`CREATE TABLE director (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(100) NOT NULL,
		gender VARCHAR(1),
		photo VARCHAR(255)
	)`,
	`CREATE TABLE studio (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(100) NOT NULL UNIQUE,
		facilities TEXT
	)`,
	`CREATE TABLE movie (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name VARCHAR(300) NOT NULL,
		rating REAL NOT NULL DEFAULT 0,
		duration INTEGER,
		director_id INTEGER REFERENCES director(id) ON DELETE CASCADE,
		studio_id INTEGER REFERENCES studio(id) ON DELETE SET NULL,
		oscar_nominations INTEGER NOT NULL DEFAULT 0,
		won_oscar BOOLEAN NOT NULL DEFAULT 0,
		description TEXT,
		release_date TIMESTAMP,
		poster VARCHAR(255)
	)`,
	`CREATE TABLE ticket (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		movie_id INTEGER NOT NULL REFERENCES movie(id) ON DELETE CASCADE,
		price NUMERIC NOT NULL,
		booked_on DATE
	)`,
}

// FixtureRows seeds the fixture schema.
var FixtureRows = []string{
	`INSERT INTO director (name, gender) VALUES ('George Lucas', 'm'), ('Ridley Scott', 'm'), ('Kathryn Bigelow', 'f')`,
	`INSERT INTO studio (name, facilities) VALUES ('Lucasfilm', 'sound stage'), ('20th Century', NULL)`,
	`INSERT INTO movie (name, rating, duration, director_id, studio_id, oscar_nominations, won_oscar, description)
	 VALUES
	 ('Star Wars', 93.3, 121, 1, 1, 10, 1, 'A *space* opera.'),
	 ('The Empire Strikes Back', 94.5, 124, 1, 1, 4, 1, NULL),
	 ('Alien', 97.0, 117, 2, 2, 2, 1, 'In space no one can hear you scream.'),
	 ('Blade Runner', 89.4, 117, 2, NULL, 2, 0, NULL),
	 ('The Hurt Locker', 97.2, 131, 3, NULL, 9, 1, NULL)`,
	`INSERT INTO ticket (movie_id, price, booked_on) VALUES (1, 12.5, '2024-01-02'), (1, 15, '2024-01-03'), (3, 10, NULL)`,
}

// SQLiteDB wraps an in-memory SQLite database for testing.
type SQLiteDB struct {
	DB     *sql.DB
	Driver *databasesql.Driver
}

// NewSQLiteDB opens a private in-memory SQLite database with foreign keys
// enforced. The database is closed when the test finishes.
func NewSQLiteDB(t *testing.T) *SQLiteDB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	// A single connection keeps the in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return &SQLiteDB{DB: db, Driver: databasesql.New(db, driver.SQLite)}
}

// NewFixtureDB returns an in-memory SQLite database with the fixture schema
// and rows loaded.
func NewFixtureDB(t *testing.T) *SQLiteDB {
	t.Helper()

	db := NewSQLiteDB(t)
	ctx := context.Background()
	for _, stmt := range append(append([]string{}, FixtureSchema...), FixtureRows...) {
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("Failed to load fixture: %v\n%s", err, stmt)
		}
	}
	return db
}

// TestDB wraps a PostgreSQL connection pool for testing
type TestDB struct {
	Pool *pgxpool.Pool
}

// NewTestDB creates a test database connection from DATABASE_URL env var
// Returns nil if DATABASE_URL is not set (for unit tests)
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("Failed to ping database: %v", err)
	}

	return &TestDB{Pool: pool}
}

// Close closes the database connection
func (db *TestDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// LoadFixture recreates the fixture tables in PostgreSQL.
func (db *TestDB) LoadFixture(ctx context.Context) error {
	for _, table := range []string{"ticket", "movie", "studio", "director"} {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	for _, stmt := range append(append([]string{}, FixtureSchema...), FixtureRows...) {
		stmt = strings.ReplaceAll(stmt, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY")
		stmt = strings.ReplaceAll(stmt, "won_oscar BOOLEAN NOT NULL DEFAULT 0", "won_oscar BOOLEAN NOT NULL DEFAULT false")
		stmt = strings.ReplaceAll(stmt, "REAL", "DOUBLE PRECISION")
		if strings.HasPrefix(strings.TrimSpace(stmt), "INSERT INTO movie") {
			stmt = strings.NewReplacer(", 1, '", ", true, '", ", 0, NULL)", ", false, NULL)", ", 1, NULL)", ", true, NULL)").Replace(stmt)
		}
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to load fixture: %w", err)
		}
	}
	return nil
}

// RequireIntegration skips the test if not running integration tests
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
}
