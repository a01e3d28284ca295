package tableadmin

import (
	"context"
	"errors"
	"testing"

	"github.com/youssefsiam38/tableadmin/driver"
	"github.com/youssefsiam38/tableadmin/internal/testutil"
)

func TestTxFromContext(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	t.Run("returns transaction when present", func(t *testing.T) {
		err := driver.InTx(context.Background(), db.Driver, func(ctx context.Context) error {
			tx := TxFromContext(ctx, db.Driver)
			if tx == nil {
				t.Error("TxFromContext() = nil")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InTx() error = %v", err)
		}
	})

	t.Run("panics when no transaction in context", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic, got none")
			}
		}()

		TxFromContext(context.Background(), db.Driver)
	})
}

func TestTxFromContextSafely(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	t.Run("returns error when not present", func(t *testing.T) {
		tx, err := TxFromContextSafely(context.Background(), db.Driver)
		if !errors.Is(err, ErrNoTransaction) {
			t.Errorf("got error %v, want %v", err, ErrNoTransaction)
		}
		if tx != nil {
			t.Errorf("expected nil transaction, got %v", tx)
		}
	})

	t.Run("writes through the native transaction roll back", func(t *testing.T) {
		ctx := context.Background()
		if _, err := db.DB.ExecContext(ctx, `CREATE TABLE note (id INTEGER PRIMARY KEY, body TEXT)`); err != nil {
			t.Fatalf("create table: %v", err)
		}

		errRollback := errors.New("rollback")
		err := driver.InTx(ctx, db.Driver, func(ctx context.Context) error {
			tx, err := TxFromContextSafely(ctx, db.Driver)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO note (body) VALUES ('draft')`); err != nil {
				return err
			}
			return errRollback
		})
		if !errors.Is(err, errRollback) {
			t.Fatalf("InTx() error = %v, want %v", err, errRollback)
		}

		var n int
		if err := db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM note`).Scan(&n); err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 0 {
			t.Errorf("rows after rollback = %d, want 0", n)
		}
	})
}

func TestWithoutTx(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	t.Run("removes transaction from context", func(t *testing.T) {
		err := driver.InTx(context.Background(), db.Driver, func(ctx context.Context) error {
			if _, err := TxFromContextSafely(WithoutTx(ctx), db.Driver); !errors.Is(err, ErrNoTransaction) {
				t.Errorf("expected ErrNoTransaction after stripping, got %v", err)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("InTx() error = %v", err)
		}
	})

	t.Run("preserves other context values", func(t *testing.T) {
		type customKey struct{}
		ctx := context.WithValue(context.Background(), customKey{}, "custom-value")

		ctx = WithoutTx(ctx)

		if val := ctx.Value(customKey{}); val != "custom-value" {
			t.Errorf("custom value was lost, got %v", val)
		}
	})

	t.Run("preserves context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		ctx = WithoutTx(ctx)

		cancel()

		select {
		case <-ctx.Done():
			// Expected
		default:
			t.Error("context should be cancelled")
		}
	})
}

func TestWithTx(t *testing.T) {
	a, db := newFixtureAdmin(t, Config{}, &TableConfig{Name: "director"})
	ctx := context.Background()

	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	txCtx := WithTx(ctx, db.Driver, tx)

	if got, err := TxFromContextSafely(txCtx, db.Driver); err != nil || got != tx {
		t.Fatalf("TxFromContextSafely() = %v, %v; want the caller's transaction", got, err)
	}
	if _, err := a.CRUD().Create(txCtx, "director", map[string]any{"name": "Greta Gerwig"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	n, err := a.CRUD().Count(ctx, "director", nil)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() after rollback = %d, want 3", n)
	}
}
