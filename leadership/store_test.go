package leadership

import (
	"context"
	"testing"
	"time"

	"github.com/youssefsiam38/tableadmin/internal/testutil"
)

func TestSQLStore(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	store := NewSQLStore(db.Driver)
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Migrate is idempotent.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	a := &ElectParams{Name: "maintenance", LeaderID: "a", TTL: 30 * time.Second}
	b := &ElectParams{Name: "maintenance", LeaderID: "b", TTL: 30 * time.Second}

	steps := []struct {
		name    string
		advance time.Duration
		run     func() (bool, error)
		want    bool
	}{
		{"a takes the free lease", 0, func() (bool, error) { return store.AttemptElect(ctx, a) }, true},
		{"b cannot take a held lease", time.Second, func() (bool, error) { return store.AttemptElect(ctx, b) }, false},
		{"b cannot renew a lease it does not hold", 0, func() (bool, error) { return store.AttemptReelect(ctx, b) }, false},
		{"a renews", 20 * time.Second, func() (bool, error) { return store.AttemptReelect(ctx, a) }, true},
		{"renewal pushed the expiry", 20 * time.Second, func() (bool, error) { return store.AttemptElect(ctx, b) }, false},
		{"a may elect itself again", 0, func() (bool, error) { return store.AttemptElect(ctx, a) }, true},
		{"b takes the expired lease", time.Minute, func() (bool, error) { return store.AttemptElect(ctx, b) }, true},
		{"a cannot renew after expiry", 0, func() (bool, error) { return store.AttemptReelect(ctx, a) }, false},
	}
	for _, step := range steps {
		now = now.Add(step.advance)
		got, err := step.run()
		if err != nil {
			t.Fatalf("%s: error = %v", step.name, err)
		}
		if got != step.want {
			t.Fatalf("%s: got %v, want %v", step.name, got, step.want)
		}
	}

	// Resigning a lease held by someone else is a no-op.
	if err := store.Resign(ctx, "maintenance", "a"); err != nil {
		t.Fatalf("Resign() error = %v", err)
	}
	if ok, _ := store.AttemptElect(ctx, a); ok {
		t.Fatal("a took the lease after resigning someone else's")
	}

	if err := store.Resign(ctx, "maintenance", "b"); err != nil {
		t.Fatalf("Resign() error = %v", err)
	}
	if ok, err := store.AttemptElect(ctx, a); err != nil || !ok {
		t.Fatalf("AttemptElect() after resign = %v, %v; want true", ok, err)
	}

	// Leases are independent.
	other := &ElectParams{Name: "reports", LeaderID: "b", TTL: time.Minute}
	if ok, err := store.AttemptElect(ctx, other); err != nil || !ok {
		t.Fatalf("AttemptElect(reports) = %v, %v; want true", ok, err)
	}
}
