package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type mockSessions struct {
	deleted int64
	err     error
	calls   atomic.Int32
}

func (m *mockSessions) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	if m.err != nil {
		return 0, m.err
	}
	return m.deleted, nil
}

type mockMedia struct {
	deleted map[string][]string
	err     error
	dryRun  atomic.Bool
}

func (m *mockMedia) DeleteUnusedMedia(ctx context.Context, dryRun bool) (map[string][]string, error) {
	m.dryRun.Store(dryRun)
	if m.err != nil {
		return nil, m.err
	}
	return m.deleted, nil
}

func TestCleanup_StartStop(t *testing.T) {
	sessions := &mockSessions{}
	cleanup := NewCleanup(sessions, &CleanupConfig{Interval: 50 * time.Millisecond})

	ctx := context.Background()

	// Start should succeed
	if err := cleanup.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !cleanup.IsRunning() {
		t.Error("Expected cleanup to be running")
	}

	// Second start should fail
	if err := cleanup.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("Start() error = %v, want %v", err, ErrAlreadyStarted)
	}

	// Stop should succeed
	if err := cleanup.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if cleanup.IsRunning() {
		t.Error("Expected cleanup to not be running")
	}

	// The service can be started again after a stop.
	if err := cleanup.Start(ctx); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if err := cleanup.Stop(ctx); err != nil {
		t.Fatalf("Stop() after restart error = %v", err)
	}
	if sessions.calls.Load() < 2 {
		t.Errorf("DeleteExpiredSessions calls = %d, want at least 2", sessions.calls.Load())
	}
}

func TestCleanup_StopNotStarted(t *testing.T) {
	cleanup := NewCleanup(&mockSessions{}, nil)

	if err := cleanup.Stop(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Stop() error = %v, want %v", err, ErrNotStarted)
	}
}

func TestCleanup_RunOnce(t *testing.T) {
	tests := []struct {
		name        string
		sessions    *mockSessions
		media       *mockMedia
		wantDeleted int64
		wantFiles   int
		wantErrors  int
	}{
		{
			name:        "sessions only",
			sessions:    &mockSessions{deleted: 3},
			wantDeleted: 3,
		},
		{
			name:     "sessions and media",
			sessions: &mockSessions{deleted: 1},
			media: &mockMedia{deleted: map[string][]string{
				"director.photo": {"a-1.png", "b-2.png"},
				"movie.poster":   {"c-3.jpg"},
			}},
			wantDeleted: 1,
			wantFiles:   3,
		},
		{
			name:       "session error does not stop media",
			sessions:   &mockSessions{err: errors.New("db down")},
			media:      &mockMedia{deleted: map[string][]string{"movie.poster": {"c-3.jpg"}}},
			wantFiles:  1,
			wantErrors: 1,
		},
		{
			name:        "both fail",
			sessions:    &mockSessions{err: errors.New("db down")},
			media:       &mockMedia{err: errors.New("bucket gone")},
			wantErrors:  2,
			wantDeleted: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCleanupConfig()
			if tt.media != nil {
				cfg.Media = tt.media
			}
			result := NewCleanup(tt.sessions, cfg).RunOnce(context.Background())

			if result.SessionsDeleted != tt.wantDeleted {
				t.Errorf("SessionsDeleted = %d, want %d", result.SessionsDeleted, tt.wantDeleted)
			}
			if got := result.MediaFilesDeleted(); got != tt.wantFiles {
				t.Errorf("MediaFilesDeleted() = %d, want %d", got, tt.wantFiles)
			}
			if len(result.Errors) != tt.wantErrors {
				t.Errorf("Errors = %v, want %d errors", result.Errors, tt.wantErrors)
			}
			if tt.media != nil && tt.media.dryRun.Load() {
				t.Error("DeleteUnusedMedia called with dryRun = true")
			}
		})
	}
}

func TestCleanup_Callbacks(t *testing.T) {
	sessions := &mockSessions{deleted: 2}
	media := &mockMedia{deleted: map[string][]string{"movie.poster": {"c-3.jpg"}}}

	var sessionCount atomic.Int64
	var mediaKeys atomic.Value
	var errCount atomic.Int32

	cleanup := NewCleanup(sessions, &CleanupConfig{
		Interval: 50 * time.Millisecond,
		Media:    media,
		OnSessionCleanup: func(count int64) {
			sessionCount.Store(count)
		},
		OnMediaCleanup: func(deleted map[string][]string) {
			mediaKeys.Store(deleted)
		},
		OnError: func(err error) {
			errCount.Add(1)
		},
	})

	ctx := context.Background()

	if err := cleanup.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Wait for at least one cleanup cycle
	time.Sleep(100 * time.Millisecond)

	if err := cleanup.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if sessionCount.Load() != 2 {
		t.Errorf("OnSessionCleanup count = %d, want 2", sessionCount.Load())
	}
	got, _ := mediaKeys.Load().(map[string][]string)
	if diff := cmp.Diff(media.deleted, got); diff != "" {
		t.Errorf("OnMediaCleanup keys mismatch (-want +got):\n%s", diff)
	}
	if errCount.Load() != 0 {
		t.Errorf("OnError called %d times, want 0", errCount.Load())
	}
}

func TestDefaultCleanupConfig(t *testing.T) {
	config := DefaultCleanupConfig()

	if config.Interval != DefaultCleanupInterval {
		t.Errorf("Interval = %v, want %v", config.Interval, DefaultCleanupInterval)
	}
	if config.Media != nil {
		t.Error("Media should be nil by default")
	}
}
