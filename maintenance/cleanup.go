// Package maintenance provides background services for a tableadmin
// deployment.
//
// The Cleanup service periodically removes expired login sessions and,
// when enabled, media files no row references anymore.
package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default cleanup configuration values
const (
	DefaultCleanupInterval = 1 * time.Hour
)

var (
	ErrAlreadyStarted = errors.New("maintenance: cleanup already started")
	ErrNotStarted     = errors.New("maintenance: cleanup not started")
)

// SessionStore deletes expired sessions. Implemented by *auth.Service.
type SessionStore interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// MediaJanitor deletes stored files that no row references. Implemented by
// *tableadmin.Admin.
type MediaJanitor interface {
	DeleteUnusedMedia(ctx context.Context, dryRun bool) (map[string][]string, error)
}

// CleanupConfig holds configuration for the cleanup service.
type CleanupConfig struct {
	// Interval is how often to run cleanup operations.
	// Default: 1 hour
	Interval time.Duration

	// Media, when set, has its unused files deleted on every run.
	Media MediaJanitor

	// OnSessionCleanup is called with the number of expired sessions deleted.
	OnSessionCleanup func(count int64)

	// OnMediaCleanup is called with the deleted file keys per storage.
	OnMediaCleanup func(deleted map[string][]string)

	// OnError is called when a cleanup operation fails.
	OnError func(err error)
}

// DefaultCleanupConfig returns the default cleanup configuration.
func DefaultCleanupConfig() *CleanupConfig {
	return &CleanupConfig{
		Interval: DefaultCleanupInterval,
	}
}

// CleanupResult holds the results of a cleanup operation.
type CleanupResult struct {
	// SessionsDeleted is the number of expired sessions deleted.
	SessionsDeleted int64

	// MediaDeleted lists the deleted file keys per storage ("table.column").
	MediaDeleted map[string][]string

	// Errors contains any errors that occurred during cleanup.
	Errors []error
}

// MediaFilesDeleted returns the number of deleted media files.
func (r *CleanupResult) MediaFilesDeleted() int {
	n := 0
	for _, keys := range r.MediaDeleted {
		n += len(keys)
	}
	return n
}

// Cleanup removes expired sessions and unused media on an interval.
type Cleanup struct {
	sessions SessionStore
	config   *CleanupConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewCleanup creates a new cleanup service.
func NewCleanup(sessions SessionStore, config *CleanupConfig) *Cleanup {
	if config == nil {
		config = DefaultCleanupConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupInterval
	}

	return &Cleanup{
		sessions: sessions,
		config:   config,
	}
}

// Start begins the cleanup loop.
// It returns immediately and runs cleanup operations in a goroutine.
func (c *Cleanup) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)

	return nil
}

// Stop stops the cleanup loop and waits for a running cleanup to finish.
func (c *Cleanup) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return ErrNotStarted
	}

	c.cancel()
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.started.Store(false)
	return nil
}

// run is the main cleanup loop.
func (c *Cleanup) run(ctx context.Context) {
	defer close(c.done)

	// Run cleanup immediately on start
	c.runCleanup(ctx)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCleanup(ctx)
		}
	}
}

// runCleanup performs all cleanup operations and reports through the callbacks.
func (c *Cleanup) runCleanup(ctx context.Context) {
	result := c.RunOnce(ctx)

	if c.config.OnSessionCleanup != nil && result.SessionsDeleted > 0 {
		c.config.OnSessionCleanup(result.SessionsDeleted)
	}

	if c.config.OnMediaCleanup != nil && result.MediaFilesDeleted() > 0 {
		c.config.OnMediaCleanup(result.MediaDeleted)
	}

	if c.config.OnError != nil {
		for _, err := range result.Errors {
			c.config.OnError(err)
		}
	}
}

// RunOnce performs cleanup operations once and returns the result.
// A failing operation does not stop the others.
func (c *Cleanup) RunOnce(ctx context.Context) *CleanupResult {
	result := &CleanupResult{}

	var sessionErr, mediaErr error
	var g errgroup.Group
	g.Go(func() error {
		result.SessionsDeleted, sessionErr = c.sessions.DeleteExpiredSessions(ctx)
		return sessionErr
	})
	if c.config.Media != nil {
		g.Go(func() error {
			result.MediaDeleted, mediaErr = c.config.Media.DeleteUnusedMedia(ctx, false)
			return mediaErr
		})
	}
	_ = g.Wait()

	for _, err := range []error{sessionErr, mediaErr} {
		if err != nil {
			result.Errors = append(result.Errors, err)
		}
	}
	return result
}

// IsRunning returns true if the cleanup service is running.
func (c *Cleanup) IsRunning() bool {
	return c.started.Load()
}
