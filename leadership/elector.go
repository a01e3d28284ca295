// Package leadership provides leader election between tableadmin servers
// sharing one database.
//
// Only one server holds a named lease at a time. The holder runs the
// background maintenance, such as deleting expired sessions and unused
// media, so that several replicas do not repeat the same work.
//
// The lease is a row with an expiry time. The leader must renew it before
// it expires, or another server can take over.
package leadership

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Default configuration values
const (
	DefaultLeaderTTL       = 30 * time.Second
	DefaultElectionPeriod  = 10 * time.Second
	DefaultReelectionDelay = 5 * time.Second

	resignTimeout = 5 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("leadership: elector already started")
	ErrNotStarted     = errors.New("leadership: elector not started")
)

// Config holds configuration for the leader election.
type Config struct {
	// LeaderTTL is how long a lease is valid without renewal.
	// Default: 30 seconds
	LeaderTTL time.Duration

	// ElectionPeriod is how often a follower tries to take the lease.
	// Default: 10 seconds
	ElectionPeriod time.Duration

	// ReelectionDelay is how often the leader renews the lease. Must be
	// shorter than LeaderTTL.
	// Default: 5 seconds
	ReelectionDelay time.Duration

	// OnError is called when the store fails. Election is retried on the
	// next period.
	OnError func(err error)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LeaderTTL:       DefaultLeaderTTL,
		ElectionPeriod:  DefaultElectionPeriod,
		ReelectionDelay: DefaultReelectionDelay,
	}
}

// Callbacks are called when leadership changes. OnBecameLeader receives the
// context passed to Start and is cancelled when the elector stops.
type Callbacks struct {
	OnBecameLeader   func(ctx context.Context)
	OnLostLeadership func(ctx context.Context)
}

// ElectParams identify a lease and its candidate.
type ElectParams struct {
	Name     string
	LeaderID string
	TTL      time.Duration
}

// Store persists leases.
type Store interface {
	// AttemptElect takes the lease when it is free, expired or already held
	// by the candidate.
	AttemptElect(ctx context.Context, params *ElectParams) (bool, error)

	// AttemptReelect extends the lease if the candidate still holds it.
	AttemptReelect(ctx context.Context, params *ElectParams) (bool, error)

	// Resign releases the lease if leaderID holds it.
	Resign(ctx context.Context, name, leaderID string) error
}

// Elector competes for one named lease.
type Elector struct {
	store     Store
	params    ElectParams
	config    *Config
	callbacks Callbacks

	leader  atomic.Bool
	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewElector creates an elector for the lease name. instanceID must be
// unique among the competing servers.
func NewElector(store Store, name, instanceID string, config *Config, callbacks Callbacks) *Elector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Elector{
		store:     store,
		params:    ElectParams{Name: name, LeaderID: instanceID, TTL: config.LeaderTTL},
		config:    config,
		callbacks: callbacks,
	}
}

// Start runs the election loop in a goroutine until Stop is called or ctx
// is cancelled.
func (e *Elector) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx)
	return nil
}

// Stop ends the election loop and releases the lease if this server holds
// it.
func (e *Elector) Stop(ctx context.Context) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	e.cancel()
	<-e.done

	if e.leader.Load() {
		resignCtx, cancel := context.WithTimeout(ctx, resignTimeout)
		defer cancel()
		if err := e.Resign(resignCtx); err != nil {
			e.reportError(err)
		}
	}
	e.started.Store(false)
	return nil
}

// IsLeader reports whether this server holds the lease.
func (e *Elector) IsLeader() bool { return e.leader.Load() }

// IsRunning reports whether the election loop is running.
func (e *Elector) IsRunning() bool { return e.started.Load() }

// Resign gives up the lease. Leadership is dropped locally even when the
// store fails; the lease then expires on its own.
func (e *Elector) Resign(ctx context.Context) error {
	if !e.setLeader(ctx, false) {
		return nil
	}
	return e.store.Resign(ctx, e.params.Name, e.params.LeaderID)
}

func (e *Elector) run(ctx context.Context) {
	defer close(e.done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		e.step(ctx)
		if e.leader.Load() {
			timer.Reset(e.config.ReelectionDelay)
		} else {
			timer.Reset(e.config.ElectionPeriod)
		}
	}
}

// step renews the lease when leading and tries to take it otherwise.
func (e *Elector) step(ctx context.Context) {
	params := e.params
	if !e.leader.Load() {
		ok, err := e.store.AttemptElect(ctx, &params)
		if err != nil {
			e.reportError(err)
			return
		}
		if ok {
			e.setLeader(ctx, true)
		}
		return
	}

	ok, err := e.store.AttemptReelect(ctx, &params)
	if ctx.Err() != nil {
		// Stop resigns.
		return
	}
	if err != nil {
		e.reportError(err)
	}
	if err != nil || !ok {
		e.setLeader(ctx, false)
	}
}

// setLeader records the new state and fires the matching callback. It
// reports whether the state changed.
func (e *Elector) setLeader(ctx context.Context, leader bool) bool {
	if !e.leader.CompareAndSwap(!leader, leader) {
		return false
	}
	cb := e.callbacks.OnLostLeadership
	if leader {
		cb = e.callbacks.OnBecameLeader
	}
	if cb != nil {
		cb(ctx)
	}
	return true
}

func (e *Elector) reportError(err error) {
	if e.config.OnError != nil && !errors.Is(err, context.Canceled) {
		e.config.OnError(err)
	}
}
