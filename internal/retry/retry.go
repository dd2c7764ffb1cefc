// Package retry implements the Retry Manager: exponential backoff with
// jitter, a non-retryable error-code set, and escalation on exhaustion.
package retry

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentvault/runtime/internal/rterr"
)

// Config parameterizes one Manager's backoff curve and retry bound.
type Config struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// NonRetryable overrides rterr.NonRetryable when non-nil.
	NonRetryable map[rterr.Code]bool
	// OnEscalate is invoked once an operation exhausts its attempts without
	// succeeding. It receives the operation name and the final error.
	OnEscalate func(op string, err error)
}

// DefaultConfig mirrors the loop's original retry curve.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         3,
		InitialInterval:     time.Second,
		MaxInterval:         30 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Stats describes a tracked operation's progress, for observability.
type Stats struct {
	Op       string
	Attempt  int
	Started  time.Time
	LastErr  error
	Done     bool
	Escalated bool
}

// Manager runs operations under a shared retry policy and tracks their
// in-flight and recently-completed state for stats reporting.
type Manager struct {
	cfg Config

	mu        sync.Mutex
	active    map[string]*Stats
	completed []*Stats
}

// New creates a Manager with cfg. A zero-value Config's zero fields fall
// back to DefaultConfig's.
func New(cfg Config) *Manager {
	d := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = d.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = d.MaxInterval
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = d.MaxElapsedTime
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = d.Multiplier
	}
	if cfg.RandomizationFactor <= 0 {
		cfg.RandomizationFactor = d.RandomizationFactor
	}
	return &Manager{cfg: cfg, active: make(map[string]*Stats)}
}

func (m *Manager) newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.InitialInterval
	b.MaxInterval = m.cfg.MaxInterval
	b.MaxElapsedTime = m.cfg.MaxElapsedTime
	b.Multiplier = m.cfg.Multiplier
	b.RandomizationFactor = m.cfg.RandomizationFactor
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.cfg.MaxAttempts-1)), ctx)
}

// Do runs fn, retrying on error per the configured backoff curve unless the
// error is tagged with a non-retryable rterr.Code. op names the operation
// for stats and escalation.
func (m *Manager) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	stats := &Stats{Op: op, Started: time.Now()}
	m.mu.Lock()
	m.active[op] = stats
	m.mu.Unlock()
	defer m.finish(op, stats)

	b := m.newBackoff(ctx)
	for {
		stats.Attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		stats.LastErr = err

		if !rterr.IsRetryable(err, m.cfg.NonRetryable) {
			return err
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			stats.Escalated = true
			if m.cfg.OnEscalate != nil {
				m.cfg.OnEscalate(op, err)
			}
			return err
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Manager) finish(op string, stats *Stats) {
	stats.Done = true
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, op)
	m.completed = append(m.completed, stats)
	if len(m.completed) > 200 {
		m.completed = m.completed[len(m.completed)-200:]
	}
}

// Active returns a snapshot of currently in-flight operations.
func (m *Manager) Active() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Stats, 0, len(m.active))
	for _, s := range m.active {
		out = append(out, *s)
	}
	return out
}

// Completed returns a snapshot of recently finished operations, most recent
// last.
func (m *Manager) Completed() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Stats, len(m.completed))
	for i, s := range m.completed {
		out[i] = *s
	}
	return out
}
