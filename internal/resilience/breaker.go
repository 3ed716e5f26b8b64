// Package resilience guards outbound LLM calls with circuit breakers and
// ordered failover. The lyrics cleaner and vocabulary extractor both talk to
// remote model APIs that can degrade for minutes at a time; wrapping them in a
// [Failover] keeps one flaky backend from stalling every pipeline run.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is open and the reset
// timeout has not yet elapsed.
var ErrOpen = errors.New("circuit breaker is open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// StateClosed forwards all calls. This is the normal state.
	StateClosed BreakerState = iota

	// StateOpen rejects all calls with [ErrOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen admits a limited number of probe calls. Enough successes
	// close the breaker; a single failure re-opens it.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the tuning knobs for a [Breaker]. Zero-value fields are
// replaced with defaults by [NewBreaker].
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before admitting probe
	// calls. Default: 30s.
	ResetTimeout time.Duration

	// ProbeCount is the number of successful half-open probes required to
	// close the breaker again. Default: 3.
	ProbeCount int
}

// Breaker is a three-state circuit breaker (closed, open, half-open).
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probeCount   int

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	probesSent  int
	probesOK    int
}

// NewBreaker creates a [Breaker] with the supplied configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.ProbeCount <= 0 {
		cfg.ProbeCount = 3
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		probeCount:   cfg.ProbeCount,
		state:        StateClosed,
	}
}

// Do runs fn if the breaker admits the call. In the open state it returns
// [ErrOpen] without invoking fn; in the half-open state only the probe budget
// is let through.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probesSent = 0
		b.probesOK = 0
		slog.Info("circuit breaker half-open", "name", b.name)

	case StateHalfOpen:
		if b.probesSent >= b.probeCount {
			b.mu.Unlock()
			return ErrOpen
		}
	}

	probing := b.state == StateHalfOpen
	if probing {
		b.probesSent++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.openedAt = time.Now()
	if probing {
		// A failed probe re-opens immediately.
		b.state = StateOpen
		b.failures = b.maxFailures
		slog.Warn("circuit breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", b.name,
			"consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		b.probesOK++
		if b.probesOK >= b.probeCount {
			b.state = StateClosed
			b.failures = 0
			slog.Info("circuit breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's current state. An open breaker whose reset
// timeout has elapsed is reported as half-open; the actual transition happens
// on the next [Breaker.Do].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probesSent = 0
	b.probesOK = 0
	slog.Info("circuit breaker reset", "name", b.name)
}
