// Package circuitbreaker stops journal writes after repeated failures so
// submissions fail fast instead of queueing behind a dead database.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrOpen is returned by Allow while the breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// Breaker trips after FailureThreshold consecutive failures. Once Cooldown
// has passed it lets calls through again as probes; SuccessThreshold
// consecutive successes close it, and any failed probe reopens it.
type Breaker struct {
	enabled atomic.Bool // closed; lock-free for the hot path

	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	clock            func() time.Time
	logger           *zap.Logger

	mu        sync.Mutex
	failures  int
	successes int
	openedAt  time.Time
	lastErr   error
	trips     int
}

// Config holds breaker configuration.
type Config struct {
	// Name labels metrics and logs.
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *zap.Logger
}

// Status holds the current breaker state for probes and debugging.
type Status struct {
	Enabled             bool
	ConsecutiveFailures int
	OpenedAt            time.Time
	LastError           string
	Trips               int
}

// New creates a closed breaker.
func New(cfg *Config) (*Breaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("failure threshold must be positive")
	}
	if cfg.SuccessThreshold <= 0 {
		return nil, fmt.Errorf("success threshold must be positive")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive")
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Breaker{
		name:             name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
		clock:            clock,
		logger:           logger,
	}
	b.enabled.Store(true)
	Enabled.WithLabelValues(name).Set(1)

	return b, nil
}

// IsEnabled reports whether the breaker is closed.
func (b *Breaker) IsEnabled() bool {
	return b.enabled.Load()
}

// Allow returns nil if a call may proceed.
func (b *Breaker) Allow() error {
	if b.enabled.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if wait := b.cooldown - b.clock().Sub(b.openedAt); wait > 0 {
		Rejected.WithLabelValues(b.name).Inc()
		return fmt.Errorf("%w: retry in %s: %v", ErrOpen, wait.Round(time.Millisecond), b.lastErr)
	}
	return nil
}

// Record reports the outcome of an allowed call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.recordFailure(err)
		return
	}

	b.failures = 0
	if b.enabled.Load() {
		return
	}
	b.successes++
	if b.successes < b.successThreshold {
		return
	}

	b.successes = 0
	b.enabled.Store(true)
	Enabled.WithLabelValues(b.name).Set(1)
	StateChanges.WithLabelValues(b.name).Inc()

	b.logger.Info("circuit-breaker-closed",
		zap.String("breaker", b.name),
		zap.Duration("open-for", b.clock().Sub(b.openedAt)))
}

func (b *Breaker) recordFailure(err error) {
	Failures.WithLabelValues(b.name).Inc()
	b.lastErr = err
	b.successes = 0
	b.failures++

	wasEnabled := b.enabled.Load()
	if wasEnabled && b.failures < b.failureThreshold {
		b.logger.Debug("circuit-breaker-failure",
			zap.String("breaker", b.name),
			zap.Int("consecutive-failures", b.failures),
			zap.Error(err))
		return
	}

	// Trip, or restart the cooldown after a failed probe.
	b.openedAt = b.clock()
	if !wasEnabled {
		b.logger.Warn("circuit-breaker-probe-failed",
			zap.String("breaker", b.name),
			zap.Error(err))
		return
	}

	b.trips++
	b.enabled.Store(false)
	Enabled.WithLabelValues(b.name).Set(0)
	StateChanges.WithLabelValues(b.name).Inc()

	b.logger.Warn("circuit-breaker-opened",
		zap.String("breaker", b.name),
		zap.Int("consecutive-failures", b.failures),
		zap.Duration("cooldown", b.cooldown),
		zap.Error(err))
}

// Check is a readiness probe: it fails while the breaker is open.
func (b *Breaker) Check() error {
	if b.enabled.Load() {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Errorf("%w since %s: %v", ErrOpen, b.openedAt.UTC().Format(time.RFC3339), b.lastErr)
}

// GetStatus returns the current breaker state.
func (b *Breaker) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Status{
		Enabled:             b.enabled.Load(),
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
		Trips:               b.trips,
	}
	if b.lastErr != nil {
		s.LastError = b.lastErr.Error()
	}
	return s
}
