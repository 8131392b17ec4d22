package websocket

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackoffConfig configures exponential retry delays.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // 0.2 = up to 20% extra
}

// DefaultBackoffConfig returns 1s initial, 30s max, doubling, 20% jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.2,
	}
}

// Backoff hands out growing delays between connection attempts.
type Backoff struct {
	cfg     BackoffConfig
	logger  *zap.Logger
	mu      sync.Mutex
	current time.Duration
}

// NewBackoff creates a backoff starting at cfg.Initial.
func NewBackoff(cfg BackoffConfig, logger *zap.Logger) *Backoff {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	return &Backoff{cfg: cfg, logger: logger, current: cfg.Initial}
}

// Next returns the delay for the coming wait and grows the base delay.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	if b.cfg.Jitter > 0 {
		//nolint:gosec // jitter only
		delay = time.Duration(float64(delay) * (1.0 + rand.Float64()*b.cfg.Jitter))
	}

	grown := time.Duration(float64(b.current) * b.cfg.Multiplier)
	if grown > b.cfg.Max {
		grown = b.cfg.Max
	}
	b.current = grown

	return delay
}

// Reset restores the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.cfg.Initial
}

// Retry calls fn until it succeeds or ctx ends, sleeping Next() between
// failed attempts. The first attempt is immediate.
func (b *Backoff) Retry(ctx context.Context, fn func(context.Context) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ReconnectAttemptsTotal.Inc()
		err := fn(ctx)
		if err == nil {
			b.Reset()
			return nil
		}
		ReconnectFailuresTotal.Inc()

		delay := b.Next()
		b.logger.Warn("connection-attempt-failed",
			zap.Error(err),
			zap.Duration("retry-in", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
