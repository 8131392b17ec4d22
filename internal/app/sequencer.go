package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/mselser95/lmsr-amm/internal/circuitbreaker"
	"github.com/mselser95/lmsr-amm/internal/engine"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/internal/settlement"
	"github.com/mselser95/lmsr-amm/internal/storage"
	"github.com/mselser95/lmsr-amm/pkg/cache"
	"go.uber.org/zap"
)

// ErrStopped is returned by Submit once the sequencer has stopped.
var ErrStopped = errors.New("sequencer stopped")

// Publisher receives committed events in sequence order.
type Publisher interface {
	Publish(ev engine.Event)
}

// SequencerConfig holds sequencer dependencies.
type SequencerConfig struct {
	Engine  *engine.Engine
	Journal storage.Journal
	// Publisher and Cache are optional.
	Publisher Publisher
	Cache     cache.Cache
	// Breaker, if set, stops journal writes after repeated failures.
	Breaker   *circuitbreaker.Breaker
	CacheTTL  time.Duration
	InboxSize int
	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *zap.Logger
}

type submission struct {
	ctx   context.Context
	tx    engine.Tx
	reply chan result
}

type result struct {
	rcpt engine.Receipt
	err  error
}

// Sequencer is the only writer of the engine. It takes transactions from
// an inbox one at a time, samples the clock once per transaction, journals
// it and applies it. Readers query a consistent state under a read lock.
type Sequencer struct {
	eng       *engine.Engine
	journal   storage.Journal
	publisher Publisher
	cache     cache.Cache
	breaker   *circuitbreaker.Breaker
	cacheTTL  time.Duration
	clock     func() time.Time
	logger    *zap.Logger

	inbox chan submission
	done  chan struct{}
	once  sync.Once

	mu sync.RWMutex
	// last is the time of the last applied transaction. The clock never
	// goes backwards for the engine.
	last       time.Time
	journalSeq uint64

	running   atomic.Bool
	recovered atomic.Bool
}

// NewSequencer creates a sequencer. Call Recover, then Run.
func NewSequencer(cfg *SequencerConfig) (*Sequencer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg.Journal == nil {
		return nil, fmt.Errorf("journal cannot be nil")
	}
	if cfg.InboxSize <= 0 {
		return nil, fmt.Errorf("inbox size must be positive, got %d", cfg.InboxSize)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sequencer{
		eng:       cfg.Engine,
		journal:   cfg.Journal,
		publisher: cfg.Publisher,
		cache:     cfg.Cache,
		breaker:   cfg.Breaker,
		cacheTTL:  cfg.CacheTTL,
		clock:     clock,
		logger:    logger,
		inbox:     make(chan submission, cfg.InboxSize),
		done:      make(chan struct{}),
	}, nil
}

// Recover replays the journal through the engine. Replayed events are not
// published. Every journaled entry passed validation when it was written, so
// an entry that fails to apply means the ledger diverged and recovery stops.
func (s *Sequencer) Recover(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("recover called while running")
	}

	entries, err := s.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.At.Before(s.last) {
			return fmt.Errorf("journal entry %d at %s precedes %s", e.Seq, e.At, s.last)
		}
		_, err = s.eng.Apply(e.Tx, e.At)
		if err != nil {
			s.logger.Error("replayed-transaction-rejected",
				zap.Uint64("seq", e.Seq),
				zap.String("tx-id", e.Tx.ID),
				zap.Error(err))
			return fmt.Errorf("replay journal entry %d (%s): %w", e.Seq, e.Tx.ID, err)
		}
		s.journalSeq = e.Seq
		s.last = e.At
	}

	RecoveredEntries.Set(float64(len(entries)))
	s.recovered.Store(true)

	digest, err := s.eng.StateDigest()
	if err != nil {
		return fmt.Errorf("digest recovered state: %w", err)
	}
	s.logger.Info("journal-replayed",
		zap.Int("entries", len(entries)),
		zap.Uint64("event-seq", s.eng.Seq()),
		zap.String("digest", digest.Hex()))

	return nil
}

// Run processes submissions until ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sequencer already running")
	}
	defer s.stop()

	s.logger.Info("sequencer-started", zap.Int("inbox-size", cap(s.inbox)))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sequencer-stopping", zap.Int("pending", len(s.inbox)))
			return nil
		case sub := <-s.inbox:
			InboxDepth.Set(float64(len(s.inbox)))
			rcpt, err := s.process(ctx, sub)
			sub.reply <- result{rcpt: rcpt, err: err}
		}
	}
}

func (s *Sequencer) stop() {
	s.once.Do(func() { close(s.done) })
	s.running.Store(false)

	// Fail whatever is still queued.
	for {
		select {
		case sub := <-s.inbox:
			sub.reply <- result{err: ErrStopped}
		default:
			return
		}
	}
}

// Running reports whether Run is active.
func (s *Sequencer) Running() bool {
	return s.running.Load()
}

// Recovered reports whether the journal has been replayed.
func (s *Sequencer) Recovered() bool {
	return s.recovered.Load()
}

// Submit queues tx and waits for its receipt. If ctx ends while tx is
// queued it is skipped; once processing started the outcome is only
// observable through the ledger.
func (s *Sequencer) Submit(ctx context.Context, tx engine.Tx) (engine.Receipt, error) {
	reply := make(chan result, 1)

	select {
	case s.inbox <- submission{ctx: ctx, tx: tx, reply: reply}:
	case <-ctx.Done():
		return engine.Receipt{}, ctx.Err()
	case <-s.done:
		return engine.Receipt{}, ErrStopped
	}
	InboxDepth.Set(float64(len(s.inbox)))

	select {
	case r := <-reply:
		return r.rcpt, r.err
	case <-ctx.Done():
		return engine.Receipt{}, ctx.Err()
	case <-s.done:
		select {
		case r := <-reply:
			return r.rcpt, r.err
		default:
			return engine.Receipt{}, ErrStopped
		}
	}
}

func (s *Sequencer) process(ctx context.Context, sub submission) (engine.Receipt, error) {
	if err := sub.ctx.Err(); err != nil {
		SubmissionsTotal.WithLabelValues("abandoned").Inc()
		return engine.Receipt{}, err
	}

	tx := sub.tx
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	now := s.clock().UTC()
	if now.Before(s.last) {
		now = s.last
	}

	s.mu.RLock()
	err := s.eng.Validate(tx, now)
	s.mu.RUnlock()
	if err != nil {
		SubmissionsTotal.WithLabelValues("rejected").Inc()
		return engine.Receipt{}, err
	}

	if s.breaker != nil {
		if err := s.breaker.Allow(); err != nil {
			SubmissionsTotal.WithLabelValues("breaker_open").Inc()
			return engine.Receipt{}, fmt.Errorf("journal unavailable: %w", err)
		}
	}

	entry := storage.Entry{Seq: s.journalSeq + 1, At: now, Tx: tx}
	start := time.Now()
	err = s.journal.Append(ctx, entry)
	JournalAppendDuration.Observe(time.Since(start).Seconds())
	if s.breaker != nil {
		s.breaker.Record(err)
	}
	if err != nil {
		SubmissionsTotal.WithLabelValues("journal_error").Inc()
		s.logger.Error("journal-append-failed",
			zap.String("tx-id", tx.ID),
			zap.Uint64("seq", entry.Seq),
			zap.Error(err))
		return engine.Receipt{}, fmt.Errorf("journal transaction: %w", err)
	}

	s.mu.Lock()
	rcpt, err := s.eng.Apply(tx, now)
	s.journalSeq = entry.Seq
	s.last = now
	s.mu.Unlock()

	if err != nil {
		SubmissionsTotal.WithLabelValues("rejected").Inc()
		s.logger.Error("journaled-transaction-rejected",
			zap.String("tx-id", tx.ID),
			zap.Uint64("seq", entry.Seq),
			zap.Error(err))
		return engine.Receipt{}, err
	}

	SubmissionsTotal.WithLabelValues("applied").Inc()
	if s.publisher != nil {
		for _, ev := range rcpt.Events {
			s.publisher.Publish(ev)
		}
	}
	return rcpt, nil
}

// now is the time readers evaluate effective status at.
func (s *Sequencer) now() time.Time {
	now := s.clock().UTC()
	if now.Before(s.last) {
		return s.last
	}
	return now
}

// cached runs load under the read lock, memoised per ledger version.
func cached[T any](s *Sequencer, load func() (T, error), parts ...string) (T, error) {
	if s.cache == nil {
		return load()
	}
	key := cache.Versioned(s.eng.Seq(), parts...)
	return cache.Fetch(s.cache, key, s.cacheTTL, load)
}

// Markets returns snapshots of every market.
func (s *Sequencer) Markets() ([]engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	snaps, err := cached(s, func() ([]engine.Snapshot, error) {
		return s.eng.Markets(now)
	}, "markets")
	if err != nil {
		return nil, err
	}

	out := make([]engine.Snapshot, len(snaps))
	for i, snap := range snaps {
		out[i] = observedAt(snap, now)
	}
	return out, nil
}

// Market returns the snapshot of id.
func (s *Sequencer) Market(id string) (engine.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	snap, err := cached(s, func() (engine.Snapshot, error) {
		return s.eng.Market(id, now)
	}, "market", id)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return observedAt(snap, now), nil
}

// observedAt re-derives the time-dependent status of a cached snapshot.
func observedAt(snap engine.Snapshot, now time.Time) engine.Snapshot {
	snap.EffectiveStatus = settlement.Effective(snap.Market.Status, snap.Market.ExpiresAt, now)
	return snap
}

// Quote prices a buy or sell of shares of o in id.
func (s *Sequencer) Quote(id, side string, o market.Outcome, shares *big.Int) (engine.Quote, error) {
	if shares == nil {
		return engine.Quote{}, market.NewError(market.KindInvalidArgument, id, "shares required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	switch strings.ToLower(side) {
	case "buy":
		return cached(s, func() (engine.Quote, error) {
			return s.eng.QuoteBuy(id, o, shares)
		}, "quote", id, "buy", o.String(), shares.String())
	case "sell":
		return cached(s, func() (engine.Quote, error) {
			return s.eng.QuoteSell(id, o, shares)
		}, "quote", id, "sell", o.String(), shares.String())
	}
	return engine.Quote{}, market.NewError(market.KindInvalidArgument, id, fmt.Sprintf("unknown side %q", side))
}

// Price returns the YES and NO prices of id.
func (s *Sequencer) Price(id string) (yes, no *big.Int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng.Price(id)
}

// Position returns holder's shares in id.
func (s *Sequencer) Position(id string, holder common.Address) (*market.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng.Position(id, holder)
}

// Positions returns every open position in id.
func (s *Sequencer) Positions(id string) ([]*market.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng.Positions(id)
}

// Balance returns holder's free balance.
func (s *Sequencer) Balance(holder common.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng.Balance(holder)
}

// Digest returns the ledger state digest and the event sequence number it
// was taken at.
func (s *Sequencer) Digest() (common.Hash, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, err := s.eng.StateDigest()
	return h, s.eng.Seq(), err
}
