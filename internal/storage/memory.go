package storage

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MemoryJournal keeps the journal in process memory. It is lost on exit and
// is meant for tests, simulations and single-run deployments.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []Entry
	logger  *zap.Logger
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal(logger *zap.Logger) *MemoryJournal {
	logger.Info("memory-journal-initialized")
	return &MemoryJournal{logger: logger}
}

// Append adds e if it directly follows the last entry.
func (m *MemoryJournal) Append(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := uint64(len(m.entries)) + 1
	if e.Seq != want {
		return fmt.Errorf("%w: got seq %d, want %d", ErrOutOfOrder, e.Seq, want)
	}
	m.entries = append(m.entries, e)

	m.logger.Debug("journal-entry-appended",
		zap.Uint64("seq", e.Seq),
		zap.String("tx-id", e.Tx.ID))
	return nil
}

// Load returns a copy of the entries.
func (m *MemoryJournal) Load(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

// Len returns the number of entries.
func (m *MemoryJournal) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *MemoryJournal) Close() error {
	m.logger.Info("closing-memory-journal", zap.Int("entries", m.Len()))
	return nil
}
