// Package storage persists the ordered log of accepted transactions so a
// host can rebuild the ledger by replaying it.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mselser95/lmsr-amm/internal/engine"
)

// ErrOutOfOrder is returned when an entry does not extend the journal by
// exactly one sequence number.
var ErrOutOfOrder = errors.New("journal entry out of order")

// Entry is one accepted transaction and the time it was applied at.
type Entry struct {
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`
	Tx  engine.Tx `json:"tx"`
}

// Journal is an append-only transaction log.
type Journal interface {
	// Append records the next accepted transaction.
	Append(ctx context.Context, e Entry) error

	// Load returns every entry in sequence order.
	Load(ctx context.Context) ([]Entry, error)

	// Close releases the underlying resources.
	Close() error
}
