package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/mselser95/lmsr-amm/internal/bank"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	creator  = common.HexToAddress("0xc0ffee")
	alice    = common.HexToAddress("0xa11ce")
	bob      = common.HexToAddress("0xb0b")
	carol    = common.HexToAddress("0xca401")
	treasury = common.HexToAddress("0x7ea5")

	t0     = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	expiry = t0.Add(7 * 24 * time.Hour)
)

const marketID = "m-1"

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.AllowDeposits = true
	cfg.ProtocolTreasury = treasury
	cfg.Logger = zaptest.NewLogger(t)

	e, err := New(&cfg)
	require.NoError(t, err)

	for _, a := range []common.Address{creator, alice, bob, carol} {
		mustApply(t, e, Tx{Op: OpDeposit, Sender: a, Amount: wad.FromInt(10_000)}, t0)
	}
	return e
}

// newMarketEngine returns an engine with marketID funded with 100 and
// expiring at expiry.
func newMarketEngine(t *testing.T) *Engine {
	t.Helper()

	e := newTestEngine(t)
	mustApply(t, e, Tx{
		Op:           OpCreateMarket,
		Sender:       creator,
		MarketID:     marketID,
		Amount:       wad.FromInt(100),
		ExpiresAt:    expiry,
		MetadataHash: "bafy-question",
	}, t0)
	return e
}

func mustApply(t *testing.T, e *Engine, tx Tx, now time.Time) Receipt {
	t.Helper()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	r, err := e.Apply(tx, now)
	require.NoError(t, err, "%s by %s", tx.Op, tx.Sender.Hex())
	return r
}

func buy(sender common.Address, o market.Outcome, shares string) Tx {
	return Tx{Op: OpBuy, Sender: sender, MarketID: marketID, Outcome: o, Amount: wad.MustParse(shares)}
}

func sell(sender common.Address, o market.Outcome, shares string) Tx {
	return Tx{Op: OpSell, Sender: sender, MarketID: marketID, Outcome: o, Amount: wad.MustParse(shares)}
}

func op(o Op, sender common.Address) Tx {
	return Tx{Op: o, Sender: sender, MarketID: marketID}
}

func withOutcome(tx Tx, o market.Outcome) Tx {
	tx.Outcome = o
	return tx
}

func digest(t *testing.T, e *Engine) common.Hash {
	t.Helper()

	h, err := e.StateDigest()
	require.NoError(t, err)
	return h
}

func escrowBalance(e *Engine) *big.Int {
	return e.Balance(bank.EscrowAddress(marketID))
}

func snapshot(t *testing.T, e *Engine, now time.Time) Snapshot {
	t.Helper()

	s, err := e.Market(marketID, now)
	require.NoError(t, err)
	return s
}
