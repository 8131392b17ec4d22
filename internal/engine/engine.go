// Package engine is the transaction applier: the single mutator of every
// market, position, contribution, arbitration case and balance.
//
// Each operation is split into a prepare step, which validates the
// transaction against current state and computes every new value, and a
// commit step, which writes those values and cannot fail. A rejected
// transaction therefore leaves the engine exactly as it was.
//
// The engine is deterministic and not safe for concurrent use. Hosts order
// transactions and pass the sampled time of each one.
package engine

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/lmsr-amm/internal/arbitration"
	"github.com/mselser95/lmsr-amm/internal/bank"
	"github.com/mselser95/lmsr-amm/internal/lmsr"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/internal/settlement"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"go.uber.org/zap"
)

// Config holds engine parameters.
type Config struct {
	// MinSubsidy is the smallest createMarket or addSubsidy amount.
	MinSubsidy *big.Int
	// ArbitrationFee is the minimum non-refundable dispute fee.
	ArbitrationFee *big.Int
	// ProtocolTreasury is the only account that may claim protocol fees.
	ProtocolTreasury common.Address
	// AllowDeposits enables the deposit faucet.
	AllowDeposits bool
	Settlement    settlement.Config
	Logger        *zap.Logger
	// OnEvent, if set, observes every committed event in order.
	OnEvent func(Event)
}

// DefaultConfig returns a config with a 10 WAD minimum subsidy and a 10 WAD
// arbitration fee.
func DefaultConfig() Config {
	return Config{
		MinSubsidy:     wad.FromInt(10),
		ArbitrationFee: wad.FromInt(10),
		Settlement:     settlement.DefaultConfig(),
	}
}

type entry struct {
	market        *market.Market
	positions     map[common.Address]*market.Position
	contributions map[common.Address]*market.Contribution
	arbitration   *arbitration.Case
}

// Engine applies transactions to the ledger.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	markets map[string]*entry
	order   []string
	bank    *bank.Bank
	seq     uint64

	// applying guards against nested Apply calls from OnEvent.
	applying bool
}

// commitFunc writes a prepared operation and returns its events.
type commitFunc func() []Event

// New creates an engine with an empty ledger.
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if !wad.IsPositive(cfg.MinSubsidy) {
		return nil, fmt.Errorf("min subsidy must be positive")
	}
	if cfg.ArbitrationFee == nil || cfg.ArbitrationFee.Sign() < 0 {
		return nil, fmt.Errorf("arbitration fee cannot be negative")
	}
	if err := cfg.Settlement.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:     *cfg,
		logger:  logger,
		markets: make(map[string]*entry),
		bank:    bank.New(),
	}, nil
}

// Apply validates tx at time now and commits it, or returns a typed error
// and changes nothing.
func (e *Engine) Apply(tx Tx, now time.Time) (Receipt, error) {
	if e.applying {
		return Receipt{}, market.NewError(market.KindReentrant, tx.MarketID, "apply called during another operation")
	}
	e.applying = true
	defer func() { e.applying = false }()

	commit, err := e.prepare(&tx, now)
	if err != nil {
		RejectionsTotal.WithLabelValues(string(tx.Op), string(market.KindOf(err))).Inc()
		e.logger.Debug("transaction-rejected",
			zap.String("tx-id", tx.ID),
			zap.String("op", string(tx.Op)),
			zap.String("market-id", tx.MarketID),
			zap.Error(err))
		return Receipt{}, err
	}

	events := commit()

	rcpt := Receipt{TxID: tx.ID, Op: tx.Op, At: now, Events: events}
	if ent, ok := e.markets[tx.MarketID]; ok {
		ent.market.Version++
		rcpt.Version = ent.market.Version
	}

	for i := range events {
		e.seq++
		events[i].Seq = e.seq
		events[i].TxID = tx.ID
		events[i].At = now
		if events[i].MarketID == "" {
			events[i].MarketID = tx.MarketID
		}
		if events[i].Actor == (common.Address{}) {
			events[i].Actor = tx.Sender
		}
	}

	AppliedTotal.WithLabelValues(string(tx.Op)).Inc()
	e.logger.Debug("transaction-applied",
		zap.String("tx-id", tx.ID),
		zap.String("op", string(tx.Op)),
		zap.String("market-id", tx.MarketID),
		zap.Int("events", len(events)))

	if e.cfg.OnEvent != nil {
		for _, ev := range events {
			e.cfg.OnEvent(ev)
		}
	}
	return rcpt, nil
}

// Validate runs every check Apply would run at now without committing.
func (e *Engine) Validate(tx Tx, now time.Time) error {
	if e.applying {
		return market.NewError(market.KindReentrant, tx.MarketID, "validate called during another operation")
	}
	_, err := e.prepare(&tx, now)
	return err
}

func (e *Engine) prepare(tx *Tx, now time.Time) (commitFunc, error) {
	if err := tx.CheckShape(); err != nil {
		return nil, err
	}

	switch tx.Op {
	case OpDeposit:
		return e.prepareDeposit(tx)
	case OpCreateMarket:
		return e.prepareCreateMarket(tx, now)
	case OpBuy:
		return e.prepareBuy(tx, now)
	case OpSell:
		return e.prepareSell(tx, now)
	case OpAddSubsidy:
		return e.prepareAddSubsidy(tx, now)
	case OpSettleMarket:
		return e.prepareSettle(tx, now)
	case OpDispute:
		return e.prepareDispute(tx, now)
	case OpCastVote:
		return e.prepareCastVote(tx, now)
	case OpFinalize:
		return e.prepareFinalize(tx, now)
	case OpResolveFromArbitration:
		return e.prepareResolveFromArbitration(tx, now)
	case OpClaimWinnings:
		return e.prepareClaimWinnings(tx)
	case OpClaimCreatorFee:
		return e.prepareClaimCreatorFee(tx)
	case OpClaimProtocolFee:
		return e.prepareClaimProtocolFee(tx)
	case OpClaimSubsidy:
		return e.prepareClaimSubsidy(tx)
	}
	return nil, tx.invalid("unknown operation %q", tx.Op)
}

func (e *Engine) lookup(id string) (*entry, error) {
	ent, ok := e.markets[id]
	if !ok {
		return nil, market.NewError(market.KindMarketNotFound, id, "no such market")
	}
	return ent, nil
}

// checkMoves runs bank.Check and tags its rejections with marketID.
func (e *Engine) checkMoves(marketID string, moves ...bank.Move) error {
	err := e.bank.Check(moves)
	var me *market.Error
	if errors.As(err, &me) && me.MarketID == "" {
		tagged := *me
		tagged.MarketID = marketID
		return &tagged
	}
	return err
}

// move executes transfers that prepare already checked.
func (e *Engine) move(moves ...bank.Move) {
	if err := e.bank.Execute(moves); err != nil {
		panic(fmt.Sprintf("engine: prepared transfer failed: %v", err))
	}
}

// pricingError converts an LMSR failure into a market error.
func pricingError(id string, err error) error {
	switch {
	case errors.Is(err, wad.ErrDomain), errors.Is(err, wad.ErrDivisionByZero):
		return market.Wrap(market.KindDomainError, id, err)
	case errors.Is(err, lmsr.ErrUntradable):
		return market.Wrap(market.KindInvalidOutcome, id, err)
	case errors.Is(err, lmsr.ErrInvalidShares), errors.Is(err, lmsr.ErrZeroDelta), errors.Is(err, lmsr.ErrInvalidLiquidity):
		return market.Wrap(market.KindInvalidArgument, id, err)
	}
	return market.Wrap(market.KindDomainError, id, err)
}

func (e *Engine) prices(id string, s lmsr.State) (yes, no *big.Int, err error) {
	yes, no, err = lmsr.Prices(s)
	if err != nil {
		return nil, nil, pricingError(id, err)
	}
	return yes, no, nil
}
