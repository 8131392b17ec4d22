package engine

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/lmsr-amm/internal/market"
)

// Op names a ledger operation.
type Op string

const (
	OpDeposit                Op = "deposit"
	OpCreateMarket           Op = "createMarket"
	OpBuy                    Op = "buy"
	OpSell                   Op = "sell"
	OpAddSubsidy             Op = "addSubsidy"
	OpSettleMarket           Op = "settleMarket"
	OpDispute                Op = "dispute"
	OpCastVote               Op = "castVote"
	OpFinalize               Op = "finalizeAfterDisputePeriod"
	OpResolveFromArbitration Op = "resolveFromArbitration"
	OpClaimWinnings          Op = "claimWinnings"
	OpClaimCreatorFee        Op = "claimCreatorFee"
	OpClaimProtocolFee       Op = "claimProtocolFee"
	OpClaimSubsidy           Op = "claimSubsidy"
)

// Ops lists every operation in a stable order.
func Ops() []Op {
	return []Op{
		OpDeposit, OpCreateMarket, OpBuy, OpSell, OpAddSubsidy,
		OpSettleMarket, OpDispute, OpCastVote, OpFinalize, OpResolveFromArbitration,
		OpClaimWinnings, OpClaimCreatorFee, OpClaimProtocolFee, OpClaimSubsidy,
	}
}

// Tx is one operation submitted by an authenticated sender.
//
// Amount carries shares for buy and sell, the subsidy for createMarket and
// addSubsidy, the arbitration fee for dispute and the sum for deposit.
// Limit is maxCost for buy and minPayout for sell; nil means no limit.
type Tx struct {
	ID       string         `json:"id"`
	Op       Op             `json:"op"`
	Sender   common.Address `json:"sender"`
	MarketID string         `json:"market_id,omitempty"`
	Outcome  market.Outcome `json:"outcome,omitempty"`
	Amount   *big.Int       `json:"amount,omitempty"`
	Limit    *big.Int       `json:"limit,omitempty"`

	// createMarket only.
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	MetadataHash string    `json:"metadata_hash,omitempty"`
	MetadataURI  string    `json:"metadata_uri,omitempty"`
}

func (tx *Tx) invalid(format string, args ...any) error {
	return market.NewError(market.KindInvalidArgument, tx.MarketID, fmt.Sprintf(format, args...))
}

// CheckShape validates the fields each operation needs, without looking at
// any state.
func (tx *Tx) CheckShape() error {
	if tx.Op != OpDeposit && tx.MarketID == "" {
		return tx.invalid("%s requires a market id", tx.Op)
	}

	switch tx.Op {
	case OpDeposit, OpCreateMarket, OpAddSubsidy, OpBuy, OpSell, OpDispute:
		if tx.Amount == nil || tx.Amount.Sign() <= 0 {
			return tx.invalid("%s requires a positive amount", tx.Op)
		}
	case OpSettleMarket, OpCastVote, OpFinalize, OpResolveFromArbitration,
		OpClaimWinnings, OpClaimCreatorFee, OpClaimProtocolFee, OpClaimSubsidy:
	default:
		return tx.invalid("unknown operation %q", tx.Op)
	}

	switch tx.Op {
	case OpBuy, OpSell:
		if !tx.Outcome.Tradable() {
			return market.NewError(market.KindInvalidOutcome, tx.MarketID, "only YES and NO shares trade")
		}
		if tx.Limit != nil && tx.Limit.Sign() < 0 {
			return tx.invalid("negative slippage limit")
		}
	case OpSettleMarket, OpDispute, OpCastVote:
		if !tx.Outcome.Settleable() {
			return market.NewError(market.KindInvalidOutcome, tx.MarketID, "outcome must be YES, NO or INVALID")
		}
	case OpCreateMarket:
		if tx.ExpiresAt.IsZero() {
			return tx.invalid("createMarket requires an expiry")
		}
	case OpDeposit, OpAddSubsidy, OpFinalize, OpResolveFromArbitration,
		OpClaimWinnings, OpClaimCreatorFee, OpClaimProtocolFee, OpClaimSubsidy:
	}
	return nil
}
