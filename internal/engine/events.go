package engine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/lmsr-amm/internal/market"
)

// EventType names a committed state transition.
type EventType string

const (
	EventDeposited                 EventType = "Deposited"
	EventMarketCreated             EventType = "MarketCreated"
	EventSharesBought              EventType = "SharesBought"
	EventSharesSold                EventType = "SharesSold"
	EventSubsidyAdded              EventType = "SubsidyAdded"
	EventCreatorSettlementProposed EventType = "CreatorSettlementProposed"
	EventOutcomeDisputed           EventType = "OutcomeDisputed"
	EventVoteCast                  EventType = "VoteCast"
	EventMarketResolved            EventType = "MarketResolved"
	EventWinningsClaimed           EventType = "WinningsClaimed"
	EventCreatorFeeClaimed         EventType = "CreatorFeeClaimed"
	EventProtocolFeeClaimed        EventType = "ProtocolFeeClaimed"
	EventSubsidyClaimed            EventType = "SubsidyClaimed"
)

// Event is emitted exactly once per committed transition. Fields that do
// not apply to the event type are left empty.
type Event struct {
	Seq      uint64         `json:"seq"`
	Type     EventType      `json:"type"`
	TxID     string         `json:"tx_id"`
	MarketID string         `json:"market_id,omitempty"`
	Actor    common.Address `json:"actor"`
	At       time.Time      `json:"at"`

	Outcome market.Outcome `json:"outcome,omitempty"`
	Shares  *big.Int       `json:"shares,omitempty"`
	// Amount is what moved: gross cost, net payout, subsidy, fee or claim.
	Amount *big.Int `json:"amount,omitempty"`

	CreatorFee  *big.Int `json:"creator_fee,omitempty"`
	ProtocolFee *big.Int `json:"protocol_fee,omitempty"`
	LPFee       *big.Int `json:"lp_fee,omitempty"`

	PriceYes *big.Int `json:"price_yes,omitempty"`
	PriceNo  *big.Int `json:"price_no,omitempty"`
	B        *big.Int `json:"b,omitempty"`

	Deadline time.Time `json:"deadline,omitempty"`
	Source   string    `json:"source,omitempty"`

	MetadataHash string `json:"metadata_hash,omitempty"`
}

// Receipt is the result of a committed transaction.
type Receipt struct {
	TxID    string    `json:"tx_id"`
	Op      Op        `json:"op"`
	At      time.Time `json:"at"`
	Version uint64    `json:"version,omitempty"`
	Events  []Event   `json:"events"`
}
