// Package market defines the per-market ledger entities: the market record,
// holder positions, liquidity contributions and the typed rejection errors
// shared by every component of the engine.
package market

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/lmsr-amm/pkg/wad"
)

// Market is the mutable state of one binary market. All amounts are WADs.
type Market struct {
	ID        string         `json:"id"`
	Creator   common.Address `json:"creator"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`

	// LMSR state. QYes and QNo change only through trades and subsidy
	// rescaling; B never decreases.
	QYes *big.Int `json:"q_yes"`
	QNo  *big.Int `json:"q_no"`
	B    *big.Int `json:"b"`

	// SubsidyPool is the sum of all liquidity contributions.
	SubsidyPool *big.Int `json:"subsidy_pool"`
	// Collateral is the cash backing the AMM: subsidy plus net trade
	// inflows, minus sell payouts and paid winnings.
	Collateral *big.Int `json:"collateral"`

	CreatorFeeAccrued  *big.Int `json:"creator_fee_accrued"`
	ProtocolFeeAccrued *big.Int `json:"protocol_fee_accrued"`
	LPFeePool          *big.Int `json:"lp_fee_pool"`
	CreatorFeeClaimed  bool     `json:"creator_fee_claimed"`
	ProtocolFeeClaimed bool     `json:"protocol_fee_claimed"`

	// Sum of holder balances per side.
	OutstandingYes *big.Int `json:"outstanding_yes"`
	OutstandingNo  *big.Int `json:"outstanding_no"`

	ProposedOutcome Outcome        `json:"proposed_outcome,omitempty"`
	ProposedBy      common.Address `json:"proposed_by"`
	DisputeDeadline time.Time      `json:"dispute_deadline,omitempty"`
	FinalOutcome    Outcome        `json:"final_outcome,omitempty"`
	ResolvedAt      time.Time      `json:"resolved_at,omitempty"`

	// LPPayoutPool is fixed at resolution: collateral left after every
	// winning claim plus the LP fee pool, shared pro rata by contribution.
	LPPayoutPool *big.Int `json:"lp_payout_pool"`

	MetadataHash string `json:"metadata_hash"`
	MetadataURI  string `json:"metadata_uri,omitempty"`

	// Version increases by one on every committed operation.
	Version uint64 `json:"version"`
}

// New returns a zeroed market in the Pending stage.
func New(id string, creator common.Address) *Market {
	return &Market{
		ID:                 id,
		Creator:            creator,
		Status:             StatusPending,
		QYes:               wad.Zero(),
		QNo:                wad.Zero(),
		B:                  wad.Zero(),
		SubsidyPool:        wad.Zero(),
		Collateral:         wad.Zero(),
		CreatorFeeAccrued:  wad.Zero(),
		ProtocolFeeAccrued: wad.Zero(),
		LPFeePool:          wad.Zero(),
		OutstandingYes:     wad.Zero(),
		OutstandingNo:      wad.Zero(),
		LPPayoutPool:       wad.Zero(),
	}
}

// Clone returns a deep copy safe to hand to readers.
func (m *Market) Clone() *Market {
	c := *m
	c.QYes = wad.Copy(m.QYes)
	c.QNo = wad.Copy(m.QNo)
	c.B = wad.Copy(m.B)
	c.SubsidyPool = wad.Copy(m.SubsidyPool)
	c.Collateral = wad.Copy(m.Collateral)
	c.CreatorFeeAccrued = wad.Copy(m.CreatorFeeAccrued)
	c.ProtocolFeeAccrued = wad.Copy(m.ProtocolFeeAccrued)
	c.LPFeePool = wad.Copy(m.LPFeePool)
	c.OutstandingYes = wad.Copy(m.OutstandingYes)
	c.OutstandingNo = wad.Copy(m.OutstandingNo)
	c.LPPayoutPool = wad.Copy(m.LPPayoutPool)
	return &c
}

// Resolved reports whether the final outcome has been written.
func (m *Market) Resolved() bool {
	return m.Status == StatusResolved && m.FinalOutcome != OutcomeUnset
}

// TotalFees is the sum of all fee accumulators.
func (m *Market) TotalFees() *big.Int {
	t := wad.Add(m.CreatorFeeAccrued, m.ProtocolFeeAccrued)
	return t.Add(t, m.LPFeePool)
}

// Position is a holder's share balance in one market.
type Position struct {
	Holder    common.Address `json:"holder"`
	YesShares *big.Int       `json:"yes_shares"`
	NoShares  *big.Int       `json:"no_shares"`
}

// NewPosition returns an empty position.
func NewPosition(holder common.Address) *Position {
	return &Position{Holder: holder, YesShares: wad.Zero(), NoShares: wad.Zero()}
}

// Shares returns the balance for a tradable outcome.
func (p *Position) Shares(o Outcome) *big.Int {
	if o == OutcomeYes {
		return p.YesShares
	}
	return p.NoShares
}

// Total is the combined share count, used as arbitration vote weight.
func (p *Position) Total() *big.Int {
	return wad.Add(p.YesShares, p.NoShares)
}

// Empty reports whether the position holds nothing.
func (p *Position) Empty() bool {
	return p.YesShares.Sign() == 0 && p.NoShares.Sign() == 0
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	return &Position{Holder: p.Holder, YesShares: wad.Copy(p.YesShares), NoShares: wad.Copy(p.NoShares)}
}

// Contribution is a liquidity provider's cumulative subsidy.
type Contribution struct {
	Provider common.Address `json:"provider"`
	Amount   *big.Int       `json:"amount"`
	Claimed  bool           `json:"claimed"`
}

// Clone returns a deep copy.
func (c *Contribution) Clone() *Contribution {
	return &Contribution{Provider: c.Provider, Amount: wad.Copy(c.Amount), Claimed: c.Claimed}
}

// SortedAddresses returns the keys of m in byte order so that iteration over
// holders is identical on every executor.
func SortedAddresses[V any](m map[common.Address]V) []common.Address {
	out := make([]common.Address, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Cmp(out[j]) < 0
	})
	return out
}
