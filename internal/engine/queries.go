package engine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/lmsr-amm/internal/arbitration"
	"github.com/mselser95/lmsr-amm/internal/bank"
	"github.com/mselser95/lmsr-amm/internal/lmsr"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/internal/settlement"
	"github.com/mselser95/lmsr-amm/pkg/wad"
)

// Snapshot is a read-only copy of one market with derived values.
type Snapshot struct {
	Market          *market.Market    `json:"market"`
	EffectiveStatus market.Status     `json:"effective_status"`
	PriceYes        *big.Int          `json:"price_yes"`
	PriceNo         *big.Int          `json:"price_no"`
	Holders         int               `json:"holders"`
	Escrow          common.Address    `json:"escrow"`
	EscrowBalance   *big.Int          `json:"escrow_balance"`
	Arbitration     *arbitration.Case `json:"arbitration,omitempty"`
}

// Quote prices a hypothetical trade including fees.
type Quote struct {
	MarketID string         `json:"market_id"`
	Side     string         `json:"side"`
	Outcome  market.Outcome `json:"outcome"`
	Shares   *big.Int       `json:"shares"`
	// Cost is the LMSR cost change before fees.
	Cost *big.Int `json:"cost"`
	Fees Fees     `json:"fees"`
	// Total is what the trader pays on a buy or receives on a sell.
	Total    *big.Int `json:"total"`
	PriceYes *big.Int `json:"price_yes_after"`
	PriceNo  *big.Int `json:"price_no_after"`
}

// Market returns the snapshot of id as observed at now.
func (e *Engine) Market(id string, now time.Time) (Snapshot, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return e.snapshot(ent, now)
}

// Markets returns snapshots of every market in creation order.
func (e *Engine) Markets(now time.Time) ([]Snapshot, error) {
	out := make([]Snapshot, 0, len(e.order))
	for _, id := range e.order {
		s, err := e.snapshot(e.markets[id], now)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// MarketIDs returns market ids in creation order.
func (e *Engine) MarketIDs() []string {
	return append([]string(nil), e.order...)
}

func (e *Engine) snapshot(ent *entry, now time.Time) (Snapshot, error) {
	m := ent.market
	yes, no, err := e.prices(m.ID, lmsr.FromMarket(m))
	if err != nil {
		return Snapshot{}, err
	}
	escrow := bank.EscrowAddress(m.ID)
	s := Snapshot{
		Market:          m.Clone(),
		EffectiveStatus: settlement.Effective(m.Status, m.ExpiresAt, now),
		PriceYes:        yes,
		PriceNo:         no,
		Holders:         len(ent.positions),
		Escrow:          escrow,
		EscrowBalance:   e.bank.Balance(escrow),
	}
	if ent.arbitration != nil {
		s.Arbitration = ent.arbitration.Clone()
	}
	return s, nil
}

// Price returns the current YES and NO prices of id.
func (e *Engine) Price(id string) (yes, no *big.Int, err error) {
	ent, err := e.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	return e.prices(id, lmsr.FromMarket(ent.market))
}

// CostToBuy returns the LMSR cost of buying shares of o, before fees.
func (e *Engine) CostToBuy(id string, o market.Outcome, shares *big.Int) (*big.Int, error) {
	q, err := e.QuoteBuy(id, o, shares)
	if err != nil {
		return nil, err
	}
	return q.Cost, nil
}

// PayoutForSell returns the LMSR payout of selling shares of o, before fees.
func (e *Engine) PayoutForSell(id string, o market.Outcome, shares *big.Int) (*big.Int, error) {
	q, err := e.QuoteSell(id, o, shares)
	if err != nil {
		return nil, err
	}
	return q.Cost, nil
}

// QuoteBuy prices a buy of shares of o against the current state.
func (e *Engine) QuoteBuy(id string, o market.Outcome, shares *big.Int) (Quote, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return Quote{}, err
	}
	state := lmsr.FromMarket(ent.market)
	net, err := lmsr.CostToBuy(state, o, shares)
	if err != nil {
		return Quote{}, pricingError(id, err)
	}
	gross, fees := GrossForNet(net)
	return e.quote(id, "buy", o, shares, state, shares, net, fees, gross)
}

// QuoteSell prices a sell of shares of o. It does not check any balance.
func (e *Engine) QuoteSell(id string, o market.Outcome, shares *big.Int) (Quote, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return Quote{}, err
	}
	state := lmsr.FromMarket(ent.market)
	payout, err := lmsr.PayoutForSell(state, o, shares)
	if err != nil {
		return Quote{}, pricingError(id, err)
	}
	fees := SplitFees(payout)
	return e.quote(id, "sell", o, shares, state, new(big.Int).Neg(shares), payout, fees, wad.Sub(payout, fees.Total()))
}

func (e *Engine) quote(id, side string, o market.Outcome, shares *big.Int, state lmsr.State, delta, cost *big.Int, fees Fees, total *big.Int) (Quote, error) {
	after, err := state.Shift(o, delta)
	if err != nil {
		return Quote{}, pricingError(id, err)
	}
	yes, no, err := e.prices(id, after)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		MarketID: id,
		Side:     side,
		Outcome:  o,
		Shares:   wad.Copy(shares),
		Cost:     cost,
		Fees:     fees,
		Total:    total,
		PriceYes: yes,
		PriceNo:  no,
	}, nil
}

// Position returns holder's position in id. A holder without shares gets
// an empty position.
func (e *Engine) Position(id string, holder common.Address) (*market.Position, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	if p, ok := ent.positions[holder]; ok {
		return p.Clone(), nil
	}
	return market.NewPosition(holder), nil
}

// Positions returns every open position of id ordered by holder.
func (e *Engine) Positions(id string) ([]*market.Position, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	out := make([]*market.Position, 0, len(ent.positions))
	for _, a := range market.SortedAddresses(ent.positions) {
		out = append(out, ent.positions[a].Clone())
	}
	return out, nil
}

// Contribution returns provider's liquidity contribution to id.
func (e *Engine) Contribution(id string, provider common.Address) (*market.Contribution, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	c, ok := ent.contributions[provider]
	if !ok {
		return nil, market.NewError(market.KindNothingToClaim, id, "no contribution from "+provider.Hex())
	}
	return c.Clone(), nil
}

// Balance returns the free balance of holder.
func (e *Engine) Balance(holder common.Address) *big.Int {
	return e.bank.Balance(holder)
}

// Seq is the sequence number of the last emitted event.
func (e *Engine) Seq() uint64 {
	return e.seq
}
