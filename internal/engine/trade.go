package engine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/lmsr-amm/internal/bank"
	"github.com/mselser95/lmsr-amm/internal/lmsr"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/internal/settlement"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"go.uber.org/zap"
)

// FeePercent is charged three times per trade: creator, protocol and LPs.
const FeePercent = 1

// Fees is the split charged on one trade.
type Fees struct {
	Creator  *big.Int `json:"creator"`
	Protocol *big.Int `json:"protocol"`
	LP       *big.Int `json:"lp"`
}

// Total is the sum of the three components.
func (f Fees) Total() *big.Int {
	t := wad.Add(f.Creator, f.Protocol)
	return t.Add(t, f.LP)
}

// SplitFees charges FeePercent of gross, rounded down, to each recipient.
func SplitFees(gross *big.Int) Fees {
	each := wad.Percent(gross, FeePercent)
	return Fees{Creator: each, Protocol: wad.Copy(each), LP: wad.Copy(each)}
}

// GrossForNet returns the smallest gross amount G whose net after three
// floor(G*1%) fees equals net exactly, with the fee split.
//
// Writing G = 100k + r, the net is 97k + r with 0 <= r <= 99, so the
// smallest solution takes k = max(0, ceil((net-99)/97)).
func GrossForNet(net *big.Int) (*big.Int, Fees) {
	k := new(big.Int).Sub(net, big.NewInt(99))
	if k.Sign() <= 0 {
		k.SetInt64(0)
	} else {
		k.Add(k, big.NewInt(96))
		k.Div(k, big.NewInt(97))
	}
	gross := new(big.Int).Mul(k, big.NewInt(3*FeePercent))
	gross.Add(gross, net)
	return gross, SplitFees(gross)
}

func (e *Engine) accrue(m *market.Market, f Fees) {
	m.CreatorFeeAccrued = wad.Add(m.CreatorFeeAccrued, f.Creator)
	m.ProtocolFeeAccrued = wad.Add(m.ProtocolFeeAccrued, f.Protocol)
	m.LPFeePool = wad.Add(m.LPFeePool, f.LP)
	FeesCollected.WithLabelValues("creator").Add(wad.ToFloat(f.Creator))
	FeesCollected.WithLabelValues("protocol").Add(wad.ToFloat(f.Protocol))
	FeesCollected.WithLabelValues("lp").Add(wad.ToFloat(f.LP))
}

func (e *Engine) prepareDeposit(tx *Tx) (commitFunc, error) {
	if !e.cfg.AllowDeposits {
		return nil, market.NewError(market.KindUnauthorized, "", "deposits are disabled")
	}
	amount := wad.Copy(tx.Amount)

	return func() []Event {
		if err := e.bank.Mint(tx.Sender, amount); err != nil {
			panic(err)
		}
		return []Event{{Type: EventDeposited, Amount: amount}}
	}, nil
}

func (e *Engine) prepareCreateMarket(tx *Tx, now time.Time) (commitFunc, error) {
	if _, exists := e.markets[tx.MarketID]; exists {
		return nil, market.NewError(market.KindMarketExists, tx.MarketID, "market id already in use")
	}
	if !tx.ExpiresAt.After(now) {
		return nil, tx.invalid("expiry %s is not in the future", tx.ExpiresAt.UTC().Format(time.RFC3339))
	}
	subsidy := wad.Copy(tx.Amount)
	if subsidy.Cmp(e.cfg.MinSubsidy) < 0 {
		return nil, market.NewError(market.KindBelowMinSubsidy, tx.MarketID,
			"subsidy "+wad.Format(subsidy)+" below minimum "+wad.Format(e.cfg.MinSubsidy))
	}
	b, err := lmsr.InitialB(subsidy)
	if err != nil {
		return nil, pricingError(tx.MarketID, err)
	}
	escrow := bank.EscrowAddress(tx.MarketID)
	leg := bank.Move{From: tx.Sender, To: escrow, Amount: subsidy}
	if err := e.checkMoves(tx.MarketID, leg); err != nil {
		return nil, err
	}

	return func() []Event {
		m := market.New(tx.MarketID, tx.Sender)
		m.Status = market.StatusTrading
		m.CreatedAt = now
		m.ExpiresAt = tx.ExpiresAt
		m.B = b
		m.SubsidyPool = subsidy
		m.Collateral = wad.Copy(subsidy)
		m.MetadataHash = tx.MetadataHash
		m.MetadataURI = tx.MetadataURI

		e.markets[m.ID] = &entry{
			market:    m,
			positions: make(map[common.Address]*market.Position),
			contributions: map[common.Address]*market.Contribution{
				tx.Sender: {Provider: tx.Sender, Amount: wad.Copy(subsidy)},
			},
		}
		e.order = append(e.order, m.ID)
		e.move(leg)

		MarketsCreated.Inc()
		e.logger.Info("market-created",
			zap.String("market-id", m.ID),
			zap.String("creator", tx.Sender.Hex()),
			zap.String("subsidy", wad.Format(subsidy)),
			zap.String("b", wad.Format(b)),
			zap.Time("expires-at", m.ExpiresAt))

		return []Event{{
			Type:         EventMarketCreated,
			Amount:       subsidy,
			B:            b,
			PriceYes:     wad.Half(),
			PriceNo:      wad.Half(),
			Deadline:     m.ExpiresAt,
			MetadataHash: m.MetadataHash,
		}}
	}, nil
}

func (e *Engine) prepareBuy(tx *Tx, now time.Time) (commitFunc, error) {
	ent, err := e.lookup(tx.MarketID)
	if err != nil {
		return nil, err
	}
	m := ent.market
	if err := settlement.CanTrade(m, now); err != nil {
		return nil, err
	}

	shares := wad.Copy(tx.Amount)
	state := lmsr.FromMarket(m)
	net, err := lmsr.CostToBuy(state, tx.Outcome, shares)
	if err != nil {
		return nil, pricingError(m.ID, err)
	}
	gross, fees := GrossForNet(net)
	if tx.Limit != nil && gross.Cmp(tx.Limit) > 0 {
		return nil, market.NewError(market.KindSlippageExceeded, m.ID,
			"cost "+wad.Format(gross)+" above max "+wad.Format(tx.Limit))
	}

	after, err := state.Shift(tx.Outcome, shares)
	if err != nil {
		return nil, pricingError(m.ID, err)
	}
	yes, no, err := e.prices(m.ID, after)
	if err != nil {
		return nil, err
	}

	leg := bank.Move{From: tx.Sender, To: bank.EscrowAddress(m.ID), Amount: gross}
	if err := e.checkMoves(tx.MarketID, leg); err != nil {
		return nil, err
	}

	return func() []Event {
		m.QYes, m.QNo = after.QYes, after.QNo
		m.Collateral = wad.Add(m.Collateral, net)
		e.accrue(m, fees)

		pos, ok := ent.positions[tx.Sender]
		if !ok {
			pos = market.NewPosition(tx.Sender)
			ent.positions[tx.Sender] = pos
		}
		if tx.Outcome == market.OutcomeYes {
			pos.YesShares = wad.Add(pos.YesShares, shares)
			m.OutstandingYes = wad.Add(m.OutstandingYes, shares)
		} else {
			pos.NoShares = wad.Add(pos.NoShares, shares)
			m.OutstandingNo = wad.Add(m.OutstandingNo, shares)
		}
		e.move(leg)

		TradeVolume.WithLabelValues("buy", tx.Outcome.String()).Add(wad.ToFloat(gross))
		return []Event{{
			Type:        EventSharesBought,
			Outcome:     tx.Outcome,
			Shares:      shares,
			Amount:      gross,
			CreatorFee:  fees.Creator,
			ProtocolFee: fees.Protocol,
			LPFee:       fees.LP,
			PriceYes:    yes,
			PriceNo:     no,
		}}
	}, nil
}

func (e *Engine) prepareSell(tx *Tx, now time.Time) (commitFunc, error) {
	ent, err := e.lookup(tx.MarketID)
	if err != nil {
		return nil, err
	}
	m := ent.market
	if err := settlement.CanTrade(m, now); err != nil {
		return nil, err
	}

	shares := wad.Copy(tx.Amount)
	pos, ok := ent.positions[tx.Sender]
	if !ok || pos.Shares(tx.Outcome).Cmp(shares) < 0 {
		held := wad.Zero()
		if ok {
			held = pos.Shares(tx.Outcome)
		}
		return nil, market.NewError(market.KindInsufficientShares, m.ID,
			"holds "+wad.Format(held)+" "+tx.Outcome.String()+", selling "+wad.Format(shares))
	}

	state := lmsr.FromMarket(m)
	payout, err := lmsr.PayoutForSell(state, tx.Outcome, shares)
	if err != nil {
		return nil, pricingError(m.ID, err)
	}
	fees := SplitFees(payout)
	net := wad.Sub(payout, fees.Total())
	if tx.Limit != nil && net.Cmp(tx.Limit) < 0 {
		return nil, market.NewError(market.KindSlippageExceeded, m.ID,
			"payout "+wad.Format(net)+" below min "+wad.Format(tx.Limit))
	}

	after, err := state.Shift(tx.Outcome, new(big.Int).Neg(shares))
	if err != nil {
		return nil, pricingError(m.ID, err)
	}
	yes, no, err := e.prices(m.ID, after)
	if err != nil {
		return nil, err
	}

	leg := bank.Move{From: bank.EscrowAddress(m.ID), To: tx.Sender, Amount: net}
	if err := e.checkMoves(tx.MarketID, leg); err != nil {
		return nil, err
	}

	return func() []Event {
		m.QYes, m.QNo = after.QYes, after.QNo
		m.Collateral = wad.Sub(m.Collateral, payout)
		e.accrue(m, fees)

		if tx.Outcome == market.OutcomeYes {
			pos.YesShares = wad.Sub(pos.YesShares, shares)
			m.OutstandingYes = wad.Sub(m.OutstandingYes, shares)
		} else {
			pos.NoShares = wad.Sub(pos.NoShares, shares)
			m.OutstandingNo = wad.Sub(m.OutstandingNo, shares)
		}
		if pos.Empty() {
			delete(ent.positions, tx.Sender)
		}
		e.move(leg)

		TradeVolume.WithLabelValues("sell", tx.Outcome.String()).Add(wad.ToFloat(payout))
		return []Event{{
			Type:        EventSharesSold,
			Outcome:     tx.Outcome,
			Shares:      shares,
			Amount:      net,
			CreatorFee:  fees.Creator,
			ProtocolFee: fees.Protocol,
			LPFee:       fees.LP,
			PriceYes:    yes,
			PriceNo:     no,
		}}
	}, nil
}

func (e *Engine) prepareAddSubsidy(tx *Tx, now time.Time) (commitFunc, error) {
	ent, err := e.lookup(tx.MarketID)
	if err != nil {
		return nil, err
	}
	m := ent.market
	if err := settlement.CanTrade(m, now); err != nil {
		return nil, err
	}

	amount := wad.Copy(tx.Amount)
	if amount.Cmp(e.cfg.MinSubsidy) < 0 {
		return nil, market.NewError(market.KindBelowMinSubsidy, m.ID,
			"subsidy "+wad.Format(amount)+" below minimum "+wad.Format(e.cfg.MinSubsidy))
	}

	next, err := lmsr.Rescale(lmsr.FromMarket(m), m.Collateral, amount)
	if err != nil {
		return nil, pricingError(m.ID, err)
	}
	yes, no, err := e.prices(m.ID, next)
	if err != nil {
		return nil, err
	}

	leg := bank.Move{From: tx.Sender, To: bank.EscrowAddress(m.ID), Amount: amount}
	if err := e.checkMoves(tx.MarketID, leg); err != nil {
		return nil, err
	}

	return func() []Event {
		m.QYes, m.QNo, m.B = next.QYes, next.QNo, next.B
		m.SubsidyPool = wad.Add(m.SubsidyPool, amount)
		m.Collateral = wad.Add(m.Collateral, amount)

		c, ok := ent.contributions[tx.Sender]
		if !ok {
			c = &market.Contribution{Provider: tx.Sender, Amount: wad.Zero()}
			ent.contributions[tx.Sender] = c
		}
		c.Amount = wad.Add(c.Amount, amount)
		e.move(leg)

		return []Event{{
			Type:     EventSubsidyAdded,
			Amount:   amount,
			B:        next.B,
			PriceYes: yes,
			PriceNo:  no,
		}}
	}, nil
}
