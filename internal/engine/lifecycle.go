package engine

import (
	"math/big"
	"time"

	"github.com/mselser95/lmsr-amm/internal/arbitration"
	"github.com/mselser95/lmsr-amm/internal/bank"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/internal/settlement"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"go.uber.org/zap"
)

func (e *Engine) prepareSettle(tx *Tx, now time.Time) (commitFunc, error) {
	ent, err := e.lookup(tx.MarketID)
	if err != nil {
		return nil, err
	}
	m := ent.market

	p, err := e.cfg.Settlement.Settle(m, tx.Sender, tx.Outcome, now)
	if err != nil {
		return nil, err
	}

	return func() []Event {
		m.Status = market.StatusDisputePeriod
		m.ProposedOutcome = p.Outcome
		m.ProposedBy = tx.Sender
		m.DisputeDeadline = p.DisputeDeadline

		source := "creator"
		if p.Forced {
			source = "forced"
		}
		e.logger.Info("settlement-proposed",
			zap.String("market-id", m.ID),
			zap.String("outcome", p.Outcome.String()),
			zap.String("source", source),
			zap.Time("dispute-deadline", p.DisputeDeadline))

		return []Event{{
			Type:     EventCreatorSettlementProposed,
			Outcome:  p.Outcome,
			Deadline: p.DisputeDeadline,
			Source:   source,
		}}
	}, nil
}

func (e *Engine) prepareDispute(tx *Tx, now time.Time) (commitFunc, error) {
	ent, err := e.lookup(tx.MarketID)
	if err != nil {
		return nil, err
	}
	m := ent.market

	fee := wad.Copy(tx.Amount)
	if _, err := e.cfg.Settlement.Dispute(m, tx.Outcome, fee, e.cfg.ArbitrationFee, now); err != nil {
		return nil, err
	}

	leg := bank.Move{From: tx.Sender, To: bank.EscrowAddress(m.ID), Amount: fee}
	if err := e.checkMoves(tx.MarketID, leg); err != nil {
		return nil, err
	}

	eligible := wad.Add(m.OutstandingYes, m.OutstandingNo)
	cs := arbitration.Open(m.ID, tx.Sender, m.ProposedOutcome, tx.Outcome, fee, eligible, now, e.cfg.Settlement.VotingWindow)

	return func() []Event {
		m.Status = market.StatusArbitration
		m.ProtocolFeeAccrued = wad.Add(m.ProtocolFeeAccrued, fee)
		ent.arbitration = cs
		e.move(leg)

		e.logger.Info("outcome-disputed",
			zap.String("market-id", m.ID),
			zap.String("proposed", m.ProposedOutcome.String()),
			zap.String("disputed", tx.Outcome.String()),
			zap.Time("voting-deadline", cs.VotingDeadline))

		return []Event{{
			Type:     EventOutcomeDisputed,
			Outcome:  tx.Outcome,
			Amount:   fee,
			Deadline: cs.VotingDeadline,
		}}
	}, nil
}

func (e *Engine) prepareCastVote(tx *Tx, now time.Time) (commitFunc, error) {
	ent, err := e.lookup(tx.MarketID)
	if err != nil {
		return nil, err
	}
	m := ent.market
	if err := settlement.CanVote(m, ent.arbitration, now); err != nil {
		return nil, err
	}

	weight := wad.Zero()
	if pos, ok := ent.positions[tx.Sender]; ok {
		weight = pos.Total()
	}

	next := ent.arbitration.Clone()
	if err := next.CastVote(tx.Sender, weight, tx.Outcome, now); err != nil {
		return nil, err
	}

	return func() []Event {
		ent.arbitration = next
		return []Event{{
			Type:    EventVoteCast,
			Outcome: tx.Outcome,
			Amount:  weight,
		}}
	}, nil
}

func (e *Engine) prepareFinalize(tx *Tx, now time.Time) (commitFunc, error) {
	ent, err := e.lookup(tx.MarketID)
	if err != nil {
		return nil, err
	}

	outcome, err := e.cfg.Settlement.Finalize(ent.market, now)
	if err != nil {
		return nil, err
	}
	return e.prepareResolution(ent, outcome, settlement.SourceUndisputed, now)
}

func (e *Engine) prepareResolveFromArbitration(tx *Tx, now time.Time) (commitFunc, error) {
	ent, err := e.lookup(tx.MarketID)
	if err != nil {
		return nil, err
	}

	res, err := e.cfg.Settlement.ResolveArbitration(ent.market, ent.arbitration, now)
	if err != nil {
		return nil, err
	}
	return e.prepareResolution(ent, res.Outcome, res.Source, now)
}

// prepareResolution fixes the final outcome and the LP payout pool: the
// collateral left once every winning share is paid, plus the LP fees.
func (e *Engine) prepareResolution(ent *entry, outcome market.Outcome, source settlement.Source, now time.Time) (commitFunc, error) {
	m := ent.market

	liability, err := outcome.Payout(m.OutstandingYes, m.OutstandingNo)
	if err != nil {
		return nil, market.Wrap(market.KindInvalidOutcome, m.ID, err)
	}
	residual := wad.Sub(m.Collateral, liability)
	if residual.Sign() < 0 {
		return nil, market.NewError(market.KindDomainError, m.ID,
			"collateral "+wad.Format(m.Collateral)+" below liability "+wad.Format(liability))
	}
	pool := new(big.Int).Add(residual, m.LPFeePool)

	return func() []Event {
		m.Status = market.StatusResolved
		m.FinalOutcome = outcome
		m.ResolvedAt = now
		m.LPPayoutPool = pool
		ent.arbitration = nil

		MarketsResolved.WithLabelValues(string(source)).Inc()
		e.logger.Info("market-resolved",
			zap.String("market-id", m.ID),
			zap.String("outcome", outcome.String()),
			zap.String("source", string(source)),
			zap.String("liability", wad.Format(liability)),
			zap.String("lp-payout-pool", wad.Format(pool)))

		return []Event{{
			Type:    EventMarketResolved,
			Outcome: outcome,
			Amount:  liability,
			Source:  string(source),
		}}
	}, nil
}
