package engine

import (
	"github.com/mselser95/lmsr-amm/internal/bank"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/internal/settlement"
	"github.com/mselser95/lmsr-amm/pkg/wad"
)

func (e *Engine) resolvedEntry(tx *Tx) (*entry, error) {
	ent, err := e.lookup(tx.MarketID)
	if err != nil {
		return nil, err
	}
	if err := settlement.CanClaim(ent.market); err != nil {
		return nil, err
	}
	return ent, nil
}

func (e *Engine) prepareClaimWinnings(tx *Tx) (commitFunc, error) {
	ent, err := e.resolvedEntry(tx)
	if err != nil {
		return nil, err
	}
	m := ent.market

	pos, ok := ent.positions[tx.Sender]
	if !ok {
		return nil, market.NewError(market.KindNothingToClaim, m.ID, "no position for "+tx.Sender.Hex())
	}
	payout, err := m.FinalOutcome.Payout(pos.YesShares, pos.NoShares)
	if err != nil {
		return nil, market.Wrap(market.KindInvalidOutcome, m.ID, err)
	}

	leg := bank.Move{From: bank.EscrowAddress(m.ID), To: tx.Sender, Amount: payout}
	if err := e.checkMoves(tx.MarketID, leg); err != nil {
		return nil, err
	}

	return func() []Event {
		m.Collateral = wad.Sub(m.Collateral, payout)
		delete(ent.positions, tx.Sender)
		e.move(leg)

		return []Event{{
			Type:    EventWinningsClaimed,
			Outcome: m.FinalOutcome,
			Shares:  pos.Total(),
			Amount:  payout,
		}}
	}, nil
}

func (e *Engine) prepareClaimCreatorFee(tx *Tx) (commitFunc, error) {
	ent, err := e.resolvedEntry(tx)
	if err != nil {
		return nil, err
	}
	m := ent.market

	if tx.Sender != m.Creator {
		return nil, market.NewError(market.KindNotCreator, m.ID, "only the creator may claim creator fees")
	}
	if m.CreatorFeeClaimed || m.CreatorFeeAccrued.Sign() == 0 {
		return nil, market.NewError(market.KindNothingToClaim, m.ID, "no creator fees to claim")
	}

	amount := wad.Copy(m.CreatorFeeAccrued)
	leg := bank.Move{From: bank.EscrowAddress(m.ID), To: tx.Sender, Amount: amount}
	if err := e.checkMoves(tx.MarketID, leg); err != nil {
		return nil, err
	}

	return func() []Event {
		m.CreatorFeeClaimed = true
		e.move(leg)
		return []Event{{Type: EventCreatorFeeClaimed, Amount: amount}}
	}, nil
}

func (e *Engine) prepareClaimProtocolFee(tx *Tx) (commitFunc, error) {
	ent, err := e.resolvedEntry(tx)
	if err != nil {
		return nil, err
	}
	m := ent.market

	if tx.Sender != e.cfg.ProtocolTreasury {
		return nil, market.NewError(market.KindUnauthorized, m.ID, "only the protocol treasury may claim protocol fees")
	}
	if m.ProtocolFeeClaimed || m.ProtocolFeeAccrued.Sign() == 0 {
		return nil, market.NewError(market.KindNothingToClaim, m.ID, "no protocol fees to claim")
	}

	amount := wad.Copy(m.ProtocolFeeAccrued)
	leg := bank.Move{From: bank.EscrowAddress(m.ID), To: tx.Sender, Amount: amount}
	if err := e.checkMoves(tx.MarketID, leg); err != nil {
		return nil, err
	}

	return func() []Event {
		m.ProtocolFeeClaimed = true
		e.move(leg)
		return []Event{{Type: EventProtocolFeeClaimed, Amount: amount}}
	}, nil
}

// prepareClaimSubsidy pays a provider its pro-rata share of the LP payout
// pool, rounded down.
func (e *Engine) prepareClaimSubsidy(tx *Tx) (commitFunc, error) {
	ent, err := e.resolvedEntry(tx)
	if err != nil {
		return nil, err
	}
	m := ent.market

	c, ok := ent.contributions[tx.Sender]
	if !ok || c.Claimed {
		return nil, market.NewError(market.KindNothingToClaim, m.ID, "no unclaimed contribution for "+tx.Sender.Hex())
	}

	share, err := wad.MulDiv(m.LPPayoutPool, c.Amount, m.SubsidyPool, wad.Down)
	if err != nil {
		return nil, market.Wrap(market.KindDomainError, m.ID, err)
	}

	leg := bank.Move{From: bank.EscrowAddress(m.ID), To: tx.Sender, Amount: share}
	if err := e.checkMoves(tx.MarketID, leg); err != nil {
		return nil, err
	}

	return func() []Event {
		c.Claimed = true
		e.move(leg)
		return []Event{{Type: EventSubsidyClaimed, Amount: share}}
	}, nil
}
