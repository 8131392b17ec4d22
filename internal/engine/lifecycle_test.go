package engine

import (
	"testing"
	"time"

	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/internal/settlement"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tradedEngine has alice on 10 YES, bob on 6 NO and carol on 3 YES.
func tradedEngine(t *testing.T) *Engine {
	t.Helper()

	e := newMarketEngine(t)
	now := t0.Add(time.Hour)
	mustApply(t, e, buy(alice, market.OutcomeYes, "10"), now)
	mustApply(t, e, buy(bob, market.OutcomeNo, "6"), now)
	mustApply(t, e, buy(carol, market.OutcomeYes, "3"), now)
	return e
}

func settledEngine(t *testing.T, outcome market.Outcome) (*Engine, time.Time) {
	t.Helper()

	e := tradedEngine(t)
	at := expiry.Add(time.Hour)
	mustApply(t, e, withOutcome(op(OpSettleMarket, creator), outcome), at)
	return e, at.Add(24 * time.Hour)
}

func TestEffectiveStatus_ExpiresWithoutWrite(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	s := snapshot(t, e, expiry)
	assert.Equal(t, market.StatusTrading, s.Market.Status)
	assert.Equal(t, market.StatusExpired, s.EffectiveStatus)
}

func TestSettle_GracePeriod(t *testing.T) {
	t.Parallel()

	e := tradedEngine(t)
	inGrace := expiry.Add(23 * time.Hour)
	afterGrace := expiry.Add(24 * time.Hour)

	_, err := e.Apply(withOutcome(op(OpSettleMarket, bob), market.OutcomeInvalid), inGrace)
	assert.ErrorIs(t, err, market.ErrNotCreator)

	_, err = e.Apply(withOutcome(op(OpSettleMarket, bob), market.OutcomeNo), afterGrace)
	assert.ErrorIs(t, err, market.ErrInvalidOutcome)

	_, err = e.Apply(withOutcome(op(OpSettleMarket, creator), market.OutcomeYes), expiry.Add(-time.Second))
	assert.ErrorIs(t, err, market.ErrInvalidTransition)

	r := mustApply(t, e, withOutcome(op(OpSettleMarket, bob), market.OutcomeInvalid), afterGrace)
	ev := r.Events[0]
	assert.Equal(t, EventCreatorSettlementProposed, ev.Type)
	assert.Equal(t, "forced", ev.Source)
	assert.Equal(t, afterGrace.Add(24*time.Hour), ev.Deadline)

	s := snapshot(t, e, afterGrace)
	assert.Equal(t, market.StatusDisputePeriod, s.Market.Status)
	assert.Equal(t, market.OutcomeInvalid, s.Market.ProposedOutcome)
	assert.Equal(t, bob, s.Market.ProposedBy)

	_, err = e.Apply(withOutcome(op(OpSettleMarket, creator), market.OutcomeInvalid), afterGrace)
	assert.ErrorIs(t, err, market.ErrInvalidTransition)
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	e, deadline := settledEngine(t, market.OutcomeYes)

	_, err := e.Apply(op(OpFinalize, alice), deadline.Add(-time.Second))
	assert.ErrorIs(t, err, market.ErrDisputePeriodActive)

	_, err = e.Apply(op(OpClaimWinnings, alice), deadline.Add(-time.Second))
	assert.ErrorIs(t, err, market.ErrInvalidTransition)

	r := mustApply(t, e, op(OpFinalize, alice), deadline)
	ev := r.Events[0]
	assert.Equal(t, EventMarketResolved, ev.Type)
	assert.Equal(t, market.OutcomeYes, ev.Outcome)
	assert.Equal(t, string(settlement.SourceUndisputed), ev.Source)
	assert.Equal(t, "13", wad.Format(ev.Amount))

	s := snapshot(t, e, deadline)
	assert.Equal(t, market.StatusResolved, s.Market.Status)
	assert.Equal(t, market.OutcomeYes, s.Market.FinalOutcome)

	_, err = e.Apply(op(OpFinalize, alice), deadline)
	assert.ErrorIs(t, err, market.ErrInvalidTransition)
	_, err = e.Apply(withOutcome(op(OpDispute, bob), market.OutcomeNo), deadline)
	assert.ErrorIs(t, err, market.ErrInvalidTransition)
}

func TestDispute(t *testing.T) {
	t.Parallel()

	e, deadline := settledEngine(t, market.OutcomeYes)

	late := withOutcome(op(OpDispute, bob), market.OutcomeNo)
	late.Amount = wad.FromInt(10)
	_, err := e.Apply(late, deadline)
	assert.ErrorIs(t, err, market.ErrDisputePeriodOver)

	cheap := withOutcome(op(OpDispute, bob), market.OutcomeNo)
	cheap.Amount = wad.MustParse("9.5")
	_, err = e.Apply(cheap, deadline.Add(-time.Hour))
	assert.ErrorIs(t, err, market.ErrFeeTooLow)

	same := withOutcome(op(OpDispute, bob), market.OutcomeYes)
	same.Amount = wad.FromInt(10)
	_, err = e.Apply(same, deadline.Add(-time.Hour))
	assert.ErrorIs(t, err, market.ErrInvalidOutcome)

	protocolBefore := snapshot(t, e, deadline).Market.ProtocolFeeAccrued
	ok := withOutcome(op(OpDispute, bob), market.OutcomeNo)
	ok.Amount = wad.FromInt(10)
	now := deadline.Add(-time.Hour)
	r := mustApply(t, e, ok, now)
	assert.Equal(t, EventOutcomeDisputed, r.Events[0].Type)
	assert.Equal(t, now.Add(72*time.Hour), r.Events[0].Deadline)

	s := snapshot(t, e, now)
	assert.Equal(t, market.StatusArbitration, s.Market.Status)
	require.NotNil(t, s.Arbitration)
	assert.Equal(t, "19", wad.Format(s.Arbitration.TotalEligible))
	assert.Equal(t, "3.8", wad.Format(s.Arbitration.QuorumThreshold()))
	assert.Equal(t, 0, wad.Sub(s.Market.ProtocolFeeAccrued, protocolBefore).Cmp(wad.FromInt(10)))

	_, err = e.Apply(ok, now)
	assert.ErrorIs(t, err, market.ErrAlreadyDisputed)

	_, err = e.Apply(op(OpFinalize, alice), deadline.Add(time.Hour))
	assert.ErrorIs(t, err, market.ErrInvalidTransition)
}

func disputedEngine(t *testing.T) (*Engine, time.Time) {
	t.Helper()

	e, deadline := settledEngine(t, market.OutcomeYes)
	d := withOutcome(op(OpDispute, bob), market.OutcomeNo)
	d.Amount = wad.FromInt(10)
	opened := deadline.Add(-time.Hour)
	mustApply(t, e, d, opened)
	return e, opened.Add(72 * time.Hour)
}

func TestArbitration_OverridesSettlement(t *testing.T) {
	t.Parallel()

	e, votingDeadline := disputedEngine(t)
	during := votingDeadline.Add(-time.Hour)

	_, err := e.Apply(withOutcome(op(OpCastVote, creator), market.OutcomeYes), during)
	assert.ErrorIs(t, err, market.ErrNotEligible)

	mustApply(t, e, withOutcome(op(OpCastVote, bob), market.OutcomeNo), during)
	mustApply(t, e, withOutcome(op(OpCastVote, carol), market.OutcomeYes), during)
	// carol changes her mind; her weight moves rather than doubling.
	r := mustApply(t, e, withOutcome(op(OpCastVote, carol), market.OutcomeNo), during)
	assert.Equal(t, "3", wad.Format(r.Events[0].Amount))

	_, err = e.Apply(op(OpResolveFromArbitration, alice), during)
	assert.ErrorIs(t, err, market.ErrQuorumNotMet)

	tally := snapshot(t, e, during).Arbitration.Tally()
	assert.Equal(t, "9", wad.Format(tally.Weights[market.OutcomeNo]))
	assert.Equal(t, 0, tally.Weights[market.OutcomeYes].Sign())

	r = mustApply(t, e, op(OpResolveFromArbitration, alice), votingDeadline)
	assert.Equal(t, market.OutcomeNo, r.Events[0].Outcome)
	assert.Equal(t, string(settlement.SourceArbitration), r.Events[0].Source)

	s := snapshot(t, e, votingDeadline)
	assert.Equal(t, market.OutcomeNo, s.Market.FinalOutcome)
	assert.Nil(t, s.Arbitration)

	_, err = e.Apply(withOutcome(op(OpCastVote, bob), market.OutcomeNo), votingDeadline)
	assert.ErrorIs(t, err, market.ErrInvalidTransition)
}

func TestArbitration_InvalidCanWin(t *testing.T) {
	t.Parallel()

	e, votingDeadline := disputedEngine(t)
	during := votingDeadline.Add(-time.Hour)

	mustApply(t, e, withOutcome(op(OpCastVote, bob), market.OutcomeNo), during)
	mustApply(t, e, withOutcome(op(OpCastVote, carol), market.OutcomeYes), during)
	mustApply(t, e, withOutcome(op(OpCastVote, alice), market.OutcomeInvalid), during)

	r := mustApply(t, e, op(OpResolveFromArbitration, bob), votingDeadline)
	assert.Equal(t, market.OutcomeInvalid, r.Events[0].Outcome)
}

func TestArbitration_TieResolvesInvalid(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	mustApply(t, e, buy(alice, market.OutcomeYes, "4"), t0)
	mustApply(t, e, buy(bob, market.OutcomeNo, "4"), t0)
	mustApply(t, e, withOutcome(op(OpSettleMarket, creator), market.OutcomeYes), expiry)

	opened := expiry.Add(time.Hour)
	d := withOutcome(op(OpDispute, bob), market.OutcomeNo)
	d.Amount = wad.FromInt(10)
	mustApply(t, e, d, opened)

	mustApply(t, e, withOutcome(op(OpCastVote, alice), market.OutcomeYes), opened)
	mustApply(t, e, withOutcome(op(OpCastVote, bob), market.OutcomeNo), opened)

	r := mustApply(t, e, op(OpResolveFromArbitration, carol), opened.Add(72*time.Hour))
	assert.Equal(t, market.OutcomeInvalid, r.Events[0].Outcome)
	assert.Equal(t, "4", wad.Format(r.Events[0].Amount))
}

func TestArbitration_QuorumFallback(t *testing.T) {
	t.Parallel()

	e, votingDeadline := disputedEngine(t)
	finalDeadline := votingDeadline.Add(72 * time.Hour)

	_, err := e.Apply(op(OpResolveFromArbitration, alice), votingDeadline)
	assert.ErrorIs(t, err, market.ErrQuorumNotMet)

	// Voting stays open during the extension while quorum is missing.
	require.NoError(t, e.Validate(withOutcome(op(OpCastVote, carol), market.OutcomeNo), votingDeadline.Add(time.Hour)))

	_, err = e.Apply(op(OpResolveFromArbitration, alice), finalDeadline.Add(-time.Second))
	assert.ErrorIs(t, err, market.ErrQuorumNotMet)

	_, err = e.Apply(withOutcome(op(OpCastVote, carol), market.OutcomeNo), finalDeadline)
	assert.ErrorIs(t, err, market.ErrVotingClosed)

	r := mustApply(t, e, op(OpResolveFromArbitration, alice), finalDeadline)
	assert.Equal(t, market.OutcomeYes, r.Events[0].Outcome)
	assert.Equal(t, string(settlement.SourceQuorumFallback), r.Events[0].Source)
}

func TestArbitration_LateQuorumInExtension(t *testing.T) {
	t.Parallel()

	e, votingDeadline := disputedEngine(t)
	late := votingDeadline.Add(10 * time.Hour)

	mustApply(t, e, withOutcome(op(OpCastVote, alice), market.OutcomeNo), late)
	_, err := e.Apply(withOutcome(op(OpCastVote, bob), market.OutcomeNo), late)
	assert.ErrorIs(t, err, market.ErrVotingClosed, "quorum reached, extension closes")

	r := mustApply(t, e, op(OpResolveFromArbitration, alice), late)
	assert.Equal(t, market.OutcomeNo, r.Events[0].Outcome)
}

func TestInsufficientFunds_NamesMarket(t *testing.T) {
	t.Parallel()

	settled, deadline := settledEngine(t, market.OutcomeYes)
	dispute := withOutcome(op(OpDispute, bob), market.OutcomeNo)
	dispute.Amount = wad.FromInt(20_000)

	tests := []struct {
		name     string
		e        *Engine
		tx       Tx
		now      time.Time
		marketID string
	}{
		{
			name:     "create",
			e:        newTestEngine(t),
			tx:       Tx{Op: OpCreateMarket, Sender: carol, MarketID: "m-2", Amount: wad.FromInt(10_001), ExpiresAt: expiry},
			now:      t0,
			marketID: "m-2",
		},
		{name: "buy", e: newMarketEngine(t), tx: buy(bob, market.OutcomeNo, "1000000"), now: t0, marketID: marketID},
		{name: "dispute", e: settled, tx: dispute, now: deadline.Add(-time.Hour), marketID: marketID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.e.Apply(tt.tx, tt.now)
			require.ErrorIs(t, err, market.ErrInsufficientFunds)

			var me *market.Error
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.marketID, me.MarketID)
			assert.Contains(t, err.Error(), "market "+tt.marketID+":")
		})
	}
}
