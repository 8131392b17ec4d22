// Package settlement enforces the market lifecycle:
//
//	Trading -> Expired -> DisputePeriod -> Resolved
//	                                   \-> Arbitration -> Resolved
//
// Every function is a pure check over a market snapshot and the operation's
// timestamp. The engine applies the returned decision.
package settlement

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/lmsr-amm/internal/arbitration"
	"github.com/mselser95/lmsr-amm/internal/market"
)

// Config holds the lifecycle windows.
type Config struct {
	// GracePeriod is how long after expiry only the creator may settle.
	GracePeriod time.Duration
	// DisputePeriod is how long a proposed outcome can be contested.
	DisputePeriod time.Duration
	// VotingWindow is the arbitration voting window.
	VotingWindow time.Duration
}

// DefaultConfig returns 24h grace, 24h dispute and 72h voting windows.
func DefaultConfig() Config {
	return Config{
		GracePeriod:   24 * time.Hour,
		DisputePeriod: 24 * time.Hour,
		VotingWindow:  arbitration.DefaultVotingWindow,
	}
}

// Validate checks every window is positive.
func (c Config) Validate() error {
	if c.GracePeriod <= 0 || c.DisputePeriod <= 0 || c.VotingWindow <= 0 {
		return fmt.Errorf("settlement windows must be positive: grace=%s dispute=%s voting=%s",
			c.GracePeriod, c.DisputePeriod, c.VotingWindow)
	}
	return nil
}

// Effective returns the status as observed at now. A Trading market whose
// expiry has passed is Expired even though nothing was written.
func Effective(status market.Status, expiresAt, now time.Time) market.Status {
	if status == market.StatusTrading && !now.Before(expiresAt) {
		return market.StatusExpired
	}
	return status
}

// CanTrade rejects trades on a market that is not open at now.
func CanTrade(m *market.Market, now time.Time) error {
	switch Effective(m.Status, m.ExpiresAt, now) {
	case market.StatusTrading:
		return nil
	case market.StatusExpired:
		return market.NewError(market.KindMarketExpired, m.ID, "trading closed at "+m.ExpiresAt.UTC().Format(time.RFC3339))
	case market.StatusPending, market.StatusDisputePeriod, market.StatusArbitration, market.StatusResolved:
	}
	return market.NewError(market.KindMarketNotTrading, m.ID, "market is "+m.Status.String())
}

// Proposal is an accepted creator (or forced) settlement.
type Proposal struct {
	Outcome         market.Outcome
	DisputeDeadline time.Time
	// Forced is set when a non-creator settled after the grace period.
	Forced bool
}

// Settle checks settleMarket(outcome) by caller. Within the grace period
// only the creator may settle. After it anyone may, but only to INVALID.
func (c Config) Settle(m *market.Market, caller common.Address, outcome market.Outcome, now time.Time) (Proposal, error) {
	if st := Effective(m.Status, m.ExpiresAt, now); st != market.StatusExpired {
		return Proposal{}, market.NewError(market.KindInvalidTransition, m.ID, "cannot settle a market that is "+st.String())
	}
	if !outcome.Settleable() {
		return Proposal{}, market.NewError(market.KindInvalidOutcome, m.ID, "settlement must be YES, NO or INVALID")
	}

	graceEnds := m.ExpiresAt.Add(c.GracePeriod)
	if now.Before(graceEnds) {
		if caller != m.Creator {
			return Proposal{}, market.NewError(market.KindNotCreator, m.ID, "only the creator may settle before "+graceEnds.UTC().Format(time.RFC3339))
		}
		return Proposal{Outcome: outcome, DisputeDeadline: now.Add(c.DisputePeriod)}, nil
	}

	if outcome != market.OutcomeInvalid {
		return Proposal{}, market.NewError(market.KindInvalidOutcome, m.ID, "after the grace period a market can only settle INVALID")
	}
	return Proposal{Outcome: outcome, DisputeDeadline: now.Add(c.DisputePeriod), Forced: caller != m.Creator}, nil
}

// Dispute checks dispute(outcome, fee) and returns the voting deadline of
// the case it would open.
func (c Config) Dispute(m *market.Market, outcome market.Outcome, fee, minFee *big.Int, now time.Time) (time.Time, error) {
	switch m.Status {
	case market.StatusDisputePeriod:
	case market.StatusArbitration:
		return time.Time{}, market.NewError(market.KindAlreadyDisputed, m.ID, "an arbitration case is already open")
	case market.StatusPending, market.StatusTrading, market.StatusExpired, market.StatusResolved:
		return time.Time{}, market.NewError(market.KindInvalidTransition, m.ID, "no settlement to dispute")
	}

	if !now.Before(m.DisputeDeadline) {
		return time.Time{}, market.NewError(market.KindDisputePeriodOver, m.ID, "dispute window closed at "+m.DisputeDeadline.UTC().Format(time.RFC3339))
	}
	if !outcome.Settleable() || outcome == m.ProposedOutcome {
		return time.Time{}, market.NewError(market.KindInvalidOutcome, m.ID, "disputed outcome must differ from "+m.ProposedOutcome.String())
	}
	if fee == nil || fee.Cmp(minFee) < 0 {
		return time.Time{}, market.NewError(market.KindFeeTooLow, m.ID, "arbitration fee below minimum")
	}
	return now.Add(c.VotingWindow), nil
}

// Finalize checks finalizeAfterDisputePeriod and returns the final outcome.
func (c Config) Finalize(m *market.Market, now time.Time) (market.Outcome, error) {
	if m.Status != market.StatusDisputePeriod {
		return market.OutcomeUnset, market.NewError(market.KindInvalidTransition, m.ID, "cannot finalize a market that is "+m.Status.String())
	}
	if now.Before(m.DisputeDeadline) {
		return market.OutcomeUnset, market.NewError(market.KindDisputePeriodActive, m.ID, "dispute window open until "+m.DisputeDeadline.UTC().Format(time.RFC3339))
	}
	return m.ProposedOutcome, nil
}

// Source names how an arbitration case was decided.
type Source string

const (
	SourceUndisputed     Source = "undisputed"
	SourceArbitration    Source = "arbitration"
	SourceQuorumFallback Source = "quorum-fallback"
)

// Resolution is a decided arbitration case.
type Resolution struct {
	Outcome market.Outcome
	Source  Source
	Tally   arbitration.Result
}

// ResolveArbitration checks resolveFromArbitration.
//
// Before the voting deadline it fails with QuorumNotMet. At or after it, a
// case with quorum resolves to the tally winner. Without quorum voting is
// extended once by another window; when that also ends without quorum the
// creator's proposed outcome stands.
func (c Config) ResolveArbitration(m *market.Market, cs *arbitration.Case, now time.Time) (Resolution, error) {
	if m.Status != market.StatusArbitration || cs == nil {
		return Resolution{}, market.NewError(market.KindInvalidTransition, m.ID, "market is not in arbitration")
	}
	if now.Before(cs.VotingDeadline) {
		return Resolution{}, market.NewError(market.KindQuorumNotMet, m.ID, "voting open until "+cs.VotingDeadline.UTC().Format(time.RFC3339))
	}

	tally := cs.Tally()
	if tally.QuorumMet {
		return Resolution{Outcome: tally.Winner, Source: SourceArbitration, Tally: tally}, nil
	}
	if now.Before(cs.FinalDeadline()) {
		return Resolution{}, market.NewError(market.KindQuorumNotMet, m.ID,
			fmt.Sprintf("cast %s of %s required, voting extended until %s",
				tally.Cast, tally.Threshold, cs.FinalDeadline().UTC().Format(time.RFC3339)))
	}
	return Resolution{Outcome: m.ProposedOutcome, Source: SourceQuorumFallback, Tally: tally}, nil
}

// CanVote checks castVote at now.
func CanVote(m *market.Market, cs *arbitration.Case, now time.Time) error {
	if m.Status != market.StatusArbitration || cs == nil {
		return market.NewError(market.KindInvalidTransition, m.ID, "market is not in arbitration")
	}
	if !cs.VotingOpen(now) {
		return market.NewError(market.KindVotingClosed, m.ID, "voting has closed")
	}
	return nil
}

// CanClaim rejects payouts before resolution.
func CanClaim(m *market.Market) error {
	if !m.Resolved() {
		return market.NewError(market.KindInvalidTransition, m.ID, "market is not resolved")
	}
	return nil
}
