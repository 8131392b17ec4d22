// Package arbitration tallies stakeholder votes on a disputed settlement.
package arbitration

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/mselser95/lmsr-amm/internal/market"
)

const (
	// QuorumPercent is the share of eligible weight that must vote.
	QuorumPercent = 20

	// DefaultVotingWindow is how long a case accepts votes.
	DefaultVotingWindow = 72 * time.Hour
)

// Vote is one voter's current ballot. Re-voting replaces it.
type Vote struct {
	Voter   common.Address `json:"voter"`
	Outcome market.Outcome `json:"outcome"`
	Weight  *big.Int       `json:"weight"`
	CastAt  time.Time      `json:"cast_at"`
}

// Case is an open dispute on one market.
type Case struct {
	MarketID        string         `json:"market_id"`
	Disputer        common.Address `json:"disputer"`
	ProposedOutcome market.Outcome `json:"proposed_outcome"`
	DisputedOutcome market.Outcome `json:"disputed_outcome"`
	Fee             *big.Int       `json:"fee"`
	OpenedAt        time.Time      `json:"opened_at"`
	VotingDeadline  time.Time      `json:"voting_deadline"`
	VotingWindow    time.Duration  `json:"voting_window"`

	// TotalEligible is the combined share supply when the case opened.
	// Shares cannot move after expiry, so it stays exact.
	TotalEligible *big.Int `json:"total_eligible"`

	votes map[common.Address]Vote
}

// Open starts a case whose voting window begins at now.
func Open(
	marketID string,
	disputer common.Address,
	proposed, disputed market.Outcome,
	fee, totalEligible *big.Int,
	now time.Time,
	window time.Duration,
) *Case {
	return &Case{
		MarketID:        marketID,
		Disputer:        disputer,
		ProposedOutcome: proposed,
		DisputedOutcome: disputed,
		Fee:             new(big.Int).Set(fee),
		OpenedAt:        now,
		VotingDeadline:  now.Add(window),
		VotingWindow:    window,
		TotalEligible:   new(big.Int).Set(totalEligible),
		votes:           make(map[common.Address]Vote),
	}
}

// FinalDeadline is the end of the single extension granted when quorum is
// not reached by VotingDeadline.
func (c *Case) FinalDeadline() time.Time {
	return c.VotingDeadline.Add(c.VotingWindow)
}

// QuorumThreshold is ceil(20% of eligible weight), and at least one unit so
// a case with no eligible voters never reaches quorum.
func (c *Case) QuorumThreshold() *big.Int {
	q := new(big.Int).Mul(c.TotalEligible, big.NewInt(QuorumPercent))
	q.Add(q, big.NewInt(99))
	q.Div(q, big.NewInt(100))
	if q.Sign() == 0 {
		q.SetInt64(1)
	}
	return q
}

// VotingOpen reports whether a ballot cast at now counts. After the regular
// deadline voting continues only while quorum is still missing.
func (c *Case) VotingOpen(now time.Time) bool {
	if now.Before(c.VotingDeadline) {
		return true
	}
	return now.Before(c.FinalDeadline()) && !c.Tally().QuorumMet
}

// CastVote records or replaces voter's ballot. The caller supplies the
// weight and checks the window.
func (c *Case) CastVote(voter common.Address, weight *big.Int, outcome market.Outcome, now time.Time) error {
	if !outcome.Settleable() {
		return market.NewError(market.KindInvalidOutcome, c.MarketID, "vote must be YES, NO or INVALID")
	}
	if weight == nil || weight.Sign() <= 0 {
		return market.NewError(market.KindNotEligible, c.MarketID, "voter holds no shares")
	}
	c.votes[voter] = Vote{Voter: voter, Outcome: outcome, Weight: new(big.Int).Set(weight), CastAt: now}
	return nil
}

// Vote returns voter's current ballot.
func (c *Case) Vote(voter common.Address) (Vote, bool) {
	v, ok := c.votes[voter]
	return v, ok
}

// Votes returns all ballots ordered by voter address.
func (c *Case) Votes() []Vote {
	out := make([]Vote, 0, len(c.votes))
	for _, addr := range market.SortedAddresses(c.votes) {
		out = append(out, c.votes[addr])
	}
	return out
}

// Result is the outcome of a tally.
type Result struct {
	Weights   map[market.Outcome]*big.Int
	Cast      *big.Int
	Threshold *big.Int
	QuorumMet bool
	// Winner has the greatest weight; a tie at the top is INVALID.
	Winner market.Outcome
}

// Tally sums the current ballots. It does not modify the case.
func (c *Case) Tally() Result {
	res := Result{
		Weights: map[market.Outcome]*big.Int{
			market.OutcomeYes:     new(big.Int),
			market.OutcomeNo:      new(big.Int),
			market.OutcomeInvalid: new(big.Int),
		},
		Cast:      new(big.Int),
		Threshold: c.QuorumThreshold(),
		Winner:    market.OutcomeInvalid,
	}

	for _, v := range c.votes {
		res.Weights[v.Outcome].Add(res.Weights[v.Outcome], v.Weight)
		res.Cast.Add(res.Cast, v.Weight)
	}
	res.QuorumMet = res.Cast.Cmp(res.Threshold) >= 0

	best := new(big.Int)
	tied := false
	for _, o := range []market.Outcome{market.OutcomeYes, market.OutcomeNo, market.OutcomeInvalid} {
		switch w := res.Weights[o]; w.Cmp(best) {
		case 1:
			best, res.Winner, tied = w, o, false
		case 0:
			tied = true
		}
	}
	if tied || best.Sign() == 0 {
		res.Winner = market.OutcomeInvalid
	}
	return res
}

// Clone returns a deep copy.
func (c *Case) Clone() *Case {
	out := *c
	out.Fee = new(big.Int).Set(c.Fee)
	out.TotalEligible = new(big.Int).Set(c.TotalEligible)
	out.votes = make(map[common.Address]Vote, len(c.votes))
	for k, v := range c.votes {
		v.Weight = new(big.Int).Set(v.Weight)
		out.votes[k] = v
	}
	return &out
}

// MarshalJSON includes the ballots in voter order.
func (c *Case) MarshalJSON() ([]byte, error) {
	type plain Case
	return json.Marshal(struct {
		*plain
		Votes []Vote `json:"votes"`
	}{plain: (*plain)(c), Votes: c.Votes()})
}
