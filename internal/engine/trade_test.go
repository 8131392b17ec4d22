package engine

import (
	"math/big"
	"testing"
	"time"

	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMarket(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	s := snapshot(t, e, t0)

	assert.Equal(t, market.StatusTrading, s.Market.Status)
	assert.Equal(t, "144.269504088896340822", wad.Format(s.Market.B))
	assert.Equal(t, "0.5", wad.Format(s.PriceYes))
	assert.Equal(t, "0.5", wad.Format(s.PriceNo))
	assert.Equal(t, "100", wad.Format(s.Market.SubsidyPool))
	assert.Equal(t, "100", wad.Format(s.EscrowBalance))
	assert.Equal(t, "bafy-question", s.Market.MetadataHash)
	assert.Equal(t, uint64(1), s.Market.Version)
	assert.Equal(t, "9900", wad.Format(e.Balance(creator)))

	c, err := e.Contribution(marketID, creator)
	require.NoError(t, err)
	assert.Equal(t, "100", wad.Format(c.Amount))
}

func TestCreateMarket_Rejections(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)

	tests := []struct {
		name    string
		tx      Tx
		wantErr error
	}{
		{
			name:    "duplicate-id",
			tx:      Tx{Op: OpCreateMarket, Sender: alice, MarketID: marketID, Amount: wad.FromInt(100), ExpiresAt: expiry},
			wantErr: market.ErrMarketExists,
		},
		{
			name:    "below-min-subsidy",
			tx:      Tx{Op: OpCreateMarket, Sender: alice, MarketID: "m-2", Amount: wad.MustParse("9.99"), ExpiresAt: expiry},
			wantErr: market.ErrBelowMinSubsidy,
		},
		{
			name:    "expiry-in-past",
			tx:      Tx{Op: OpCreateMarket, Sender: alice, MarketID: "m-2", Amount: wad.FromInt(100), ExpiresAt: t0},
			wantErr: market.ErrInvalidArgument,
		},
		{
			name:    "missing-expiry",
			tx:      Tx{Op: OpCreateMarket, Sender: alice, MarketID: "m-2", Amount: wad.FromInt(100)},
			wantErr: market.ErrInvalidArgument,
		},
		{
			name:    "insufficient-funds",
			tx:      Tx{Op: OpCreateMarket, Sender: carol, MarketID: "m-2", Amount: wad.FromInt(10_001), ExpiresAt: expiry},
			wantErr: market.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := digest(t, e)
			_, err := e.Apply(tt.tx, t0)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, digest(t, e))
		})
	}
}

func TestBuy_WorkedExample(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)

	cost, err := e.CostToBuy(marketID, market.OutcomeYes, wad.FromInt(10))
	require.NoError(t, err)
	assert.Equal(t, "5.086626058089659674", wad.Format(cost))

	r := mustApply(t, e, buy(alice, market.OutcomeYes, "10"), t0.Add(time.Hour))
	require.Len(t, r.Events, 1)
	ev := r.Events[0]

	assert.Equal(t, EventSharesBought, ev.Type)
	assert.Equal(t, "5.243944389783154303", wad.Format(ev.Amount))
	assert.Equal(t, "0.052439443897831543", wad.Format(ev.CreatorFee))
	assert.Equal(t, "0.517321744832185253", wad.Format(ev.PriceYes))
	assert.Equal(t, "0.482678255167814747", wad.Format(ev.PriceNo))

	pos, err := e.Position(marketID, alice)
	require.NoError(t, err)
	assert.Equal(t, "10", wad.Format(pos.YesShares))

	s := snapshot(t, e, t0.Add(time.Hour))
	assert.Equal(t, "10", wad.Format(s.Market.QYes))
	assert.Equal(t, "105.086626058089659674", wad.Format(s.Market.Collateral))
	assert.Equal(t, "105.243944389783154303", wad.Format(s.EscrowBalance))
	assert.Equal(t, "9994.756055610216845697", wad.Format(e.Balance(alice)))
}

func TestFeeSplit(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	now := t0.Add(time.Hour)

	trades := []Tx{
		buy(alice, market.OutcomeYes, "10"),
		buy(bob, market.OutcomeNo, "0.000000000000000777"),
		buy(bob, market.OutcomeNo, "333.3"),
		sell(alice, market.OutcomeYes, "4.5"),
		buy(carol, market.OutcomeYes, "0.01"),
		sell(bob, market.OutcomeNo, "100"),
	}

	for _, tx := range trades {
		before := snapshot(t, e, now).Market
		r := mustApply(t, e, tx, now)
		ev := r.Events[0]
		after := snapshot(t, e, now).Market

		var gross *big.Int
		if tx.Op == OpBuy {
			gross = ev.Amount
		} else {
			gross = wad.Sub(before.Collateral, after.Collateral)
		}

		each := wad.Percent(gross, FeePercent)
		assert.Equal(t, 0, ev.CreatorFee.Cmp(each), "%s creator fee", tx.Op)
		assert.Equal(t, 0, ev.ProtocolFee.Cmp(each), "%s protocol fee", tx.Op)
		assert.Equal(t, 0, ev.LPFee.Cmp(each), "%s lp fee", tx.Op)

		total := wad.Add(wad.Add(ev.CreatorFee, ev.ProtocolFee), ev.LPFee)
		assertThreePercent(t, gross, total)
		assert.Equal(t, 0, wad.Sub(after.TotalFees(), before.TotalFees()).Cmp(total))

		// The LMSR leg sees exactly gross minus fees on a buy.
		if tx.Op == OpBuy {
			assert.Equal(t, 0, wad.Sub(after.Collateral, before.Collateral).Cmp(wad.Sub(gross, total)))
		}
	}
}

// assertThreePercent checks that total is 3% of gross, short by less than
// three wei: each of the three parts drops under one wei to flooring.
func assertThreePercent(t *testing.T, gross, total *big.Int) {
	t.Helper()

	exact := new(big.Int).Mul(gross, big.NewInt(3*FeePercent))
	shortfall := new(big.Int).Sub(exact, new(big.Int).Mul(total, big.NewInt(100)))
	assert.GreaterOrEqual(t, shortfall.Sign(), 0, "gross %s: fees %s exceed 3%%", gross, total)
	assert.Negative(t, shortfall.Cmp(big.NewInt(300)), "gross %s: fees %s short by 3 wei or more", gross, total)

	rounded := new(big.Int).Add(exact, big.NewInt(50))
	rounded.Quo(rounded, big.NewInt(100))
	diff := new(big.Int).Sub(rounded, total)
	assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(3)), 0, "gross %s: fees %s, round(3%%) %s", gross, total, rounded)
}

func TestSplitFees_SumTracksThreePercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		gross int64
		each  int64
		round int64
	}{
		{gross: 0, each: 0, round: 0},
		{gross: 99, each: 0, round: 3},
		{gross: 100, each: 1, round: 3},
		{gross: 435, each: 4, round: 13},
		{gross: 1_000, each: 10, round: 30},
		{gross: 5_244_975_317, each: 52_449_753, round: 157_349_260},
	}

	for _, tt := range tests {
		gross := big.NewInt(tt.gross)
		f := SplitFees(gross)

		assert.Equal(t, tt.each, f.Creator.Int64(), "gross %d", tt.gross)
		assert.Equal(t, tt.each, f.Protocol.Int64(), "gross %d", tt.gross)
		assert.Equal(t, tt.each, f.LP.Int64(), "gross %d", tt.gross)
		assert.Equal(t, tt.round, (3*tt.gross+50)/100, "gross %d", tt.gross)
		assertThreePercent(t, gross, f.Total())
	}

	// Whole-WAD trades lose nothing to flooring.
	g := wad.FromInt(437)
	assert.Equal(t, "13.11", wad.Format(SplitFees(g).Total()))
}

func TestGrossForNet(t *testing.T) {
	t.Parallel()

	for _, n := range []int64{0, 1, 96, 97, 98, 99, 100, 195, 196, 197, 1_000, 9_999_999, 1_000_000_007} {
		net := big.NewInt(n)
		gross, fees := GrossForNet(net)

		assert.Equal(t, 0, wad.Sub(gross, fees.Total()).Cmp(net), "net %d", n)
		assert.Equal(t, 0, fees.Creator.Cmp(wad.Percent(gross, FeePercent)), "net %d", n)

		// No smaller gross reaches the same net.
		smaller := new(big.Int).Sub(gross, big.NewInt(1))
		if smaller.Sign() >= 0 {
			f := SplitFees(smaller)
			assert.NotEqual(t, 0, wad.Sub(smaller, f.Total()).Cmp(net), "net %d", n)
		}
	}
}

func TestRoundTrip_LosesExactlyFees(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	now := t0.Add(time.Hour)
	mustApply(t, e, buy(bob, market.OutcomeNo, "42"), now)

	for _, o := range []market.Outcome{market.OutcomeYes, market.OutcomeNo} {
		startBal := e.Balance(alice)
		start := snapshot(t, e, now).Market

		rb := mustApply(t, e, buy(alice, o, "17.25"), now)
		rs := mustApply(t, e, sell(alice, o, "17.25"), now)
		end := snapshot(t, e, now).Market

		assert.Equal(t, 0, start.QYes.Cmp(end.QYes))
		assert.Equal(t, 0, start.QNo.Cmp(end.QNo))
		assert.Equal(t, 0, start.Collateral.Cmp(end.Collateral))

		feesPaid := wad.Add(
			new(big.Int).Mul(rb.Events[0].CreatorFee, big.NewInt(3)),
			new(big.Int).Mul(rs.Events[0].CreatorFee, big.NewInt(3)),
		)
		loss := wad.Sub(startBal, e.Balance(alice))
		assert.Equal(t, 0, loss.Cmp(feesPaid), "%s loss %s fees %s", o, wad.Format(loss), wad.Format(feesPaid))

		pos, err := e.Position(marketID, alice)
		require.NoError(t, err)
		assert.True(t, pos.Empty())
	}
}

func TestBuy_WorkedExampleRoundTrip(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	now := t0.Add(time.Hour)

	mustApply(t, e, buy(alice, market.OutcomeYes, "10"), now)
	r := mustApply(t, e, sell(alice, market.OutcomeYes, "10"), now)

	assert.Equal(t, "4.934027276346969886", wad.Format(r.Events[0].Amount))
	assert.Equal(t, "0.309917113436184417", wad.Format(wad.Sub(wad.FromInt(10_000), e.Balance(alice))))
}

func TestSlippage(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	now := t0.Add(time.Hour)

	tx := buy(alice, market.OutcomeYes, "10")
	tx.Limit = wad.MustParse("5.243944389783154302")
	before := digest(t, e)
	_, err := e.Apply(tx, now)
	assert.ErrorIs(t, err, market.ErrSlippageExceeded)
	assert.Equal(t, before, digest(t, e))

	tx.Limit = wad.MustParse("5.243944389783154303")
	mustApply(t, e, tx, now)

	q, err := e.QuoteSell(marketID, market.OutcomeYes, wad.FromInt(10))
	require.NoError(t, err)

	st := sell(alice, market.OutcomeYes, "10")
	st.Limit = wad.Add(q.Total, big.NewInt(1))
	_, err = e.Apply(st, now)
	assert.ErrorIs(t, err, market.ErrSlippageExceeded)

	st.Limit = q.Total
	r := mustApply(t, e, st, now)
	assert.Equal(t, 0, r.Events[0].Amount.Cmp(q.Total))
}

func TestSell_InsufficientShares(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	now := t0.Add(time.Hour)
	mustApply(t, e, buy(alice, market.OutcomeYes, "5"), now)

	tests := []struct {
		name string
		tx   Tx
	}{
		{name: "more-than-held", tx: sell(alice, market.OutcomeYes, "5.000000000000000001")},
		{name: "other-side", tx: sell(alice, market.OutcomeNo, "1")},
		{name: "no-position", tx: sell(bob, market.OutcomeYes, "1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := digest(t, e)
			_, err := e.Apply(tt.tx, now)
			assert.ErrorIs(t, err, market.ErrInsufficientShares)
			assert.Equal(t, before, digest(t, e))
		})
	}
}

func TestTrade_Rejections(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	mustApply(t, e, buy(alice, market.OutcomeYes, "5"), t0)

	tests := []struct {
		name    string
		tx      Tx
		now     time.Time
		wantErr error
	}{
		{name: "buy-after-expiry", tx: buy(bob, market.OutcomeYes, "1"), now: expiry, wantErr: market.ErrMarketExpired},
		{name: "sell-after-expiry", tx: sell(alice, market.OutcomeYes, "1"), now: expiry.Add(time.Hour), wantErr: market.ErrMarketExpired},
		{name: "zero-shares", tx: buy(bob, market.OutcomeYes, "0"), now: t0, wantErr: market.ErrInvalidArgument},
		{name: "invalid-is-not-tradable", tx: buy(bob, market.OutcomeInvalid, "1"), now: t0, wantErr: market.ErrInvalidOutcome},
		{name: "unknown-market", tx: Tx{Op: OpBuy, Sender: bob, MarketID: "nope", Outcome: market.OutcomeYes, Amount: wad.One()}, now: t0, wantErr: market.ErrMarketNotFound},
		{name: "cannot-afford", tx: buy(bob, market.OutcomeNo, "1000000"), now: t0, wantErr: market.ErrInsufficientFunds},
		{name: "unknown-op", tx: Tx{Op: "mint", Sender: bob, MarketID: marketID}, now: t0, wantErr: market.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := digest(t, e)
			_, err := e.Apply(tt.tx, tt.now)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, digest(t, e))
		})
	}
}

func TestCostToBuy_StrictlyIncreasing(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	prev := wad.Zero()
	for _, s := range []string{"0.1", "1", "2", "3", "10", "50", "500"} {
		c, err := e.CostToBuy(marketID, market.OutcomeNo, wad.MustParse(s))
		require.NoError(t, err)
		assert.Positive(t, c.Sign())
		assert.Equal(t, 1, c.Cmp(prev))
		prev = c
	}
}

func TestPrices_SumToOneThroughTrading(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	now := t0.Add(time.Hour)

	for _, tx := range []Tx{
		buy(alice, market.OutcomeYes, "31.4"),
		buy(bob, market.OutcomeNo, "2.71828"),
		sell(alice, market.OutcomeYes, "0.000001"),
		buy(carol, market.OutcomeYes, "700"),
	} {
		mustApply(t, e, tx, now)
		yes, no, err := e.Price(marketID)
		require.NoError(t, err)
		assert.Equal(t, 0, wad.Add(yes, no).Cmp(wad.One()))
	}
}

func TestAddSubsidy_PreservesPrice(t *testing.T) {
	t.Parallel()

	e := newMarketEngine(t)
	now := t0.Add(time.Hour)
	mustApply(t, e, buy(alice, market.OutcomeYes, "10"), now)

	yes0, _, err := e.Price(marketID)
	require.NoError(t, err)
	b0 := snapshot(t, e, now).Market.B

	r := mustApply(t, e, Tx{Op: OpAddSubsidy, Sender: bob, MarketID: marketID, Amount: wad.FromInt(50)}, now)
	assert.Equal(t, EventSubsidyAdded, r.Events[0].Type)

	s := snapshot(t, e, now)
	assert.Equal(t, "212.912636664656845597", wad.Format(s.Market.B))
	assert.Equal(t, 1, s.Market.B.Cmp(b0))
	assert.Equal(t, "150", wad.Format(s.Market.SubsidyPool))
	assert.Equal(t, "10", wad.Format(s.Market.OutstandingYes))

	diff := wad.Sub(s.PriceYes, yes0)
	assert.LessOrEqual(t, diff.CmpAbs(big.NewInt(1000)), 0)

	c, err := e.Contribution(marketID, bob)
	require.NoError(t, err)
	assert.Equal(t, "50", wad.Format(c.Amount))

	// The same 10 shares cost 5.259670366690752953 on the old book.
	deeper, err := e.CostToBuy(marketID, market.OutcomeYes, wad.FromInt(10))
	require.NoError(t, err)
	assert.Equal(t, "5.231819346012670215", wad.Format(deeper))

	_, err = e.Apply(Tx{Op: OpAddSubsidy, Sender: bob, MarketID: marketID, Amount: wad.FromInt(1)}, now)
	assert.ErrorIs(t, err, market.ErrBelowMinSubsidy)

	_, err = e.Apply(Tx{Op: OpAddSubsidy, Sender: bob, MarketID: marketID, Amount: wad.FromInt(50)}, expiry)
	assert.ErrorIs(t, err, market.ErrMarketExpired)
}

func TestDeposit_Disabled(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	e, err := New(&cfg)
	require.NoError(t, err)

	_, err = e.Apply(Tx{Op: OpDeposit, Sender: alice, Amount: wad.One()}, t0)
	assert.ErrorIs(t, err, market.ErrUnauthorized)
	assert.Equal(t, 0, e.Balance(alice).Sign())
}
