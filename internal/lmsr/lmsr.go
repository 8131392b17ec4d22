// Package lmsr prices binary markets with the logarithmic market scoring rule.
//
// All functions are pure: they take a State by value, never mutate the big
// integers inside it and return freshly allocated results. Every evaluation
// of the cost function uses the same rounding, so the cost of a buy and the
// payout of the matching sell are exact mirrors of each other.
package lmsr

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/pkg/wad"
)

var (
	// ErrInvalidShares is returned for a non-positive share amount.
	ErrInvalidShares = errors.New("share amount must be positive")
	// ErrInvalidLiquidity is returned for a non-positive b or subsidy.
	ErrInvalidLiquidity = errors.New("liquidity must be positive")
	// ErrZeroDelta is returned when a trade is too small to move the cost.
	ErrZeroDelta = errors.New("trade size rounds to zero")
	// ErrUntradable is returned for an outcome without shares.
	ErrUntradable = errors.New("outcome is not tradable")
)

// maxAdjustSteps bounds the collateral correction loops of InitialB and Rescale.
const maxAdjustSteps = 16

// State is the LMSR position vector and liquidity parameter of one market.
type State struct {
	QYes *big.Int
	QNo  *big.Int
	B    *big.Int
}

// FromMarket extracts the pricing state of m.
func FromMarket(m *market.Market) State {
	return State{QYes: m.QYes, QNo: m.QNo, B: m.B}
}

// Shift returns s with delta added to the outcome's position.
func (s State) Shift(o market.Outcome, delta *big.Int) (State, error) {
	switch o {
	case market.OutcomeYes:
		return State{QYes: wad.Add(s.QYes, delta), QNo: s.QNo, B: s.B}, nil
	case market.OutcomeNo:
		return State{QYes: s.QYes, QNo: wad.Add(s.QNo, delta), B: s.B}, nil
	case market.OutcomeInvalid, market.OutcomeUnset:
	}
	return State{}, fmt.Errorf("%w: %s", ErrUntradable, o)
}

// Cost evaluates C(q) = b*ln(exp(qYes/b) + exp(qNo/b)) in its overflow-free
// form max(qYes, qNo) + b*ln(1 + exp(-|qYes-qNo|/b)).
func Cost(s State) (*big.Int, error) {
	if !wad.IsPositive(s.B) {
		return nil, ErrInvalidLiquidity
	}

	spread := new(big.Int).Sub(s.QYes, s.QNo)
	spread.Abs(spread)
	t, err := wad.DivDown(spread, s.B)
	if err != nil {
		return nil, err
	}

	e, err := wad.Exp(t.Neg(t), wad.Down)
	if err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}
	l, err := wad.Ln(e.Add(e, wad.One()), wad.Down)
	if err != nil {
		return nil, fmt.Errorf("cost: %w", err)
	}

	c := wad.MulDown(s.B, l)
	return c.Add(c, wad.Max(s.QYes, s.QNo)), nil
}

// Prices returns the instantaneous YES and NO prices. They sum to exactly
// 1 WAD: the cheaper side is computed and the other is its complement.
func Prices(s State) (yes, no *big.Int, err error) {
	if !wad.IsPositive(s.B) {
		return nil, nil, ErrInvalidLiquidity
	}

	t, err := wad.DivDown(wad.Sub(s.QYes, s.QNo), s.B)
	if err != nil {
		return nil, nil, err
	}

	if t.Sign() >= 0 {
		low, err := logistic(t.Neg(t))
		if err != nil {
			return nil, nil, err
		}
		return wad.Sub(wad.One(), low), low, nil
	}

	low, err := logistic(t)
	if err != nil {
		return nil, nil, err
	}
	return low, wad.Sub(wad.One(), low), nil
}

// logistic returns e^x/(1+e^x) for x <= 0.
func logistic(x *big.Int) (*big.Int, error) {
	e, err := wad.Exp(x, wad.Down)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	return wad.DivDown(e, wad.Add(wad.One(), e))
}

// Price returns the price of a single tradable outcome.
func Price(s State, o market.Outcome) (*big.Int, error) {
	yes, no, err := Prices(s)
	if err != nil {
		return nil, err
	}
	switch o {
	case market.OutcomeYes:
		return yes, nil
	case market.OutcomeNo:
		return no, nil
	case market.OutcomeInvalid, market.OutcomeUnset:
	}
	return nil, fmt.Errorf("%w: %s", ErrUntradable, o)
}

// CostToBuy returns C(q + shares on o) - C(q). The result is always positive.
func CostToBuy(s State, o market.Outcome, shares *big.Int) (*big.Int, error) {
	if !wad.IsPositive(shares) {
		return nil, ErrInvalidShares
	}
	after, err := s.Shift(o, shares)
	if err != nil {
		return nil, err
	}
	return costDelta(after, s)
}

// PayoutForSell returns C(q) - C(q - shares on o). The caller checks that
// the seller holds the shares.
func PayoutForSell(s State, o market.Outcome, shares *big.Int) (*big.Int, error) {
	if !wad.IsPositive(shares) {
		return nil, ErrInvalidShares
	}
	after, err := s.Shift(o, new(big.Int).Neg(shares))
	if err != nil {
		return nil, err
	}
	return costDelta(s, after)
}

func costDelta(hi, lo State) (*big.Int, error) {
	ch, err := Cost(hi)
	if err != nil {
		return nil, err
	}
	cl, err := Cost(lo)
	if err != nil {
		return nil, err
	}
	d := ch.Sub(ch, cl)
	if d.Sign() <= 0 {
		return nil, ErrZeroDelta
	}
	return d, nil
}

// InitialB returns the liquidity parameter for a fresh market funded with
// subsidy: the largest b with C(0, 0) <= subsidy, approximately subsidy/ln2.
func InitialB(subsidy *big.Int) (*big.Int, error) {
	if !wad.IsPositive(subsidy) {
		return nil, ErrInvalidLiquidity
	}
	b, err := wad.DivDown(subsidy, wad.LnTwo())
	if err != nil {
		return nil, err
	}

	zero := State{QYes: wad.Zero(), QNo: wad.Zero()}
	for range maxAdjustSteps {
		zero.B = b
		c, err := Cost(zero)
		if err != nil {
			return nil, err
		}
		if c.Cmp(subsidy) <= 0 {
			return b, nil
		}
		b = wad.Sub(b, new(big.Int).Sub(c, subsidy))
		if b.Sign() <= 0 {
			break
		}
	}
	return nil, fmt.Errorf("%w: no liquidity parameter fits subsidy %s", wad.ErrDomain, wad.Format(subsidy))
}

// Rescale returns the state after amount of liquidity is added to a market
// whose collateral is cash.
//
// q and b are multiplied by r = (C(q)+amount)/C(q). C is homogeneous, so the
// new cost is C(q)+amount and prices are unchanged up to rounding. If the
// rounded cost would exceed the new collateral, q is shifted down on both
// sides (no further than its previous value) and then b is trimmed. b never
// decreases.
func Rescale(s State, cash, amount *big.Int) (State, error) {
	if !wad.IsPositive(amount) {
		return State{}, ErrInvalidLiquidity
	}
	c, err := Cost(s)
	if err != nil {
		return State{}, err
	}

	num := wad.Add(c, amount)
	out := State{}
	if out.B, err = wad.MulDiv(s.B, num, c, wad.Down); err != nil {
		return State{}, err
	}
	if out.QYes, err = wad.MulDiv(s.QYes, num, c, wad.Down); err != nil {
		return State{}, err
	}
	if out.QNo, err = wad.MulDiv(s.QNo, num, c, wad.Down); err != nil {
		return State{}, err
	}

	target := wad.Add(cash, amount)
	excess, err := overshoot(out, target)
	if err != nil {
		return State{}, err
	}

	if excess.Sign() > 0 {
		room := wad.Min(wad.Sub(out.QYes, s.QYes), wad.Sub(out.QNo, s.QNo))
		shift := wad.Min(excess, wad.Max(room, wad.Zero()))
		out.QYes = wad.Sub(out.QYes, shift)
		out.QNo = wad.Sub(out.QNo, shift)
		excess.Sub(excess, shift)
	}

	for i := 0; excess.Sign() > 0; i++ {
		if i == maxAdjustSteps {
			return State{}, fmt.Errorf("%w: rescale does not converge", wad.ErrDomain)
		}
		step := new(big.Int).Lsh(excess, 1)
		out.B = wad.Sub(out.B, step.Add(step, big.NewInt(1)))
		if out.B.Cmp(s.B) < 0 {
			return State{}, fmt.Errorf("%w: rescale would shrink liquidity", wad.ErrDomain)
		}
		if excess, err = overshoot(out, target); err != nil {
			return State{}, err
		}
	}

	return out, nil
}

func overshoot(s State, target *big.Int) (*big.Int, error) {
	c, err := Cost(s)
	if err != nil {
		return nil, err
	}
	return c.Sub(c, target), nil
}
