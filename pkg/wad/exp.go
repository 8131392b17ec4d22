package wad

import (
	"fmt"
	"math/big"
)

// maxRelativeError is the documented error bound of Exp and Ln, 1e-9 as a
// WAD. The series are evaluated at 36 digits, so the observed error is a
// single WAD ulp; the bound is what callers may rely on on every executor.
var maxRelativeError = big.NewInt(1_000_000_000)

// MaxRelativeError returns the guaranteed relative error bound of Exp and Ln.
func MaxRelativeError() *big.Int { return new(big.Int).Set(maxRelativeError) }

var (
	// precise is the internal working scale, 1e36.
	precise = new(big.Int).Mul(unit, unit)

	// ln2Precise is ln(2) truncated at 36 decimal digits.
	ln2Precise, _ = new(big.Int).SetString("693147180559945309417232121458176568", 10)

	// maxExpInput is the largest x accepted by Exp.
	maxExpInput = FromInt(135)

	// below minExpInput exp(x) is smaller than one WAD ulp.
	minExpInput = FromInt(-42)

	lnTwo = new(big.Int).Div(ln2Precise, unit)
)

// LnTwo returns ln(2) as a WAD, rounded down.
func LnTwo() *big.Int { return new(big.Int).Set(lnTwo) }

// MaxExpInput returns the largest argument accepted by Exp.
func MaxExpInput() *big.Int { return new(big.Int).Set(maxExpInput) }

// Exp returns e^x for a WAD x, rounded in direction r.
//
// x is reduced to k*ln2 + f with |f| <= ln2/2, e^f is summed as a Taylor
// series at 1e36 and the result is shifted by k bits.
func Exp(x *big.Int, r Rounding) (*big.Int, error) {
	if x.Cmp(maxExpInput) > 0 {
		return nil, fmt.Errorf("%w: exp(%s) overflows", ErrDomain, Format(x))
	}
	if x.Cmp(minExpInput) < 0 {
		if r == Up {
			return big.NewInt(1), nil
		}
		return new(big.Int), nil
	}
	if x.Sign() == 0 {
		return One(), nil
	}

	xp := new(big.Int).Mul(x, unit)

	// k = round(xp / ln2)
	k := new(big.Int).Rsh(ln2Precise, 1)
	k.Add(k, xp)
	k.Div(k, ln2Precise)

	f := new(big.Int).Mul(k, ln2Precise)
	f.Sub(xp, f)

	sum := new(big.Int).Set(precise)
	term := new(big.Int).Set(precise)
	den := new(big.Int)
	for i := int64(1); ; i++ {
		term.Mul(term, f)
		den.Mul(precise, big.NewInt(i))
		term.Quo(term, den)
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, term)
	}

	shift := k.Int64()
	if shift >= 0 {
		sum.Lsh(sum, uint(shift))
	} else {
		sum.Rsh(sum, uint(-shift))
	}

	return divRound(sum, unit, r), nil
}

// Ln returns the natural logarithm of a WAD x, rounded in direction r.
// Non-positive inputs fail with ErrDomain.
//
// x is normalised to m*2^k with m in [1, 2), and ln(m) is evaluated as
// 2*atanh((m-1)/(m+1)), whose argument never exceeds 1/3.
func Ln(x *big.Int, r Rounding) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, fmt.Errorf("%w: ln(%s)", ErrDomain, Format(x))
	}
	if x.Cmp(unit) == 0 {
		return new(big.Int), nil
	}

	m := new(big.Int).Mul(x, unit)
	k := int64(m.BitLen() - precise.BitLen())
	if k > 0 {
		m.Rsh(m, uint(k))
	} else if k < 0 {
		m.Lsh(m, uint(-k))
	}

	twice := new(big.Int).Lsh(precise, 1)
	for m.Cmp(precise) < 0 {
		m.Lsh(m, 1)
		k--
	}
	for m.Cmp(twice) >= 0 {
		m.Rsh(m, 1)
		k++
	}

	num := new(big.Int).Sub(m, precise)
	num.Mul(num, precise)
	z := num.Quo(num, new(big.Int).Add(m, precise))

	z2 := new(big.Int).Mul(z, z)
	z2.Quo(z2, precise)

	sum := new(big.Int)
	term := new(big.Int).Set(z)
	part := new(big.Int)
	for i := int64(0); term.Sign() != 0; i++ {
		part.Quo(term, big.NewInt(2*i+1))
		sum.Add(sum, part)
		term.Mul(term, z2)
		term.Quo(term, precise)
	}
	sum.Lsh(sum, 1)

	res := new(big.Int).Mul(big.NewInt(k), ln2Precise)
	res.Add(res, sum)

	return divRound(res, unit, r), nil
}
