// Package wad implements deterministic 18-decimal fixed-point arithmetic.
//
// A WAD is an integer scaled by 1e18 and carried as *big.Int. Every function
// returns a freshly allocated value and never mutates its arguments, so stored
// amounts can be shared between snapshots safely.
//
// Multiplication and division take an explicit rounding direction. Amounts
// owed to the protocol round Down, amounts owed by a trader round Up.
package wad

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
)

// Decimals is the number of fractional digits carried by a WAD.
const Decimals = 18

// Rounding selects the direction of the final rounding step.
type Rounding int

const (
	// Down rounds toward negative infinity.
	Down Rounding = iota
	// Up rounds toward positive infinity.
	Up
)

func (r Rounding) String() string {
	if r == Up {
		return "up"
	}
	return "down"
}

var (
	// ErrDomain is returned when a kernel function receives an input outside
	// the range on which it is defined.
	ErrDomain = errors.New("wad: input out of domain")

	// ErrDivisionByZero is returned by Div when the divisor is zero.
	ErrDivisionByZero = errors.New("wad: division by zero")

	// ErrSyntax is returned by Parse for malformed decimal strings.
	ErrSyntax = errors.New("wad: invalid decimal")
)

var (
	unit = big.NewInt(1_000_000_000_000_000_000)
	half = big.NewInt(500_000_000_000_000_000)
)

// One returns 1.0 as a WAD.
func One() *big.Int { return new(big.Int).Set(unit) }

// Half returns 0.5 as a WAD.
func Half() *big.Int { return new(big.Int).Set(half) }

// Zero returns a fresh zero value.
func Zero() *big.Int { return new(big.Int) }

// FromInt returns n whole units as a WAD.
func FromInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), unit)
}

// FromRatio returns num/den as a WAD rounded down. It panics on a zero
// denominator and is intended for constants.
func FromRatio(num, den int64) *big.Int {
	v := new(big.Int).Mul(big.NewInt(num), unit)
	return v.Div(v, big.NewInt(den))
}

// Copy returns a copy of x, treating nil as zero.
func Copy(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// divRound divides x by a positive y in the requested direction.
func divRound(x, y *big.Int, r Rounding) *big.Int {
	if r == Up {
		q := new(big.Int).Neg(x)
		q.Div(q, y)
		return q.Neg(q)
	}
	// big.Int.Div is Euclidean, which is floor division for y > 0.
	return new(big.Int).Div(x, y)
}

// Mul returns a*b/1e18 rounded in direction r.
func Mul(a, b *big.Int, r Rounding) *big.Int {
	p := new(big.Int).Mul(a, b)
	return divRound(p, unit, r)
}

// MulDown returns a*b rounded toward negative infinity.
func MulDown(a, b *big.Int) *big.Int { return Mul(a, b, Down) }

// MulUp returns a*b rounded toward positive infinity.
func MulUp(a, b *big.Int) *big.Int { return Mul(a, b, Up) }

// Div returns a*1e18/b rounded in direction r.
func Div(a, b *big.Int, r Rounding) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	n := new(big.Int).Mul(a, unit)
	d := b
	if b.Sign() < 0 {
		n.Neg(n)
		d = new(big.Int).Neg(b)
	}
	return divRound(n, d, r), nil
}

// DivDown returns a/b rounded toward negative infinity.
func DivDown(a, b *big.Int) (*big.Int, error) { return Div(a, b, Down) }

// DivUp returns a/b rounded toward positive infinity.
func DivUp(a, b *big.Int) (*big.Int, error) { return Div(a, b, Up) }

// MulDiv returns x*num/den on raw integers rounded in direction r. den must
// be positive.
func MulDiv(x, num, den *big.Int, r Rounding) (*big.Int, error) {
	if den.Sign() <= 0 {
		return nil, ErrDivisionByZero
	}
	p := new(big.Int).Mul(x, num)
	return divRound(p, den, r), nil
}

// Percent returns floor(x*pct/100) on raw integers.
func Percent(x *big.Int, pct int64) *big.Int {
	p := new(big.Int).Mul(x, big.NewInt(pct))
	return p.Div(p, big.NewInt(100))
}

// Max returns a copy of the larger of a and b.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Add returns a+b.
func Add(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) }

// Sub returns a-b.
func Sub(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }

// IsPositive reports whether x is non-nil and greater than zero.
func IsPositive(x *big.Int) bool { return x != nil && x.Sign() > 0 }

// Parse converts a decimal string such as "12.5" or "-0.000001" into a WAD.
// At most 18 fractional digits are accepted; nothing is rounded silently.
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrSyntax)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if intPart == "" && (!hasDot || fracPart == "") {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if len(fracPart) > Decimals {
		return nil, fmt.Errorf("%w: more than %d fractional digits in %q", ErrSyntax, Decimals, s)
	}
	if strings.ContainsAny(intPart+fracPart, "+-xX") {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if intPart == "" {
		intPart = "0"
	}

	digits := intPart + fracPart + strings.Repeat("0", Decimals-len(fracPart))
	v, ok := math.ParseBig256(digits)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// MustParse is Parse for constants and tests. It panics on error.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders x as a decimal string with trailing zeros trimmed.
func Format(x *big.Int) string {
	if x == nil {
		return "0"
	}
	abs := new(big.Int).Abs(x)
	q, r := new(big.Int).QuoRem(abs, unit, new(big.Int))

	sign := ""
	if x.Sign() < 0 {
		sign = "-"
	}
	if r.Sign() == 0 {
		return sign + q.String()
	}

	frac := r.String()
	frac = strings.Repeat("0", Decimals-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	return sign + q.String() + "." + frac
}

// ToFloat converts x to a float64 for display and metrics. The result must
// never feed back into pricing.
func ToFloat(x *big.Int) float64 {
	if x == nil {
		return 0
	}
	f := new(big.Float).SetInt(x)
	f.Quo(f, new(big.Float).SetInt(unit))
	v, _ := f.Float64()
	return v
}
