package wad

import (
	"math/big"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reference = apd.BaseContext.WithPrecision(60)

func toDecimal(t *testing.T, x *big.Int) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(x.String() + "E-18")
	require.NoError(t, err)
	return d
}

// assertClose checks |got-want| <= 1e-9*|want| + 2 ulp.
func assertClose(t *testing.T, got *big.Int, want *apd.Decimal, label string) {
	t.Helper()

	g := toDecimal(t, got)
	diff := new(apd.Decimal)
	_, err := reference.Sub(diff, g, want)
	require.NoError(t, err)
	diff.Abs(diff)

	bound := new(apd.Decimal)
	absWant := new(apd.Decimal).Abs(want)
	_, err = reference.Mul(bound, absWant, toDecimal(t, MaxRelativeError()))
	require.NoError(t, err)
	_, err = reference.Add(bound, bound, apd.New(2, -18))
	require.NoError(t, err)

	assert.LessOrEqual(t, diff.Cmp(bound), 0, "%s: got %s want %s", label, g.String(), want.String())
}

func TestExp_MatchesReference(t *testing.T) {
	inputs := []string{
		"-41.5", "-20", "-1", "-0.5", "-0.000000001",
		"0.000000000000000001", "0.3", "0.693147180559945309", "1",
		"2.5", "10", "50", "100", "134.9",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			x := MustParse(in)
			want := new(apd.Decimal)
			_, err := reference.Exp(want, toDecimal(t, x))
			require.NoError(t, err)

			down, err := Exp(x, Down)
			require.NoError(t, err)
			up, err := Exp(x, Up)
			require.NoError(t, err)

			assertClose(t, down, want, "down")
			assertClose(t, up, want, "up")
			assert.LessOrEqual(t, down.Cmp(up), 0)
		})
	}
}

func TestExp_KnownValues(t *testing.T) {
	got, err := Exp(Zero(), Down)
	require.NoError(t, err)
	assert.Equal(t, "1", Format(got))

	got, err = Exp(One(), Down)
	require.NoError(t, err)
	assert.Equal(t, "2.718281828459045235", Format(got))

	got, err = Exp(LnTwo(), Down)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, ToFloat(got), 1e-15)
}

func TestExp_Domain(t *testing.T) {
	_, err := Exp(FromInt(136), Down)
	require.ErrorIs(t, err, ErrDomain)

	_, err = Exp(MaxExpInput(), Down)
	require.NoError(t, err)

	got, err := Exp(FromInt(-1000), Down)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Int64())

	got, err = Exp(FromInt(-1000), Up)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Int64())
}

func TestExp_Monotonic(t *testing.T) {
	step := MustParse("0.37")
	x := FromInt(-40)
	prev, err := Exp(x, Down)
	require.NoError(t, err)

	for x.Cmp(FromInt(130)) < 0 {
		x = Add(x, step)
		cur, err := Exp(x, Down)
		require.NoError(t, err)
		require.GreaterOrEqual(t, cur.Cmp(prev), 0, "exp decreased at %s", Format(x))
		prev = cur
	}
}

func TestLn_MatchesReference(t *testing.T) {
	inputs := []string{
		"0.000000000000000001", "0.001", "0.5", "0.999999",
		"1.000001", "1.5", "2", "10", "1000000", "1000000000000000000000000000000",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			x := MustParse(in)
			want := new(apd.Decimal)
			_, err := reference.Ln(want, toDecimal(t, x))
			require.NoError(t, err)

			down, err := Ln(x, Down)
			require.NoError(t, err)
			up, err := Ln(x, Up)
			require.NoError(t, err)

			assertClose(t, down, want, "down")
			assertClose(t, up, want, "up")
			assert.LessOrEqual(t, down.Cmp(up), 0)
		})
	}
}

func TestLn_KnownValues(t *testing.T) {
	got, err := Ln(One(), Down)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Int64())

	got, err = Ln(FromInt(2), Down)
	require.NoError(t, err)
	assert.Equal(t, LnTwo().String(), got.String())
}

func TestLn_Domain(t *testing.T) {
	for _, x := range []*big.Int{Zero(), big.NewInt(-1), FromInt(-5)} {
		_, err := Ln(x, Down)
		require.ErrorIs(t, err, ErrDomain, Format(x))
	}
}

func TestLn_Monotonic(t *testing.T) {
	x := MustParse("0.01")
	prev, err := Ln(x, Down)
	require.NoError(t, err)

	for i := 0; i < 400; i++ {
		x = MulDown(x, MustParse("1.05"))
		cur, err := Ln(x, Down)
		require.NoError(t, err)
		require.GreaterOrEqual(t, cur.Cmp(prev), 0, "ln decreased at %s", Format(x))
		prev = cur
	}
}

func TestExpLn_Deterministic(t *testing.T) {
	x := MustParse("3.141592653589793238")
	first, err := Exp(x, Down)
	require.NoError(t, err)
	firstLn, err := Ln(x, Up)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		again, err := Exp(x, Down)
		require.NoError(t, err)
		require.Equal(t, first.String(), again.String())

		againLn, err := Ln(x, Up)
		require.NoError(t, err)
		require.Equal(t, firstLn.String(), againLn.String())
	}
}

func TestLnOfExp_RoundTrip(t *testing.T) {
	for _, in := range []string{"-5", "0.25", "3", "42"} {
		x := MustParse(in)
		e, err := Exp(x, Down)
		require.NoError(t, err)
		back, err := Ln(e, Down)
		require.NoError(t, err)
		assert.InDelta(t, ToFloat(x), ToFloat(back), 1e-12, in)
	}
}
