package market

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/mselser95/lmsr-amm/pkg/wad"
)

// Outcome is the closed set of results a market can settle to. The zero
// value means "not set" and is used for nullable outcome fields.
type Outcome uint8

const (
	OutcomeUnset Outcome = iota
	OutcomeYes
	OutcomeNo
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeYes:
		return "YES"
	case OutcomeNo:
		return "NO"
	case OutcomeInvalid:
		return "INVALID"
	case OutcomeUnset:
		return ""
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// ParseOutcome parses YES, NO or INVALID, case-insensitively.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES":
		return OutcomeYes, nil
	case "NO":
		return OutcomeNo, nil
	case "INVALID":
		return OutcomeInvalid, nil
	case "":
		return OutcomeUnset, nil
	}
	return OutcomeUnset, NewError(KindInvalidOutcome, "", fmt.Sprintf("unknown outcome %q", s))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	v, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Tradable reports whether shares exist for the outcome.
func (o Outcome) Tradable() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Settleable reports whether a market may resolve to the outcome.
func (o Outcome) Settleable() bool {
	return o == OutcomeYes || o == OutcomeNo || o == OutcomeInvalid
}

// Payout returns what a holder of yes and no shares receives once the market
// resolved to o. A winning share pays 1 WAD, a losing share nothing, and on
// INVALID every share pays 0.5 WAD, rounded down.
func (o Outcome) Payout(yes, no *big.Int) (*big.Int, error) {
	switch o {
	case OutcomeYes:
		return wad.Copy(yes), nil
	case OutcomeNo:
		return wad.Copy(no), nil
	case OutcomeInvalid:
		return wad.MulDown(wad.Add(yes, no), wad.Half()), nil
	case OutcomeUnset:
		return nil, NewError(KindInvalidOutcome, "", "payout requested for an unresolved outcome")
	}
	return nil, NewError(KindInvalidOutcome, "", fmt.Sprintf("payout requested for %s", o))
}
