package market

import (
	"errors"
	"fmt"
)

// Kind identifies a class of rejected operation. Every rejection carries
// exactly one Kind and leaves all state untouched.
type Kind string

const (
	KindMarketNotTrading    Kind = "MARKET_NOT_TRADING"
	KindMarketExpired       Kind = "MARKET_EXPIRED"
	KindInsufficientShares  Kind = "INSUFFICIENT_SHARES"
	KindBelowMinSubsidy     Kind = "BELOW_MIN_SUBSIDY"
	KindSlippageExceeded    Kind = "SLIPPAGE_EXCEEDED"
	KindNotCreator          Kind = "NOT_CREATOR"
	KindDisputePeriodOver   Kind = "DISPUTE_PERIOD_OVER"
	KindAlreadyDisputed     Kind = "ALREADY_DISPUTED"
	KindQuorumNotMet        Kind = "QUORUM_NOT_MET"
	KindInvalidOutcome      Kind = "INVALID_OUTCOME"
	KindNothingToClaim      Kind = "NOTHING_TO_CLAIM"
	KindDomainError         Kind = "DOMAIN_ERROR"
	KindMarketNotFound      Kind = "MARKET_NOT_FOUND"
	KindMarketExists        Kind = "MARKET_EXISTS"
	KindInvalidArgument     Kind = "INVALID_ARGUMENT"
	KindInsufficientFunds   Kind = "INSUFFICIENT_FUNDS"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindDisputePeriodActive Kind = "DISPUTE_PERIOD_ACTIVE"
	KindFeeTooLow           Kind = "FEE_TOO_LOW"
	KindNotEligible         Kind = "NOT_ELIGIBLE"
	KindVotingClosed        Kind = "VOTING_CLOSED"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindReentrant           Kind = "REENTRANT"
)

// Error is a typed rejection. errors.Is matches on Kind alone, so callers
// compare against the package sentinels.
type Error struct {
	Kind     Kind
	MarketID string
	Msg      string
	Err      error
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, marketID string, msg string) *Error {
	return &Error{Kind: kind, MarketID: marketID, Msg: msg}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, marketID string, err error) *Error {
	return &Error{Kind: kind, MarketID: marketID, Msg: err.Error(), Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.MarketID != "" && e.Msg != "":
		return fmt.Sprintf("market %s: %s (%s)", e.MarketID, e.Msg, e.Kind)
	case e.Msg != "":
		return fmt.Sprintf("%s (%s)", e.Msg, e.Kind)
	case e.MarketID != "":
		return fmt.Sprintf("market %s: %s", e.MarketID, e.Kind)
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind of err, or "" when err is not a market error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinels for errors.Is.
var (
	ErrMarketNotTrading    = &Error{Kind: KindMarketNotTrading}
	ErrMarketExpired       = &Error{Kind: KindMarketExpired}
	ErrInsufficientShares  = &Error{Kind: KindInsufficientShares}
	ErrBelowMinSubsidy     = &Error{Kind: KindBelowMinSubsidy}
	ErrSlippageExceeded    = &Error{Kind: KindSlippageExceeded}
	ErrNotCreator          = &Error{Kind: KindNotCreator}
	ErrDisputePeriodOver   = &Error{Kind: KindDisputePeriodOver}
	ErrAlreadyDisputed     = &Error{Kind: KindAlreadyDisputed}
	ErrQuorumNotMet        = &Error{Kind: KindQuorumNotMet}
	ErrInvalidOutcome      = &Error{Kind: KindInvalidOutcome}
	ErrNothingToClaim      = &Error{Kind: KindNothingToClaim}
	ErrDomain              = &Error{Kind: KindDomainError}
	ErrMarketNotFound      = &Error{Kind: KindMarketNotFound}
	ErrMarketExists        = &Error{Kind: KindMarketExists}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrInsufficientFunds   = &Error{Kind: KindInsufficientFunds}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrDisputePeriodActive = &Error{Kind: KindDisputePeriodActive}
	ErrFeeTooLow           = &Error{Kind: KindFeeTooLow}
	ErrNotEligible         = &Error{Kind: KindNotEligible}
	ErrVotingClosed        = &Error{Kind: KindVotingClosed}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrReentrant           = &Error{Kind: KindReentrant}
)
