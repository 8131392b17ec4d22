package market

import (
	"fmt"
	"strings"
)

// Status is the lifecycle stage of a market. Stages only move forward.
type Status uint8

const (
	StatusPending Status = iota
	StatusTrading
	StatusExpired
	StatusDisputePeriod
	StatusArbitration
	StatusResolved
)

var statusNames = map[Status]string{
	StatusPending:       "PENDING",
	StatusTrading:       "TRADING",
	StatusExpired:       "EXPIRED",
	StatusDisputePeriod: "DISPUTE_PERIOD",
	StatusArbitration:   "ARBITRATION",
	StatusResolved:      "RESOLVED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for st, name := range statusNames {
		if name == up {
			return st, nil
		}
	}
	return StatusPending, fmt.Errorf("unknown market status %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
