// Package simulate replays a scripted scenario through a fresh ledger.
//
// A scenario is a TOML file:
//
//	start = 2026-05-01T09:00:00Z
//
//	[engine]
//	min_subsidy = "10"
//	dispute_period = "24h"
//
//	[accounts]
//	creator = "0x00000000000000000000000000000000000000c1"
//	alice = ""  # derived from the name
//
//	[[step]]
//	at = "0s"
//	op = "deposit"
//	sender = "alice"
//	amount = "1000"
package simulate

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/mselser95/lmsr-amm/internal/engine"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/internal/settlement"
	"github.com/mselser95/lmsr-amm/pkg/wad"
)

// Scenario is a decoded scenario file.
type Scenario struct {
	Start    time.Time         `toml:"start"`
	Engine   EngineSettings    `toml:"engine"`
	Accounts map[string]string `toml:"accounts"`
	Steps    []Step            `toml:"step"`

	addresses map[string]common.Address
}

// EngineSettings overrides the ledger defaults. Empty fields keep them.
type EngineSettings struct {
	MinSubsidy     string        `toml:"min_subsidy"`
	ArbitrationFee string        `toml:"arbitration_fee"`
	Treasury       string        `toml:"treasury"`
	GracePeriod    time.Duration `toml:"grace_period"`
	DisputePeriod  time.Duration `toml:"dispute_period"`
	VotingWindow   time.Duration `toml:"voting_window"`
}

// Step is one transaction at an offset from the scenario start.
type Step struct {
	At      time.Duration `toml:"at"`
	Op      string        `toml:"op"`
	Sender  string        `toml:"sender"`
	Market  string        `toml:"market"`
	Outcome string        `toml:"outcome"`
	Amount  string        `toml:"amount"`
	Limit   string        `toml:"limit"`
	// ExpiresIn is the createMarket expiry relative to the step time.
	ExpiresIn   time.Duration `toml:"expires_in"`
	MetadataURI string        `toml:"metadata_uri"`
	// ExpectError is the error kind the step must fail with, if any.
	ExpectError string `toml:"expect_error"`
}

// Load reads and decodes a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes a scenario and checks it is well formed.
func Parse(data string) (*Scenario, error) {
	var s Scenario
	md, err := toml.Decode(data, &s)
	if err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown scenario keys: %v", undecoded)
	}

	err = s.validate()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Start.IsZero() {
		return fmt.Errorf("scenario start is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario has no steps")
	}

	s.addresses = make(map[string]common.Address, len(s.Accounts))
	for name, addr := range s.Accounts {
		switch {
		case addr == "":
			s.addresses[name] = AccountAddress(name)
		case common.IsHexAddress(addr):
			s.addresses[name] = common.HexToAddress(addr)
		default:
			return fmt.Errorf("account %s: %q is not an address", name, addr)
		}
	}

	prev := time.Duration(0)
	for i, st := range s.Steps {
		if st.At < prev {
			return fmt.Errorf("step %d: at %s is before the previous step", i+1, st.At)
		}
		prev = st.At
		if _, err := s.address(st.Sender); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// AccountAddress derives a stable address from an account name.
func AccountAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("account:" + name)))
}

// MarketID names the market created by step i when the step gives none. It
// is a name-based UUID over the start time and step number, so reruns of
// the same scenario agree.
func (s *Scenario) MarketID(i int) string {
	name := fmt.Sprintf("simulate:%s:step-%d", s.Start.UTC().Format(time.RFC3339Nano), i+1)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func (s *Scenario) address(ref string) (common.Address, error) {
	if addr, ok := s.addresses[ref]; ok {
		return addr, nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, fmt.Errorf("unknown account %q", ref)
}

// Names maps every declared account address back to its name.
func (s *Scenario) Names() map[common.Address]string {
	out := make(map[common.Address]string, len(s.addresses))
	for name, addr := range s.addresses {
		out[addr] = name
	}
	return out
}

// AccountNames returns the declared account names in sorted order.
func (s *Scenario) AccountNames() []string {
	names := make([]string, 0, len(s.addresses))
	for name := range s.addresses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EngineConfig builds the ledger config. Deposits are always allowed.
func (s *Scenario) EngineConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()
	cfg.AllowDeposits = true

	var err error
	if s.Engine.MinSubsidy != "" {
		cfg.MinSubsidy, err = wad.Parse(s.Engine.MinSubsidy)
		if err != nil {
			return cfg, fmt.Errorf("min_subsidy: %w", err)
		}
	}
	if s.Engine.ArbitrationFee != "" {
		cfg.ArbitrationFee, err = wad.Parse(s.Engine.ArbitrationFee)
		if err != nil {
			return cfg, fmt.Errorf("arbitration_fee: %w", err)
		}
	}
	if s.Engine.Treasury != "" {
		cfg.ProtocolTreasury, err = s.address(s.Engine.Treasury)
		if err != nil {
			return cfg, fmt.Errorf("treasury: %w", err)
		}
	}

	cfg.Settlement = settlement.DefaultConfig()
	if s.Engine.GracePeriod > 0 {
		cfg.Settlement.GracePeriod = s.Engine.GracePeriod
	}
	if s.Engine.DisputePeriod > 0 {
		cfg.Settlement.DisputePeriod = s.Engine.DisputePeriod
	}
	if s.Engine.VotingWindow > 0 {
		cfg.Settlement.VotingWindow = s.Engine.VotingWindow
	}
	return cfg, nil
}

// Tx converts a step into a transaction. marketID is used when the step
// names no market.
func (s *Scenario) Tx(i int, st Step, marketID string) (engine.Tx, error) {
	tx := engine.Tx{
		ID:          fmt.Sprintf("step-%d", i+1),
		Op:          engine.Op(st.Op),
		MarketID:    st.Market,
		MetadataURI: st.MetadataURI,
	}
	if tx.MarketID == "" && tx.Op != engine.OpDeposit {
		tx.MarketID = marketID
	}

	var err error
	tx.Sender, err = s.address(st.Sender)
	if err != nil {
		return tx, err
	}
	tx.Outcome, err = market.ParseOutcome(st.Outcome)
	if err != nil {
		return tx, err
	}
	if st.Amount != "" {
		tx.Amount, err = wad.Parse(st.Amount)
		if err != nil {
			return tx, fmt.Errorf("amount: %w", err)
		}
	}
	if st.Limit != "" {
		tx.Limit, err = wad.Parse(st.Limit)
		if err != nil {
			return tx, fmt.Errorf("limit: %w", err)
		}
	}
	if tx.Op == engine.OpCreateMarket {
		tx.ExpiresAt = s.Start.Add(st.At).Add(st.ExpiresIn)
		tx.MetadataHash = crypto.Keccak256Hash([]byte(st.MetadataURI)).Hex()
	}
	return tx, nil
}

func kindMatches(err error, want string) bool {
	return strings.EqualFold(string(market.KindOf(err)), want)
}
