package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/mselser95/lmsr-amm/internal/arbitration"
	"github.com/mselser95/lmsr-amm/internal/bank"
	"github.com/mselser95/lmsr-amm/internal/market"
)

type marketState struct {
	Market        *market.Market         `json:"market"`
	Positions     []*market.Position     `json:"positions"`
	Contributions []*market.Contribution `json:"contributions"`
	Arbitration   *arbitration.Case      `json:"arbitration"`
}

type ledgerState struct {
	Seq      uint64         `json:"seq"`
	Markets  []marketState  `json:"markets"`
	Accounts []bank.Account `json:"accounts"`
}

// StateDigest is the keccak256 of a canonical encoding of the whole
// ledger. Two executors that applied the same transactions agree on it.
func (e *Engine) StateDigest() (common.Hash, error) {
	st := ledgerState{Seq: e.seq, Accounts: e.bank.Accounts()}
	for _, id := range e.order {
		ent := e.markets[id]
		ms := marketState{Market: ent.market, Arbitration: ent.arbitration}
		for _, a := range market.SortedAddresses(ent.positions) {
			ms.Positions = append(ms.Positions, ent.positions[a])
		}
		for _, a := range market.SortedAddresses(ent.contributions) {
			ms.Contributions = append(ms.Contributions, ent.contributions[a])
		}
		st.Markets = append(st.Markets, ms)
	}

	raw, err := json.Marshal(st)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode ledger: %w", err)
	}
	return crypto.Keccak256Hash(raw), nil
}
