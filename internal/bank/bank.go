// Package bank is the fungible-value transfer primitive used by the engine:
// an in-memory balance sheet of a single stable unit of account.
package bank

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/lmsr-amm/internal/market"
)

// Bank holds WAD balances keyed by address. It is not safe for concurrent
// use; the engine owns it.
type Bank struct {
	balances map[common.Address]*big.Int
	supply   *big.Int
}

// New returns an empty bank.
func New() *Bank {
	return &Bank{
		balances: make(map[common.Address]*big.Int),
		supply:   new(big.Int),
	}
}

// EscrowAddress is the account that holds a market's collateral and fees.
func EscrowAddress(marketID string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("lmsr-amm/escrow/" + marketID)))
}

// Balance returns a copy of holder's balance.
func (b *Bank) Balance(holder common.Address) *big.Int {
	if v, ok := b.balances[holder]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Supply is the total amount ever minted.
func (b *Bank) Supply() *big.Int {
	return new(big.Int).Set(b.supply)
}

// CheckDebit returns an InsufficientFunds error if holder cannot pay amount.
func (b *Bank) CheckDebit(holder common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return market.NewError(market.KindInvalidArgument, "", "negative transfer")
	}
	if bal := b.balances[holder]; amount.Sign() > 0 && (bal == nil || bal.Cmp(amount) < 0) {
		return market.NewError(market.KindInsufficientFunds, "",
			fmt.Sprintf("%s holds %s, needs %s", holder.Hex(), b.Balance(holder), amount))
	}
	return nil
}

// Transfer moves amount from one account to another.
func (b *Bank) Transfer(from, to common.Address, amount *big.Int) error {
	if err := b.CheckDebit(from, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	b.balances[from] = new(big.Int).Sub(b.balances[from], amount)
	if b.balances[from].Sign() == 0 {
		delete(b.balances, from)
	}
	b.credit(to, amount)
	return nil
}

// Mint credits amount to holder out of thin air.
func (b *Bank) Mint(holder common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return market.NewError(market.KindInvalidArgument, "", "mint amount must be positive")
	}
	b.credit(holder, amount)
	b.supply = new(big.Int).Add(b.supply, amount)
	return nil
}

func (b *Bank) credit(holder common.Address, amount *big.Int) {
	cur, ok := b.balances[holder]
	if !ok {
		cur = new(big.Int)
	}
	b.balances[holder] = new(big.Int).Add(cur, amount)
}

// Move is one leg of a batch.
type Move struct {
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Check reports whether every move of the batch would succeed when applied
// in order. It does not change any balance.
func (b *Bank) Check(moves []Move) error {
	pending := make(map[common.Address]*big.Int)
	for _, m := range moves {
		if m.Amount.Sign() < 0 {
			return market.NewError(market.KindInvalidArgument, "", "negative transfer")
		}
		from, ok := pending[m.From]
		if !ok {
			from = b.Balance(m.From)
		}
		if from.Cmp(m.Amount) < 0 {
			return market.NewError(market.KindInsufficientFunds, "",
				fmt.Sprintf("%s holds %s, needs %s", m.From.Hex(), from, m.Amount))
		}
		pending[m.From] = new(big.Int).Sub(from, m.Amount)

		to, ok := pending[m.To]
		if !ok {
			to = b.Balance(m.To)
		}
		pending[m.To] = new(big.Int).Add(to, m.Amount)
	}
	return nil
}

// Execute applies a batch all-or-nothing.
func (b *Bank) Execute(moves []Move) error {
	if err := b.Check(moves); err != nil {
		return err
	}
	for _, m := range moves {
		if err := b.Transfer(m.From, m.To, m.Amount); err != nil {
			return err
		}
	}
	return nil
}

// Accounts returns every non-zero balance in address order.
func (b *Bank) Accounts() []Account {
	out := make([]Account, 0, len(b.balances))
	for _, a := range market.SortedAddresses(b.balances) {
		out = append(out, Account{Address: a, Balance: new(big.Int).Set(b.balances[a])})
	}
	return out
}

// Account is one entry of the balance sheet.
type Account struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
}
