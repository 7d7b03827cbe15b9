// Package token is an in-memory fungible token used as the marketplace's
// payment collaborator in development and tests.
//
// The whole supply is minted to the creator. Balances and allowances follow
// the usual fungible-token rules: a spender may move at most its allowance
// out of an owner's balance.
package token

import (
	"errors"
	"math/big"
	"sync"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

var (
	ErrInsufficientBalance   = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: transfer amount exceeds allowance")
	ErrZeroAddress           = errors.New("token: zero address")
	ErrNegativeAmount        = errors.New("token: negative amount")
)

// Config describes a token at creation time. Supply is in whole units and
// is scaled by 10^Decimals.
type Config struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Supply   uint64 `yaml:"supply"`
}

// Token holds balances and allowances. It is safe for concurrent use.
type Token struct {
	name     string
	symbol   string
	decimals uint8
	supply   *big.Int

	mu         sync.Mutex
	balances   map[model.Address]*big.Int
	allowances map[model.Address]map[model.Address]*big.Int
}

// New mints the configured supply to creator.
func New(cfg Config, creator model.Address) *Token {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(cfg.Decimals)), nil)
	supply := new(big.Int).Mul(new(big.Int).SetUint64(cfg.Supply), scale)
	t := &Token{
		name:       cfg.Name,
		symbol:     cfg.Symbol,
		decimals:   cfg.Decimals,
		supply:     supply,
		balances:   make(map[model.Address]*big.Int),
		allowances: make(map[model.Address]map[model.Address]*big.Int),
	}
	t.balances[creator] = new(big.Int).Set(supply)
	return t
}

func (t *Token) Name() string          { return t.name }
func (t *Token) Symbol() string        { return t.symbol }
func (t *Token) Decimals() uint8       { return t.decimals }
func (t *Token) TotalSupply() *big.Int { return new(big.Int).Set(t.supply) }

// BalanceOf returns a copy of owner's balance.
func (t *Token) BalanceOf(owner model.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.Amount(t.balances[owner])
}

// Allowance returns how much spender may still move out of owner's balance.
func (t *Token) Allowance(owner, spender model.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.Amount(t.allowances[owner][spender])
}

// Approve sets spender's allowance over owner's balance to amount.
func (t *Token) Approve(owner, spender model.Address, amount *big.Int) error {
	if owner.IsZero() || spender.IsZero() {
		return ErrZeroAddress
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.allowances[owner]
	if m == nil {
		m = make(map[model.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
	return nil
}

// Transfer moves amount from from to to.
func (t *Token) Transfer(from, to model.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// TransferFrom moves amount from from to to on behalf of spender, consuming
// spender's allowance.
func (t *Token) TransferFrom(spender, from, to model.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	allowed := model.Amount(t.allowances[from][spender])
	if allowed.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	m := t.allowances[from]
	if m == nil {
		m = make(map[model.Address]*big.Int)
		t.allowances[from] = m
	}
	m[spender] = allowed.Sub(allowed, amount)
	return nil
}

func (t *Token) move(from, to model.Address, amount *big.Int) error {
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := model.Amount(t.balances[from])
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	t.balances[from] = bal.Sub(bal, amount)
	t.balances[to] = new(big.Int).Add(model.Amount(t.balances[to]), amount)
	return nil
}
