// Package payment adapts an external fungible token to the marketplace's
// settlement needs.
//
// Settle runs a balance query, an allowance query and a delegated transfer
// in that order, so that a purchaser without funds sees
// ErrInsufficientBalance even when they also never approved the
// marketplace. The delegated transfer lands on the marketplace's own
// account and is held there: Release pays held amounts to their
// recipients once the purchase is recorded, Refund sends them back to the
// payers when it is not.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

var (
	ErrInsufficientBalance = errors.New("payment: insufficient balance")
	ErrNotApproved         = errors.New("payment: marketplace not approved to spend amount")
	ErrTransferFailed      = errors.New("payment: transfer failed")
)

// Token is the narrow interface the marketplace consumes from the token
// program.
type Token interface {
	BalanceOf(ctx context.Context, owner model.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender model.Address) (*big.Int, error)
	TransferFrom(ctx context.Context, spender, from, to model.Address, amount *big.Int) error
	Transfer(ctx context.Context, from, to model.Address, amount *big.Int) error
}

// Bridge settles purchases against a Token, spending as the marketplace's
// own address.
type Bridge struct {
	token   Token
	spender model.Address

	mu sync.Mutex
	// held is collected but neither released nor refunded yet.
	held []transfer
	// owed was released but the payout failed; retried on every Release.
	owed []transfer
}

type transfer struct {
	payer, payee model.Address
	amount       *big.Int
}

// NewBridge returns a Bridge that moves funds on behalf of spender.
func NewBridge(token Token, spender model.Address) *Bridge {
	return &Bridge{token: token, spender: spender}
}

// Spender returns the address purchasers must approve.
func (b *Bridge) Spender() model.Address { return b.spender }

// Settle collects amount from from and holds it for to. Nothing moves
// unless every check passes. A zero amount settles without touching the
// token.
func (b *Bridge) Settle(ctx context.Context, from, to model.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	bal, err := b.token.BalanceOf(ctx, from)
	if err != nil {
		return fmt.Errorf("payment: balanceOf: %w", err)
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	allowed, err := b.token.Allowance(ctx, from, b.spender)
	if err != nil {
		return fmt.Errorf("payment: allowance: %w", err)
	}
	if allowed.Cmp(amount) < 0 {
		return ErrNotApproved
	}
	if err := b.token.TransferFrom(ctx, b.spender, from, b.spender, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	b.mu.Lock()
	b.held = append(b.held, transfer{payer: from, payee: to, amount: new(big.Int).Set(amount)})
	b.mu.Unlock()
	return nil
}

// Release pays every held amount, and every earlier payout that failed, to
// its recipient. Amounts whose payout fails stay owed.
func (b *Bridge) Release(ctx context.Context) error {
	b.mu.Lock()
	pending := append(b.owed, b.held...)
	b.owed, b.held = nil, nil
	b.mu.Unlock()

	var errs []error
	for _, t := range pending {
		if err := b.token.Transfer(ctx, b.spender, t.payee, t.amount); err != nil {
			errs = append(errs, fmt.Errorf("payment: pay %s to %s: %w", t.amount, t.payee, err))
			b.mu.Lock()
			b.owed = append(b.owed, t)
			b.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

// Refund returns every held amount to its payer.
func (b *Bridge) Refund(ctx context.Context) error {
	b.mu.Lock()
	pending := b.held
	b.held = nil
	b.mu.Unlock()

	var errs []error
	for _, t := range pending {
		if err := b.token.Transfer(ctx, b.spender, t.payer, t.amount); err != nil {
			errs = append(errs, fmt.Errorf("payment: refund %s to %s: %w", t.amount, t.payer, err))
		}
	}
	return errors.Join(errs...)
}

// Owed returns the total of payouts that failed and await the next Release.
func (b *Bridge) Owed() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	sum := new(big.Int)
	for _, t := range b.owed {
		sum.Add(sum, t.amount)
	}
	return sum
}
