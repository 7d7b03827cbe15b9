package payment

import (
	"context"
	"math/big"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/token"
)

// Local exposes an in-process token as a Token.
type Local struct {
	T *token.Token
}

func (l Local) BalanceOf(_ context.Context, owner model.Address) (*big.Int, error) {
	return l.T.BalanceOf(owner), nil
}

func (l Local) Allowance(_ context.Context, owner, spender model.Address) (*big.Int, error) {
	return l.T.Allowance(owner, spender), nil
}

func (l Local) TransferFrom(_ context.Context, spender, from, to model.Address, amount *big.Int) error {
	return l.T.TransferFrom(spender, from, to, amount)
}

func (l Local) Transfer(_ context.Context, from, to model.Address, amount *big.Int) error {
	return l.T.Transfer(from, to, amount)
}
