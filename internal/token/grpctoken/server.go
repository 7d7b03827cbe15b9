package grpctoken

import (
	"context"
	"fmt"
	"math/big"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/obs"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/token"
)

// Server exposes an in-process token over the Token service.
type Server struct {
	T *token.Token
}

func (s *Server) Info(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return reply(map[string]any{
		"name":         s.T.Name(),
		"symbol":       s.T.Symbol(),
		"decimals":     float64(s.T.Decimals()),
		"total_supply": s.T.TotalSupply().String(),
	})
}

func (s *Server) BalanceOf(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	owner, err := address(in, "owner")
	if err != nil {
		return nil, mapErr(err)
	}
	return reply(map[string]any{"amount": s.T.BalanceOf(owner).String()})
}

func (s *Server) Allowance(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	owner, err := address(in, "owner")
	if err != nil {
		return nil, mapErr(err)
	}
	spender, err := address(in, "spender")
	if err != nil {
		return nil, mapErr(err)
	}
	return reply(map[string]any{"amount": s.T.Allowance(owner, spender).String()})
}

func (s *Server) Approve(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	owner, spender, amount, err := triple(in, "owner", "spender")
	if err != nil {
		return nil, mapErr(err)
	}
	if err := s.T.Approve(owner, spender, amount); err != nil {
		return nil, mapErr(err)
	}
	return reply(nil)
}

func (s *Server) Transfer(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	from, to, amount, err := triple(in, "from", "to")
	if err != nil {
		return nil, mapErr(err)
	}
	if err := s.T.Transfer(from, to, amount); err != nil {
		return nil, mapErr(err)
	}
	return reply(nil)
}

func (s *Server) TransferFrom(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	spender, err := address(in, "spender")
	if err != nil {
		return nil, mapErr(err)
	}
	from, to, amount, err := triple(in, "from", "to")
	if err != nil {
		return nil, mapErr(err)
	}
	if err := s.T.TransferFrom(spender, from, to, amount); err != nil {
		obs.Logger.Debug("token_transfer_from_rejected", "spender", spender, "from", from, "to", to, "amount", amount.String(), "error", err.Error())
		return nil, mapErr(err)
	}
	obs.Logger.Info("token_transfer_from", "spender", spender, "from", from, "to", to, "amount", amount.String())
	return reply(nil)
}

func reply(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func address(in *structpb.Struct, key string) (model.Address, error) {
	a, err := model.ParseAddress(in.GetFields()[key].GetStringValue())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", errBadRequest, key, err)
	}
	return a, nil
}

func amount(in *structpb.Struct, key string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(in.GetFields()[key].GetStringValue(), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a decimal integer", errBadRequest, key)
	}
	return v, nil
}

// triple reads two addresses and the "amount" field.
func triple(in *structpb.Struct, a, b string) (model.Address, model.Address, *big.Int, error) {
	x, err := address(in, a)
	if err != nil {
		return "", "", nil, err
	}
	y, err := address(in, b)
	if err != nil {
		return "", "", nil, err
	}
	n, err := amount(in, "amount")
	if err != nil {
		return "", "", nil, err
	}
	return x, y, n, nil
}
