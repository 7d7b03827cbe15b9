package grpctoken

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

// Info describes the remote token.
type Info struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
}

// Client implements payment.Token against a remote Token service.
type Client struct {
	cc     *grpc.ClientConn
	client tokenClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

// Dial connects to the Token service at target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpctoken: dial %s: %w", target, err)
	}
	return &Client{cc: cc, client: tokenClient{cc: cc}, Timeout: 5 * time.Second}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	out, err := c.client.call(ctx, method, in)
	if err != nil {
		return nil, mapRPC(err)
	}
	return out, nil
}

func (c *Client) Info(ctx context.Context) (Info, error) {
	out, err := c.invoke(ctx, "Info", nil)
	if err != nil {
		return Info{}, err
	}
	f := out.GetFields()
	supply, ok := new(big.Int).SetString(f["total_supply"].GetStringValue(), 10)
	if !ok {
		return Info{}, fmt.Errorf("grpctoken: bad total_supply %q", f["total_supply"].GetStringValue())
	}
	return Info{
		Name:        f["name"].GetStringValue(),
		Symbol:      f["symbol"].GetStringValue(),
		Decimals:    uint8(f["decimals"].GetNumberValue()),
		TotalSupply: supply,
	}, nil
}

func (c *Client) BalanceOf(ctx context.Context, owner model.Address) (*big.Int, error) {
	out, err := c.invoke(ctx, "BalanceOf", map[string]any{"owner": string(owner)})
	if err != nil {
		return nil, err
	}
	return amount(out, "amount")
}

func (c *Client) Allowance(ctx context.Context, owner, spender model.Address) (*big.Int, error) {
	out, err := c.invoke(ctx, "Allowance", map[string]any{"owner": string(owner), "spender": string(spender)})
	if err != nil {
		return nil, err
	}
	return amount(out, "amount")
}

func (c *Client) Approve(ctx context.Context, owner, spender model.Address, n *big.Int) error {
	_, err := c.invoke(ctx, "Approve", map[string]any{"owner": string(owner), "spender": string(spender), "amount": n.String()})
	return err
}

func (c *Client) Transfer(ctx context.Context, from, to model.Address, n *big.Int) error {
	_, err := c.invoke(ctx, "Transfer", map[string]any{"from": string(from), "to": string(to), "amount": n.String()})
	return err
}

func (c *Client) TransferFrom(ctx context.Context, spender, from, to model.Address, n *big.Int) error {
	_, err := c.invoke(ctx, "TransferFrom", map[string]any{
		"spender": string(spender),
		"from":    string(from),
		"to":      string(to),
		"amount":  n.String(),
	})
	return err
}
