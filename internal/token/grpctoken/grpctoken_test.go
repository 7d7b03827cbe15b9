package grpctoken

import (
	"context"
	"errors"
	"math/big"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/payment"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/token"
)

var (
	creator = model.MustAddress("0x00000000000000000000000000000000000000c0")
	buyer   = model.MustAddress("0x00000000000000000000000000000000000000b0")
	seller  = model.MustAddress("0x00000000000000000000000000000000000000a0")
	market  = model.MustAddress("0x00000000000000000000000000000000000000ee")
)

var _ payment.Token = (*Client)(nil)

func serve(t *testing.T, tok *token.Token) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterTokenServer(srv, &Server{T: tok})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(dialer))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestInfoAndBalances(t *testing.T) {
	tok := token.New(token.Config{Name: "Test", Symbol: "TST", Decimals: 2, Supply: 10}, creator)
	c := serve(t, tok)
	ctx := context.Background()

	info, err := c.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Name != "Test" || info.Symbol != "TST" || info.Decimals != 2 || info.TotalSupply.Int64() != 1000 {
		t.Fatalf("unexpected info %+v", info)
	}
	bal, err := c.BalanceOf(ctx, creator)
	if err != nil || bal.Int64() != 1000 {
		t.Fatalf("balance %v %v", bal, err)
	}
}

func TestSettleThroughBridge(t *testing.T) {
	tok := token.New(token.Config{Supply: 100}, creator)
	c := serve(t, tok)
	ctx := context.Background()
	if err := c.Transfer(ctx, creator, buyer, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	bridge := payment.NewBridge(c, market)

	if err := bridge.Settle(ctx, buyer, seller, big.NewInt(20)); !errors.Is(err, payment.ErrNotApproved) {
		t.Fatalf("expected not approved, got %v", err)
	}
	if err := c.Approve(ctx, buyer, market, big.NewInt(20)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := bridge.Settle(ctx, buyer, seller, big.NewInt(20)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if tok.BalanceOf(market).Int64() != 20 || tok.BalanceOf(seller).Sign() != 0 {
		t.Fatalf("settled funds must be held: market %s seller %s", tok.BalanceOf(market), tok.BalanceOf(seller))
	}
	if err := bridge.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if tok.BalanceOf(seller).Int64() != 20 || tok.BalanceOf(buyer).Int64() != 10 || tok.BalanceOf(market).Sign() != 0 {
		t.Fatalf("balances after settle: seller %s buyer %s", tok.BalanceOf(seller), tok.BalanceOf(buyer))
	}
	if err := bridge.Settle(ctx, buyer, seller, big.NewInt(20)); !errors.Is(err, payment.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	allowance, err := c.Allowance(ctx, buyer, market)
	if err != nil || allowance.Sign() != 0 {
		t.Fatalf("allowance %v %v", allowance, err)
	}
}

func TestRefundThroughBridge(t *testing.T) {
	tok := token.New(token.Config{Supply: 100}, creator)
	c := serve(t, tok)
	ctx := context.Background()
	if err := c.Transfer(ctx, creator, buyer, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := c.Approve(ctx, buyer, market, big.NewInt(30)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	bridge := payment.NewBridge(c, market)
	if err := bridge.Settle(ctx, buyer, seller, big.NewInt(30)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := bridge.Refund(ctx); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if tok.BalanceOf(buyer).Int64() != 30 || tok.BalanceOf(market).Sign() != 0 || tok.BalanceOf(seller).Sign() != 0 {
		t.Fatalf("after refund: buyer %s market %s seller %s", tok.BalanceOf(buyer), tok.BalanceOf(market), tok.BalanceOf(seller))
	}
}

func TestErrorsRoundTrip(t *testing.T) {
	tok := token.New(token.Config{Supply: 1}, creator)
	c := serve(t, tok)
	ctx := context.Background()
	if err := c.Transfer(ctx, buyer, seller, big.NewInt(5)); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := c.TransferFrom(ctx, market, creator, seller, big.NewInt(1)); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance, got %v", err)
	}
	if err := c.Approve(ctx, creator, model.ZeroAddress, big.NewInt(1)); !errors.Is(err, token.ErrZeroAddress) {
		t.Fatalf("expected zero address, got %v", err)
	}
	if _, err := c.BalanceOf(ctx, model.Address("nope")); err == nil {
		t.Fatalf("expected malformed address to fail")
	}
}
