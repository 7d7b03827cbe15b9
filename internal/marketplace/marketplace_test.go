package marketplace

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/payment"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/token"
)

var (
	admin  = model.MustAddress("0x00000000000000000000000000000000000000ad")
	ownerA = model.MustAddress("0x00000000000000000000000000000000000000a0")
	buyerB = model.MustAddress("0x00000000000000000000000000000000000000b0")
	otherC = model.MustAddress("0x00000000000000000000000000000000000000c0")
	market = model.MustAddress("0x00000000000000000000000000000000000000ee")
)

type fixture struct {
	m      *Marketplace
	tok    *token.Token
	bridge *payment.Bridge
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tok := token.New(token.Config{Supply: 1000000}, admin)
	bridge := payment.NewBridge(payment.Local{T: tok}, market)
	m := New(bridge)
	if _, err := m.Bootstrap(Call{From: admin, Now: 1}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return &fixture{m: m, tok: tok, bridge: bridge}
}

// release pays out settled purchases, as the executor does once they are
// journaled.
func (f *fixture) release(t *testing.T) {
	t.Helper()
	if err := f.bridge.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
}

// fund gives a balance and approves the marketplace for it.
func (f *fixture) fund(t *testing.T, who model.Address, amount int64) {
	t.Helper()
	if err := f.tok.Transfer(admin, who, big.NewInt(amount)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := f.tok.Approve(who, market, big.NewInt(amount)); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

// listed creates svc owned by ownerA with one version and one offer.
func (f *fixture) listed(t *testing.T, svc string, price int64, d model.Duration) {
	t.Helper()
	at := Call{From: ownerA, Now: 10}
	must(t)(f.m.CreateService(at, []byte(svc)))
	must(t)(f.m.CreateServiceVersion(at, svc, model.MustHash("0x"+svcHash(svc)), []byte("QmManifest"), []byte("ipfs")))
	must(t)(f.m.CreateServiceOffer(at, svc, big.NewInt(price), d))
}

func svcHash(svc string) string {
	out := make([]byte, 0, 2*len(svc))
	const digits = "0123456789abcdef"
	for _, c := range []byte(svc) {
		out = append(out, digits[c>>4], digits[c&0xf])
	}
	return string(out)
}

// must returns a checker for an operation that has to succeed.
func must(t *testing.T) func([]model.Event, error) []model.Event {
	return func(evs []model.Event, err error) []model.Event {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return evs
	}
}

func mustFail(t *testing.T, want *Error, evs []model.Event, err error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Code, err)
	}
	if evs != nil {
		t.Fatalf("failed operation returned events: %v", evs)
	}
}

func TestEndToEndPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := Call{From: ownerA, Now: 100}
	must(t)(f.m.CreateService(a, []byte("svc-a")))
	must(t)(f.m.CreateServiceVersion(a, "svc-a", model.MustHash("0x01"), []byte("QmX"), []byte("ipfs")))
	must(t)(f.m.CreateServiceOffer(a, "svc-a", big.NewInt(1000), model.Seconds(3600)))
	f.fund(t, buyerB, 1000)

	evs := must(t)(f.m.Purchase(ctx, Call{From: buyerB, Now: 1000}, "svc-a", 0))
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	ev, ok := evs[0].(model.ServicePurchased)
	if !ok {
		t.Fatalf("unexpected event %T", evs[0])
	}
	if at, _ := ev.Expire.At(); at != 4600 || ev.Price.Int64() != 1000 || ev.Purchaser != buyerB {
		t.Fatalf("unexpected purchase event %+v", ev)
	}
	for _, tc := range []struct {
		now  model.Timestamp
		want bool
	}{{1000, true}, {4599, true}, {4600, false}, {5000, false}} {
		got, err := f.m.IsAuthorized("svc-a", buyerB, tc.now)
		if err != nil || got != tc.want {
			t.Fatalf("isAuthorized at %d: %v %v", tc.now, got, err)
		}
	}
	f.release(t)
	if f.tok.BalanceOf(ownerA).Int64() != 1000 || f.tok.BalanceOf(buyerB).Sign() != 0 {
		t.Fatalf("balances A=%s B=%s", f.tok.BalanceOf(ownerA), f.tok.BalanceOf(buyerB))
	}
	if ok, _ := f.m.IsAuthorized("svc-a", ownerA, 99999); !ok {
		t.Fatalf("owner is always authorized")
	}
	if ok, _ := f.m.IsAuthorized("svc-a", otherC, 1000); ok {
		t.Fatalf("stranger should not be authorized")
	}
}

func TestPurchaseExtendsAdditivelyAndRestartsAfterLapse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.listed(t, "svc", 10, model.Seconds(3600))
	f.fund(t, buyerB, 30)

	must(t)(f.m.Purchase(ctx, Call{From: buyerB, Now: 1000}, "svc", 0))
	must(t)(f.m.Purchase(ctx, Call{From: buyerB, Now: 2000}, "svc", 0))
	p, _ := f.m.PurchaseOf("svc", buyerB)
	if at, _ := p.Expire.At(); at != 8200 {
		t.Fatalf("expected additive extension to 8200, got %s", p.Expire)
	}
	must(t)(f.m.Purchase(ctx, Call{From: buyerB, Now: 9000}, "svc", 0))
	p, _ = f.m.PurchaseOf("svc", buyerB)
	if at, _ := p.Expire.At(); at != 12600 {
		t.Fatalf("expected restart from now, got %s", p.Expire)
	}
	if p.CreateTime != 1000 {
		t.Fatalf("create time must stay at first purchase, got %d", p.CreateTime)
	}
	if n, _ := f.m.PurchasesCount("svc"); n != 1 {
		t.Fatalf("expected one purchase record, got %d", n)
	}
}

func TestPurchaseForever(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.listed(t, "svc", 5, model.Forever)
	f.fund(t, buyerB, 10)

	must(t)(f.m.Purchase(ctx, Call{From: buyerB, Now: 50}, "svc", 0))
	if ok, _ := f.m.IsAuthorized("svc", buyerB, ^model.Timestamp(0)); !ok {
		t.Fatalf("forever purchase must never lapse")
	}
	evs, err := f.m.Purchase(ctx, Call{From: buyerB, Now: 60}, "svc", 0)
	mustFail(t, ErrAlreadyPermanent, evs, err)
	if f.tok.BalanceOf(buyerB).Int64() != 5 {
		t.Fatalf("rejected purchase must not charge, balance %s", f.tok.BalanceOf(buyerB))
	}
}

func TestFiniteThenForever(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.listed(t, "svc", 1, model.Seconds(10))
	must(t)(f.m.CreateServiceOffer(Call{From: ownerA, Now: 20}, "svc", big.NewInt(1), model.Forever))
	f.fund(t, buyerB, 2)
	must(t)(f.m.Purchase(ctx, Call{From: buyerB, Now: 100}, "svc", 0))
	must(t)(f.m.Purchase(ctx, Call{From: buyerB, Now: 101}, "svc", 1))
	p, _ := f.m.PurchaseOf("svc", buyerB)
	if !p.Expire.IsForever() {
		t.Fatalf("expected forever, got %s", p.Expire)
	}
}

func TestPurchaseRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.listed(t, "svc", 100, model.Seconds(60))
	buy := Call{From: buyerB, Now: 100}

	evs, err := f.m.Purchase(ctx, buy, "nope", 0)
	mustFail(t, ErrServiceNotFound, evs, err)
	evs, err = f.m.Purchase(ctx, buy, "svc", 1)
	mustFail(t, ErrOfferNotFound, evs, err)
	evs, err = f.m.Purchase(ctx, Call{From: ownerA, Now: 100}, "svc", 0)
	mustFail(t, ErrOwnerCannotPurchaseOwnService, evs, err)

	// no balance and no approval: balance is checked first
	evs, err = f.m.Purchase(ctx, buy, "svc", 0)
	mustFail(t, ErrInsufficientBalance, evs, err)

	if err := f.tok.Transfer(admin, buyerB, big.NewInt(100)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	evs, err = f.m.Purchase(ctx, buy, "svc", 0)
	mustFail(t, ErrNotApproved, evs, err)

	if n, _ := f.m.PurchasesCount("svc"); n != 0 {
		t.Fatalf("failed purchases must not record anything")
	}
	if f.tok.BalanceOf(ownerA).Sign() != 0 {
		t.Fatalf("failed purchases must not pay the owner")
	}

	must(t)(f.m.DisableServiceOffer(Call{From: ownerA, Now: 100}, "svc", 0))
	evs, err = f.m.Purchase(ctx, buy, "svc", 0)
	mustFail(t, ErrOfferNotActive, evs, err)
}

type brokenSettler struct{}

func (brokenSettler) Settle(context.Context, model.Address, model.Address, *big.Int) error {
	return errors.New("token unreachable")
}

func TestPurchaseSettlementFailureIsAtomic(t *testing.T) {
	m := New(brokenSettler{})
	a := Call{From: ownerA, Now: 1}
	must(t)(m.CreateService(a, []byte("svc")))
	must(t)(m.CreateServiceVersion(a, "svc", model.MustHash("0x02"), []byte("m"), []byte("p")))
	must(t)(m.CreateServiceOffer(a, "svc", big.NewInt(1), model.Seconds(1)))

	evs, err := m.Purchase(context.Background(), Call{From: buyerB, Now: 2}, "svc", 0)
	mustFail(t, ErrTransferFailed, evs, err)
	if _, err := m.PurchaseOf("svc", buyerB); !errors.Is(err, ErrPurchaseNotFound) {
		t.Fatalf("expected no purchase, got %v", err)
	}
}

func TestFreeOfferNeedsNoApproval(t *testing.T) {
	f := newFixture(t)
	f.listed(t, "free", 0, model.Seconds(5))
	must(t)(f.m.Purchase(context.Background(), Call{From: buyerB, Now: 10}, "free", 0))
	if ok, _ := f.m.IsAuthorized("free", buyerB, 14); !ok {
		t.Fatalf("expected access")
	}
}

func TestExpireOverflow(t *testing.T) {
	f := newFixture(t)
	f.listed(t, "svc", 0, model.Seconds(^uint64(0)))
	evs, err := f.m.Purchase(context.Background(), Call{From: buyerB, Now: 10}, "svc", 0)
	mustFail(t, ErrExpireOverflow, evs, err)
}

func TestOwnershipTransferIsNotRetroactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.listed(t, "svc", 100, model.Seconds(1000))
	f.fund(t, buyerB, 200)
	must(t)(f.m.Purchase(ctx, Call{From: buyerB, Now: 100}, "svc", 0))

	f.release(t)
	must(t)(f.m.TransferServiceOwnership(Call{From: ownerA, Now: 200}, "svc", otherC))
	if ok, _ := f.m.IsAuthorized("svc", buyerB, 500); !ok {
		t.Fatalf("existing purchase must survive an ownership change")
	}
	if ok, _ := f.m.IsAuthorized("svc", ownerA, 500); ok {
		t.Fatalf("previous owner keeps no implicit access")
	}
	must(t)(f.m.Purchase(ctx, Call{From: buyerB, Now: 300}, "svc", 0))
	f.release(t)
	if f.tok.BalanceOf(ownerA).Int64() != 100 || f.tok.BalanceOf(otherC).Int64() != 100 {
		t.Fatalf("revenue split A=%s C=%s", f.tok.BalanceOf(ownerA), f.tok.BalanceOf(otherC))
	}
	p, _ := f.m.PurchaseOf("svc", buyerB)
	if at, _ := p.Expire.At(); at != 2100 {
		t.Fatalf("expected 2100, got %s", p.Expire)
	}
}

func TestServiceLifecycle(t *testing.T) {
	f := newFixture(t)
	a := Call{From: ownerA, Now: 42}

	evs := must(t)(f.m.CreateService(a, []byte("svc-a")))
	if ev, ok := evs[0].(model.ServiceCreated); !ok || ev.Sid != "svc-a" || ev.Owner != ownerA {
		t.Fatalf("unexpected event %#v", evs[0])
	}
	evs, err := f.m.CreateService(Call{From: buyerB, Now: 43}, []byte("svc-a"))
	mustFail(t, ErrDuplicateSid, evs, err)
	evs, err = f.m.CreateService(a, []byte("-bad"))
	mustFail(t, ErrInvalidSid, evs, err)
	evs, err = f.m.CreateService(a, nil)
	mustFail(t, ErrInvalidSid, evs, err)

	svc, err := f.m.Service("svc-a")
	if err != nil || svc.Owner != ownerA || svc.CreateTime != 42 {
		t.Fatalf("service %+v %v", svc, err)
	}
	if f.m.ServicesCount() != 1 {
		t.Fatalf("count %d", f.m.ServicesCount())
	}
	if _, err := f.m.ServiceAt(1); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	evs, err = f.m.TransferServiceOwnership(Call{From: buyerB, Now: 50}, "svc-a", buyerB)
	mustFail(t, ErrNotServiceOwner, evs, err)
	evs, err = f.m.TransferServiceOwnership(a, "svc-a", model.ZeroAddress)
	mustFail(t, ErrZeroAddress, evs, err)
	evs, err = f.m.TransferServiceOwnership(a, "svc-a", ownerA)
	mustFail(t, ErrSameOwner, evs, err)
	evs, err = f.m.TransferServiceOwnership(a, "missing", buyerB)
	mustFail(t, ErrServiceNotFound, evs, err)
	must(t)(f.m.TransferServiceOwnership(a, "svc-a", buyerB))
	if !f.m.IsServiceOwner("svc-a", buyerB) || f.m.IsServiceOwner("svc-a", ownerA) {
		t.Fatalf("ownership not transferred")
	}
}

func TestServicesPaging(t *testing.T) {
	m := New(nil)
	for _, s := range []string{"a", "b", "c", "d"} {
		must(t)(m.CreateService(Call{From: ownerA}, []byte(s)))
	}
	got := m.Services(1, 2)
	if len(got) != 2 || got[0].Sid != "b" || got[1].Sid != "c" {
		t.Fatalf("page %+v", got)
	}
	if len(m.Services(3, 0)) != 1 || len(m.Services(10, 5)) != 0 {
		t.Fatalf("tail paging")
	}
	if s, _ := m.ServiceAt(3); s.Sid != "d" {
		t.Fatalf("serviceAt %+v", s)
	}
}

func TestVersions(t *testing.T) {
	f := newFixture(t)
	a := Call{From: ownerA, Now: 7}
	must(t)(f.m.CreateService(a, []byte("one")))
	must(t)(f.m.CreateService(a, []byte("two")))
	h := model.MustHash("0xabcd")

	evs, err := f.m.CreateServiceVersion(Call{From: buyerB, Now: 7}, "one", h, []byte("m"), []byte("p"))
	mustFail(t, ErrNotServiceOwner, evs, err)
	evs, err = f.m.CreateServiceVersion(a, "one", h, []byte{0, 0}, []byte("p"))
	mustFail(t, ErrEmptyManifest, evs, err)
	evs, err = f.m.CreateServiceVersion(a, "one", h, []byte("m"), nil)
	mustFail(t, ErrEmptyManifestProtocol, evs, err)

	must(t)(f.m.CreateServiceVersion(a, "one", h, []byte("m"), []byte("p")))
	evs, err = f.m.CreateServiceVersion(a, "two", h, []byte("m"), []byte("p"))
	mustFail(t, ErrDuplicateHash, evs, err)
	must(t)(f.m.CreateServiceVersion(a, "one", model.MustHash("0xabce"), []byte("m2"), []byte("p")))

	ref, v, err := f.m.VersionByHash(h)
	if err != nil || ref.Sid != "one" || ref.Index != 0 || string(v.Manifest) != "m" || v.CreateTime != 7 {
		t.Fatalf("by hash %+v %+v %v", ref, v, err)
	}
	if n, _ := f.m.VersionsCount("one"); n != 2 {
		t.Fatalf("versions count %d", n)
	}
	if n, _ := f.m.VersionsCount("two"); n != 0 {
		t.Fatalf("versions count %d", n)
	}
	if _, err := f.m.Version("one", 2); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected version not found, got %v", err)
	}
	if _, err := f.m.Versions("zzz"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected service not found, got %v", err)
	}
	got, _ := f.m.Version("one", 0)
	got.Manifest[0] = 'X'
	again, _ := f.m.Version("one", 0)
	if string(again.Manifest) != "m" {
		t.Fatalf("reads must return copies")
	}
}

func TestOffers(t *testing.T) {
	f := newFixture(t)
	a := Call{From: ownerA, Now: 3}
	must(t)(f.m.CreateService(a, []byte("svc")))

	evs, err := f.m.CreateServiceOffer(a, "svc", big.NewInt(1), model.Seconds(1))
	mustFail(t, ErrNoVersionYet, evs, err)
	must(t)(f.m.CreateServiceVersion(a, "svc", model.MustHash("0x03"), []byte("m"), []byte("p")))
	evs, err = f.m.CreateServiceOffer(a, "svc", big.NewInt(1), model.Seconds(0))
	mustFail(t, ErrZeroDuration, evs, err)
	evs, err = f.m.CreateServiceOffer(a, "svc", big.NewInt(-1), model.Seconds(1))
	mustFail(t, ErrNegativePrice, evs, err)
	if n, _ := f.m.OffersCount("svc"); n != 0 {
		t.Fatalf("rejected offers must not be recorded, got %d", n)
	}
	evs, err = f.m.CreateServiceOffer(Call{From: buyerB, Now: 3}, "svc", big.NewInt(1), model.Seconds(1))
	mustFail(t, ErrNotServiceOwner, evs, err)

	must(t)(f.m.CreateServiceOffer(a, "svc", big.NewInt(7), model.Seconds(9)))
	must(t)(f.m.CreateServiceOffer(a, "svc", nil, model.Forever))
	o, err := f.m.Offer("svc", 1)
	if err != nil || o.Price.Sign() != 0 || !o.Duration.IsForever() || !o.Active {
		t.Fatalf("offer %+v %v", o, err)
	}

	evs, err = f.m.DisableServiceOffer(a, "svc", 5)
	mustFail(t, ErrOfferNotFound, evs, err)
	must(t)(f.m.DisableServiceOffer(a, "svc", 0))
	evs = must(t)(f.m.DisableServiceOffer(a, "svc", 0))
	if len(evs) != 1 || evs[0].Kind() != model.KindServiceOfferDisabled {
		t.Fatalf("disabling twice still emits, got %v", evs)
	}
	list, _ := f.m.Offers("svc")
	if len(list) != 2 || list[0].Active || !list[1].Active {
		t.Fatalf("offers %+v", list)
	}
	list[1].Price.SetInt64(99)
	if o, _ := f.m.Offer("svc", 1); o.Price.Sign() != 0 {
		t.Fatalf("reads must return copies")
	}
}

func TestPauseGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.listed(t, "svc", 0, model.Seconds(5))
	a := Call{From: ownerA, Now: 20}

	evs, err := f.m.Pause(a)
	mustFail(t, ErrNotPauser, evs, err)
	evs, err = f.m.Unpause(Call{From: admin, Now: 20})
	mustFail(t, ErrNotPaused, evs, err)
	must(t)(f.m.Pause(Call{From: admin, Now: 20}))
	if !f.m.Paused() {
		t.Fatalf("expected paused")
	}
	evs, err = f.m.Pause(Call{From: admin, Now: 20})
	mustFail(t, ErrPaused, evs, err)

	check := func(evs []model.Event, err error) { mustFail(t, ErrPaused, evs, err) }
	check(f.m.CreateService(a, []byte("x")))
	check(f.m.TransferServiceOwnership(a, "svc", buyerB))
	check(f.m.CreateServiceVersion(a, "svc", model.MustHash("0x09"), []byte("m"), []byte("p")))
	check(f.m.CreateServiceOffer(a, "svc", nil, model.Seconds(1)))
	check(f.m.DisableServiceOffer(a, "svc", 0))
	check(f.m.Purchase(ctx, Call{From: buyerB, Now: 20}, "svc", 0))

	if ok, err := f.m.IsAuthorized("svc", ownerA, 20); !ok || err != nil {
		t.Fatalf("reads must keep working while paused")
	}
	must(t)(f.m.Unpause(Call{From: admin, Now: 21}))
	must(t)(f.m.Purchase(ctx, Call{From: buyerB, Now: 21}, "svc", 0))
}

func TestRoles(t *testing.T) {
	f := newFixture(t)
	at := Call{From: admin, Now: 2}
	if f.m.Owner() != admin || !f.m.IsOwner(admin) || !f.m.IsPauser(admin) {
		t.Fatalf("bootstrap roles")
	}
	evs, err := f.m.Bootstrap(Call{From: buyerB})
	mustFail(t, ErrAlreadyBootstrapped, evs, err)

	evs, err = f.m.AddPauser(Call{From: buyerB}, otherC)
	mustFail(t, ErrNotPauser, evs, err)
	evs, err = f.m.AddPauser(at, model.ZeroAddress)
	mustFail(t, ErrZeroAddress, evs, err)
	must(t)(f.m.AddPauser(at, buyerB))
	evs, err = f.m.AddPauser(at, buyerB)
	mustFail(t, ErrAlreadyPauser, evs, err)
	if got := f.m.Pausers(); len(got) != 2 || got[0] != admin || got[1] != buyerB {
		t.Fatalf("pausers %v", got)
	}

	must(t)(f.m.RenouncePauser(Call{From: buyerB}))
	if f.m.IsPauser(buyerB) {
		t.Fatalf("renounce failed")
	}
	evs, err = f.m.RemovePauser(Call{From: buyerB}, admin)
	mustFail(t, ErrNotOwner, evs, err)
	must(t)(f.m.AddPauser(at, otherC))
	must(t)(f.m.RemovePauser(at, otherC))
	evs, err = f.m.RemovePauser(at, otherC)
	mustFail(t, ErrNotPauser, evs, err)

	evs, err = f.m.TransferOwnership(Call{From: buyerB}, buyerB)
	mustFail(t, ErrNotOwner, evs, err)
	evs, err = f.m.TransferOwnership(at, model.ZeroAddress)
	mustFail(t, ErrZeroAddress, evs, err)
	must(t)(f.m.TransferOwnership(at, ownerA))
	if f.m.IsOwner(admin) || !f.m.IsOwner(ownerA) {
		t.Fatalf("ownership transfer")
	}
}

func TestErrorKinds(t *testing.T) {
	for _, tc := range []struct {
		err  *Error
		kind Kind
	}{
		{ErrInvalidSid, KindValidation},
		{ErrNegativePrice, KindValidation},
		{ErrServiceNotFound, KindNotFound},
		{ErrDuplicateHash, KindConflict},
		{ErrPaused, KindAuthorization},
		{ErrNotApproved, KindPurchase},
	} {
		if tc.err.Kind() != tc.kind {
			t.Fatalf("%s: kind %s", tc.err.Code, tc.err.Kind())
		}
	}
	wrapped := wrap(ErrTransferFailed, errors.New("boom"))
	if !errors.Is(wrapped, ErrTransferFailed) || errors.Is(wrapped, ErrNotApproved) {
		t.Fatalf("errors.Is must match by code")
	}
	if e, ok := AsError(wrapped); !ok || e.Code != CodeTransferFailed {
		t.Fatalf("AsError %v %v", e, ok)
	}
}
