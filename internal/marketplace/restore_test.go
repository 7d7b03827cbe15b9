package marketplace

import (
	"context"
	"math/big"
	"reflect"
	"testing"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/codec"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

type journaled struct {
	at   model.Timestamp
	kind model.EventKind
	data []byte
}

type recorder struct {
	t   *testing.T
	now model.Timestamp
	log []journaled
}

func (r *recorder) at(ts model.Timestamp) *recorder {
	r.now = ts
	return r
}

func (r *recorder) keep(evs []model.Event, err error) {
	r.t.Helper()
	if err != nil {
		r.t.Fatalf("unexpected error: %v", err)
	}
	for _, ev := range evs {
		kind, data, err := codec.EncodeEvent(ev)
		if err != nil {
			r.t.Fatalf("encode: %v", err)
		}
		r.log = append(r.log, journaled{at: r.now, kind: kind, data: data})
	}
}

func TestRestoreRebuildsIdenticalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := &recorder{t: t}
	rec.at(1).keep([]model.Event{
		model.OwnershipTransferred{PreviousOwner: model.ZeroAddress, NewOwner: admin},
		model.PauserAdded{Account: admin},
	}, nil)

	a := Call{From: ownerA, Now: 10}
	rec.at(a.Now).keep(f.m.CreateService(a, []byte("svc")))
	rec.at(a.Now).keep(f.m.CreateServiceVersion(a, "svc", model.MustHash("0x0a"), []byte("QmA"), []byte("ipfs")))
	rec.at(a.Now).keep(f.m.CreateServiceOffer(a, "svc", big.NewInt(3), model.Seconds(100)))
	rec.at(a.Now).keep(f.m.CreateServiceOffer(a, "svc", big.NewInt(9), model.Forever))
	f.fund(t, buyerB, 3)
	f.fund(t, otherC, 9)
	rec.at(20).keep(f.m.Purchase(ctx, Call{From: buyerB, Now: 20}, "svc", 0))
	rec.at(30).keep(f.m.Purchase(ctx, Call{From: otherC, Now: 30}, "svc", 1))
	rec.at(40).keep(f.m.DisableServiceOffer(Call{From: ownerA, Now: 40}, "svc", 0))
	rec.at(50).keep(f.m.TransferServiceOwnership(Call{From: ownerA, Now: 50}, "svc", buyerB))
	rec.at(60).keep(f.m.Pause(Call{From: admin, Now: 60}))

	// No settler: replay must never move funds.
	replica := New(nil)
	for _, j := range rec.log {
		ev, err := codec.DecodeEvent(j.kind, j.data)
		if err != nil {
			t.Fatalf("decode %s: %v", j.kind, err)
		}
		if err := replica.Restore(j.at, ev); err != nil {
			t.Fatalf("restore %s: %v", j.kind, err)
		}
	}

	if replica.Owner() != f.m.Owner() || replica.Paused() != f.m.Paused() {
		t.Fatalf("roles differ")
	}
	if !reflect.DeepEqual(replica.Services(0, 0), f.m.Services(0, 0)) {
		t.Fatalf("services differ")
	}
	wantV, _ := f.m.Versions("svc")
	gotV, _ := replica.Versions("svc")
	if !reflect.DeepEqual(gotV, wantV) {
		t.Fatalf("versions differ: %+v vs %+v", gotV, wantV)
	}
	wantO, _ := f.m.Offers("svc")
	gotO, _ := replica.Offers("svc")
	if len(gotO) != len(wantO) {
		t.Fatalf("offers differ")
	}
	for i := range wantO {
		if gotO[i].Active != wantO[i].Active || gotO[i].Price.Cmp(wantO[i].Price) != 0 || gotO[i].Duration != wantO[i].Duration {
			t.Fatalf("offer %d differs: %+v vs %+v", i, gotO[i], wantO[i])
		}
	}
	wantP, _ := f.m.Purchases("svc")
	gotP, _ := replica.Purchases("svc")
	if !reflect.DeepEqual(gotP, wantP) {
		t.Fatalf("purchases differ: %+v vs %+v", gotP, wantP)
	}
	if ok, _ := replica.IsAuthorized("svc", otherC, ^model.Timestamp(0)); !ok {
		t.Fatalf("forever purchase lost on replay")
	}
}

func TestRestoreRejectsInconsistentJournal(t *testing.T) {
	m := New(nil)
	if err := m.Restore(1, model.ServiceVersionCreated{Sid: "ghost", Hash: model.MustHash("0x01")}); err == nil {
		t.Fatalf("expected error for version of unknown service")
	}
	if err := m.Restore(1, model.ServiceCreated{Sid: "s", Owner: ownerA}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := m.Restore(1, model.ServiceCreated{Sid: "s", Owner: ownerA}); err == nil {
		t.Fatalf("expected duplicate sid on replay")
	}
	if err := m.Restore(1, model.ServiceOfferCreated{Sid: "s", Index: 3, Duration: model.Seconds(1)}); err == nil {
		t.Fatalf("expected out-of-sequence offer index")
	}
}
