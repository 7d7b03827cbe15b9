// Package marketplace implements the marketplace state machine: services,
// their versions and sale offers, purchaser access windows, and the pause
// and ownership roles guarding them.
//
// A Marketplace is not safe for concurrent use. Callers serialize every
// operation, reads included, and supply the current time with each call.
// Every mutating operation is all-or-nothing: it either returns the events
// describing its effect, already applied, or an *Error and leaves the state
// exactly as it was.
//
// The state is a pure fold of the emitted events, so Restore rebuilds a
// marketplace from its journal without settling any payment again.
package marketplace

import (
	"context"
	"fmt"
	"math/big"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

// Call carries the caller identity and the dispatcher-supplied time of one
// operation.
type Call struct {
	From model.Address
	Now  model.Timestamp
}

// Settler moves a purchase price from purchaser to service owner.
type Settler interface {
	Settle(ctx context.Context, from, to model.Address, amount *big.Int) error
}

// Marketplace holds the four registries and the contract-level roles.
type Marketplace struct {
	settler Settler

	gate      accessGate
	services  serviceRegistry
	versions  versionRegistry
	offers    offerRegistry
	purchases purchaseLedger
}

// New returns an empty marketplace settling purchases through settler. It
// has no owner until Bootstrap is applied.
func New(settler Settler) *Marketplace {
	return &Marketplace{
		settler:   settler,
		gate:      newAccessGate(),
		services:  newServiceRegistry(),
		versions:  newVersionRegistry(),
		offers:    newOfferRegistry(),
		purchases: newPurchaseLedger(),
	}
}

// Settler returns the settler purchases go through.
func (m *Marketplace) Settler() Settler { return m.settler }

// Restore applies a journaled event. Events must be restored in the order
// they were emitted.
func (m *Marketplace) Restore(at model.Timestamp, ev model.Event) error {
	return m.apply(at, ev)
}

// commit applies events produced by an operation that already validated
// them. A failure here means the validation and the fold disagree.
func (m *Marketplace) commit(at model.Timestamp, events ...model.Event) []model.Event {
	for _, ev := range events {
		if err := m.apply(at, ev); err != nil {
			panic("marketplace: validated event failed to apply: " + err.Error())
		}
	}
	return events
}

func (m *Marketplace) apply(at model.Timestamp, ev model.Event) error {
	switch e := ev.(type) {
	case model.ServiceCreated:
		return m.services.insert(e.Sid, e.Owner, at)
	case model.ServiceOwnershipTransferred:
		return m.services.setOwner(e.Sid, e.NewOwner)
	case model.ServiceVersionCreated:
		if !m.services.has(e.Sid) {
			return ErrServiceNotFound
		}
		return m.versions.append(e.Sid, e.Index, model.Version{
			Hash:             e.Hash,
			Manifest:         e.Manifest,
			ManifestProtocol: e.ManifestProtocol,
			CreateTime:       at,
		})
	case model.ServiceOfferCreated:
		if !m.services.has(e.Sid) {
			return ErrServiceNotFound
		}
		return m.offers.append(e.Sid, e.Index, model.Offer{
			Price:      model.Amount(e.Price),
			Duration:   e.Duration,
			Active:     true,
			CreateTime: at,
		})
	case model.ServiceOfferDisabled:
		return m.offers.disable(e.Sid, e.Index)
	case model.ServicePurchased:
		if !m.services.has(e.Sid) {
			return ErrServiceNotFound
		}
		m.purchases.upsert(e.Sid, e.Purchaser, e.Expire, at)
		return nil
	case model.Paused:
		m.gate.paused = true
		return nil
	case model.Unpaused:
		m.gate.paused = false
		return nil
	case model.PauserAdded:
		m.gate.pausers[e.Account] = true
		return nil
	case model.PauserRemoved:
		delete(m.gate.pausers, e.Account)
		return nil
	case model.OwnershipTransferred:
		m.gate.owner = e.NewOwner
		return nil
	}
	return fmt.Errorf("marketplace: cannot apply event %T", ev)
}

// requireServiceOwner resolves sid and checks that the caller owns it.
func (m *Marketplace) requireServiceOwner(sid string, caller model.Address) (*model.Service, error) {
	s, ok := m.services.get(sid)
	if !ok {
		return nil, ErrServiceNotFound
	}
	if s.Owner != caller {
		return nil, ErrNotServiceOwner
	}
	return s, nil
}
