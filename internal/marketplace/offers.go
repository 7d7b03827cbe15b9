package marketplace

import (
	"fmt"
	"math/big"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

type offerRegistry struct {
	lists map[string][]model.Offer
}

func newOfferRegistry() offerRegistry {
	return offerRegistry{lists: make(map[string][]model.Offer)}
}

func (r *offerRegistry) append(s string, index int, o model.Offer) error {
	if index != len(r.lists[s]) {
		return fmt.Errorf("marketplace: offer index %d out of sequence for %q", index, s)
	}
	r.lists[s] = append(r.lists[s], o)
	return nil
}

func (r *offerRegistry) disable(s string, index int) error {
	list := r.lists[s]
	if index < 0 || index >= len(list) {
		return ErrOfferNotFound
	}
	list[index].Active = false
	return nil
}

func (r *offerRegistry) get(s string, index int) (*model.Offer, bool) {
	list := r.lists[s]
	if index < 0 || index >= len(list) {
		return nil, false
	}
	return &list[index], true
}

// CreateServiceOffer puts a service owned by the caller up for sale. The
// service needs at least one version first.
func (m *Marketplace) CreateServiceOffer(call Call, s string, price *big.Int, duration model.Duration) ([]model.Event, error) {
	if err := m.gate.whenNotPaused(); err != nil {
		return nil, err
	}
	if _, err := m.requireServiceOwner(s, call.From); err != nil {
		return nil, err
	}
	if len(m.versions.lists[s]) == 0 {
		return nil, ErrNoVersionYet
	}
	if duration.IsZero() {
		return nil, ErrZeroDuration
	}
	if price != nil && price.Sign() < 0 {
		return nil, ErrNegativePrice
	}
	return m.commit(call.Now, model.ServiceOfferCreated{
		Sid:      s,
		Index:    len(m.offers.lists[s]),
		Price:    model.Amount(price),
		Duration: duration,
	}), nil
}

// DisableServiceOffer withdraws an offer from sale. Disabling an already
// disabled offer succeeds and emits the event again.
func (m *Marketplace) DisableServiceOffer(call Call, s string, index int) ([]model.Event, error) {
	if err := m.gate.whenNotPaused(); err != nil {
		return nil, err
	}
	if _, err := m.requireServiceOwner(s, call.From); err != nil {
		return nil, err
	}
	if _, ok := m.offers.get(s, index); !ok {
		return nil, ErrOfferNotFound
	}
	return m.commit(call.Now, model.ServiceOfferDisabled{Sid: s, Index: index}), nil
}

// Offer returns the i-th offer of sid.
func (m *Marketplace) Offer(s string, i int) (model.Offer, error) {
	if !m.services.has(s) {
		return model.Offer{}, ErrServiceNotFound
	}
	o, ok := m.offers.get(s, i)
	if !ok {
		return model.Offer{}, ErrOfferNotFound
	}
	return cloneOffer(*o), nil
}

func (m *Marketplace) OffersCount(s string) (int, error) {
	if !m.services.has(s) {
		return 0, ErrServiceNotFound
	}
	return len(m.offers.lists[s]), nil
}

// Offers returns every offer of sid, disabled ones included.
func (m *Marketplace) Offers(s string) ([]model.Offer, error) {
	if !m.services.has(s) {
		return nil, ErrServiceNotFound
	}
	list := m.offers.lists[s]
	out := make([]model.Offer, len(list))
	for i, o := range list {
		out[i] = cloneOffer(o)
	}
	return out, nil
}

func cloneOffer(o model.Offer) model.Offer {
	o.Price = model.Amount(o.Price)
	return o
}
