package marketplace

import (
	"context"
	"errors"
	"math/big"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/payment"
)

// purchaseLedger keeps at most one purchase per (sid, purchaser). The list
// preserves first-purchase order for indexed access.
type purchaseLedger struct {
	index map[string]map[model.Address]int
	lists map[string][]model.Purchase
}

func newPurchaseLedger() purchaseLedger {
	return purchaseLedger{
		index: make(map[string]map[model.Address]int),
		lists: make(map[string][]model.Purchase),
	}
}

func (l *purchaseLedger) get(s string, purchaser model.Address) (model.Purchase, bool) {
	i, ok := l.index[s][purchaser]
	if !ok {
		return model.Purchase{}, false
	}
	return l.lists[s][i], true
}

// upsert records a new expiry. CreateTime is set on the first purchase only.
func (l *purchaseLedger) upsert(s string, purchaser model.Address, expire model.Expiry, at model.Timestamp) {
	if i, ok := l.index[s][purchaser]; ok {
		l.lists[s][i].Expire = expire
		return
	}
	if l.index[s] == nil {
		l.index[s] = make(map[model.Address]int)
	}
	l.index[s][purchaser] = len(l.lists[s])
	l.lists[s] = append(l.lists[s], model.Purchase{Purchaser: purchaser, Expire: expire, CreateTime: at})
}

// Purchase buys offerIndex of sid for the caller, paying the current service
// owner. The price is settled before any state changes; a settlement failure
// leaves both the marketplace and the token untouched.
func (m *Marketplace) Purchase(ctx context.Context, call Call, s string, offerIndex int) ([]model.Event, error) {
	if err := m.gate.whenNotPaused(); err != nil {
		return nil, err
	}
	svc, ok := m.services.get(s)
	if !ok {
		return nil, ErrServiceNotFound
	}
	offer, ok := m.offers.get(s, offerIndex)
	if !ok {
		return nil, ErrOfferNotFound
	}
	if !offer.Active {
		return nil, ErrOfferNotActive
	}
	if svc.Owner == call.From {
		return nil, ErrOwnerCannotPurchaseOwnService
	}
	prev, _ := m.purchases.get(s, call.From)
	if prev.Expire.IsForever() {
		return nil, ErrAlreadyPermanent
	}
	expire, err := prev.Expire.Extend(call.Now, offer.Duration)
	if err != nil {
		return nil, wrap(ErrExpireOverflow, err)
	}
	price := model.Amount(offer.Price)
	if err := m.settle(ctx, call.From, svc.Owner, price); err != nil {
		return nil, err
	}
	return m.commit(call.Now, model.ServicePurchased{
		Sid:        s,
		OfferIndex: offerIndex,
		Purchaser:  call.From,
		Price:      price,
		Duration:   offer.Duration,
		Expire:     expire,
	}), nil
}

func (m *Marketplace) settle(ctx context.Context, from, to model.Address, price *big.Int) error {
	if m.settler == nil {
		if price.Sign() == 0 {
			return nil
		}
		return ErrTransferFailed
	}
	err := m.settler.Settle(ctx, from, to, price)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, payment.ErrInsufficientBalance):
		return wrap(ErrInsufficientBalance, err)
	case errors.Is(err, payment.ErrNotApproved):
		return wrap(ErrNotApproved, err)
	default:
		return wrap(ErrTransferFailed, err)
	}
}

// IsAuthorized reports whether a may use sid at now: the current owner
// always may, anyone else needs a purchase that has not expired.
func (m *Marketplace) IsAuthorized(s string, a model.Address, now model.Timestamp) (bool, error) {
	svc, ok := m.services.get(s)
	if !ok {
		return false, ErrServiceNotFound
	}
	if svc.Owner == a {
		return true, nil
	}
	p, ok := m.purchases.get(s, a)
	return ok && p.Expire.ValidAt(now), nil
}

// PurchaseOf returns the purchase a holds on sid.
func (m *Marketplace) PurchaseOf(s string, a model.Address) (model.Purchase, error) {
	if !m.services.has(s) {
		return model.Purchase{}, ErrServiceNotFound
	}
	p, ok := m.purchases.get(s, a)
	if !ok {
		return model.Purchase{}, ErrPurchaseNotFound
	}
	return p, nil
}

// PurchaseAt returns the i-th distinct purchaser's record for sid.
func (m *Marketplace) PurchaseAt(s string, i int) (model.Purchase, error) {
	if !m.services.has(s) {
		return model.Purchase{}, ErrServiceNotFound
	}
	list := m.purchases.lists[s]
	if i < 0 || i >= len(list) {
		return model.Purchase{}, ErrPurchaseNotFound
	}
	return list[i], nil
}

func (m *Marketplace) PurchasesCount(s string) (int, error) {
	if !m.services.has(s) {
		return 0, ErrServiceNotFound
	}
	return len(m.purchases.lists[s]), nil
}

// Purchases returns every purchase of sid in first-purchase order.
func (m *Marketplace) Purchases(s string) ([]model.Purchase, error) {
	if !m.services.has(s) {
		return nil, ErrServiceNotFound
	}
	return append([]model.Purchase(nil), m.purchases.lists[s]...), nil
}
