package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/manifest"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/marketplace"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

type serviceView struct {
	model.Service
	VersionsCount  int `json:"versions_count"`
	OffersCount    int `json:"offers_count"`
	PurchasesCount int `json:"purchases_count"`
}

type versionView struct {
	Sid              string            `json:"sid"`
	Index            int               `json:"index"`
	Hash             model.Hash        `json:"hash"`
	Manifest         string            `json:"manifest"`
	ManifestProtocol string            `json:"manifest_protocol"`
	CreateTime       model.Timestamp   `json:"create_time"`
	Location         manifest.Location `json:"location"`
}

type offerView struct {
	Sid   string `json:"sid"`
	Index int    `json:"index"`
	model.Offer
}

type purchaseView struct {
	Sid        string `json:"sid"`
	Index      int    `json:"index"`
	Authorized bool   `json:"authorized"`
	model.Purchase
}

func describeService(m *marketplace.Marketplace, s model.Service) serviceView {
	v := serviceView{Service: s}
	v.VersionsCount, _ = m.VersionsCount(s.Sid)
	v.OffersCount, _ = m.OffersCount(s.Sid)
	v.PurchasesCount, _ = m.PurchasesCount(s.Sid)
	return v
}

func (a *App) describeVersion(sid string, index int, v model.Version) versionView {
	return versionView{
		Sid:              sid,
		Index:            index,
		Hash:             v.Hash,
		Manifest:         string(v.Manifest),
		ManifestProtocol: string(v.ManifestProtocol),
		CreateTime:       v.CreateTime,
		Location:         manifest.Resolve(v.ManifestProtocol, v.Manifest, a.Cfg.IPFSGateway),
	}
}

func pageParams(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return offset, limit
}

func (a *App) listServices(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	a.view(w, r, func(m *marketplace.Marketplace, _ model.Timestamp) (any, error) {
		page := m.Services(offset, limit)
		out := make([]serviceView, len(page))
		for i, s := range page {
			out[i] = describeService(m, s)
		}
		return map[string]any{"total": m.ServicesCount(), "offset": offset, "limit": limit, "services": out}, nil
	})
}

func (a *App) getService(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	a.view(w, r, func(m *marketplace.Marketplace, _ model.Timestamp) (any, error) {
		s, err := m.Service(sid)
		if err != nil {
			return nil, err
		}
		return describeService(m, s), nil
	})
}

func (a *App) getServiceAt(w http.ResponseWriter, r *http.Request) {
	i, ok := indexParam(w, r, "index")
	if !ok {
		return
	}
	a.view(w, r, func(m *marketplace.Marketplace, _ model.Timestamp) (any, error) {
		s, err := m.ServiceAt(i)
		if err != nil {
			return nil, err
		}
		return describeService(m, s), nil
	})
}

func (a *App) createService(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Sid string `json:"sid"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	a.submit(w, r, "create_service", http.StatusCreated, func(_ context.Context, m *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error) {
		return m.CreateService(call, []byte(body.Sid))
	})
}

func (a *App) transferServiceOwnership(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	var body struct {
		NewOwner string `json:"new_owner"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	to, err := model.ParseAddress(body.NewOwner)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_address", err.Error())
		return
	}
	a.submit(w, r, "transfer_service_ownership", http.StatusOK, func(_ context.Context, m *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error) {
		return m.TransferServiceOwnership(call, sid, to)
	})
}

func (a *App) listVersions(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	a.view(w, r, func(m *marketplace.Marketplace, _ model.Timestamp) (any, error) {
		vs, err := m.Versions(sid)
		if err != nil {
			return nil, err
		}
		out := make([]versionView, len(vs))
		for i, v := range vs {
			out[i] = a.describeVersion(sid, i, v)
		}
		return map[string]any{"sid": sid, "versions": out}, nil
	})
}

func (a *App) getVersion(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	i, ok := indexParam(w, r, "index")
	if !ok {
		return
	}
	a.view(w, r, func(m *marketplace.Marketplace, _ model.Timestamp) (any, error) {
		v, err := m.Version(sid, i)
		if err != nil {
			return nil, err
		}
		return a.describeVersion(sid, i, v), nil
	})
}

func (a *App) getVersionByHash(w http.ResponseWriter, r *http.Request) {
	h, err := model.ParseHash(chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_hash", err.Error())
		return
	}
	a.view(w, r, func(m *marketplace.Marketplace, _ model.Timestamp) (any, error) {
		ref, v, err := m.VersionByHash(h)
		if err != nil {
			return nil, err
		}
		return a.describeVersion(ref.Sid, ref.Index, v), nil
	})
}

func (a *App) createVersion(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	var body struct {
		Hash             string `json:"hash"`
		Manifest         string `json:"manifest"`
		ManifestProtocol string `json:"manifest_protocol"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	h, err := model.ParseHash(body.Hash)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_hash", err.Error())
		return
	}
	a.submit(w, r, "create_service_version", http.StatusCreated, func(_ context.Context, m *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error) {
		return m.CreateServiceVersion(call, sid, h, []byte(body.Manifest), []byte(body.ManifestProtocol))
	})
}

func (a *App) listOffers(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	a.view(w, r, func(m *marketplace.Marketplace, _ model.Timestamp) (any, error) {
		os, err := m.Offers(sid)
		if err != nil {
			return nil, err
		}
		out := make([]offerView, len(os))
		for i, o := range os {
			out[i] = offerView{Sid: sid, Index: i, Offer: o}
		}
		return map[string]any{"sid": sid, "offers": out}, nil
	})
}

func (a *App) getOffer(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	i, ok := indexParam(w, r, "index")
	if !ok {
		return
	}
	a.view(w, r, func(m *marketplace.Marketplace, _ model.Timestamp) (any, error) {
		o, err := m.Offer(sid, i)
		if err != nil {
			return nil, err
		}
		return offerView{Sid: sid, Index: i, Offer: o}, nil
	})
}

func (a *App) createOffer(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	var body struct {
		Price    amount         `json:"price"`
		Duration model.Duration `json:"duration"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	a.submit(w, r, "create_service_offer", http.StatusCreated, func(_ context.Context, m *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error) {
		return m.CreateServiceOffer(call, sid, body.Price.Int, body.Duration)
	})
}

func (a *App) disableOffer(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	i, ok := indexParam(w, r, "index")
	if !ok {
		return
	}
	a.submit(w, r, "disable_service_offer", http.StatusOK, func(_ context.Context, m *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error) {
		return m.DisableServiceOffer(call, sid, i)
	})
}

func (a *App) listPurchases(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	a.view(w, r, func(m *marketplace.Marketplace, now model.Timestamp) (any, error) {
		ps, err := m.Purchases(sid)
		if err != nil {
			return nil, err
		}
		out := make([]purchaseView, len(ps))
		for i, p := range ps {
			out[i] = purchaseView{Sid: sid, Index: i, Authorized: p.Expire.ValidAt(now), Purchase: p}
		}
		return map[string]any{"sid": sid, "at": now, "purchases": out}, nil
	})
}

func (a *App) getPurchaseAt(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	i, ok := indexParam(w, r, "index")
	if !ok {
		return
	}
	a.view(w, r, func(m *marketplace.Marketplace, now model.Timestamp) (any, error) {
		p, err := m.PurchaseAt(sid, i)
		if err != nil {
			return nil, err
		}
		return purchaseView{Sid: sid, Index: i, Authorized: p.Expire.ValidAt(now), Purchase: p}, nil
	})
}

func (a *App) getPurchaseOf(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	addr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	a.view(w, r, func(m *marketplace.Marketplace, now model.Timestamp) (any, error) {
		p, err := m.PurchaseOf(sid, addr)
		if err != nil {
			return nil, err
		}
		v := purchaseView{Sid: sid, Index: -1, Authorized: p.Expire.ValidAt(now), Purchase: p}
		ps, _ := m.Purchases(sid)
		for i := range ps {
			if ps[i].Purchaser == addr {
				v.Index = i
				break
			}
		}
		return v, nil
	})
}

func (a *App) purchase(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	var body struct {
		OfferIndex *int `json:"offer_index"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.OfferIndex == nil || *body.OfferIndex < 0 {
		writeError(w, r, http.StatusBadRequest, "validation_error", "offer_index is required")
		return
	}
	offer := *body.OfferIndex
	a.submit(w, r, "purchase", http.StatusOK, func(ctx context.Context, m *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error) {
		return m.Purchase(ctx, call, sid, offer)
	})
}

// isAuthorized answers at the executor's current time, or at the time in
// the at query parameter.
func (a *App) isAuthorized(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	addr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	var at *model.Timestamp
	if raw := r.URL.Query().Get("at"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_time", "at must be unix seconds")
			return
		}
		ts := model.Timestamp(n)
		at = &ts
	}
	a.view(w, r, func(m *marketplace.Marketplace, now model.Timestamp) (any, error) {
		if at != nil {
			now = *at
		}
		ok, err := m.IsAuthorized(sid, addr, now)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sid": sid, "address": addr, "at": now, "authorized": ok}, nil
	})
}
