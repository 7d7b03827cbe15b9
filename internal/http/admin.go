package httpapi

import (
	"context"
	"net/http"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/marketplace"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

type accountBody struct {
	Account string `json:"account"`
}

func (a *App) getAdmin(w http.ResponseWriter, r *http.Request) {
	a.view(w, r, func(m *marketplace.Marketplace, now model.Timestamp) (any, error) {
		return map[string]any{
			"owner":    m.Owner(),
			"paused":   m.Paused(),
			"pausers":  m.Pausers(),
			"services": m.ServicesCount(),
			"now":      now,
		}, nil
	})
}

// role wraps an operation that takes no argument besides the caller.
func (a *App) role(name string, fn func(m *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.submit(w, r, name, http.StatusOK, func(_ context.Context, m *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error) {
			return fn(m, call)
		})
	}
}

// roleFor wraps an operation applied to the account in the request body.
func (a *App) roleFor(name string, fn func(m *marketplace.Marketplace, call marketplace.Call, account model.Address) ([]model.Event, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body accountBody
		if !decodeJSON(w, r, &body) {
			return
		}
		account, err := model.ParseAddress(body.Account)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_address", err.Error())
			return
		}
		a.submit(w, r, name, http.StatusOK, func(_ context.Context, m *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error) {
			return fn(m, call, account)
		})
	}
}

func (a *App) removePauser(w http.ResponseWriter, r *http.Request) {
	account, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	a.submit(w, r, "remove_pauser", http.StatusOK, func(_ context.Context, m *marketplace.Marketplace, call marketplace.Call) ([]model.Event, error) {
		return m.RemovePauser(call, account)
	})
}
