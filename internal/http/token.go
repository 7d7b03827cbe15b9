package httpapi

import (
	"math/big"
	"net/http"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
	"github.com/fairyhunter13/service-marketplace-ledger/internal/obs"
)

func (a *App) tokenInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":         a.Token.Name(),
		"symbol":       a.Token.Symbol(),
		"decimals":     a.Token.Decimals(),
		"total_supply": a.Token.TotalSupply(),
		"spender":      a.Cfg.MarketplaceAddress,
	})
}

func (a *App) tokenBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "balance": a.Token.BalanceOf(addr)})
}

func (a *App) tokenAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressParam(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := addressParam(w, r, "spender")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "spender": spender, "allowance": a.Token.Allowance(owner, spender)})
}

// tokenMove handles transfer and approve. Both act as the caller towards
// the counterparty address in the body.
func (a *App) tokenMove(name string, fn func(caller, counterparty model.Address, n *big.Int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(w, r)
		if !ok {
			return
		}
		var body struct {
			To      string `json:"to"`
			Spender string `json:"spender"`
			Amount  amount `json:"amount"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		raw := body.To
		if raw == "" {
			raw = body.Spender
		}
		counterparty, err := model.ParseAddress(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_address", err.Error())
			return
		}
		if body.Amount.Int == nil {
			writeError(w, r, http.StatusBadRequest, "validation_error", "amount is required")
			return
		}
		if err := fn(caller, counterparty, body.Amount.Int); err != nil {
			writeFailure(w, r, err)
			return
		}
		obs.Logger.Info(name, "caller", caller, "counterparty", counterparty, "amount", body.Amount.String())
		writeJSON(w, http.StatusOK, map[string]any{"request_id": RequestIDFromContext(r.Context()), "status": "ok"})
	}
}

func (a *App) tokenTransfer() http.HandlerFunc {
	return a.tokenMove("token_transfer", func(caller, to model.Address, n *big.Int) error {
		return a.Token.Transfer(caller, to, n)
	})
}

func (a *App) tokenApprove() http.HandlerFunc {
	return a.tokenMove("token_approve", func(caller, spender model.Address, n *big.Int) error {
		return a.Token.Approve(caller, spender, n)
	})
}
