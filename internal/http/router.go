package httpapi

import (
	"expvar"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/marketplace"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID, WithLogging)
	r.NotFound(app.notFound)
	r.MethodNotAllowed(app.methodNotAllowed)

	r.Get("/healthz", app.healthHandler)
	r.Get("/debug/metrics", app.metricsHandler)
	r.Handle("/debug/vars", expvar.Handler())
	r.Get("/openapi.yaml", app.openapiHandler)
	r.Get("/docs", app.docsHandler)
	r.Get("/events/stream", app.eventStream)

	r.Route("/services", func(r chi.Router) {
		r.Get("/", app.listServices)
		r.Post("/", app.createService)
		r.Route("/{sid}", func(r chi.Router) {
			r.Get("/", app.getService)
			r.Post("/owner", app.transferServiceOwnership)

			r.Get("/versions", app.listVersions)
			r.Post("/versions", app.createVersion)
			r.Get("/versions/{index}", app.getVersion)

			r.Get("/offers", app.listOffers)
			r.Post("/offers", app.createOffer)
			r.Get("/offers/{index}", app.getOffer)
			r.Post("/offers/{index}/disable", app.disableOffer)

			r.Get("/purchases", app.listPurchases)
			r.Post("/purchases", app.purchase)
			r.Get("/purchases/{index}", app.getPurchaseAt)
			r.Get("/purchasers/{address}", app.getPurchaseOf)
			r.Get("/authorized/{address}", app.isAuthorized)
		})
	})
	r.Get("/service-at/{index}", app.getServiceAt)
	r.Get("/versions/{hash}", app.getVersionByHash)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/", app.getAdmin)
		r.Post("/pause", app.role("pause", (*marketplace.Marketplace).Pause))
		r.Post("/unpause", app.role("unpause", (*marketplace.Marketplace).Unpause))
		r.Post("/owner", app.roleFor("transfer_ownership", (*marketplace.Marketplace).TransferOwnership))
		r.Post("/pausers", app.roleFor("add_pauser", (*marketplace.Marketplace).AddPauser))
		r.Post("/pausers/renounce", app.role("renounce_pauser", (*marketplace.Marketplace).RenouncePauser))
		r.Delete("/pausers/{address}", app.removePauser)
	})

	if app.Token != nil {
		r.Route("/token", func(r chi.Router) {
			r.Get("/", app.tokenInfo)
			r.Get("/balances/{address}", app.tokenBalance)
			r.Get("/allowances/{owner}/{spender}", app.tokenAllowance)
			r.Post("/transfer", app.tokenTransfer())
			r.Post("/approve", app.tokenApprove())
		})
	}
	return r
}
