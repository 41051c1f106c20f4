/**
 * @description
 * This file sets up the HTTP router for the account-service. Mutating
 * endpoints run behind the idempotency middleware so clients can safely retry
 * account creation and top-ups with the same X-Idempotency-Key.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: Router and standard middleware.
 * - github.com/prometheus/client_golang: /metrics endpoint.
 * - pkg/idempotency: Replay cache for mutating endpoints.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mahmetunal/TransferHub/pkg/idempotency"
)

// AccountRoutes creates and returns a new router for the account service.
func AccountRoutes(h *AccountHandlers, idem *idempotency.Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/accounts", h.ListAccountsHandler)
	r.Get("/accounts/{iban}", h.GetAccountHandler)
	r.Get("/accounts/{iban}/balance", h.GetBalanceHandler)
	r.Post("/accounts/{iban}/activate", h.ActivateAccountHandler)
	r.Delete("/accounts/{iban}", h.DeactivateAccountHandler)

	// Mutations that create state require an idempotency key.
	r.Group(func(r chi.Router) {
		r.Use(idem.Handler)
		r.Post("/accounts", h.CreateAccountHandler)
		r.Post("/accounts/{iban}/topup", h.TopUpHandler)
	})

	return r
}
