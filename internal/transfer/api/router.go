/**
 * @description
 * This file sets up the HTTP router for the transfer-service. Submitting a
 * transfer runs behind the idempotency middleware so a retried POST with the
 * same X-Idempotency-Key replays the original response instead of starting a
 * second saga.
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

// TransferRoutes creates and returns a new router for the transfer service.
func TransferRoutes(h *TransferHandlers, idem *idempotency.Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/transfers", h.ListTransfersHandler)
	r.Get("/transfers/{id}", h.GetTransferHandler)

	// Starting a transfer requires an idempotency key.
	r.Group(func(r chi.Router) {
		r.Use(idem.Handler)
		r.Post("/transfers", h.CreateTransferHandler)
	})

	return r
}
