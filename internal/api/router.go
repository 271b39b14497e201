/**
 * @description
 * This file sets up the HTTP router for the credit-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// CreditRoutes creates and returns a new router for the credit service.
func CreditRoutes(h *CreditHandlers, jwksURL, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public read-only endpoints.
	r.Get("/pricing", h.PricingHandler)
	r.Get("/founder/status", h.FounderStatusHandler)

	// Group routes that require end-user authentication.
	r.Group(func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(jwksURL))

		r.Get("/credits/balance", h.GetBalanceHandler)
		r.Get("/credits/transactions", h.ListTransactionsHandler)
		r.Get("/founder/rank", h.GetFounderRankHandler)
	})

	// Group routes reserved for trusted backend services.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/credits/tool-usage", h.ToolUsageHandler)
		r.Post("/internal/credits/refund", h.RefundHandler)
		r.Post("/internal/credits/purchase", h.PurchaseHandler)
		r.Post("/internal/founder/claim", h.ClaimFounderSlotHandler)
	})

	return r
}
