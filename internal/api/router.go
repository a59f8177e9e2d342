/**
 * @description
 * This file sets up the HTTP router for the payments service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes creates and returns the router for the payments service.
func Routes(payments *PaymentHandlers, recurring *RecurringHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Provider callbacks arrive unauthenticated; the handler rate limits and
	// verifies them against the provider API.
	r.Post("/payments/webhook", payments.WebhookHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		// Payment escrow endpoints
		r.Post("/payments/create-preference", payments.CreatePreferenceHandler)
		r.Post("/payments/release-funds", payments.ReleaseFundsHandler)
		r.Get("/payments/available-funds", payments.AvailableFundsHandler)
		r.Get("/payments/disputes", payments.ListDisputesHandler)
		r.Get("/payments/status/{paymentID}", payments.PaymentStatusHandler)
		r.Get("/payments/{paymentID}/events", payments.ListEventsHandler)
		r.Post("/payments/{paymentID}/dispute", payments.CreateDisputeHandler)
		r.Post("/payments/{paymentID}/refund", payments.RefundHandler)

		// Recurring service endpoints
		r.Post("/recurring-services", recurring.CreateScheduleHandler)
		r.Get("/recurring-services", recurring.ListSchedulesHandler)
		r.Get("/recurring-services/{scheduleID}", recurring.ScheduleDetailHandler)
		r.Put("/recurring-services/{scheduleID}", recurring.UpdateScheduleHandler)
		r.Delete("/recurring-services/{scheduleID}", recurring.CancelScheduleHandler)

		// Manual generation run, restricted to platform administrators.
		r.With(RequireRole("admin")).Post("/recurring-services/generate-services", recurring.GenerateServicesHandler)
	})

	return r
}
