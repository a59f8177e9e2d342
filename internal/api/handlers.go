/**
 * @description
 * This file contains the HTTP handlers for the payment escrow endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application services, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/app"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/store"
)

// PaymentHandlers holds the application services the payment endpoints use.
type PaymentHandlers struct {
	service  *app.Service
	disputes *app.DisputeService
	refunds  *app.RefundService
	limiter  *app.WebhookRateLimiter

	webhookRateLimit int
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service, disputes *app.DisputeService, refunds *app.RefundService, limiter *app.WebhookRateLimiter, webhookRateLimit int) *PaymentHandlers {
	return &PaymentHandlers{
		service:          service,
		disputes:         disputes,
		refunds:          refunds,
		limiter:          limiter,
		webhookRateLimit: webhookRateLimit,
	}
}

// CreatePreferenceHandler handles requests to create a payment and its
// provider checkout preference.
func (h *PaymentHandlers) CreatePreferenceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.CreatePayment(r.Context(), userID, req)
	if err != nil {
		h.handleServiceError(w, "create_preference", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// ReleaseFundsHandler handles manual escrow releases by the paying client.
func (h *PaymentHandlers) ReleaseFundsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.ReleaseFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PaymentID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "pago_id is required")
		return
	}

	payment, err := h.service.ReleaseFunds(r.Context(), userID, req.PaymentID)
	if err != nil {
		h.handleServiceError(w, "release_funds", err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// PaymentStatusHandler returns a payment's current state to one of its parties.
func (h *PaymentHandlers) PaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	payment, err := h.service.GetStatus(r.Context(), userID, paymentID)
	if err != nil {
		h.handleServiceError(w, "payment_status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// ListEventsHandler returns a payment's audit trail to one of its parties.
func (h *PaymentHandlers) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	events, err := h.service.ListEvents(r.Context(), userID, paymentID)
	if err != nil {
		h.handleServiceError(w, "list_events", err)
		return
	}
	if events == nil {
		events = []domain.PaymentEvent{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"eventos": events})
}

// AvailableFundsHandler returns the authenticated professional's withdrawable
// balance.
func (h *PaymentHandlers) AvailableFundsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	total, err := h.service.AvailableFunds(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, "available_funds", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"fondos_disponibles": total})
}

// CreateDisputeHandler opens a dispute against a payment.
func (h *PaymentHandlers) CreateDisputeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	var req domain.CreateDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	dispute, err := h.disputes.CreateDispute(r.Context(), userID, paymentID, req)
	if err != nil {
		h.handleServiceError(w, "create_dispute", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, dispute)
}

// ListDisputesHandler returns the caller's disputes, optionally filtered by state.
func (h *PaymentHandlers) ListDisputesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	disputes, err := h.disputes.ListUserDisputes(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		h.handleServiceError(w, "list_disputes", err)
		return
	}
	if disputes == nil {
		disputes = []domain.Dispute{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"disputas": disputes})
}

// RefundHandler processes a partial or full refund for a payment.
func (h *PaymentHandlers) RefundHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	var req domain.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.refunds.ProcessRefund(r.Context(), userID, paymentID, req)
	if err != nil {
		h.handleServiceError(w, "refund", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// webhookNotification is the shape Mercado Pago posts to the webhook endpoint.
type webhookNotification struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// WebhookHandler processes payment notifications from the provider. The
// endpoint is unauthenticated, so it is rate limited per source address and
// never trusts the payload: the authoritative status is fetched back from the
// provider API. Once the payload parses, the provider always gets a 200 so it
// stops redelivering; processing failures are logged and resolved by later
// redeliveries or the scheduled passes.
func (h *PaymentHandlers) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && h.webhookRateLimit > 0 {
		count, retryAfter, err := h.limiter.Consume(r.Context(), r.RemoteAddr, h.webhookRateLimit, time.Minute)
		if err != nil {
			// Redis being down must not block provider callbacks.
			log.Printf("level=warn component=api endpoint=webhook msg=\"rate limiter unavailable\" err=%v", err)
		} else if count > h.webhookRateLimit {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			h.writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
	}

	var notification webhookNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid notification body")
		return
	}
	if notification.Data.ID == "" {
		h.writeError(w, http.StatusBadRequest, "Notification has no data.id")
		return
	}

	if err := h.service.HandleProviderNotification(r.Context(), notification.Type, notification.Data.ID); err != nil {
		log.Printf("level=error component=api endpoint=webhook msg=\"notification processing failed\" provider_payment_id=%s err=%v", notification.Data.ID, err)
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// handleServiceError maps application and store errors to HTTP status codes.
func (h *PaymentHandlers) handleServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrServiceNotFound),
		errors.Is(err, store.ErrScheduleNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrInvalidState),
		errors.Is(err, store.ErrPaymentNotDisputable):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidDisputeReason),
		errors.Is(err, app.ErrInvalidSchedule):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrProviderUnavailable):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled service error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
