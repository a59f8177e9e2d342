/**
 * @description
 * HTTP handlers for the recurring-service endpoints: schedule CRUD,
 * cancellation, and the admin-triggered manual generation run.
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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/app"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/store"
)

// RecurringHandlers holds the recurring-service application service.
type RecurringHandlers struct {
	service *app.RecurringService
}

// NewRecurringHandlers creates a new instance of RecurringHandlers.
func NewRecurringHandlers(service *app.RecurringService) *RecurringHandlers {
	return &RecurringHandlers{service: service}
}

// CreateScheduleHandler creates a new recurrence schedule for the caller.
func (h *RecurringHandlers) CreateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	schedule, err := h.service.CreateSchedule(r.Context(), userID, req)
	if err != nil {
		h.handleServiceError(w, "create_schedule", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, schedule)
}

// ListSchedulesHandler lists the schedules where the caller is either party.
func (h *RecurringHandlers) ListSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	schedules, err := h.service.ListSchedules(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, "list_schedules", err)
		return
	}
	if schedules == nil {
		schedules = []domain.RecurrenceSchedule{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"servicios_recurrentes": schedules})
}

// ScheduleDetailHandler returns a schedule plus its recent generated bookings.
func (h *RecurringHandlers) ScheduleDetailHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	scheduleID, err := uuid.Parse(chi.URLParam(r, "scheduleID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid schedule ID")
		return
	}

	detail, err := h.service.GetScheduleDetail(r.Context(), userID, scheduleID)
	if err != nil {
		h.handleServiceError(w, "schedule_detail", err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// UpdateScheduleHandler applies a partial update to a schedule.
func (h *RecurringHandlers) UpdateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	scheduleID, err := uuid.Parse(chi.URLParam(r, "scheduleID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid schedule ID")
		return
	}

	var req domain.UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	schedule, err := h.service.UpdateSchedule(r.Context(), userID, scheduleID, req)
	if err != nil {
		h.handleServiceError(w, "update_schedule", err)
		return
	}
	h.writeJSON(w, http.StatusOK, schedule)
}

// CancelScheduleHandler cancels a schedule and its future bookings.
func (h *RecurringHandlers) CancelScheduleHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	scheduleID, err := uuid.Parse(chi.URLParam(r, "scheduleID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid schedule ID")
		return
	}

	cancelled, err := h.service.CancelRecurringService(r.Context(), userID, scheduleID)
	if err != nil {
		h.handleServiceError(w, "cancel_schedule", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"servicio_recurrente_id": scheduleID,
		"servicios_cancelados":   cancelled,
	})
}

// GenerateServicesHandler triggers a manual generation pass. Admin only.
func (h *RecurringHandlers) GenerateServicesHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GenerateRecurringServices(r.Context(), time.Now().UTC())
	if err != nil {
		h.handleServiceError(w, "generate_services", err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *RecurringHandlers) handleServiceError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, store.ErrScheduleNotFound), errors.Is(err, store.ErrServiceNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrInvalidState):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidSchedule):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s msg=\"unhandled service error\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *RecurringHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *RecurringHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
