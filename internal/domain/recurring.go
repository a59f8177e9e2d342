/**
 * @description
 * Domain models for the recurring-service subsystem: standing recurrence
 * schedules between a client and a professional, and the concrete service
 * bookings the generator materializes from them.
 *
 * @notes
 * - A generated booking is an ordinary row in the `servicios` table carrying
 *   a `servicio_recurrente_id` back-reference; once created it is owned by
 *   the regular booking lifecycle.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Recurrence frequencies. The set is fixed; arbitrary rules are out of scope.
const (
	FrequencyWeekly    = "weekly"
	FrequencyBiweekly  = "biweekly"
	FrequencyMonthly   = "monthly"
	FrequencyBimonthly = "bimonthly"
	FrequencyQuarterly = "quarterly"
)

// Service booking states.
const (
	BookingStatusPending    = "pending"
	BookingStatusScheduled  = "scheduled"
	BookingStatusInProgress = "in_progress"
	BookingStatusCompleted  = "completed"
	BookingStatusCancelled  = "cancelled"
)

// RecurrenceSchedule is a standing rule describing a repeating service
// arrangement. Maps to the `servicios_recurrentes` table. Schedules are never
// hard-deleted; cancellation flips `activo` to false.
type RecurrenceSchedule struct {
	ID                 uuid.UUID  `json:"id"`
	ClientID           uuid.UUID  `json:"cliente_id"`
	ProfessionalID     uuid.UUID  `json:"profesional_id"`
	Description        string     `json:"descripcion"`
	Frequency          string     `json:"frecuencia"`
	DayOfWeek          *int       `json:"dia_semana,omitempty"` // 0=Sunday .. 6=Saturday, weekly only
	DayOfMonth         *int       `json:"dia_mes,omitempty"`    // 1..31, monthly only
	StartTime          string     `json:"hora_inicio"`          // "HH:MM"
	DurationHours      float64    `json:"duracion_horas"`
	BaseRate           int64      `json:"tarifa_base"`
	RecurrenceDiscount float64    `json:"descuento_recurrencia"` // percentage
	StartDate          time.Time  `json:"fecha_inicio"`
	EndDate            *time.Time `json:"fecha_fin,omitempty"`
	Active             bool       `json:"activo"`
	CreatedAt          time.Time  `json:"creado_en"`
	UpdatedAt          time.Time  `json:"actualizado_en"`
}

// IsParty reports whether the given user owns either side of the schedule.
func (s *RecurrenceSchedule) IsParty(userID uuid.UUID) bool {
	return s.ClientID == userID || s.ProfessionalID == userID
}

// ServiceBooking is one concrete, dated service occurrence in the `servicios`
// table. Bookings produced by the generator carry a non-nil ScheduleID.
type ServiceBooking struct {
	ID             uuid.UUID  `json:"id"`
	ScheduleID     *uuid.UUID `json:"servicio_recurrente_id,omitempty"`
	ClientID       uuid.UUID  `json:"cliente_id"`
	ProfessionalID uuid.UUID  `json:"profesional_id"`
	Description    string     `json:"descripcion"`
	Status         string     `json:"estado"`
	Rate           int64      `json:"tarifa"`
	ScheduledAt    time.Time  `json:"fecha_programada"`
	CreatedAt      time.Time  `json:"creado_en"`
}

// IsPayable reports whether a payment may be created against this booking.
func (b *ServiceBooking) IsPayable() bool {
	switch b.Status {
	case BookingStatusScheduled, BookingStatusInProgress, BookingStatusCompleted:
		return true
	}
	return false
}

// CreateScheduleRequest is the DTO for creating a recurrence schedule.
type CreateScheduleRequest struct {
	ProfessionalID     uuid.UUID  `json:"profesional_id"`
	Description        string     `json:"descripcion"`
	Frequency          string     `json:"frecuencia"`
	DayOfWeek          *int       `json:"dia_semana,omitempty"`
	DayOfMonth         *int       `json:"dia_mes,omitempty"`
	StartTime          string     `json:"hora_inicio"`
	DurationHours      float64    `json:"duracion_horas"`
	BaseRate           int64      `json:"tarifa_base"`
	RecurrenceDiscount float64    `json:"descuento_recurrencia"`
	StartDate          time.Time  `json:"fecha_inicio"`
	EndDate            *time.Time `json:"fecha_fin,omitempty"`
}

// UpdateScheduleRequest carries the partial fields a schedule owner may change.
// Nil pointers mean "leave unchanged".
type UpdateScheduleRequest struct {
	Description        *string    `json:"descripcion,omitempty"`
	Frequency          *string    `json:"frecuencia,omitempty"`
	DayOfWeek          *int       `json:"dia_semana,omitempty"`
	DayOfMonth         *int       `json:"dia_mes,omitempty"`
	StartTime          *string    `json:"hora_inicio,omitempty"`
	DurationHours      *float64   `json:"duracion_horas,omitempty"`
	BaseRate           *int64     `json:"tarifa_base,omitempty"`
	RecurrenceDiscount *float64   `json:"descuento_recurrencia,omitempty"`
	EndDate            *time.Time `json:"fecha_fin,omitempty"`
}

// ScheduleDetail is a schedule plus its most recently generated bookings.
type ScheduleDetail struct {
	Schedule *RecurrenceSchedule `json:"servicio_recurrente"`
	Bookings []ServiceBooking    `json:"servicios_generados"`
}

// GenerationSummary reports the outcome of one generator run.
type GenerationSummary struct {
	SchedulesProcessed int `json:"servicios_recurrentes_procesados"`
	BookingsCreated    int `json:"servicios_creados"`
	SchedulesFailed    int `json:"servicios_recurrentes_fallidos"`
}

// ValidFrequency reports whether the frequency is one of the fixed set.
func ValidFrequency(frequency string) bool {
	switch frequency {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyBimonthly, FrequencyQuarterly:
		return true
	}
	return false
}
