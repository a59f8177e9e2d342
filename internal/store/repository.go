/**
 * @description
 * This file defines the repository interfaces for the payment escrow engine and
 * the recurring-service generator. Each application component depends only on
 * the narrow interface it needs, which decouples the business logic from the
 * PostgreSQL implementation and lets tests substitute in-memory fakes.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
)

// PaymentRepository covers the `pagos` table. All state transitions are
// conditional single-row updates: they report whether a row actually changed
// so callers can distinguish a won race from a no-op or an illegal state.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p *domain.Payment) error
	FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)

	// SetPaymentPreference records the provider checkout preference id once
	// the preference has been created for an existing payment row.
	SetPaymentPreference(ctx context.Context, paymentID uuid.UUID, preferenceID string) error

	// ApprovePayment transitions pending -> approved, recording the provider
	// correlation id and the scheduled release timestamp.
	ApprovePayment(ctx context.Context, paymentID uuid.UUID, mercadoPagoID string, releaseAt time.Time) (bool, error)

	// FailPayment transitions pending -> failed.
	FailPayment(ctx context.Context, paymentID uuid.UUID, mercadoPagoID string) (bool, error)

	// ReleasePayment transitions approved -> released and stamps liberado_en.
	ReleasePayment(ctx context.Context, paymentID uuid.UUID) (bool, error)

	// ApplyRefund adds amount to monto_reembolsado, guarded so the cumulative
	// refund never exceeds monto_total and the payment is in a refundable
	// state. The resulting state (refunded vs partially_refunded) is decided
	// from the post-update balance in the same statement, so racing refunds
	// that together exhaust the balance still land on `refunded`.
	ApplyRefund(ctx context.Context, paymentID uuid.UUID, amount int64) (bool, error)

	// FindDueReleases returns approved payments whose scheduled release
	// timestamp has passed.
	FindDueReleases(ctx context.Context, now time.Time) ([]domain.Payment, error)

	// SumReleasedNetByProfessional aggregates monto_profesional over released
	// payments for the professional.
	SumReleasedNetByProfessional(ctx context.Context, professionalID uuid.UUID) (int64, error)
}

// EventRepository covers the append-only `eventos_pagos` audit trail.
type EventRepository interface {
	AppendEvent(ctx context.Context, event *domain.PaymentEvent) error
	ListEventsByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error)
}

// DisputeRepository covers `disputas_pagos`.
type DisputeRepository interface {
	// OpenDispute atomically moves the payment to `disputed` and inserts the
	// dispute row. It fails with ErrPaymentNotDisputable when the payment is
	// no longer in a disputable state by the time the update runs.
	OpenDispute(ctx context.Context, dispute *domain.Dispute) error
	HasOpenDispute(ctx context.Context, paymentID uuid.UUID) (bool, error)
	ListDisputesByUser(ctx context.Context, userID uuid.UUID, statusFilter string) ([]domain.Dispute, error)
}

// BookingRepository covers the `servicios` table (concrete service bookings).
type BookingRepository interface {
	FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.ServiceBooking, error)

	// InsertBookings batch-inserts generated bookings. Duplicate occurrences
	// (same schedule + calendar day) are dropped by the store's uniqueness
	// constraint; the returned count is the number of rows actually inserted.
	InsertBookings(ctx context.Context, bookings []domain.ServiceBooking) (int, error)

	// FindBookingDaysForSchedule returns the calendar days (UTC, truncated to
	// midnight) within [from, to] that already have a generated booking.
	FindBookingDaysForSchedule(ctx context.Context, scheduleID uuid.UUID, from, to time.Time) (map[time.Time]bool, error)

	// CancelFutureBookings bulk-transitions a schedule's future pending or
	// scheduled bookings to cancelled, returning how many rows changed.
	CancelFutureBookings(ctx context.Context, scheduleID uuid.UUID, from time.Time) (int64, error)

	ListRecentBookingsBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]domain.ServiceBooking, error)
}

// ScheduleRepository covers `servicios_recurrentes`.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule *domain.RecurrenceSchedule) error
	FindScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.RecurrenceSchedule, error)
	ListSchedulesByUser(ctx context.Context, userID uuid.UUID) ([]domain.RecurrenceSchedule, error)
	UpdateSchedule(ctx context.Context, schedule *domain.RecurrenceSchedule) error
	DeactivateSchedule(ctx context.Context, scheduleID uuid.UUID) error

	// ListActiveSchedules returns schedules with activo = true whose end date
	// is unset or not yet in the past relative to the given day.
	ListActiveSchedules(ctx context.Context, today time.Time) ([]domain.RecurrenceSchedule, error)
}

// Repository is the full contract implemented by the PostgreSQL store.
type Repository interface {
	PaymentRepository
	EventRepository
	DisputeRepository
	BookingRepository
	ScheduleRepository
}
