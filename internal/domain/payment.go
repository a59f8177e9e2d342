/**
 * @description
 * This file defines the core domain models for the payment escrow engine.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit, which avoids floating-point inaccuracies with financial data.
 * - JSON tags follow the wire names the platform has always used (Spanish column
 *   names such as `monto_total`), so existing clients keep working.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment lifecycle states.
const (
	PaymentStatusPending           = "pending"
	PaymentStatusApproved          = "approved"
	PaymentStatusReleased          = "released"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusFailed            = "failed"
	PaymentStatusDisputed          = "disputed"
)

// Dispute lifecycle states.
const (
	DisputeStatusOpen        = "open"
	DisputeStatusUnderReview = "under_review"
	DisputeStatusResolved    = "resolved"
)

// Dispute reason codes accepted from clients and professionals.
const (
	DisputeReasonServiceNotCompleted = "service_not_completed"
	DisputeReasonQualityIssue        = "quality_issue"
	DisputeReasonWrongAmount         = "wrong_amount"
	DisputeReasonOther               = "other"
)

// Payment event types appended to the audit trail.
const (
	EventPaymentCreated  = "payment_created"
	EventPaymentApproved = "payment_approved"
	EventPaymentFailed   = "payment_failed"
	EventFundsReleased   = "funds_released"
	EventDisputeCreated  = "dispute_created"
	EventRefundProcessed = "refund_processed"
)

// Payment is the central escrow ledger record: one row per service-payment
// attempt. It maps directly to the `pagos` table.
type Payment struct {
	ID                 uuid.UUID              `json:"id"`
	ServiceID          uuid.UUID              `json:"servicio_id"`
	ClientID           uuid.UUID              `json:"cliente_id"`
	ProfessionalID     uuid.UUID              `json:"profesional_id"`
	TotalAmount        int64                  `json:"monto_total"`
	PlatformCommission int64                  `json:"comision_plataforma"`
	ProfessionalAmount int64                  `json:"monto_profesional"`
	RefundedAmount     int64                  `json:"monto_reembolsado"`
	Status             string                 `json:"estado"`
	MercadoPagoID      *string                `json:"mercado_pago_id,omitempty"`
	PreferenceID       *string                `json:"preference_id,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	ScheduledReleaseAt *time.Time             `json:"fecha_liberacion_programada,omitempty"`
	CreatedAt          time.Time              `json:"creado_en"`
	ApprovedAt         *time.Time             `json:"aprobado_en,omitempty"`
	ReleasedAt         *time.Time             `json:"liberado_en,omitempty"`
	RefundedAt         *time.Time             `json:"reembolsado_en,omitempty"`
}

// RefundableBalance returns how much of the payment can still be refunded.
func (p *Payment) RefundableBalance() int64 {
	return p.TotalAmount - p.RefundedAmount
}

// IsParty reports whether the given user is the payment's client or professional.
func (p *Payment) IsParty(userID uuid.UUID) bool {
	return p.ClientID == userID || p.ProfessionalID == userID
}

// PaymentEvent is one append-only audit trail entry in `eventos_pagos`.
// Events are never mutated or deleted; they exist for observability and
// reconstruction of a payment's history.
type PaymentEvent struct {
	ID        uuid.UUID              `json:"id"`
	PaymentID uuid.UUID              `json:"pago_id"`
	EventType string                 `json:"tipo_evento"`
	Data      map[string]interface{} `json:"datos,omitempty"`
	Processed bool                   `json:"procesado"`
	CreatedAt time.Time              `json:"creado_en"`
}

// Dispute represents a formal contest over a payment, raised by either party.
// Maps to the `disputas_pagos` table.
type Dispute struct {
	ID          uuid.UUID  `json:"id"`
	PaymentID   uuid.UUID  `json:"pago_id"`
	UserID      uuid.UUID  `json:"usuario_id"`
	Reason      string     `json:"motivo"`
	Description string     `json:"descripcion"`
	Status      string     `json:"estado"`
	CreatedAt   time.Time  `json:"creado_en"`
	ResolvedAt  *time.Time `json:"resuelto_en,omitempty"`
}

// CreatePaymentRequest is the DTO for creating a payment plus provider preference.
type CreatePaymentRequest struct {
	ServiceID         uuid.UUID `json:"servicio_id"`
	Amount            int64     `json:"monto"`
	ProfessionalEmail string    `json:"profesional_email,omitempty"`
	Specialty         string    `json:"especialidad,omitempty"`
}

// CreatePaymentResult is returned after a payment and its checkout preference
// have been created.
type CreatePaymentResult struct {
	Payment      *Payment `json:"pago"`
	PreferenceID string   `json:"preference_id,omitempty"`
	InitPoint    string   `json:"init_point,omitempty"`
}

// ReleaseFundsRequest is the DTO for a manual (client-confirmed) release.
type ReleaseFundsRequest struct {
	PaymentID uuid.UUID `json:"pago_id"`
	ServiceID uuid.UUID `json:"servicio_id"`
}

// CreateDisputeRequest is the DTO for opening a dispute against a payment.
type CreateDisputeRequest struct {
	Reason      string `json:"motivo"`
	Description string `json:"descripcion"`
}

// RefundRequest is the DTO for a partial or full refund.
type RefundRequest struct {
	Amount int64  `json:"monto"`
	Reason string `json:"motivo"`
}

// RefundResult summarizes a processed refund.
type RefundResult struct {
	Payment        *Payment `json:"pago"`
	RefundedAmount int64    `json:"monto_reembolsado"`
	TotalRefunded  int64    `json:"total_reembolsado"`
}

// ValidDisputeReason reports whether the reason code is one of the accepted set.
func ValidDisputeReason(reason string) bool {
	switch reason {
	case DisputeReasonServiceNotCompleted, DisputeReasonQualityIssue,
		DisputeReasonWrongAmount, DisputeReasonOther:
		return true
	}
	return false
}
