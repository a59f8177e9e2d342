/**
 * @description
 * This file contains the core business logic for the payment escrow engine.
 * The `Service` struct owns the Payment state machine: it creates payments in
 * custody, applies provider approval, releases funds to the professional
 * (manually or via the scheduler), and computes available balances.
 *
 * Key features:
 * - Commission/net split computed once at creation and immutable afterwards.
 * - Every transition is a conditional update against the current state, so
 *   racing callers (manual release vs scheduler) resolve to one winner and
 *   one benign no-op.
 * - Audit events and outbound notifications are best-effort side effects:
 *   they are handed off and never fail the triggering operation.
 *
 * @dependencies
 * - context, errors, fmt, log, math, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/mercadopago, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/store"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/pkg/mercadopago"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/pkg/rabbitmq"
)

var (
	ErrForbidden            = errors.New("caller is not a party to this resource")
	ErrInvalidState         = errors.New("operation not allowed in the current state")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrProviderUnavailable  = errors.New("payment provider unavailable")
	ErrInvalidDisputeReason = errors.New("invalid dispute reason")
	ErrInvalidSchedule      = errors.New("invalid recurring service definition")
)

// ProviderClient is the subset of the Mercado Pago client the ledger needs.
type ProviderClient interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.PreferenceResponse, error)
	GetPayment(ctx context.Context, paymentID string) (*mercadopago.PaymentResponse, error)
}

// Service provides the core business logic for the payment escrow lifecycle.
type Service struct {
	payments store.PaymentRepository
	events   store.EventRepository
	bookings store.BookingRepository
	provider ProviderClient
	producer rabbitmq.Publisher

	commissionRate float64 // percentage, e.g. 10 means 10%
	maxAmount      int64
	escrowHold     time.Duration
}

// NewService creates a new payment escrow service instance.
func NewService(
	payments store.PaymentRepository,
	events store.EventRepository,
	bookings store.BookingRepository,
	provider ProviderClient,
	producer rabbitmq.Publisher,
	commissionRate float64,
	maxAmount int64,
	escrowHold time.Duration,
) *Service {
	return &Service{
		payments:       payments,
		events:         events,
		bookings:       bookings,
		provider:       provider,
		producer:       producer,
		commissionRate: commissionRate,
		maxAmount:      maxAmount,
		escrowHold:     escrowHold,
	}
}

// CommissionFor returns the platform's cut for a total amount at the given
// percentage rate, rounded to the nearest unit.
func CommissionFor(amount int64, ratePercent float64) int64 {
	return int64(math.Round(float64(amount) * ratePercent / 100))
}

// CreatePayment validates the referenced service booking, computes the
// commission split, persists the payment in `pending`, and creates the
// provider checkout preference for it.
func (s *Service) CreatePayment(ctx context.Context, clientID uuid.UUID, req domain.CreatePaymentRequest) (*domain.CreatePaymentResult, error) {
	booking, err := s.bookings.FindBookingByID(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if booking.ClientID != clientID {
		return nil, fmt.Errorf("%w: service belongs to another client", ErrForbidden)
	}
	if !booking.IsPayable() {
		return nil, fmt.Errorf("%w: service is %s", ErrInvalidState, booking.Status)
	}
	// Amount bounds come after the service checks so a bad request against a
	// missing or foreign service reports the service problem first.
	if req.Amount <= 0 || req.Amount > s.maxAmount {
		return nil, fmt.Errorf("%w: amount must be in (0, %d]", ErrInvalidAmount, s.maxAmount)
	}

	commission := CommissionFor(req.Amount, s.commissionRate)
	payment := &domain.Payment{
		ID:                 uuid.New(),
		ServiceID:          booking.ID,
		ClientID:           booking.ClientID,
		ProfessionalID:     booking.ProfessionalID,
		TotalAmount:        req.Amount,
		PlatformCommission: commission,
		ProfessionalAmount: req.Amount - commission,
		Status:             domain.PaymentStatusPending,
		CreatedAt:          time.Now().UTC(),
	}
	if req.ProfessionalEmail != "" || req.Specialty != "" {
		payment.Metadata = map[string]interface{}{}
		if req.ProfessionalEmail != "" {
			payment.Metadata["profesional_email"] = req.ProfessionalEmail
		}
		if req.Specialty != "" {
			payment.Metadata["especialidad"] = req.Specialty
		}
	}

	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	s.logEvent(ctx, payment.ID, domain.EventPaymentCreated, map[string]interface{}{
		"monto_total":         payment.TotalAmount,
		"comision_plataforma": payment.PlatformCommission,
		"monto_profesional":   payment.ProfessionalAmount,
	})
	s.publishPaymentEvent(ctx, "payment.created", payment)

	preference, err := s.provider.CreatePreference(ctx, mercadopago.PreferenceRequest{
		Items: []mercadopago.PreferenceItem{{
			Title:     booking.Description,
			Quantity:  1,
			UnitPrice: float64(req.Amount),
		}},
		ExternalReference: payment.ID.String(),
		Metadata:          payment.Metadata,
	})
	if err != nil {
		// The ledger row stays pending; the client can retry checkout creation.
		log.Printf("level=error component=payment_service msg=\"preference creation failed\" payment_id=%s err=%v", payment.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if err := s.payments.SetPaymentPreference(ctx, payment.ID, preference.ID); err != nil {
		log.Printf("level=warn component=payment_service msg=\"failed to store preference id\" payment_id=%s err=%v", payment.ID, err)
	}
	payment.PreferenceID = &preference.ID

	return &domain.CreatePaymentResult{
		Payment:      payment,
		PreferenceID: preference.ID,
		InitPoint:    preference.InitPoint,
	}, nil
}

// MarkApproved transitions a payment from pending to approved after the
// provider confirms the charge, scheduling the automatic escrow release.
// Re-delivered webhooks are a no-op: a payment that already left `pending`
// was necessarily approved (or failed) by an earlier delivery.
func (s *Service) MarkApproved(ctx context.Context, paymentID uuid.UUID, mercadoPagoID string) (*domain.Payment, error) {
	releaseAt := time.Now().UTC().Add(s.escrowHold)
	updated, err := s.payments.ApprovePayment(ctx, paymentID, mercadoPagoID, releaseAt)
	if err != nil {
		return nil, fmt.Errorf("failed to approve payment: %w", err)
	}

	payment, findErr := s.payments.FindPaymentByID(ctx, paymentID)
	if findErr != nil {
		return nil, findErr
	}

	if updated {
		s.logEvent(ctx, paymentID, domain.EventPaymentApproved, map[string]interface{}{
			"mercado_pago_id":             mercadoPagoID,
			"fecha_liberacion_programada": releaseAt,
		})
		s.publishPaymentEvent(ctx, "payment.approved", payment)
	} else {
		log.Printf("level=info component=payment_service msg=\"approval redelivery ignored\" payment_id=%s estado=%s", paymentID, payment.Status)
	}

	return payment, nil
}

// MarkFailed transitions a payment from pending to failed after a provider
// rejection. A payment that already failed is a benign no-op; any other state
// means the rejection arrived out of order and is refused.
func (s *Service) MarkFailed(ctx context.Context, paymentID uuid.UUID, mercadoPagoID string) (*domain.Payment, error) {
	updated, err := s.payments.FailPayment(ctx, paymentID, mercadoPagoID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment failed: %w", err)
	}

	payment, findErr := s.payments.FindPaymentByID(ctx, paymentID)
	if findErr != nil {
		return nil, findErr
	}

	if updated {
		s.logEvent(ctx, paymentID, domain.EventPaymentFailed, map[string]interface{}{
			"mercado_pago_id": mercadoPagoID,
		})
		return payment, nil
	}
	if payment.Status == domain.PaymentStatusFailed {
		return payment, nil
	}
	return nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, payment.Status)
}

// ReleaseFunds is the manual release path, triggered by the client confirming
// the service was completed. Only the payment's client may confirm.
func (s *Service) ReleaseFunds(ctx context.Context, callerID uuid.UUID, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.payments.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.ClientID != callerID {
		return nil, fmt.Errorf("%w: only the paying client may release funds", ErrForbidden)
	}

	released, _, err := s.ReleasePayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return released, nil
}

// ReleasePayment transitions approved -> released. It is idempotent: if the
// payment is already released the call reports performed=false with no error,
// so the manual and scheduled paths can race safely. Any other state is an
// ErrInvalidState.
func (s *Service) ReleasePayment(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, bool, error) {
	updated, err := s.payments.ReleasePayment(ctx, paymentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to release payment: %w", err)
	}

	payment, findErr := s.payments.FindPaymentByID(ctx, paymentID)
	if findErr != nil {
		return nil, false, findErr
	}

	if updated {
		s.logEvent(ctx, paymentID, domain.EventFundsReleased, map[string]interface{}{
			"monto_profesional": payment.ProfessionalAmount,
		})
		s.publishPaymentEvent(ctx, "payment.released", payment)
		return payment, true, nil
	}

	if payment.Status == domain.PaymentStatusReleased {
		// The other racer won; nothing to do.
		return payment, false, nil
	}
	return nil, false, fmt.Errorf("%w: payment is %s, expected %s", ErrInvalidState, payment.Status, domain.PaymentStatusApproved)
}

// DueReleases returns the approved payments whose scheduled release timestamp
// has passed. Used by the escrow release job.
func (s *Service) DueReleases(ctx context.Context) ([]domain.Payment, error) {
	return s.payments.FindDueReleases(ctx, time.Now().UTC())
}

// GetStatus returns the payment's current state to one of its parties.
func (s *Service) GetStatus(ctx context.Context, callerID uuid.UUID, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.payments.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.IsParty(callerID) {
		return nil, ErrForbidden
	}
	return payment, nil
}

// ListEvents returns the payment's audit trail to one of its parties.
func (s *Service) ListEvents(ctx context.Context, callerID uuid.UUID, paymentID uuid.UUID) ([]domain.PaymentEvent, error) {
	payment, err := s.payments.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.IsParty(callerID) {
		return nil, ErrForbidden
	}
	return s.events.ListEventsByPayment(ctx, paymentID)
}

// AvailableFunds computes a professional's withdrawable balance: the sum of
// net amounts over released payments, recomputed on demand.
func (s *Service) AvailableFunds(ctx context.Context, professionalID uuid.UUID) (int64, error) {
	return s.payments.SumReleasedNetByProfessional(ctx, professionalID)
}

// HandleProviderNotification processes a webhook notification from the
// payment provider. The payload only carries the provider payment id, so the
// authoritative status is re-read from the provider API before any ledger
// transition. Unknown notification types and statuses are ignored.
func (s *Service) HandleProviderNotification(ctx context.Context, notificationType, providerPaymentID string) error {
	if notificationType != "payment" {
		return nil
	}

	providerPayment, err := s.provider.GetPayment(ctx, providerPaymentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	paymentID, err := uuid.Parse(providerPayment.ExternalReference)
	if err != nil {
		return fmt.Errorf("notification %s carries no valid payment reference: %w", providerPaymentID, err)
	}

	switch providerPayment.Status {
	case mercadopago.StatusApproved:
		_, err = s.MarkApproved(ctx, paymentID, providerPaymentID)
	case mercadopago.StatusRejected, mercadopago.StatusCancelled:
		_, err = s.MarkFailed(ctx, paymentID, providerPaymentID)
	default:
		log.Printf("level=info component=payment_service msg=\"ignoring provider status\" payment_id=%s provider_status=%s", paymentID, providerPayment.Status)
	}
	return err
}

// logEvent appends an audit trail entry. Event logging is best-effort
// telemetry: a failure here is logged locally and must never abort the
// business operation that triggered it.
func (s *Service) logEvent(ctx context.Context, paymentID uuid.UUID, eventType string, data map[string]interface{}) {
	event := &domain.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: paymentID,
		EventType: eventType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.events.AppendEvent(ctx, event); err != nil {
		log.Printf("level=warn component=payment_service msg=\"audit event dropped\" payment_id=%s tipo_evento=%s err=%v", paymentID, eventType, err)
	}
}

// publishPaymentEvent hands the lifecycle event off to the message broker.
func (s *Service) publishPaymentEvent(ctx context.Context, routingKey string, p *domain.Payment) {
	if s.producer == nil {
		return
	}
	err := s.producer.Publish(ctx, rabbitmq.EventsExchange, routingKey, rabbitmq.PaymentEventMessage{
		PaymentID:      p.ID,
		ClientID:       p.ClientID,
		ProfessionalID: p.ProfessionalID,
		Status:         p.Status,
		Amount:         p.TotalAmount,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=payment_service msg=\"event publish failed\" payment_id=%s routing_key=%s err=%v", p.ID, routingKey, err)
	}
}
