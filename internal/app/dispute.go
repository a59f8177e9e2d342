/**
 * @description
 * Dispute intake for escrowed payments. Either party to a payment may raise a
 * dispute while funds are in custody or shortly after release; doing so
 * freezes the payment in `disputed` so the automatic release job skips it.
 * Resolution itself is a manual back-office process and is out of scope here.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Event publication for notification fan-out.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/store"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/pkg/rabbitmq"
)

// DisputeService handles dispute intake and listing.
type DisputeService struct {
	payments store.PaymentRepository
	disputes store.DisputeRepository
	events   store.EventRepository
	producer rabbitmq.Publisher
}

// NewDisputeService creates a new dispute service instance.
func NewDisputeService(payments store.PaymentRepository, disputes store.DisputeRepository, events store.EventRepository, producer rabbitmq.Publisher) *DisputeService {
	return &DisputeService{
		payments: payments,
		disputes: disputes,
		events:   events,
		producer: producer,
	}
}

// CreateDispute opens a dispute against a payment on behalf of one of its
// parties. The payment must be in custody (approved) or recently released,
// and must not already carry an unresolved dispute.
func (s *DisputeService) CreateDispute(ctx context.Context, callerID uuid.UUID, paymentID uuid.UUID, req domain.CreateDisputeRequest) (*domain.Dispute, error) {
	if !domain.ValidDisputeReason(req.Reason) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDisputeReason, req.Reason)
	}

	payment, err := s.payments.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.IsParty(callerID) {
		return nil, ErrForbidden
	}

	switch payment.Status {
	case domain.PaymentStatusApproved, domain.PaymentStatusReleased:
	default:
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, payment.Status)
	}

	open, err := s.disputes.HasOpenDispute(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing disputes: %w", err)
	}
	if open {
		return nil, fmt.Errorf("%w: payment already has an unresolved dispute", ErrInvalidState)
	}

	dispute := &domain.Dispute{
		ID:          uuid.New(),
		PaymentID:   paymentID,
		UserID:      callerID,
		Reason:      req.Reason,
		Description: req.Description,
		Status:      domain.DisputeStatusOpen,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.disputes.OpenDispute(ctx, dispute); err != nil {
		if errors.Is(err, store.ErrPaymentNotDisputable) {
			// The payment changed state between the read and the update.
			return nil, fmt.Errorf("%w: payment is no longer disputable", ErrInvalidState)
		}
		return nil, fmt.Errorf("failed to open dispute: %w", err)
	}

	s.logEvent(ctx, paymentID, domain.EventDisputeCreated, map[string]interface{}{
		"disputa_id": dispute.ID,
		"motivo":     dispute.Reason,
		"usuario_id": callerID,
	})
	s.publish(ctx, "payment.dispute.created", payment)

	return dispute, nil
}

// ListUserDisputes returns the disputes the caller has opened, optionally
// filtered by state.
func (s *DisputeService) ListUserDisputes(ctx context.Context, callerID uuid.UUID, statusFilter string) ([]domain.Dispute, error) {
	return s.disputes.ListDisputesByUser(ctx, callerID, statusFilter)
}

func (s *DisputeService) logEvent(ctx context.Context, paymentID uuid.UUID, eventType string, data map[string]interface{}) {
	event := &domain.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: paymentID,
		EventType: eventType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.events.AppendEvent(ctx, event); err != nil {
		log.Printf("level=warn component=dispute_service msg=\"audit event dropped\" payment_id=%s tipo_evento=%s err=%v", paymentID, eventType, err)
	}
}

func (s *DisputeService) publish(ctx context.Context, routingKey string, p *domain.Payment) {
	if s.producer == nil {
		return
	}
	err := s.producer.Publish(ctx, rabbitmq.EventsExchange, routingKey, rabbitmq.PaymentEventMessage{
		PaymentID:      p.ID,
		ClientID:       p.ClientID,
		ProfessionalID: p.ProfessionalID,
		Status:         domain.PaymentStatusDisputed,
		Amount:         p.TotalAmount,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=dispute_service msg=\"event publish failed\" payment_id=%s routing_key=%s err=%v", p.ID, routingKey, err)
	}
}
