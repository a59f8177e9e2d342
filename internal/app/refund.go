/**
 * @description
 * Refund processing for escrowed payments. Refunds reduce the refundable
 * balance (total minus already refunded) and move the payment to `refunded`
 * or `partially_refunded`. The cumulative-amount invariant is enforced twice:
 * here against the balance the caller saw, and again inside the conditional
 * store update, which also picks the resulting state from the post-update
 * balance, so concurrent refunds cannot overdraw a payment or misclassify
 * an exhausted one.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Event publication for notification fan-out.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/store"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/pkg/rabbitmq"
)

// RefundService processes partial and full refunds.
type RefundService struct {
	payments store.PaymentRepository
	events   store.EventRepository
	producer rabbitmq.Publisher
}

// NewRefundService creates a new refund service instance.
func NewRefundService(payments store.PaymentRepository, events store.EventRepository, producer rabbitmq.Publisher) *RefundService {
	return &RefundService{payments: payments, events: events, producer: producer}
}

// ProcessRefund refunds part or all of a payment back to the client. Only the
// paying client may request a refund, and the amount must not exceed the
// payment's remaining refundable balance.
func (s *RefundService) ProcessRefund(ctx context.Context, callerID uuid.UUID, paymentID uuid.UUID, req domain.RefundRequest) (*domain.RefundResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrInvalidAmount)
	}

	payment, err := s.payments.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.ClientID != callerID {
		return nil, fmt.Errorf("%w: only the paying client may request a refund", ErrForbidden)
	}

	switch payment.Status {
	case domain.PaymentStatusApproved, domain.PaymentStatusReleased, domain.PaymentStatusPartiallyRefunded:
	default:
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, payment.Status)
	}

	balance := payment.RefundableBalance()
	if req.Amount > balance {
		return nil, fmt.Errorf("%w: refund of %d exceeds refundable balance %d", ErrInvalidAmount, req.Amount, balance)
	}

	// The store decides the resulting state from the post-update balance so a
	// refund that races this read cannot strand an exhausted payment in
	// `partially_refunded`.
	updated, err := s.payments.ApplyRefund(ctx, paymentID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to apply refund: %w", err)
	}
	if !updated {
		// A concurrent transition invalidated the state or balance we read.
		return nil, fmt.Errorf("%w: payment state changed while processing the refund", ErrInvalidState)
	}

	payment, err = s.payments.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, paymentID, domain.EventRefundProcessed, map[string]interface{}{
		"monto":             req.Amount,
		"motivo":            req.Reason,
		"total_reembolsado": payment.RefundedAmount,
		"estado_resultante": payment.Status,
	})
	s.publish(ctx, "payment.refund.processed", payment)

	return &domain.RefundResult{
		Payment:        payment,
		RefundedAmount: req.Amount,
		TotalRefunded:  payment.RefundedAmount,
	}, nil
}

func (s *RefundService) logEvent(ctx context.Context, paymentID uuid.UUID, eventType string, data map[string]interface{}) {
	event := &domain.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: paymentID,
		EventType: eventType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.events.AppendEvent(ctx, event); err != nil {
		log.Printf("level=warn component=refund_service msg=\"audit event dropped\" payment_id=%s tipo_evento=%s err=%v", paymentID, eventType, err)
	}
}

func (s *RefundService) publish(ctx context.Context, routingKey string, p *domain.Payment) {
	if s.producer == nil {
		return
	}
	err := s.producer.Publish(ctx, rabbitmq.EventsExchange, routingKey, rabbitmq.PaymentEventMessage{
		PaymentID:      p.ID,
		ClientID:       p.ClientID,
		ProfessionalID: p.ProfessionalID,
		Status:         p.Status,
		Amount:         p.RefundedAmount,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=refund_service msg=\"event publish failed\" payment_id=%s routing_key=%s err=%v", p.ID, routingKey, err)
	}
}
