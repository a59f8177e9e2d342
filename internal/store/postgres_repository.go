/**
 * @description
 * This file provides the PostgreSQL implementation of the payment-side
 * repository interfaces: payments, the append-only event log, disputes, and
 * the released-funds aggregate. Recurrence schedules and booking generation
 * live in postgres_recurring.go.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - State transitions are single conditional UPDATEs (update-if-state-matches),
 *   so two racers on the same payment row cannot both apply a transition.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrServiceNotFound      = errors.New("service not found")
	ErrScheduleNotFound     = errors.New("recurring service not found")
	ErrPaymentNotDisputable = errors.New("payment is not in a disputable state")
)

// PostgresRepository is the concrete implementation of the Repository
// interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentColumns = `
	id, servicio_id, cliente_id, profesional_id,
	monto_total, comision_plataforma, monto_profesional, monto_reembolsado,
	estado, mercado_pago_id, preference_id, metadata,
	fecha_liberacion_programada, creado_en, aprobado_en, liberado_en, reembolsado_en
`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID, &p.ServiceID, &p.ClientID, &p.ProfessionalID,
		&p.TotalAmount, &p.PlatformCommission, &p.ProfessionalAmount, &p.RefundedAmount,
		&p.Status, &p.MercadoPagoID, &p.PreferenceID, &p.Metadata,
		&p.ScheduledReleaseAt, &p.CreatedAt, &p.ApprovedAt, &p.ReleasedAt, &p.RefundedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreatePayment inserts a new payment row in `pending` state.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO pagos (
			id, servicio_id, cliente_id, profesional_id,
			monto_total, comision_plataforma, monto_profesional, monto_reembolsado,
			estado, mercado_pago_id, preference_id, metadata, creado_en
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, NOW())
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.ServiceID, p.ClientID, p.ProfessionalID,
		p.TotalAmount, p.PlatformCommission, p.ProfessionalAmount,
		p.Status, p.MercadoPagoID, p.PreferenceID, p.Metadata,
	)
	return err
}

// FindPaymentByID retrieves a payment by its id.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM pagos WHERE id = $1`
	return scanPayment(r.db.QueryRow(ctx, query, paymentID))
}

// SetPaymentPreference stores the checkout preference id for a payment.
func (r *PostgresRepository) SetPaymentPreference(ctx context.Context, paymentID uuid.UUID, preferenceID string) error {
	query := `UPDATE pagos SET preference_id = $1 WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, preferenceID, paymentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// ApprovePayment transitions pending -> approved and schedules the release.
func (r *PostgresRepository) ApprovePayment(ctx context.Context, paymentID uuid.UUID, mercadoPagoID string, releaseAt time.Time) (bool, error) {
	query := `
		UPDATE pagos
		SET estado = $1,
		    mercado_pago_id = $2,
		    aprobado_en = NOW(),
		    fecha_liberacion_programada = $3
		WHERE id = $4 AND estado = $5
	`
	tag, err := r.db.Exec(ctx, query,
		domain.PaymentStatusApproved, mercadoPagoID, releaseAt,
		paymentID, domain.PaymentStatusPending,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailPayment transitions pending -> failed after a provider rejection.
func (r *PostgresRepository) FailPayment(ctx context.Context, paymentID uuid.UUID, mercadoPagoID string) (bool, error) {
	query := `
		UPDATE pagos
		SET estado = $1, mercado_pago_id = $2
		WHERE id = $3 AND estado = $4
	`
	tag, err := r.db.Exec(ctx, query,
		domain.PaymentStatusFailed, mercadoPagoID,
		paymentID, domain.PaymentStatusPending,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReleasePayment transitions approved -> released. The conditional WHERE is
// what makes the manual-vs-scheduler release race safe: at most one racer
// observes RowsAffected() == 1.
func (r *PostgresRepository) ReleasePayment(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	query := `
		UPDATE pagos
		SET estado = $1, liberado_en = NOW()
		WHERE id = $2 AND estado = $3
	`
	tag, err := r.db.Exec(ctx, query,
		domain.PaymentStatusReleased, paymentID, domain.PaymentStatusApproved,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ApplyRefund accumulates the refunded amount. The WHERE clause enforces both
// the refundable-state precondition and the monto_reembolsado <= monto_total
// invariant at the row level, and the resulting state is computed from the
// post-update balance in the same statement, so concurrent refunds can
// neither overdraw the payment nor leave an exhausted balance in
// `partially_refunded`.
func (r *PostgresRepository) ApplyRefund(ctx context.Context, paymentID uuid.UUID, amount int64) (bool, error) {
	query := `
		UPDATE pagos
		SET monto_reembolsado = monto_reembolsado + $1,
		    estado = CASE WHEN monto_reembolsado + $1 = monto_total THEN $2 ELSE $3 END,
		    reembolsado_en = NOW()
		WHERE id = $4
		  AND estado = ANY($5)
		  AND monto_reembolsado + $1 <= monto_total
	`
	refundableStates := []string{
		domain.PaymentStatusApproved,
		domain.PaymentStatusReleased,
		domain.PaymentStatusPartiallyRefunded,
	}
	tag, err := r.db.Exec(ctx, query, amount,
		domain.PaymentStatusRefunded, domain.PaymentStatusPartiallyRefunded,
		paymentID, refundableStates)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FindDueReleases returns approved payments whose scheduled release has passed.
func (r *PostgresRepository) FindDueReleases(ctx context.Context, now time.Time) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM pagos
		WHERE estado = $1
		  AND fecha_liberacion_programada IS NOT NULL
		  AND fecha_liberacion_programada <= $2
		ORDER BY fecha_liberacion_programada
	`
	rows, err := r.db.Query(ctx, query, domain.PaymentStatusApproved, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// SumReleasedNetByProfessional computes the professional's withdrawable
// balance: the sum of monto_profesional over released payments only.
func (r *PostgresRepository) SumReleasedNetByProfessional(ctx context.Context, professionalID uuid.UUID) (int64, error) {
	var total int64
	query := `
		SELECT COALESCE(SUM(monto_profesional), 0)
		FROM pagos
		WHERE profesional_id = $1 AND estado = $2
	`
	err := r.db.QueryRow(ctx, query, professionalID, domain.PaymentStatusReleased).Scan(&total)
	return total, err
}

// AppendEvent inserts one audit trail entry. Rows are never updated or deleted.
func (r *PostgresRepository) AppendEvent(ctx context.Context, event *domain.PaymentEvent) error {
	query := `
		INSERT INTO eventos_pagos (id, pago_id, tipo_evento, datos, procesado, creado_en)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.db.Exec(ctx, query, event.ID, event.PaymentID, event.EventType, event.Data, event.Processed)
	return err
}

// ListEventsByPayment returns a payment's audit trail, oldest first.
func (r *PostgresRepository) ListEventsByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error) {
	query := `
		SELECT id, pago_id, tipo_evento, datos, procesado, creado_en
		FROM eventos_pagos
		WHERE pago_id = $1
		ORDER BY creado_en
	`
	rows, err := r.db.Query(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.PaymentEvent
	for rows.Next() {
		var e domain.PaymentEvent
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.EventType, &e.Data, &e.Processed, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// OpenDispute moves the payment to `disputed` and inserts the dispute row in
// one transaction. The conditional payment update is the authoritative state
// check; losing it means the payment changed state under us.
func (r *PostgresRepository) OpenDispute(ctx context.Context, dispute *domain.Dispute) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE pagos
		SET estado = $1
		WHERE id = $2 AND estado = ANY($3)
	`, domain.PaymentStatusDisputed, dispute.PaymentID,
		[]string{domain.PaymentStatusApproved, domain.PaymentStatusReleased})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotDisputable
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO disputas_pagos (id, pago_id, usuario_id, motivo, descripcion, estado, creado_en)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, dispute.ID, dispute.PaymentID, dispute.UserID, dispute.Reason, dispute.Description, dispute.Status)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// HasOpenDispute reports whether the payment already has a dispute that is
// open or under review.
func (r *PostgresRepository) HasOpenDispute(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM disputas_pagos
			WHERE pago_id = $1 AND estado = ANY($2)
		)
	`
	err := r.db.QueryRow(ctx, query, paymentID,
		[]string{domain.DisputeStatusOpen, domain.DisputeStatusUnderReview}).Scan(&exists)
	return exists, err
}

// ListDisputesByUser returns the disputes a user opened, newest first,
// optionally filtered by state.
func (r *PostgresRepository) ListDisputesByUser(ctx context.Context, userID uuid.UUID, statusFilter string) ([]domain.Dispute, error) {
	query := `
		SELECT id, pago_id, usuario_id, motivo, descripcion, estado, creado_en, resuelto_en
		FROM disputas_pagos
		WHERE usuario_id = $1
	`
	args := []interface{}{userID}
	if statusFilter != "" {
		query += ` AND estado = $2`
		args = append(args, statusFilter)
	}
	query += ` ORDER BY creado_en DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []domain.Dispute
	for rows.Next() {
		var d domain.Dispute
		if err := rows.Scan(&d.ID, &d.PaymentID, &d.UserID, &d.Reason, &d.Description, &d.Status, &d.CreatedAt, &d.ResolvedAt); err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}

// FindBookingByID retrieves a service booking by id.
func (r *PostgresRepository) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.ServiceBooking, error) {
	var b domain.ServiceBooking
	query := `
		SELECT id, servicio_recurrente_id, cliente_id, profesional_id,
		       descripcion, estado, tarifa, fecha_programada, creado_en
		FROM servicios
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, bookingID).Scan(
		&b.ID, &b.ScheduleID, &b.ClientID, &b.ProfessionalID,
		&b.Description, &b.Status, &b.Rate, &b.ScheduledAt, &b.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("find booking: %w", err)
	}
	return &b, nil
}
