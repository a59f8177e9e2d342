/**
 * @description
 * Job bodies for the two scheduled passes the platform runs: releasing escrow
 * funds whose hold has expired, and materializing bookings from recurrence
 * schedules. Both jobs collect per-item failures and keep going, then log a
 * summary, so a single bad row never stalls the whole pass.
 *
 * @dependencies
 * - log/slog: Structured logging for job runs.
 * - internal/domain: Domain models.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
)

// escrowReleaser is the slice of the payment service the release job needs.
type escrowReleaser interface {
	DueReleases(ctx context.Context) ([]domain.Payment, error)
	ReleasePayment(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, bool, error)
}

// bookingGenerator is the slice of the recurring service the generator job needs.
type bookingGenerator interface {
	GenerateRecurringServices(ctx context.Context, now time.Time) (*domain.GenerationSummary, error)
}

// Jobs bundles the scheduled job bodies with their logger.
type Jobs struct {
	payments  escrowReleaser
	recurring bookingGenerator
	logger    *slog.Logger
}

// NewJobs creates the job runner.
func NewJobs(payments escrowReleaser, recurring bookingGenerator, logger *slog.Logger) *Jobs {
	return &Jobs{payments: payments, recurring: recurring, logger: logger}
}

// ReleaseDueEscrowFunds releases every approved payment whose scheduled
// release timestamp has passed. Payments that fail to release are logged and
// skipped; payments already released by the manual path count as skipped too.
func (j *Jobs) ReleaseDueEscrowFunds(ctx context.Context) {
	start := time.Now()
	j.logger.Info("escrow release pass started")

	due, err := j.payments.DueReleases(ctx)
	if err != nil {
		j.logger.Error("failed to list due releases", "error", err)
		return
	}

	released, skipped, failed := 0, 0, 0
	for _, payment := range due {
		_, performed, err := j.payments.ReleasePayment(ctx, payment.ID)
		if err != nil {
			failed++
			j.logger.Error("release failed", "payment_id", payment.ID, "error", err)
			continue
		}
		if performed {
			released++
		} else {
			skipped++
		}
	}

	j.logger.Info("escrow release pass finished",
		"due", len(due),
		"released", released,
		"skipped", skipped,
		"failed", failed,
		"duration", time.Since(start).String(),
	)
}

// GenerateRecurringServices runs one generator pass over all active schedules.
func (j *Jobs) GenerateRecurringServices(ctx context.Context) {
	start := time.Now()
	j.logger.Info("recurring generation pass started")

	summary, err := j.recurring.GenerateRecurringServices(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("recurring generation pass failed", "error", err)
		return
	}

	j.logger.Info("recurring generation pass finished",
		"schedules_processed", summary.SchedulesProcessed,
		"bookings_created", summary.BookingsCreated,
		"schedules_failed", summary.SchedulesFailed,
		"duration", time.Since(start).String(),
	)
}
