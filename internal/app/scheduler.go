/**
 * @description
 * Cron wiring for the scheduled jobs. The scheduler owns a robfig/cron
 * instance configured with panic recovery, registers the escrow release and
 * recurring generation jobs on their configured expressions, and exposes
 * Start/Stop for the main process lifecycle.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Cron scheduling library.
 * - log/slog: Structured logging.
 */

package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic jobs on their cron expressions.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
}

// NewScheduler builds the scheduler and registers both jobs. It returns an
// error if either cron expression fails to parse.
func NewScheduler(jobs *Jobs, releaseSchedule, generationSchedule string, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := c.AddFunc(releaseSchedule, func() {
		jobs.ReleaseDueEscrowFunds(context.Background())
	}); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(generationSchedule, func() {
		jobs.GenerateRecurringServices(context.Background())
	}); err != nil {
		return nil, err
	}

	return &Scheduler{cron: c, jobs: jobs, logger: logger}, nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started")
	s.cron.Start()
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
