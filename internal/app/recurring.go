/**
 * @description
 * Recurring-service management and booking generation. A recurrence schedule
 * is a standing rule ("every Tuesday at 10:00", "the 5th of each month");
 * the generator expands each active schedule into concrete bookings over a
 * rolling horizon. Generation is idempotent per (schedule, calendar day):
 * repeated runs skip occurrences that already have a booking.
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
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/store"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/pkg/rabbitmq"
)

// RecurringService manages recurrence schedules and expands them into bookings.
type RecurringService struct {
	schedules store.ScheduleRepository
	bookings  store.BookingRepository
	producer  rabbitmq.Publisher

	horizonDays int
}

// NewRecurringService creates a new recurring service manager.
func NewRecurringService(schedules store.ScheduleRepository, bookings store.BookingRepository, producer rabbitmq.Publisher, horizonDays int) *RecurringService {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	return &RecurringService{
		schedules:   schedules,
		bookings:    bookings,
		producer:    producer,
		horizonDays: horizonDays,
	}
}

// DiscountedRate applies the recurrence discount percentage to a base rate,
// rounding to the nearest unit.
func DiscountedRate(baseRate int64, discountPercent float64) int64 {
	return int64(math.Round(float64(baseRate) * (1 - discountPercent/100)))
}

// CreateSchedule validates and persists a new recurrence schedule for the
// calling client.
func (s *RecurringService) CreateSchedule(ctx context.Context, clientID uuid.UUID, req domain.CreateScheduleRequest) (*domain.RecurrenceSchedule, error) {
	if err := validateScheduleFields(req.Frequency, req.DayOfWeek, req.DayOfMonth, req.StartTime, req.DurationHours, req.BaseRate, req.RecurrenceDiscount); err != nil {
		return nil, err
	}
	if req.ProfessionalID == uuid.Nil {
		return nil, fmt.Errorf("%w: profesional_id is required", ErrInvalidSchedule)
	}
	if req.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: fecha_inicio is required", ErrInvalidSchedule)
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return nil, fmt.Errorf("%w: fecha_fin precedes fecha_inicio", ErrInvalidSchedule)
	}

	now := time.Now().UTC()
	schedule := &domain.RecurrenceSchedule{
		ID:                 uuid.New(),
		ClientID:           clientID,
		ProfessionalID:     req.ProfessionalID,
		Description:        req.Description,
		Frequency:          req.Frequency,
		DayOfWeek:          req.DayOfWeek,
		DayOfMonth:         req.DayOfMonth,
		StartTime:          req.StartTime,
		DurationHours:      req.DurationHours,
		BaseRate:           req.BaseRate,
		RecurrenceDiscount: req.RecurrenceDiscount,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		Active:             true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to create recurring service: %w", err)
	}
	return schedule, nil
}

// ListSchedules returns the schedules where the caller is either party.
func (s *RecurringService) ListSchedules(ctx context.Context, callerID uuid.UUID) ([]domain.RecurrenceSchedule, error) {
	return s.schedules.ListSchedulesByUser(ctx, callerID)
}

// GetScheduleDetail returns a schedule plus its most recently generated
// bookings, for one of its parties.
func (s *RecurringService) GetScheduleDetail(ctx context.Context, callerID uuid.UUID, scheduleID uuid.UUID) (*domain.ScheduleDetail, error) {
	schedule, err := s.schedules.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !schedule.IsParty(callerID) {
		return nil, ErrForbidden
	}

	bookings, err := s.bookings.ListRecentBookingsBySchedule(ctx, scheduleID, 10)
	if err != nil {
		return nil, err
	}
	return &domain.ScheduleDetail{Schedule: schedule, Bookings: bookings}, nil
}

// UpdateSchedule applies a partial update to a schedule owned by the caller.
// Already generated bookings keep their original terms; changes only affect
// future generation.
func (s *RecurringService) UpdateSchedule(ctx context.Context, callerID uuid.UUID, scheduleID uuid.UUID, req domain.UpdateScheduleRequest) (*domain.RecurrenceSchedule, error) {
	schedule, err := s.schedules.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !schedule.IsParty(callerID) {
		return nil, ErrForbidden
	}
	if !schedule.Active {
		return nil, fmt.Errorf("%w: recurring service is cancelled", ErrInvalidState)
	}

	if req.Description != nil {
		schedule.Description = *req.Description
	}
	if req.Frequency != nil {
		schedule.Frequency = *req.Frequency
	}
	if req.DayOfWeek != nil {
		schedule.DayOfWeek = req.DayOfWeek
	}
	if req.DayOfMonth != nil {
		schedule.DayOfMonth = req.DayOfMonth
	}
	if req.StartTime != nil {
		schedule.StartTime = *req.StartTime
	}
	if req.DurationHours != nil {
		schedule.DurationHours = *req.DurationHours
	}
	if req.BaseRate != nil {
		schedule.BaseRate = *req.BaseRate
	}
	if req.RecurrenceDiscount != nil {
		schedule.RecurrenceDiscount = *req.RecurrenceDiscount
	}
	if req.EndDate != nil {
		schedule.EndDate = req.EndDate
	}

	if err := validateScheduleFields(schedule.Frequency, schedule.DayOfWeek, schedule.DayOfMonth, schedule.StartTime, schedule.DurationHours, schedule.BaseRate, schedule.RecurrenceDiscount); err != nil {
		return nil, err
	}

	// The store stamps actualizado_en and writes it back into the schedule,
	// so the caller sees the persisted timestamp.
	if err := s.schedules.UpdateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to update recurring service: %w", err)
	}
	return schedule, nil
}

// CancelRecurringService deactivates a schedule and bulk-cancels its future
// bookings that have not started yet. Either party may cancel.
func (s *RecurringService) CancelRecurringService(ctx context.Context, callerID uuid.UUID, scheduleID uuid.UUID) (int64, error) {
	schedule, err := s.schedules.FindScheduleByID(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	if !schedule.IsParty(callerID) {
		return 0, ErrForbidden
	}
	if !schedule.Active {
		return 0, fmt.Errorf("%w: recurring service is already cancelled", ErrInvalidState)
	}

	if err := s.schedules.DeactivateSchedule(ctx, scheduleID); err != nil {
		return 0, fmt.Errorf("failed to deactivate recurring service: %w", err)
	}

	cancelled, err := s.bookings.CancelFutureBookings(ctx, scheduleID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cancel future bookings: %w", err)
	}

	if s.producer != nil {
		pubErr := s.producer.Publish(ctx, rabbitmq.EventsExchange, "recurring.cancelled", rabbitmq.RecurringCancelledMessage{
			ScheduleID:        scheduleID,
			ClientID:          schedule.ClientID,
			ProfessionalID:    schedule.ProfessionalID,
			CancelledByUserID: callerID,
			BookingsCancelled: cancelled,
			Timestamp:         time.Now().UTC(),
		})
		if pubErr != nil {
			log.Printf("level=warn component=recurring_service msg=\"event publish failed\" servicio_recurrente_id=%s err=%v", scheduleID, pubErr)
		}
	}

	return cancelled, nil
}

// GenerateRecurringServices expands every active schedule into bookings over
// the rolling horizon. A failing schedule is counted and skipped; one bad
// schedule never aborts the pass.
func (s *RecurringService) GenerateRecurringServices(ctx context.Context, now time.Time) (*domain.GenerationSummary, error) {
	today := now.UTC().Truncate(24 * time.Hour)
	schedules, err := s.schedules.ListActiveSchedules(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}

	summary := &domain.GenerationSummary{}
	for i := range schedules {
		schedule := &schedules[i]
		summary.SchedulesProcessed++

		created, err := s.generateForSchedule(ctx, schedule, now)
		if err != nil {
			summary.SchedulesFailed++
			log.Printf("level=error component=recurring_service msg=\"schedule generation failed\" servicio_recurrente_id=%s err=%v", schedule.ID, err)
			continue
		}
		summary.BookingsCreated += created

		if created > 0 && s.producer != nil {
			pubErr := s.producer.Publish(ctx, rabbitmq.EventsExchange, "recurring.bookings.generated", rabbitmq.BookingsGeneratedMessage{
				ScheduleID:     schedule.ID,
				ClientID:       schedule.ClientID,
				ProfessionalID: schedule.ProfessionalID,
				BookingsCount:  created,
				Timestamp:      time.Now().UTC(),
			})
			if pubErr != nil {
				log.Printf("level=warn component=recurring_service msg=\"event publish failed\" servicio_recurrente_id=%s err=%v", schedule.ID, pubErr)
			}
		}
	}
	return summary, nil
}

func (s *RecurringService) generateForSchedule(ctx context.Context, schedule *domain.RecurrenceSchedule, now time.Time) (int, error) {
	from := now.UTC()
	to := from.AddDate(0, 0, s.horizonDays)

	occurrences, err := ComputeOccurrences(schedule, from, to)
	if err != nil {
		return 0, err
	}
	if len(occurrences) == 0 {
		return 0, nil
	}

	existing, err := s.bookings.FindBookingDaysForSchedule(ctx, schedule.ID, from, to)
	if err != nil {
		return 0, err
	}

	rate := DiscountedRate(schedule.BaseRate, schedule.RecurrenceDiscount)
	var bookings []domain.ServiceBooking
	scheduleID := schedule.ID
	for _, occurrence := range occurrences {
		day := occurrence.UTC().Truncate(24 * time.Hour)
		if existing[day] {
			continue
		}
		bookings = append(bookings, domain.ServiceBooking{
			ID:             uuid.New(),
			ScheduleID:     &scheduleID,
			ClientID:       schedule.ClientID,
			ProfessionalID: schedule.ProfessionalID,
			Description:    schedule.Description,
			Status:         domain.BookingStatusPending,
			Rate:           rate,
			ScheduledAt:    occurrence,
		})
	}
	if len(bookings) == 0 {
		return 0, nil
	}

	// The unique (schedule, calendar day) index is the authoritative dedup;
	// the pre-read above just avoids pointless insert attempts.
	return s.bookings.InsertBookings(ctx, bookings)
}

// ComputeOccurrences expands a schedule into its occurrence timestamps within
// [from, to], honoring the schedule's own start and end dates. For weekly and
// biweekly schedules the start date is first aligned forward to the configured
// weekday; for the month-stepped frequencies it is aligned to the configured
// day of month, clamping to the month's last day when shorter.
func ComputeOccurrences(schedule *domain.RecurrenceSchedule, from, to time.Time) ([]time.Time, error) {
	hour, minute, err := parseStartTime(schedule.StartTime)
	if err != nil {
		return nil, err
	}

	start := schedule.StartDate.UTC()
	start = time.Date(start.Year(), start.Month(), start.Day(), hour, minute, 0, 0, time.UTC)

	end := to.UTC()
	if schedule.EndDate != nil && schedule.EndDate.Before(end) {
		end = schedule.EndDate.UTC().Add(24*time.Hour - time.Second)
	}

	var step func(time.Time) time.Time
	switch schedule.Frequency {
	case domain.FrequencyWeekly, domain.FrequencyBiweekly:
		if schedule.DayOfWeek != nil {
			target := time.Weekday(*schedule.DayOfWeek)
			for start.Weekday() != target {
				start = start.AddDate(0, 0, 1)
			}
		}
		days := 7
		if schedule.Frequency == domain.FrequencyBiweekly {
			days = 14
		}
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, days) }

	case domain.FrequencyMonthly, domain.FrequencyBimonthly, domain.FrequencyQuarterly:
		day := start.Day()
		if schedule.DayOfMonth != nil {
			day = *schedule.DayOfMonth
		}
		start = monthlyOccurrence(start.Year(), start.Month(), day, hour, minute)
		if start.Before(schedule.StartDate.UTC().Truncate(24 * time.Hour)) {
			y, m := nextMonth(start.Year(), start.Month(), 1)
			start = monthlyOccurrence(y, m, day, hour, minute)
		}
		months := 1
		switch schedule.Frequency {
		case domain.FrequencyBimonthly:
			months = 2
		case domain.FrequencyQuarterly:
			months = 3
		}
		step = func(t time.Time) time.Time {
			y, m := nextMonth(t.Year(), t.Month(), months)
			return monthlyOccurrence(y, m, day, hour, minute)
		}

	default:
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, schedule.Frequency)
	}

	var occurrences []time.Time
	for t := start; !t.After(end); t = step(t) {
		if t.Before(from) {
			continue
		}
		occurrences = append(occurrences, t)
	}
	return occurrences, nil
}

// monthlyOccurrence places day-of-month within the given month, clamping to
// the month's last day (e.g. the 31st in February becomes the 28th or 29th).
func monthlyOccurrence(year int, month time.Month, day, hour, minute int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func nextMonth(year int, month time.Month, step int) (int, time.Month) {
	m := int(month) + step
	for m > 12 {
		m -= 12
		year++
	}
	return year, time.Month(m)
}

func parseStartTime(value string) (int, int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: hora_inicio must be HH:MM", ErrInvalidSchedule)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: hora_inicio has an invalid hour", ErrInvalidSchedule)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: hora_inicio has an invalid minute", ErrInvalidSchedule)
	}
	return hour, minute, nil
}

func validateScheduleFields(frequency string, dayOfWeek, dayOfMonth *int, startTime string, durationHours float64, baseRate int64, discount float64) error {
	if !domain.ValidFrequency(frequency) {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, frequency)
	}
	// Both day fields are optional: an unset dia_semana (or dia_mes) means
	// occurrences follow the schedule's own start date. Only range-check
	// values that are present.
	switch frequency {
	case domain.FrequencyWeekly, domain.FrequencyBiweekly:
		if dayOfWeek != nil && (*dayOfWeek < 0 || *dayOfWeek > 6) {
			return fmt.Errorf("%w: dia_semana must be 0..6 for %s schedules", ErrInvalidSchedule, frequency)
		}
	default:
		if dayOfMonth != nil && (*dayOfMonth < 1 || *dayOfMonth > 31) {
			return fmt.Errorf("%w: dia_mes must be 1..31 for %s schedules", ErrInvalidSchedule, frequency)
		}
	}
	if _, _, err := parseStartTime(startTime); err != nil {
		return err
	}
	if durationHours <= 0 {
		return fmt.Errorf("%w: duracion_horas must be positive", ErrInvalidSchedule)
	}
	if baseRate <= 0 {
		return fmt.Errorf("%w: tarifa_base must be positive", ErrInvalidSchedule)
	}
	if discount < 0 || discount > 100 {
		return fmt.Errorf("%w: descuento_recurrencia must be in [0, 100]", ErrInvalidSchedule)
	}
	return nil
}
