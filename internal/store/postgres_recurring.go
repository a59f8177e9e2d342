/**
 * @description
 * PostgreSQL implementation of the recurring-service repositories: recurrence
 * schedules and the booking rows the generator materializes from them.
 *
 * @notes
 * - The `servicios` table carries a unique index on
 *   (servicio_recurrente_id, (fecha_programada::date)), so the generator's
 *   batch insert uses ON CONFLICT DO NOTHING: concurrent or repeated runs
 *   fail the duplicate insert instead of creating a second booking for the
 *   same schedule and calendar day.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
)

const scheduleColumns = `
	id, cliente_id, profesional_id, descripcion, frecuencia,
	dia_semana, dia_mes, hora_inicio, duracion_horas,
	tarifa_base, descuento_recurrencia, fecha_inicio, fecha_fin,
	activo, creado_en, actualizado_en
`

func scanSchedule(row pgx.Row) (*domain.RecurrenceSchedule, error) {
	var s domain.RecurrenceSchedule
	err := row.Scan(
		&s.ID, &s.ClientID, &s.ProfessionalID, &s.Description, &s.Frequency,
		&s.DayOfWeek, &s.DayOfMonth, &s.StartTime, &s.DurationHours,
		&s.BaseRate, &s.RecurrenceDiscount, &s.StartDate, &s.EndDate,
		&s.Active, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return &s, nil
}

// CreateSchedule inserts a new recurrence schedule.
func (r *PostgresRepository) CreateSchedule(ctx context.Context, schedule *domain.RecurrenceSchedule) error {
	query := `
		INSERT INTO servicios_recurrentes (
			id, cliente_id, profesional_id, descripcion, frecuencia,
			dia_semana, dia_mes, hora_inicio, duracion_horas,
			tarifa_base, descuento_recurrencia, fecha_inicio, fecha_fin,
			activo, creado_en, actualizado_en
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query,
		schedule.ID, schedule.ClientID, schedule.ProfessionalID, schedule.Description, schedule.Frequency,
		schedule.DayOfWeek, schedule.DayOfMonth, schedule.StartTime, schedule.DurationHours,
		schedule.BaseRate, schedule.RecurrenceDiscount, schedule.StartDate, schedule.EndDate,
		schedule.Active,
	)
	return err
}

// FindScheduleByID retrieves a schedule by id.
func (r *PostgresRepository) FindScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.RecurrenceSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM servicios_recurrentes WHERE id = $1`
	return scanSchedule(r.db.QueryRow(ctx, query, scheduleID))
}

// ListSchedulesByUser returns schedules where the user is either party,
// newest first.
func (r *PostgresRepository) ListSchedulesByUser(ctx context.Context, userID uuid.UUID) ([]domain.RecurrenceSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM servicios_recurrentes
		WHERE cliente_id = $1 OR profesional_id = $1
		ORDER BY creado_en DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.RecurrenceSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// UpdateSchedule persists the mutable fields of a schedule and writes the
// row's new actualizado_en back into the struct.
func (r *PostgresRepository) UpdateSchedule(ctx context.Context, schedule *domain.RecurrenceSchedule) error {
	query := `
		UPDATE servicios_recurrentes
		SET descripcion = $1,
		    frecuencia = $2,
		    dia_semana = $3,
		    dia_mes = $4,
		    hora_inicio = $5,
		    duracion_horas = $6,
		    tarifa_base = $7,
		    descuento_recurrencia = $8,
		    fecha_fin = $9,
		    actualizado_en = NOW()
		WHERE id = $10
		RETURNING actualizado_en
	`
	err := r.db.QueryRow(ctx, query,
		schedule.Description, schedule.Frequency,
		schedule.DayOfWeek, schedule.DayOfMonth, schedule.StartTime, schedule.DurationHours,
		schedule.BaseRate, schedule.RecurrenceDiscount, schedule.EndDate,
		schedule.ID,
	).Scan(&schedule.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrScheduleNotFound
		}
		return err
	}
	return nil
}

// DeactivateSchedule sets activo = false. Schedules are never hard-deleted.
func (r *PostgresRepository) DeactivateSchedule(ctx context.Context, scheduleID uuid.UUID) error {
	query := `
		UPDATE servicios_recurrentes
		SET activo = FALSE, actualizado_en = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, scheduleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// ListActiveSchedules returns schedules eligible for generation on the given
// day: active, and either open-ended or not yet past their end date.
func (r *PostgresRepository) ListActiveSchedules(ctx context.Context, today time.Time) ([]domain.RecurrenceSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM servicios_recurrentes
		WHERE activo = TRUE
		  AND (fecha_fin IS NULL OR fecha_fin >= $1)
		ORDER BY creado_en
	`
	rows, err := r.db.Query(ctx, query, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []domain.RecurrenceSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// InsertBookings batch-inserts generated bookings in `pending` state.
// Conflicts on the (schedule, calendar day) uniqueness constraint are
// silently dropped so repeated generator runs stay idempotent.
func (r *PostgresRepository) InsertBookings(ctx context.Context, bookings []domain.ServiceBooking) (int, error) {
	if len(bookings) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO servicios (
			id, servicio_recurrente_id, cliente_id, profesional_id,
			descripcion, estado, tarifa, fecha_programada, creado_en
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (servicio_recurrente_id, (fecha_programada::date)) DO NOTHING
	`
	inserted := 0
	for _, b := range bookings {
		tag, err := tx.Exec(ctx, query,
			b.ID, b.ScheduleID, b.ClientID, b.ProfessionalID,
			b.Description, b.Status, b.Rate, b.ScheduledAt,
		)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// FindBookingDaysForSchedule returns the calendar days in [from, to] that
// already have a generated booking for the schedule.
func (r *PostgresRepository) FindBookingDaysForSchedule(ctx context.Context, scheduleID uuid.UUID, from, to time.Time) (map[time.Time]bool, error) {
	query := `
		SELECT DISTINCT fecha_programada::date
		FROM servicios
		WHERE servicio_recurrente_id = $1
		  AND fecha_programada >= $2
		  AND fecha_programada < $3
	`
	rows, err := r.db.Query(ctx, query, scheduleID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make(map[time.Time]bool)
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days[day.UTC().Truncate(24*time.Hour)] = true
	}
	return days, rows.Err()
}

// CancelFutureBookings bulk-cancels a schedule's future bookings that are
// still pending or scheduled.
func (r *PostgresRepository) CancelFutureBookings(ctx context.Context, scheduleID uuid.UUID, from time.Time) (int64, error) {
	query := `
		UPDATE servicios
		SET estado = $1
		WHERE servicio_recurrente_id = $2
		  AND fecha_programada >= $3
		  AND estado = ANY($4)
	`
	tag, err := r.db.Exec(ctx, query,
		domain.BookingStatusCancelled, scheduleID, from,
		[]string{domain.BookingStatusPending, domain.BookingStatusScheduled},
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListRecentBookingsBySchedule returns a schedule's most recent bookings.
func (r *PostgresRepository) ListRecentBookingsBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]domain.ServiceBooking, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id, servicio_recurrente_id, cliente_id, profesional_id,
		       descripcion, estado, tarifa, fecha_programada, creado_en
		FROM servicios
		WHERE servicio_recurrente_id = $1
		ORDER BY fecha_programada DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, scheduleID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.ServiceBooking
	for rows.Next() {
		var b domain.ServiceBooking
		if err := rows.Scan(
			&b.ID, &b.ScheduleID, &b.ClientID, &b.ProfessionalID,
			&b.Description, &b.Status, &b.Rate, &b.ScheduledAt, &b.CreatedAt,
		); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
