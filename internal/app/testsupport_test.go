package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/store"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/pkg/mercadopago"
)

// stubPaymentRepo is an in-memory PaymentRepository with the same conditional
// transition semantics as the PostgreSQL implementation.
type stubPaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*domain.Payment

	createErr error
	applyErr  error
}

func newStubPaymentRepo() *stubPaymentRepo {
	return &stubPaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)}
}

func (r *stubPaymentRepo) put(p *domain.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
}

func (r *stubPaymentRepo) CreatePayment(ctx context.Context, p *domain.Payment) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.put(p)
	return nil
}

func (r *stubPaymentRepo) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID]
	if !ok {
		return nil, store.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubPaymentRepo) SetPaymentPreference(ctx context.Context, paymentID uuid.UUID, preferenceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID]
	if !ok {
		return store.ErrPaymentNotFound
	}
	p.PreferenceID = &preferenceID
	return nil
}

func (r *stubPaymentRepo) ApprovePayment(ctx context.Context, paymentID uuid.UUID, mercadoPagoID string, releaseAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID]
	if !ok || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	p.Status = domain.PaymentStatusApproved
	p.MercadoPagoID = &mercadoPagoID
	p.ApprovedAt = &now
	p.ScheduledReleaseAt = &releaseAt
	return true, nil
}

func (r *stubPaymentRepo) FailPayment(ctx context.Context, paymentID uuid.UUID, mercadoPagoID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID]
	if !ok || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	p.Status = domain.PaymentStatusFailed
	p.MercadoPagoID = &mercadoPagoID
	return true, nil
}

func (r *stubPaymentRepo) ReleasePayment(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID]
	if !ok || p.Status != domain.PaymentStatusApproved {
		return false, nil
	}
	now := time.Now().UTC()
	p.Status = domain.PaymentStatusReleased
	p.ReleasedAt = &now
	return true, nil
}

func (r *stubPaymentRepo) ApplyRefund(ctx context.Context, paymentID uuid.UUID, amount int64) (bool, error) {
	if r.applyErr != nil {
		return false, r.applyErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID]
	if !ok {
		return false, nil
	}
	switch p.Status {
	case domain.PaymentStatusApproved, domain.PaymentStatusReleased, domain.PaymentStatusPartiallyRefunded:
	default:
		return false, nil
	}
	if p.RefundedAmount+amount > p.TotalAmount {
		return false, nil
	}
	now := time.Now().UTC()
	p.RefundedAmount += amount
	if p.RefundedAmount == p.TotalAmount {
		p.Status = domain.PaymentStatusRefunded
	} else {
		p.Status = domain.PaymentStatusPartiallyRefunded
	}
	p.RefundedAt = &now
	return true, nil
}

func (r *stubPaymentRepo) FindDueReleases(ctx context.Context, now time.Time) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []domain.Payment
	for _, p := range r.payments {
		if p.Status == domain.PaymentStatusApproved && p.ScheduledReleaseAt != nil && !p.ScheduledReleaseAt.After(now) {
			due = append(due, *p)
		}
	}
	return due, nil
}

func (r *stubPaymentRepo) SumReleasedNetByProfessional(ctx context.Context, professionalID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, p := range r.payments {
		if p.ProfessionalID == professionalID && p.Status == domain.PaymentStatusReleased {
			total += p.ProfessionalAmount
		}
	}
	return total, nil
}

type stubEventRepo struct {
	mu        sync.Mutex
	events    []domain.PaymentEvent
	appendErr error
}

func (r *stubEventRepo) AppendEvent(ctx context.Context, event *domain.PaymentEvent) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *stubEventRepo) ListEventsByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentEvent
	for _, e := range r.events {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *stubEventRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}

type stubDisputeRepo struct {
	mu       sync.Mutex
	disputes []domain.Dispute
	payments *stubPaymentRepo

	openErr error
}

func (r *stubDisputeRepo) OpenDispute(ctx context.Context, dispute *domain.Dispute) error {
	if r.openErr != nil {
		return r.openErr
	}
	if r.payments != nil {
		r.payments.mu.Lock()
		p, ok := r.payments.payments[dispute.PaymentID]
		if !ok || (p.Status != domain.PaymentStatusApproved && p.Status != domain.PaymentStatusReleased) {
			r.payments.mu.Unlock()
			return store.ErrPaymentNotDisputable
		}
		p.Status = domain.PaymentStatusDisputed
		r.payments.mu.Unlock()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disputes = append(r.disputes, *dispute)
	return nil
}

func (r *stubDisputeRepo) HasOpenDispute(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.disputes {
		if d.PaymentID == paymentID && (d.Status == domain.DisputeStatusOpen || d.Status == domain.DisputeStatusUnderReview) {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubDisputeRepo) ListDisputesByUser(ctx context.Context, userID uuid.UUID, statusFilter string) ([]domain.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Dispute
	for _, d := range r.disputes {
		if d.UserID != userID {
			continue
		}
		if statusFilter != "" && d.Status != statusFilter {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

type stubBookingRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*domain.ServiceBooking

	insertErr error
}

func newStubBookingRepo() *stubBookingRepo {
	return &stubBookingRepo{bookings: make(map[uuid.UUID]*domain.ServiceBooking)}
}

func (r *stubBookingRepo) put(b *domain.ServiceBooking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.bookings[b.ID] = &cp
}

func (r *stubBookingRepo) FindBookingByID(ctx context.Context, bookingID uuid.UUID) (*domain.ServiceBooking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return nil, store.ErrServiceNotFound
	}
	cp := *b
	return &cp, nil
}

// InsertBookings mirrors the unique (schedule, calendar day) constraint.
func (r *stubBookingRepo) InsertBookings(ctx context.Context, bookings []domain.ServiceBooking) (int, error) {
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := 0
	for i := range bookings {
		b := bookings[i]
		if b.ScheduleID != nil && r.hasBookingOnDayLocked(*b.ScheduleID, b.ScheduledAt) {
			continue
		}
		cp := b
		r.bookings[b.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (r *stubBookingRepo) hasBookingOnDayLocked(scheduleID uuid.UUID, at time.Time) bool {
	day := at.UTC().Truncate(24 * time.Hour)
	for _, b := range r.bookings {
		if b.ScheduleID != nil && *b.ScheduleID == scheduleID &&
			b.ScheduledAt.UTC().Truncate(24*time.Hour).Equal(day) {
			return true
		}
	}
	return false
}

func (r *stubBookingRepo) FindBookingDaysForSchedule(ctx context.Context, scheduleID uuid.UUID, from, to time.Time) (map[time.Time]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	days := make(map[time.Time]bool)
	for _, b := range r.bookings {
		if b.ScheduleID == nil || *b.ScheduleID != scheduleID {
			continue
		}
		if b.ScheduledAt.Before(from) || b.ScheduledAt.After(to) {
			continue
		}
		days[b.ScheduledAt.UTC().Truncate(24*time.Hour)] = true
	}
	return days, nil
}

func (r *stubBookingRepo) CancelFutureBookings(ctx context.Context, scheduleID uuid.UUID, from time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cancelled int64
	for _, b := range r.bookings {
		if b.ScheduleID == nil || *b.ScheduleID != scheduleID {
			continue
		}
		if b.ScheduledAt.Before(from) {
			continue
		}
		if b.Status == domain.BookingStatusPending || b.Status == domain.BookingStatusScheduled {
			b.Status = domain.BookingStatusCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (r *stubBookingRepo) ListRecentBookingsBySchedule(ctx context.Context, scheduleID uuid.UUID, limit int) ([]domain.ServiceBooking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ServiceBooking
	for _, b := range r.bookings {
		if b.ScheduleID != nil && *b.ScheduleID == scheduleID {
			out = append(out, *b)
		}
	}
	return out, nil
}

type stubScheduleRepo struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*domain.RecurrenceSchedule
	listErr   error
}

func newStubScheduleRepo() *stubScheduleRepo {
	return &stubScheduleRepo{schedules: make(map[uuid.UUID]*domain.RecurrenceSchedule)}
}

func (r *stubScheduleRepo) put(s *domain.RecurrenceSchedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.schedules[s.ID] = &cp
}

func (r *stubScheduleRepo) CreateSchedule(ctx context.Context, schedule *domain.RecurrenceSchedule) error {
	r.put(schedule)
	return nil
}

func (r *stubScheduleRepo) FindScheduleByID(ctx context.Context, scheduleID uuid.UUID) (*domain.RecurrenceSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[scheduleID]
	if !ok {
		return nil, store.ErrScheduleNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *stubScheduleRepo) ListSchedulesByUser(ctx context.Context, userID uuid.UUID) ([]domain.RecurrenceSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RecurrenceSchedule
	for _, s := range r.schedules {
		if s.ClientID == userID || s.ProfessionalID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *stubScheduleRepo) UpdateSchedule(ctx context.Context, schedule *domain.RecurrenceSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[schedule.ID]; !ok {
		return store.ErrScheduleNotFound
	}
	schedule.UpdatedAt = time.Now().UTC()
	cp := *schedule
	r.schedules[schedule.ID] = &cp
	return nil
}

func (r *stubScheduleRepo) DeactivateSchedule(ctx context.Context, scheduleID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[scheduleID]
	if !ok {
		return store.ErrScheduleNotFound
	}
	s.Active = false
	return nil
}

func (r *stubScheduleRepo) ListActiveSchedules(ctx context.Context, today time.Time) ([]domain.RecurrenceSchedule, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RecurrenceSchedule
	for _, s := range r.schedules {
		if !s.Active {
			continue
		}
		if s.EndDate != nil && s.EndDate.Before(today) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

// stubProducer records every published routing key.
type stubProducer struct {
	mu          sync.Mutex
	routingKeys []string
	publishErr  error
}

func (p *stubProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *stubProducer) Close() {}

func (p *stubProducer) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.routingKeys...)
}

// stubProvider scripts provider responses.
type stubProvider struct {
	preference    *mercadopago.PreferenceResponse
	preferenceErr error
	payment       *mercadopago.PaymentResponse
	paymentErr    error

	createCalls int
	getCalls    int
}

func (p *stubProvider) CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.PreferenceResponse, error) {
	p.createCalls++
	if p.preferenceErr != nil {
		return nil, p.preferenceErr
	}
	if p.preference != nil {
		return p.preference, nil
	}
	return &mercadopago.PreferenceResponse{ID: "pref-1", InitPoint: "https://mp.example/checkout/pref-1"}, nil
}

func (p *stubProvider) GetPayment(ctx context.Context, paymentID string) (*mercadopago.PaymentResponse, error) {
	p.getCalls++
	if p.paymentErr != nil {
		return nil, p.paymentErr
	}
	return p.payment, nil
}
