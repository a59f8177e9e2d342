package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/domain"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/internal/store"
	"github.com/MarcosHerrera95/modificaciones-front-sub000/pkg/mercadopago"
)

func newTestService(payments *stubPaymentRepo, events *stubEventRepo, bookings *stubBookingRepo, provider *stubProvider, producer *stubProducer) *Service {
	return NewService(payments, events, bookings, provider, producer, 10, 1_000_000, 24*time.Hour)
}

func payableBooking(clientID, professionalID uuid.UUID) *domain.ServiceBooking {
	return &domain.ServiceBooking{
		ID:             uuid.New(),
		ClientID:       clientID,
		ProfessionalID: professionalID,
		Description:    "limpieza semanal",
		Status:         domain.BookingStatusScheduled,
		Rate:           10000,
		ScheduledAt:    time.Now().UTC().Add(48 * time.Hour),
	}
}

func TestCommissionFor(t *testing.T) {
	cases := []struct {
		amount int64
		rate   float64
		want   int64
	}{
		{10000, 10, 1000},
		{9999, 10, 1000},
		{1, 10, 0},
		{12345, 0, 0},
		{10000, 100, 10000},
	}
	for _, tc := range cases {
		if got := CommissionFor(tc.amount, tc.rate); got != tc.want {
			t.Errorf("CommissionFor(%d, %f) = %d, want %d", tc.amount, tc.rate, got, tc.want)
		}
	}
}

func TestCreatePayment_SplitsCommission(t *testing.T) {
	payments := newStubPaymentRepo()
	events := &stubEventRepo{}
	bookings := newStubBookingRepo()
	provider := &stubProvider{}
	producer := &stubProducer{}
	svc := newTestService(payments, events, bookings, provider, producer)

	clientID := uuid.New()
	professionalID := uuid.New()
	booking := payableBooking(clientID, professionalID)
	bookings.put(booking)

	result, err := svc.CreatePayment(context.Background(), clientID, domain.CreatePaymentRequest{
		ServiceID: booking.ID,
		Amount:    10000,
	})
	if err != nil {
		t.Fatalf("CreatePayment returned error: %v", err)
	}

	p := result.Payment
	if p.PlatformCommission != 1000 {
		t.Errorf("expected commission 1000, got %d", p.PlatformCommission)
	}
	if p.ProfessionalAmount != 9000 {
		t.Errorf("expected professional amount 9000, got %d", p.ProfessionalAmount)
	}
	if p.PlatformCommission+p.ProfessionalAmount != p.TotalAmount {
		t.Errorf("commission + net != total: %d + %d != %d", p.PlatformCommission, p.ProfessionalAmount, p.TotalAmount)
	}
	if p.Status != domain.PaymentStatusPending {
		t.Errorf("expected pending payment, got %s", p.Status)
	}
	if result.PreferenceID == "" || result.InitPoint == "" {
		t.Errorf("expected preference id and init point, got %q %q", result.PreferenceID, result.InitPoint)
	}
	if got := events.eventTypes(); len(got) != 1 || got[0] != domain.EventPaymentCreated {
		t.Errorf("expected one payment_created event, got %v", got)
	}
}

func TestCreatePayment_RejectsInvalidAmounts(t *testing.T) {
	payments := newStubPaymentRepo()
	bookings := newStubBookingRepo()
	svc := newTestService(payments, &stubEventRepo{}, bookings, &stubProvider{}, &stubProducer{})

	clientID := uuid.New()
	booking := payableBooking(clientID, uuid.New())
	bookings.put(booking)

	for _, amount := range []int64{0, -100, 1_000_001} {
		_, err := svc.CreatePayment(context.Background(), clientID, domain.CreatePaymentRequest{
			ServiceID: booking.ID,
			Amount:    amount,
		})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestCreatePayment_RejectsForeignOrUnpayableService(t *testing.T) {
	payments := newStubPaymentRepo()
	bookings := newStubBookingRepo()
	svc := newTestService(payments, &stubEventRepo{}, bookings, &stubProvider{}, &stubProducer{})

	clientID := uuid.New()
	booking := payableBooking(uuid.New(), uuid.New())
	bookings.put(booking)

	_, err := svc.CreatePayment(context.Background(), clientID, domain.CreatePaymentRequest{ServiceID: booking.ID, Amount: 5000})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another client's service, got %v", err)
	}

	cancelled := payableBooking(clientID, uuid.New())
	cancelled.Status = domain.BookingStatusCancelled
	bookings.put(cancelled)

	_, err = svc.CreatePayment(context.Background(), clientID, domain.CreatePaymentRequest{ServiceID: cancelled.ID, Amount: 5000})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for cancelled service, got %v", err)
	}

	_, err = svc.CreatePayment(context.Background(), clientID, domain.CreatePaymentRequest{ServiceID: uuid.New(), Amount: 5000})
	if !errors.Is(err, store.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}

	// A missing service wins over a bad amount: the service checks run first.
	_, err = svc.CreatePayment(context.Background(), clientID, domain.CreatePaymentRequest{ServiceID: uuid.New(), Amount: -100})
	if !errors.Is(err, store.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound for missing service with bad amount, got %v", err)
	}
}

func TestCreatePayment_ProviderFailureLeavesPaymentPending(t *testing.T) {
	payments := newStubPaymentRepo()
	bookings := newStubBookingRepo()
	provider := &stubProvider{preferenceErr: errors.New("mp timeout")}
	svc := newTestService(payments, &stubEventRepo{}, bookings, provider, &stubProducer{})

	clientID := uuid.New()
	booking := payableBooking(clientID, uuid.New())
	bookings.put(booking)

	_, err := svc.CreatePayment(context.Background(), clientID, domain.CreatePaymentRequest{ServiceID: booking.ID, Amount: 5000})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	// The ledger row survives the provider failure in pending state.
	var found *domain.Payment
	for id := range payments.payments {
		found, _ = payments.FindPaymentByID(context.Background(), id)
	}
	if found == nil {
		t.Fatal("expected payment row to exist after provider failure")
	}
	if found.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending payment after provider failure, got %s", found.Status)
	}
}

func TestMarkApproved_IsIdempotent(t *testing.T) {
	payments := newStubPaymentRepo()
	events := &stubEventRepo{}
	producer := &stubProducer{}
	svc := newTestService(payments, events, newStubBookingRepo(), &stubProvider{}, producer)

	payment := &domain.Payment{
		ID:          uuid.New(),
		ClientID:    uuid.New(),
		TotalAmount: 10000,
		Status:      domain.PaymentStatusPending,
	}
	payments.put(payment)

	first, err := svc.MarkApproved(context.Background(), payment.ID, "mp-123")
	if err != nil {
		t.Fatalf("first MarkApproved returned error: %v", err)
	}
	if first.Status != domain.PaymentStatusApproved {
		t.Fatalf("expected approved, got %s", first.Status)
	}
	if first.ScheduledReleaseAt == nil {
		t.Fatal("expected a scheduled release timestamp")
	}

	second, err := svc.MarkApproved(context.Background(), payment.ID, "mp-123")
	if err != nil {
		t.Fatalf("redelivered MarkApproved returned error: %v", err)
	}
	if second.Status != domain.PaymentStatusApproved {
		t.Fatalf("expected approved after redelivery, got %s", second.Status)
	}
	if got := events.eventTypes(); len(got) != 1 {
		t.Fatalf("expected exactly one payment_approved event, got %v", got)
	}
	if got := producer.published(); len(got) != 1 || got[0] != "payment.approved" {
		t.Fatalf("expected one payment.approved publish, got %v", got)
	}
}

func TestMarkFailed_RejectsOutOfOrderRejection(t *testing.T) {
	payments := newStubPaymentRepo()
	svc := newTestService(payments, &stubEventRepo{}, newStubBookingRepo(), &stubProvider{}, &stubProducer{})

	payment := &domain.Payment{ID: uuid.New(), Status: domain.PaymentStatusReleased, TotalAmount: 1000}
	payments.put(payment)

	_, err := svc.MarkFailed(context.Background(), payment.ID, "mp-9")
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for released payment, got %v", err)
	}
}

func TestReleaseFunds_OnlyClientMayRelease(t *testing.T) {
	payments := newStubPaymentRepo()
	svc := newTestService(payments, &stubEventRepo{}, newStubBookingRepo(), &stubProvider{}, &stubProducer{})

	clientID := uuid.New()
	professionalID := uuid.New()
	payment := &domain.Payment{
		ID:             uuid.New(),
		ClientID:       clientID,
		ProfessionalID: professionalID,
		TotalAmount:    10000,
		Status:         domain.PaymentStatusApproved,
	}
	payments.put(payment)

	if _, err := svc.ReleaseFunds(context.Background(), professionalID, payment.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for professional caller, got %v", err)
	}

	released, err := svc.ReleaseFunds(context.Background(), clientID, payment.ID)
	if err != nil {
		t.Fatalf("ReleaseFunds returned error: %v", err)
	}
	if released.Status != domain.PaymentStatusReleased {
		t.Fatalf("expected released, got %s", released.Status)
	}
}

func TestReleasePayment_AlreadyReleasedIsBenignNoOp(t *testing.T) {
	payments := newStubPaymentRepo()
	events := &stubEventRepo{}
	svc := newTestService(payments, events, newStubBookingRepo(), &stubProvider{}, &stubProducer{})

	payment := &domain.Payment{ID: uuid.New(), TotalAmount: 1000, Status: domain.PaymentStatusApproved}
	payments.put(payment)

	_, performed, err := svc.ReleasePayment(context.Background(), payment.ID)
	if err != nil || !performed {
		t.Fatalf("first release: performed=%v err=%v", performed, err)
	}

	_, performed, err = svc.ReleasePayment(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("second release returned error: %v", err)
	}
	if performed {
		t.Fatal("second release should be a no-op")
	}
	if got := events.eventTypes(); len(got) != 1 {
		t.Fatalf("expected exactly one funds_released event, got %v", got)
	}
}

func TestReleasePayment_DisputedPaymentIsInvalidState(t *testing.T) {
	payments := newStubPaymentRepo()
	svc := newTestService(payments, &stubEventRepo{}, newStubBookingRepo(), &stubProvider{}, &stubProducer{})

	payment := &domain.Payment{ID: uuid.New(), TotalAmount: 1000, Status: domain.PaymentStatusDisputed}
	payments.put(payment)

	_, _, err := svc.ReleasePayment(context.Background(), payment.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for disputed payment, got %v", err)
	}
}

func TestGetStatus_OutsiderIsForbidden(t *testing.T) {
	payments := newStubPaymentRepo()
	svc := newTestService(payments, &stubEventRepo{}, newStubBookingRepo(), &stubProvider{}, &stubProducer{})

	payment := &domain.Payment{
		ID:             uuid.New(),
		ClientID:       uuid.New(),
		ProfessionalID: uuid.New(),
		TotalAmount:    1000,
		Status:         domain.PaymentStatusApproved,
	}
	payments.put(payment)

	if _, err := svc.GetStatus(context.Background(), uuid.New(), payment.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}
	if _, err := svc.GetStatus(context.Background(), payment.ProfessionalID, payment.ID); err != nil {
		t.Fatalf("professional should read status, got %v", err)
	}
}

func TestAvailableFunds_SumsReleasedOnly(t *testing.T) {
	payments := newStubPaymentRepo()
	svc := newTestService(payments, &stubEventRepo{}, newStubBookingRepo(), &stubProvider{}, &stubProducer{})

	professionalID := uuid.New()
	put := func(status string, net int64) {
		payments.put(&domain.Payment{
			ID:                 uuid.New(),
			ProfessionalID:     professionalID,
			TotalAmount:        net + net/9,
			ProfessionalAmount: net,
			Status:             status,
		})
	}
	put(domain.PaymentStatusReleased, 9000)
	put(domain.PaymentStatusReleased, 4500)
	put(domain.PaymentStatusApproved, 9000)
	put(domain.PaymentStatusDisputed, 9000)

	total, err := svc.AvailableFunds(context.Background(), professionalID)
	if err != nil {
		t.Fatalf("AvailableFunds returned error: %v", err)
	}
	if total != 13500 {
		t.Fatalf("expected 13500 available, got %d", total)
	}
}

func TestHandleProviderNotification_RoutesByStatus(t *testing.T) {
	payments := newStubPaymentRepo()
	provider := &stubProvider{}
	svc := newTestService(payments, &stubEventRepo{}, newStubBookingRepo(), provider, &stubProducer{})

	payment := &domain.Payment{ID: uuid.New(), TotalAmount: 1000, Status: domain.PaymentStatusPending}
	payments.put(payment)
	provider.payment = &mercadopago.PaymentResponse{
		ID:                42,
		Status:            mercadopago.StatusApproved,
		ExternalReference: payment.ID.String(),
	}

	if err := svc.HandleProviderNotification(context.Background(), "payment", "42"); err != nil {
		t.Fatalf("HandleProviderNotification returned error: %v", err)
	}
	got, _ := payments.FindPaymentByID(context.Background(), payment.ID)
	if got.Status != domain.PaymentStatusApproved {
		t.Fatalf("expected approved after webhook, got %s", got.Status)
	}

	// Non-payment notification types are ignored without a provider call.
	before := provider.getCalls
	if err := svc.HandleProviderNotification(context.Background(), "merchant_order", "77"); err != nil {
		t.Fatalf("unexpected error for ignored type: %v", err)
	}
	if provider.getCalls != before {
		t.Fatal("ignored notification type should not hit the provider")
	}
}

func TestHandleProviderNotification_RejectionFailsPayment(t *testing.T) {
	payments := newStubPaymentRepo()
	provider := &stubProvider{}
	svc := newTestService(payments, &stubEventRepo{}, newStubBookingRepo(), provider, &stubProducer{})

	payment := &domain.Payment{ID: uuid.New(), TotalAmount: 1000, Status: domain.PaymentStatusPending}
	payments.put(payment)
	provider.payment = &mercadopago.PaymentResponse{
		ID:                43,
		Status:            mercadopago.StatusRejected,
		ExternalReference: payment.ID.String(),
	}

	if err := svc.HandleProviderNotification(context.Background(), "payment", "43"); err != nil {
		t.Fatalf("HandleProviderNotification returned error: %v", err)
	}
	got, _ := payments.FindPaymentByID(context.Background(), payment.ID)
	if got.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected failed after rejection, got %s", got.Status)
	}
}

func TestEventLoggingFailureDoesNotAbortOperation(t *testing.T) {
	payments := newStubPaymentRepo()
	events := &stubEventRepo{appendErr: errors.New("event store down")}
	svc := newTestService(payments, events, newStubBookingRepo(), &stubProvider{}, &stubProducer{})

	payment := &domain.Payment{ID: uuid.New(), TotalAmount: 1000, Status: domain.PaymentStatusApproved}
	payments.put(payment)

	released, performed, err := svc.ReleasePayment(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("release failed because of event logging: %v", err)
	}
	if !performed || released.Status != domain.PaymentStatusReleased {
		t.Fatalf("expected successful release despite event failure, got performed=%v status=%s", performed, released.Status)
	}
}
