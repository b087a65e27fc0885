package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/notify"
	"github.com/kirinyoku/studio-booking/internal/repository/memory"
	"github.com/kirinyoku/studio-booking/internal/service/catalog"
)

type fakeNotifier struct {
	mu         sync.Mutex
	dispatched []notify.Message
	sent       []notify.Message
	sendErr    error
}

func (n *fakeNotifier) Dispatch(msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dispatched = append(n.dispatched, msg)
	return nil
}

func (n *fakeNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sent = append(n.sent, msg)
	return nil
}

var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *memory.Store
	notifier *fakeNotifier
	edition  *domain.Edition
	option   uuid.UUID
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	e, err := store.CreateEdition(ctx, domain.EditionDraft{
		ProgrammeKey: "upa",
		Title:        "Upa Yoga",
		StartDate:    fixedNow.AddDate(0, 1, 0),
		Active:       true,
		Type:         domain.EditionCollective,
		Sessions: []domain.SessionDraft{{Number: 1, Title: "Only", DateOptions: []domain.DateOptionDraft{
			{DateTime: fixedNow.AddDate(0, 1, 0), Location: "Studio", MaxCapacity: capacity},
		}}},
	})
	require.NoError(t, err)
	sessions, err := store.ListSessions(ctx, e.ID)
	require.NoError(t, err)

	n := &fakeNotifier{}
	svc := New(store, catalog.New(store, nil, catalog.Config{}), n, nil, nil, Config{
		AccountHolder:   "Studio",
		IBAN:            "BE71 0961 2345 6769",
		ReferencePrefix: "REG-",
		Now:             func() time.Time { return fixedNow },
	})

	return &fixture{svc: svc, store: store, notifier: n, edition: e, option: sessions[0].DateOptions[0].ID}
}

func (f *fixture) register(t *testing.T) *domain.Registration {
	t.Helper()
	reg := &domain.Registration{
		EditionID:     f.edition.ID,
		Contact:       domain.Contact{FirstName: "Alice", LastName: "Doe", Email: "alice@example.com"},
		Consent:       true,
		DateOptionIDs: []uuid.UUID{f.option},
	}
	require.NoError(t, f.store.CreateEditionRegistration(context.Background(), reg))
	return reg
}

func status(s domain.RegistrationStatus) domain.RegistrationUpdate {
	return domain.RegistrationUpdate{Status: &s}
}

func TestService_UpdateRegistration_ConfirmationSentOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	reg := f.register(t)

	got, err := f.svc.UpdateRegistration(ctx, reg.ID, status(domain.StatusConfirmed))
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, got.Status)
	require.Len(t, f.notifier.dispatched, 1)
	msg := f.notifier.dispatched[0]
	require.Equal(t, notify.KindRegistrationConfirmed, msg.Kind)
	require.Equal(t, "alice@example.com", msg.To)
	data := msg.Data.(notify.RegistrationData)
	require.Len(t, data.Dates, 1)
	require.Equal(t, "Only", data.Dates[0].Session)

	_, err = f.svc.UpdateRegistration(ctx, reg.ID, status(domain.StatusConfirmed))
	require.NoError(t, err)

	notes := "paid cash"
	_, err = f.svc.UpdateRegistration(ctx, reg.ID, domain.RegistrationUpdate{AdminNotes: &notes})
	require.NoError(t, err)

	_, err = f.svc.UpdateRegistration(ctx, reg.ID, status(domain.StatusPending))
	require.NoError(t, err)
	require.Len(t, f.notifier.dispatched, 1)
}

func TestService_UpdateRegistration_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	reg := f.register(t)

	_, err := f.svc.UpdateRegistration(ctx, reg.ID, domain.RegistrationUpdate{})
	require.ErrorIs(t, err, ErrNothingToUpdate)

	_, err = f.svc.UpdateRegistration(ctx, uuid.New(), status(domain.StatusCancelled))
	require.ErrorIs(t, err, ErrRegistrationNotFound)

	_, err = f.svc.UpdateRegistration(ctx, reg.ID, status(domain.StatusCancelled))
	require.NoError(t, err)
	f.register(t)

	_, err = f.svc.UpdateRegistration(ctx, reg.ID, status(domain.StatusConfirmed))
	var capErr *CapacityConflictError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, []uuid.UUID{f.option}, capErr.UnitIDs)

	got, err := f.svc.Registration(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, got.Status)
}

func TestService_RequestPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	reg := f.register(t)

	got, err := f.svc.RequestPayment(ctx, reg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentRequestedAt)
	require.True(t, got.PaymentRequestedAt.Equal(fixedNow))
	require.Equal(t, domain.StatusPending, got.Status)

	require.Len(t, f.notifier.sent, 1)
	data := f.notifier.sent[0].Data.(notify.RegistrationData)
	require.Equal(t, notify.KindPaymentRequest, f.notifier.sent[0].Kind)
	require.Equal(t, "BE71 0961 2345 6769", data.Payment.IBAN)
	require.Len(t, data.Payment.Reference, len("REG-")+8)
	require.Regexp(t, `^REG-[0-9A-F]{8}$`, data.Payment.Reference)

	stored, err := f.svc.Registration(ctx, reg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentRequestedAt)
}

func TestService_RequestPayment_Repeated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	reg := f.register(t)

	_, err := f.svc.UpdateRegistration(ctx, reg.ID, status(domain.StatusConfirmed))
	require.NoError(t, err)

	now := fixedNow
	f.svc.cfg.Now = func() time.Time { return now }

	_, err = f.svc.RequestPayment(ctx, reg.ID)
	require.NoError(t, err)

	now = fixedNow.Add(72 * time.Hour)
	_, err = f.svc.RequestPayment(ctx, reg.ID)
	require.NoError(t, err)

	require.Len(t, f.notifier.sent, 2)
	for _, msg := range f.notifier.sent {
		require.Equal(t, notify.KindPaymentRequest, msg.Kind)
		require.Equal(t, "alice@example.com", msg.To)
	}

	stored, err := f.svc.Registration(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, stored.Status)
	require.Equal(t, []uuid.UUID{f.option}, stored.DateOptionIDs)
	require.NotNil(t, stored.PaymentRequestedAt)
	require.True(t, stored.PaymentRequestedAt.Equal(now))
}

func TestService_RequestPayment_NotificationFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	reg := f.register(t)
	f.notifier.sendErr = errors.New("ses throttled")

	_, err := f.svc.RequestPayment(ctx, reg.ID)
	require.ErrorIs(t, err, ErrNotificationFailed)

	stored, err := f.svc.Registration(ctx, reg.ID)
	require.NoError(t, err)
	require.Nil(t, stored.PaymentRequestedAt)
}

func TestService_DeleteRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	reg := f.register(t)

	require.NoError(t, f.svc.DeleteRegistration(ctx, reg.ID))
	require.ErrorIs(t, f.svc.DeleteRegistration(ctx, reg.ID), ErrRegistrationNotFound)

	regs, err := f.svc.Registrations(ctx, f.edition.ID)
	require.NoError(t, err)
	require.Empty(t, regs)
}

func TestService_EventRegistrationLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	price := int64(2000)
	ev := &domain.Event{Title: "Satsang", DateTime: fixedNow.Add(48 * time.Hour), MaxCapacity: 1, PriceCents: &price, Active: true}
	require.NoError(t, f.store.CreateEvent(ctx, ev))
	reg := &domain.EventRegistration{EventID: ev.ID, Contact: domain.Contact{Email: "bob@example.com"}, Consent: true}
	require.NoError(t, f.store.CreateEventRegistration(ctx, reg))

	_, err := f.svc.UpdateEventRegistration(ctx, reg.ID, status(domain.StatusConfirmed))
	require.NoError(t, err)
	require.Len(t, f.notifier.dispatched, 1)

	got, err := f.svc.RequestEventPayment(ctx, reg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentRequestedAt)
	data := f.notifier.sent[0].Data.(notify.RegistrationData)
	require.Equal(t, &price, data.PriceCents)

	list, err := f.svc.EventRegistrations(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, f.svc.DeleteEventRegistration(ctx, reg.ID))
	_, err = f.svc.EventRegistration(ctx, reg.ID)
	require.ErrorIs(t, err, ErrRegistrationNotFound)
}
