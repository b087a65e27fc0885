package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/notify"
	"github.com/kirinyoku/studio-booking/internal/repository"
	"github.com/kirinyoku/studio-booking/internal/repository/memory"
	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
	"github.com/kirinyoku/studio-booking/internal/service/catalog"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Dispatch(msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, len(n.msgs))
	for i, m := range n.msgs {
		out[i] = m.Kind
	}
	return out
}

type recordingFeed struct {
	mu     sync.Mutex
	scopes []string
}

func (f *recordingFeed) Publish(_ context.Context, scope string, _ uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, scope)
	return nil
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, scope, subject string) (redisrepo.Decision, error) {
	l.keys = append(l.keys, scope+":"+subject)
	return redisrepo.Decision{Allowed: l.allow, RetryAfter: 30 * time.Second}, l.err
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	notifier *recordingNotifier
	feed     *recordingFeed
	edition  *domain.Edition
	sessions []domain.SessionWithOptions
}

func newFixture(t *testing.T, capacity int, mandatory bool, limiter Limiter) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	e, err := store.CreateEdition(ctx, domain.EditionDraft{
		ProgrammeKey:      "upa-yoga",
		Title:             "Upa Yoga",
		StartDate:         time.Now().Add(24 * time.Hour),
		Active:            true,
		SessionsMandatory: mandatory,
		Type:              domain.EditionCollective,
		Sessions: []domain.SessionDraft{
			{Number: 1, Title: "First", DateOptions: []domain.DateOptionDraft{
				{DateTime: time.Now().Add(24 * time.Hour), Location: "Studio", MaxCapacity: capacity},
				{DateTime: time.Now().Add(48 * time.Hour), Location: "Studio", MaxCapacity: capacity},
			}},
			{Number: 2, Title: "Second", DateOptions: []domain.DateOptionDraft{
				{DateTime: time.Now().Add(72 * time.Hour), Location: "Park", MaxCapacity: capacity},
			}},
		},
	})
	require.NoError(t, err)

	sessions, err := store.ListSessions(ctx, e.ID)
	require.NoError(t, err)

	n := &recordingNotifier{}
	f := &recordingFeed{}
	svc := New(Deps{
		Repo:     store,
		Catalog:  catalog.New(store, nil, catalog.Config{HourlyRateCents: 1500}),
		Notifier: n,
		Feed:     f,
		Limiter:  limiter,
	}, Config{OwnerEmail: "owner@example.com"})

	return &fixture{svc: svc, store: store, notifier: n, feed: f, edition: e, sessions: sessions}
}

func (f *fixture) option(session, index int) uuid.UUID {
	return f.sessions[session].DateOptions[index].ID
}

func person(first string) ContactInput {
	return ContactInput{
		FirstName: first,
		LastName:  "Doe",
		Email:     first + "@example.com",
		Phone:     "+32 470 00 00 00",
		Consent:   true,
	}
}

func TestService_RegisterForEdition_FillsUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2, false, nil)
	opt := f.option(0, 0)

	for _, name := range []string{"alice", "bob"} {
		id, err := f.svc.RegisterForEdition(ctx, "upa-yoga", EditionInput{
			ContactInput: person(name),
			DateChoices:  []uuid.UUID{opt},
		}, "")
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, id)
	}

	_, err := f.svc.RegisterForEdition(ctx, "upa-yoga", EditionInput{
		ContactInput: person("carol"),
		DateChoices:  []uuid.UUID{opt},
	}, "")
	var capErr *CapacityConflictError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, []uuid.UUID{opt}, capErr.UnitIDs)
	require.Equal(t, 2, f.store.RegistrationCount())

	require.Equal(t, []notify.Kind{
		notify.KindRegistrationOwner, notify.KindRegistrationReceived,
		notify.KindRegistrationOwner, notify.KindRegistrationReceived,
	}, f.notifier.kinds())
	require.Len(t, f.feed.scopes, 2)
}

func TestService_RegisterForEdition_ConcurrentNeverOverbooks(t *testing.T) {
	ctx := context.Background()
	const capacity, extra = 5, 7
	f := newFixture(t, capacity, false, nil)
	opt := f.option(1, 0)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := 0; i < capacity+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RegisterForEdition(ctx, f.edition.ID.String(), EditionInput{
				ContactInput: person("p"),
				DateChoices:  []uuid.UUID{opt},
			}, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCapacityConflict):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, capacity, ok)
	require.Equal(t, extra, full)

	av, err := f.store.DateOptionAvailability(ctx, []uuid.UUID{opt})
	require.NoError(t, err)
	require.Equal(t, capacity, av[0].CurrentCount)
}

func TestService_RegisterForEdition_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		mandatory bool
		input     func(f *fixture) EditionInput
		wantError error
	}{
		{
			name: "missing consent",
			input: func(f *fixture) EditionInput {
				in := person("a")
				in.Consent = false
				return EditionInput{ContactInput: in, DateChoices: []uuid.UUID{f.option(0, 0)}}
			},
			wantError: ErrInvalidInput,
		},
		{
			name: "bad email",
			input: func(f *fixture) EditionInput {
				in := person("a")
				in.Email = "not-an-email"
				return EditionInput{ContactInput: in, DateChoices: []uuid.UUID{f.option(0, 0)}}
			},
			wantError: ErrInvalidInput,
		},
		{
			name: "no choices",
			input: func(*fixture) EditionInput {
				return EditionInput{ContactInput: person("a")}
			},
			wantError: ErrInvalidInput,
		},
		{
			name: "duplicate choice",
			input: func(f *fixture) EditionInput {
				return EditionInput{ContactInput: person("a"), DateChoices: []uuid.UUID{f.option(0, 0), f.option(0, 0)}}
			},
			wantError: ErrInvalidInput,
		},
		{
			name: "foreign option",
			input: func(*fixture) EditionInput {
				return EditionInput{ContactInput: person("a"), DateChoices: []uuid.UUID{uuid.New()}}
			},
			wantError: ErrInvalidInput,
		},
		{
			name: "two dates for one session",
			input: func(f *fixture) EditionInput {
				return EditionInput{ContactInput: person("a"), DateChoices: []uuid.UUID{f.option(0, 0), f.option(0, 1)}}
			},
			wantError: ErrInvalidInput,
		},
		{
			name:      "mandatory session skipped",
			mandatory: true,
			input: func(f *fixture) EditionInput {
				return EditionInput{ContactInput: person("a"), DateChoices: []uuid.UUID{f.option(0, 0)}}
			},
			wantError: ErrInvalidInput,
		},
		{
			name:      "mandatory sessions covered",
			mandatory: true,
			input: func(f *fixture) EditionInput {
				return EditionInput{ContactInput: person("a"), DateChoices: []uuid.UUID{f.option(0, 1), f.option(1, 0)}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 3, tt.mandatory, nil)
			_, err := f.svc.RegisterForEdition(ctx, "upa-yoga", tt.input(f), "")
			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				require.Zero(t, f.store.RegistrationCount())
				require.Empty(t, f.notifier.kinds())
				return
			}
			require.NoError(t, err)
			require.Equal(t, 1, f.store.RegistrationCount())
		})
	}
}

func TestService_RegisterForEdition_UnknownEdition(t *testing.T) {
	f := newFixture(t, 1, false, nil)

	_, err := f.svc.RegisterForEdition(context.Background(), "missing", EditionInput{
		ContactInput: person("a"),
		DateChoices:  []uuid.UUID{f.option(0, 0)},
	}, "")
	require.ErrorIs(t, err, ErrEditionNotFound)
}

func TestService_RegisterForEdition_LaterEditionByKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3, false, nil)

	later, err := f.store.CreateEdition(ctx, domain.EditionDraft{
		ProgrammeKey: "upa-yoga",
		Title:        "Upa Yoga (autumn)",
		StartDate:    time.Now().Add(30 * 24 * time.Hour),
		Active:       true,
		Type:         domain.EditionCollective,
		Sessions: []domain.SessionDraft{
			{Number: 1, Title: "First", DateOptions: []domain.DateOptionDraft{
				{DateTime: time.Now().Add(31 * 24 * time.Hour), Location: "Studio", MaxCapacity: 3},
			}},
		},
	})
	require.NoError(t, err)
	sessions, err := f.store.ListSessions(ctx, later.ID)
	require.NoError(t, err)
	laterOpt := sessions[0].DateOptions[0].ID

	id, err := f.svc.RegisterForEdition(ctx, "upa-yoga", EditionInput{
		ContactInput: person("alice"),
		DateChoices:  []uuid.UUID{laterOpt},
	}, "")
	require.NoError(t, err)

	reg, err := f.store.GetRegistration(ctx, id)
	require.NoError(t, err)
	require.Equal(t, later.ID, reg.EditionID)

	id, err = f.svc.RegisterForEdition(ctx, "upa-yoga", EditionInput{
		ContactInput: person("bob"),
		DateChoices:  []uuid.UUID{f.option(0, 0)},
	}, "")
	require.NoError(t, err)
	reg, err = f.store.GetRegistration(ctx, id)
	require.NoError(t, err)
	require.Equal(t, f.edition.ID, reg.EditionID)

	_, err = f.svc.RegisterForEdition(ctx, "upa-yoga", EditionInput{
		ContactInput: person("carol"),
		DateChoices:  []uuid.UUID{laterOpt, f.option(1, 0)},
	}, "")
	require.ErrorIs(t, err, ErrInvalidInput, "choices spanning two editions")
	require.Equal(t, 2, f.store.RegistrationCount())
}

// missingOptionRepo answers every edition write as if a chosen option had
// been deleted after the availability check.
type missingOptionRepo struct {
	Repository
}

func (missingOptionRepo) CreateEditionRegistration(context.Context, *domain.Registration) error {
	return fmt.Errorf("memory.Store.CreateEditionRegistration:%w", repository.ErrNotFound)
}

func TestService_RegisterForEdition_OptionRemovedBeforeWrite(t *testing.T) {
	f := newFixture(t, 3, false, nil)
	f.svc.repo = missingOptionRepo{Repository: f.store}

	_, err := f.svc.RegisterForEdition(context.Background(), f.edition.ID.String(), EditionInput{
		ContactInput: person("a"),
		DateChoices:  []uuid.UUID{f.option(0, 0)},
	}, "")
	require.ErrorIs(t, err, ErrInvalidInput)
	require.NotErrorIs(t, err, ErrEditionNotFound)
	require.Empty(t, f.notifier.kinds())
}

func TestService_RegisterForEdition_RollsBackFailedChoices(t *testing.T) {
	f := newFixture(t, 3, false, nil)
	f.store.FailChoiceWrites(errors.New("disk on fire"))

	_, err := f.svc.RegisterForEdition(context.Background(), "upa-yoga", EditionInput{
		ContactInput: person("a"),
		DateChoices:  []uuid.UUID{f.option(0, 0)},
	}, "")
	require.ErrorIs(t, err, ErrWriteFailed)
	require.Zero(t, f.store.RegistrationCount())
	require.Empty(t, f.notifier.kinds())
}

func TestService_RateLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked", func(t *testing.T) {
		l := &stubLimiter{allow: false}
		f := newFixture(t, 3, false, l)

		_, err := f.svc.RegisterForEdition(ctx, "upa-yoga", EditionInput{
			ContactInput: person("a"),
			DateChoices:  []uuid.UUID{f.option(0, 0)},
		}, "ip:1.2.3.4")
		var rl *RateLimitedError
		require.ErrorAs(t, err, &rl)
		require.Equal(t, 30*time.Second, rl.RetryAfter)
		require.Equal(t, []string{"register:ip:1.2.3.4"}, l.keys)
	})

	t.Run("limiter failure lets the request through", func(t *testing.T) {
		l := &stubLimiter{err: errors.New("redis down")}
		f := newFixture(t, 3, false, l)

		_, err := f.svc.RegisterForEdition(ctx, "upa-yoga", EditionInput{
			ContactInput: person("a"),
			DateChoices:  []uuid.UUID{f.option(0, 0)},
		}, "ip:1.2.3.4")
		require.NoError(t, err)
	})
}

func TestService_RegisterForEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, false, nil)

	ev := &domain.Event{Title: "Satsang", DateTime: time.Now().Add(time.Hour), MaxCapacity: 1, Active: true}
	past := &domain.Event{Title: "Old", DateTime: time.Now().Add(-time.Hour), MaxCapacity: 1, Active: true}
	require.NoError(t, f.store.CreateEvent(ctx, ev))
	require.NoError(t, f.store.CreateEvent(ctx, past))

	id, err := f.svc.RegisterForEvent(ctx, ev.ID, person("a"), "")
	require.NoError(t, err)
	reg, err := f.store.GetEventRegistration(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, reg.Status)

	_, err = f.svc.RegisterForEvent(ctx, ev.ID, person("b"), "")
	require.ErrorIs(t, err, ErrCapacityConflict)

	_, err = f.svc.RegisterForEvent(ctx, past.ID, person("b"), "")
	require.ErrorIs(t, err, ErrEventPast)

	_, err = f.svc.RegisterForEvent(ctx, uuid.New(), person("b"), "")
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestService_RegisterForEvent_ConcurrentNeverOverbooks(t *testing.T) {
	ctx := context.Background()
	const capacity, extra = 4, 6
	f := newFixture(t, 1, false, nil)

	ev := &domain.Event{Title: "Kirtan", DateTime: time.Now().Add(48 * time.Hour), MaxCapacity: capacity, Active: true}
	require.NoError(t, f.store.CreateEvent(ctx, ev))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := 0; i < capacity+extra; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RegisterForEvent(ctx, ev.ID, person("p"), "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCapacityConflict):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, capacity, ok)
	require.Equal(t, extra, full)

	av, err := f.store.EventAvailability(ctx, []uuid.UUID{ev.ID})
	require.NoError(t, err)
	require.Equal(t, capacity, av[0].CurrentCount)
	require.True(t, av[0].IsFull)
}
