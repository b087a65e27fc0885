package admin

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/repository/memory"
	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
)

type countingFeed struct {
	published []uuid.UUID
}

func (f *countingFeed) Publish(_ context.Context, _ string, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func validDraft() domain.EditionDraft {
	return domain.EditionDraft{
		ProgrammeKey: " upa ",
		Title:        "Upa Yoga",
		StartDate:    time.Now().AddDate(0, 1, 0),
		Active:       true,
		Sessions: []domain.SessionDraft{{
			Number: 1,
			Title:  "Intro",
			DateOptions: []domain.DateOptionDraft{
				{DateTime: time.Now().AddDate(0, 1, 0), Location: "Studio", MaxCapacity: 8},
			},
		}},
	}
}

func TestService_CreateEdition(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		mutate    func(d *domain.EditionDraft)
		wantError error
	}{
		{name: "valid", mutate: func(*domain.EditionDraft) {}},
		{name: "missing key", mutate: func(d *domain.EditionDraft) { d.ProgrammeKey = "  " }, wantError: ErrInvalidInput},
		{name: "missing start", mutate: func(d *domain.EditionDraft) { d.StartDate = time.Time{} }, wantError: ErrInvalidInput},
		{name: "bad type", mutate: func(d *domain.EditionDraft) { d.Type = "group" }, wantError: ErrInvalidInput},
		{name: "zero capacity option", mutate: func(d *domain.EditionDraft) { d.Sessions[0].DateOptions[0].MaxCapacity = 0 }, wantError: ErrInvalidInput},
		{
			name: "duplicate session number",
			mutate: func(d *domain.EditionDraft) {
				d.Sessions = append(d.Sessions, domain.SessionDraft{Number: 1, Title: "Again"})
			},
			wantError: ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(memory.New(), nil, nil, nil)
			d := validDraft()
			tt.mutate(&d)

			e, err := svc.CreateEdition(ctx, d)
			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "upa", e.ProgrammeKey)
			require.Equal(t, domain.EditionCollective, e.Type)
		})
	}
}

func TestService_ValidationListsEveryProblem(t *testing.T) {
	svc := New(memory.New(), nil, nil, nil)

	_, err := svc.CreateEdition(context.Background(), domain.EditionDraft{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 3)
}

func TestService_UpdateEdition(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cache := redisrepo.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	store := memory.New()
	svc := New(store, cache, nil, nil)

	e, err := svc.CreateEdition(ctx, validDraft())
	require.NoError(t, err)

	key := redisrepo.KeyEditionStructure(e.ID)
	require.NoError(t, mr.Set(key, "[]"))

	title := "Upa Yoga II"
	got, err := svc.UpdateEdition(ctx, e.ID, domain.EditionUpdate{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, got.Title)
	require.False(t, mr.Exists(key))

	_, err = svc.UpdateEdition(ctx, e.ID, domain.EditionUpdate{})
	require.ErrorIs(t, err, ErrNothingToUpdate)

	blank := " "
	_, err = svc.UpdateEdition(ctx, e.ID, domain.EditionUpdate{Title: &blank})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.UpdateEdition(ctx, uuid.New(), domain.EditionUpdate{Title: &title})
	require.ErrorIs(t, err, ErrEditionNotFound)

	archived, err := svc.ArchiveEdition(ctx, e.ID)
	require.NoError(t, err)
	require.False(t, archived.Active)
}

func TestService_UpdateDateOption(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	feed := &countingFeed{}
	svc := New(store, nil, feed, nil)

	e, err := svc.CreateEdition(ctx, validDraft())
	require.NoError(t, err)
	sessions, err := store.ListSessions(ctx, e.ID)
	require.NoError(t, err)
	optID := sessions[0].DateOptions[0].ID

	location := "Park"
	_, err = svc.UpdateDateOption(ctx, optID, domain.DateOptionUpdate{Location: &location})
	require.NoError(t, err)
	require.Empty(t, feed.published)

	capacity := 12
	opt, err := svc.UpdateDateOption(ctx, optID, domain.DateOptionUpdate{MaxCapacity: &capacity})
	require.NoError(t, err)
	require.Equal(t, 12, opt.MaxCapacity)
	require.Equal(t, []uuid.UUID{e.ID}, feed.published)

	zero := 0
	_, err = svc.UpdateDateOption(ctx, optID, domain.DateOptionUpdate{MaxCapacity: &zero})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.UpdateDateOption(ctx, uuid.New(), domain.DateOptionUpdate{Location: &location})
	require.ErrorIs(t, err, ErrDateOptionNotFound)
}

func TestService_DeleteEdition(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	feed := &countingFeed{}
	svc := New(store, nil, feed, nil)

	e, err := svc.CreateEdition(ctx, validDraft())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEdition(ctx, e.ID))
	require.ErrorIs(t, svc.DeleteEdition(ctx, e.ID), ErrEditionNotFound)
	require.Equal(t, []uuid.UUID{e.ID}, feed.published)

	list, err := svc.Editions(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestService_Events(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil, nil, nil)

	_, err := svc.CreateEvent(ctx, domain.Event{Title: " ", MaxCapacity: 0})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 3)

	ev, err := svc.CreateEvent(ctx, domain.Event{Title: "Kirtan", DateTime: time.Now().Add(time.Hour), MaxCapacity: 20, Active: true})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, ev.ID)

	archived, err := svc.ArchiveEvent(ctx, ev.ID)
	require.NoError(t, err)
	require.False(t, archived.Active)

	negative := int64(-1)
	_, err = svc.UpdateEvent(ctx, ev.ID, domain.EventUpdate{PriceCents: &negative})
	require.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, svc.DeleteEvent(ctx, ev.ID))
	require.ErrorIs(t, svc.DeleteEvent(ctx, ev.ID), ErrEventNotFound)

	list, err := svc.Events(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}
