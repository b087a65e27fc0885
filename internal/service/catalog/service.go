package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/repository"
	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
)

type Repository interface {
	GetEdition(ctx context.Context, id uuid.UUID) (*domain.Edition, error)
	ListActiveEditionsByKey(ctx context.Context, key string) ([]domain.Edition, error)
	ListSessions(ctx context.Context, editionID uuid.UUID) ([]domain.SessionWithOptions, error)
	DateOptionAvailability(ctx context.Context, ids []uuid.UUID) ([]domain.Availability, error)
	ListUpcomingEvents(ctx context.Context, now time.Time) ([]domain.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	EventAvailability(ctx context.Context, ids []uuid.UUID) ([]domain.Availability, error)
}

type Config struct {
	// HourlyRateCents prices collective editions by their total duration.
	HourlyRateCents int64
	Now             func() time.Time
}

type Service struct {
	repo  Repository
	cache *redisrepo.Cache
	cfg   Config
}

// New builds the catalog service. cache may be nil.
func New(repo Repository, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		repo:  repo,
		cache: cache,
		cfg:   cfg,
	}
}

// Programme is a resolved programme reference. The primary edition's catalog is
// promoted to the top level; Editions lists every active edition when the
// reference was a programme key.
type Programme struct {
	domain.EditionCatalog
	Editions []domain.EditionCatalog `json:"editions,omitempty"`
}

// Programme resolves ref (an edition UUID or a programme key) and assembles the
// catalog of every matching active edition with live availability.
//
// Returns:
//   - *Programme: the catalog when found.
//   - error: catalog.ErrEditionNotFound if nothing active matches ref.
func (s *Service) Programme(ctx context.Context, ref string) (*Programme, error) {
	const op = "service.catalog.Programme"

	editions, byKey, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	catalogs := make([]domain.EditionCatalog, len(editions))
	g, gCtx := errgroup.WithContext(ctx)
	for i := range editions {
		g.Go(func() error {
			c, err := s.assemble(gCtx, &editions[i])
			if err != nil {
				return err
			}
			catalogs[i] = *c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	p := &Programme{EditionCatalog: catalogs[0]}
	if byKey {
		p.Editions = catalogs
	}

	return p, nil
}

// ResolveEdition returns the active edition ref points at. A programme key
// resolves to its earliest active edition.
func (s *Service) ResolveEdition(ctx context.Context, ref string) (*domain.Edition, error) {
	const op = "service.catalog.ResolveEdition"

	editions, _, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &editions[0], nil
}

// ResolveEditionFor is ResolveEdition for a submission. When ref is a programme
// key with several active editions, the edition owning the first known choice
// wins, so choices taken from any listed edition register against it. Choices
// owned by no edition fall back to the earliest one.
func (s *Service) ResolveEditionFor(ctx context.Context, ref string, choices []uuid.UUID) (*domain.Edition, error) {
	const op = "service.catalog.ResolveEditionFor"

	editions, _, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if len(editions) == 1 || len(choices) == 0 {
		return &editions[0], nil
	}

	owner := make(map[uuid.UUID]int)
	for i := range editions {
		st, err := s.structure(ctx, &editions[i])
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		for _, id := range st.OptionIDs() {
			owner[id] = i
		}
	}

	for _, id := range choices {
		if i, ok := owner[id]; ok {
			return &editions[i], nil
		}
	}

	return &editions[0], nil
}

func (s *Service) resolve(ctx context.Context, ref string) ([]domain.Edition, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false, ErrEditionNotFound
	}

	if id, err := uuid.Parse(ref); err == nil {
		e, err := s.repo.GetEdition(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, false, ErrEditionNotFound
			}
			return nil, false, err
		}
		if !e.Active {
			return nil, false, ErrEditionNotFound
		}
		return []domain.Edition{*e}, false, nil
	}

	editions, err := s.repo.ListActiveEditionsByKey(ctx, ref)
	if err != nil {
		return nil, true, err
	}
	if len(editions) == 0 {
		return nil, true, ErrEditionNotFound
	}

	return editions, true, nil
}

// EditionCatalog assembles the catalog of a known edition, active or not.
func (s *Service) EditionCatalog(ctx context.Context, e *domain.Edition) (*domain.EditionCatalog, error) {
	const op = "service.catalog.EditionCatalog"

	c, err := s.assemble(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return c, nil
}

// LoadEdition assembles the catalog of an edition by ID regardless of its
// active flag.
func (s *Service) LoadEdition(ctx context.Context, id uuid.UUID) (*domain.EditionCatalog, error) {
	const op = "service.catalog.LoadEdition"

	e, err := s.repo.GetEdition(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEditionNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return s.EditionCatalog(ctx, e)
}

func (s *Service) structure(ctx context.Context, e *domain.Edition) (domain.EditionStructure, error) {
	sessions, err := s.cache.Sessions(ctx, e.ID, func(ctx context.Context) ([]domain.SessionWithOptions, error) {
		return s.repo.ListSessions(ctx, e.ID)
	})
	if err != nil {
		return domain.EditionStructure{}, err
	}

	return domain.EditionStructure{Edition: *e, Sessions: sessions}, nil
}

func (s *Service) assemble(ctx context.Context, e *domain.Edition) (*domain.EditionCatalog, error) {
	st, err := s.structure(ctx, e)
	if err != nil {
		return nil, err
	}

	list, err := s.repo.DateOptionAvailability(ctx, st.OptionIDs())
	if err != nil {
		return nil, err
	}
	idx := domain.IndexAvailability(list)

	out := &domain.EditionCatalog{Sessions: make([]domain.SessionView, 0, len(st.Sessions))}
	plain := make([]domain.Session, 0, len(st.Sessions))
	for _, sess := range st.Sessions {
		view := domain.SessionView{
			Session:     sess.Session,
			DateOptions: make([]domain.DateOptionWithAvailability, 0, len(sess.DateOptions)),
		}
		for _, o := range sess.DateOptions {
			a, ok := idx[o.ID]
			if !ok {
				a = domain.NewAvailability(o.ID, o.MaxCapacity, 0)
			}
			view.DateOptions = append(view.DateOptions, domain.DateOptionWithAvailability{
				DateOption: o,
				Counts:     a.Counts,
			})
		}
		out.Sessions = append(out.Sessions, view)
		plain = append(plain, sess.Session)
	}

	total := domain.TotalDuration(plain)
	summary := domain.EditionSummary{Edition: *e}
	if e.Type == domain.EditionCollective {
		summary.TotalDurationMinutes = total
		summary.PriceCents = domain.CollectivePrice(e.Type, total, s.cfg.HourlyRateCents)
	}
	out.Edition = summary

	return out, nil
}

// EditionAvailability returns fresh counts for every date option of the
// edition ref resolves to.
func (s *Service) EditionAvailability(ctx context.Context, ref string) (*domain.EditionAvailability, error) {
	const op = "service.catalog.EditionAvailability"

	e, err := s.ResolveEdition(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	st, err := s.structure(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	list, err := s.repo.DateOptionAvailability(ctx, st.OptionIDs())
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out := &domain.EditionAvailability{
		EditionID:    e.ID,
		Availability: make(map[uuid.UUID]domain.Counts, len(list)),
		Timestamp:    s.cfg.Now().UTC(),
	}
	for _, a := range list {
		out.Availability[a.UnitID] = a.Counts
	}

	return out, nil
}

// Availability computes counts for arbitrary date options. Unknown IDs are absent
// from the result.
func (s *Service) Availability(ctx context.Context, ids []uuid.UUID) (domain.AvailabilityIndex, error) {
	const op = "service.catalog.Availability"

	list, err := s.repo.DateOptionAvailability(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return domain.IndexAvailability(list), nil
}

// Events lists active upcoming events with their availability.
func (s *Service) Events(ctx context.Context) ([]domain.EventWithAvailability, error) {
	const op = "service.catalog.Events"

	events, err := s.repo.ListUpcomingEvents(ctx, s.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	ids := make([]uuid.UUID, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}

	list, err := s.repo.EventAvailability(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	idx := domain.IndexAvailability(list)

	out := make([]domain.EventWithAvailability, 0, len(events))
	for _, e := range events {
		a, ok := idx[e.ID]
		if !ok {
			a = domain.NewAvailability(e.ID, e.MaxCapacity, 0)
		}
		out = append(out, domain.EventWithAvailability{Event: e, Counts: a.Counts})
	}

	return out, nil
}

// Event returns an active, upcoming event with its availability.
//
// Returns:
//   - error: catalog.ErrEventNotFound if the event is missing or inactive.
//   - error: catalog.ErrEventPast if the event date has passed.
func (s *Service) Event(ctx context.Context, id uuid.UUID) (*domain.EventWithAvailability, error) {
	const op = "service.catalog.Event"

	e, err := s.LoadEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if !e.Active {
		return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
	}
	if e.Past(s.cfg.Now()) {
		return nil, fmt.Errorf("%s:%w", op, ErrEventPast)
	}

	list, err := s.repo.EventAvailability(ctx, []uuid.UUID{e.ID})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	a := domain.NewAvailability(e.ID, e.MaxCapacity, 0)
	if len(list) == 1 {
		a = list[0]
	}

	return &domain.EventWithAvailability{Event: *e, Counts: a.Counts}, nil
}

// LoadEvent returns an event regardless of its active flag or date.
func (s *Service) LoadEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	const op = "service.catalog.LoadEvent"

	e, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return e, nil
}
