package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/repository"
	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
)

type Repository interface {
	ListEditions(ctx context.Context) ([]domain.Edition, error)
	CreateEdition(ctx context.Context, draft domain.EditionDraft) (*domain.Edition, error)
	UpdateEdition(ctx context.Context, id uuid.UUID, upd domain.EditionUpdate) (*domain.Edition, error)
	DeleteEdition(ctx context.Context, id uuid.UUID) error
	DateOptionEdition(ctx context.Context, optionID uuid.UUID) (*domain.Edition, error)
	UpdateDateOption(ctx context.Context, id uuid.UUID, upd domain.DateOptionUpdate) (*domain.DateOption, error)

	ListEvents(ctx context.Context) ([]domain.Event, error)
	CreateEvent(ctx context.Context, ev *domain.Event) error
	UpdateEvent(ctx context.Context, id uuid.UUID, upd domain.EventUpdate) (*domain.Event, error)
	DeleteEvent(ctx context.Context, id uuid.UUID) error
}

type Publisher interface {
	Publish(ctx context.Context, scope string, id uuid.UUID) error
}

type Service struct {
	repo   Repository
	cache  *redisrepo.Cache
	feed   Publisher
	logger *slog.Logger
}

// New builds the back-office service. cache and feed may be nil.
func New(repo Repository, cache *redisrepo.Cache, feed Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:   repo,
		cache:  cache,
		feed:   feed,
		logger: logger,
	}
}

func (s *Service) Editions(ctx context.Context) ([]domain.Edition, error) {
	const op = "service.admin.Editions"

	editions, err := s.repo.ListEditions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return editions, nil
}

// CreateEdition creates an edition together with its sessions and date options.
//
// Parameters:
//   - ctx: request-scoped context.
//   - draft: edition metadata with nested sessions and their date options.
//
// Returns:
//   - *domain.Edition: the stored edition.
//   - error: admin.ErrInvalidInput if the draft is incomplete.
//   - error: admin.ErrConflict if two sessions share a number.
func (s *Service) CreateEdition(ctx context.Context, draft domain.EditionDraft) (*domain.Edition, error) {
	const op = "service.admin.CreateEdition"

	draft.ProgrammeKey = strings.TrimSpace(draft.ProgrammeKey)
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Type == "" {
		draft.Type = domain.EditionCollective
	}

	if problems := validateDraft(draft); len(problems) > 0 {
		return nil, fmt.Errorf("%s:%w", op, &ValidationError{Problems: problems})
	}

	e, err := s.repo.CreateEdition(ctx, draft)
	if err != nil {
		return nil, mapErr(op, err, ErrEditionNotFound)
	}

	return e, nil
}

func validateDraft(d domain.EditionDraft) []string {
	var problems []string

	if d.ProgrammeKey == "" {
		problems = append(problems, "programme key is required")
	}
	if d.Title == "" {
		problems = append(problems, "title is required")
	}
	if d.StartDate.IsZero() {
		problems = append(problems, "start date is required")
	}
	if d.MaxCapacity < 0 {
		problems = append(problems, "max capacity must not be negative")
	}
	if !d.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown edition type %q", d.Type))
	}

	for _, sd := range d.Sessions {
		if sd.Number < 1 {
			problems = append(problems, "session number must be positive")
		}
		if strings.TrimSpace(sd.Title) == "" {
			problems = append(problems, fmt.Sprintf("session %d: title is required", sd.Number))
		}
		if sd.DurationMinutes != nil && *sd.DurationMinutes <= 0 {
			problems = append(problems, fmt.Sprintf("session %d: duration must be positive", sd.Number))
		}
		for _, od := range sd.DateOptions {
			if od.DateTime.IsZero() {
				problems = append(problems, fmt.Sprintf("session %d: date option needs a date", sd.Number))
			}
			if od.MaxCapacity < 1 {
				problems = append(problems, fmt.Sprintf("session %d: date option capacity must be positive", sd.Number))
			}
		}
	}

	return problems
}

func (s *Service) UpdateEdition(ctx context.Context, id uuid.UUID, upd domain.EditionUpdate) (*domain.Edition, error) {
	const op = "service.admin.UpdateEdition"

	if upd == (domain.EditionUpdate{}) {
		return nil, fmt.Errorf("%s:%w", op, ErrNothingToUpdate)
	}

	var problems []string
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		problems = append(problems, "title must not be empty")
	}
	if upd.MaxCapacity != nil && *upd.MaxCapacity < 0 {
		problems = append(problems, "max capacity must not be negative")
	}
	if upd.Type != nil && !upd.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown edition type %q", *upd.Type))
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s:%w", op, &ValidationError{Problems: problems})
	}

	e, err := s.repo.UpdateEdition(ctx, id, upd)
	if err != nil {
		return nil, mapErr(op, err, ErrEditionNotFound)
	}

	s.invalidate(ctx, id)

	return e, nil
}

// ArchiveEdition deactivates an edition. Its registrations are kept.
func (s *Service) ArchiveEdition(ctx context.Context, id uuid.UUID) (*domain.Edition, error) {
	inactive := false
	return s.UpdateEdition(ctx, id, domain.EditionUpdate{Active: &inactive})
}

// DeleteEdition removes an edition with its sessions, date options,
// registrations and date choices.
func (s *Service) DeleteEdition(ctx context.Context, id uuid.UUID) error {
	const op = "service.admin.DeleteEdition"

	if err := s.repo.DeleteEdition(ctx, id); err != nil {
		return mapErr(op, err, ErrEditionNotFound)
	}

	s.invalidate(ctx, id)
	s.publish(ctx, redisrepo.ScopeEdition, id)

	return nil
}

func (s *Service) UpdateDateOption(ctx context.Context, id uuid.UUID, upd domain.DateOptionUpdate) (*domain.DateOption, error) {
	const op = "service.admin.UpdateDateOption"

	if upd == (domain.DateOptionUpdate{}) {
		return nil, fmt.Errorf("%s:%w", op, ErrNothingToUpdate)
	}
	if upd.MaxCapacity != nil && *upd.MaxCapacity < 1 {
		return nil, fmt.Errorf("%s:%w", op, &ValidationError{Problems: []string{"capacity must be positive"}})
	}

	edition, err := s.repo.DateOptionEdition(ctx, id)
	if err != nil {
		return nil, mapErr(op, err, ErrDateOptionNotFound)
	}

	opt, err := s.repo.UpdateDateOption(ctx, id, upd)
	if err != nil {
		return nil, mapErr(op, err, ErrDateOptionNotFound)
	}

	s.invalidate(ctx, edition.ID)
	if upd.MaxCapacity != nil {
		s.publish(ctx, redisrepo.ScopeEdition, edition.ID)
	}

	return opt, nil
}

func (s *Service) Events(ctx context.Context) ([]domain.Event, error) {
	const op = "service.admin.Events"

	events, err := s.repo.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return events, nil
}

func (s *Service) CreateEvent(ctx context.Context, ev domain.Event) (*domain.Event, error) {
	const op = "service.admin.CreateEvent"

	ev.Title = strings.TrimSpace(ev.Title)

	var problems []string
	if ev.Title == "" {
		problems = append(problems, "title is required")
	}
	if ev.DateTime.IsZero() {
		problems = append(problems, "date is required")
	}
	if ev.MaxCapacity < 1 {
		problems = append(problems, "capacity must be positive")
	}
	if ev.PriceCents != nil && *ev.PriceCents < 0 {
		problems = append(problems, "price must not be negative")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s:%w", op, &ValidationError{Problems: problems})
	}

	if err := s.repo.CreateEvent(ctx, &ev); err != nil {
		return nil, mapErr(op, err, ErrEventNotFound)
	}

	return &ev, nil
}

func (s *Service) UpdateEvent(ctx context.Context, id uuid.UUID, upd domain.EventUpdate) (*domain.Event, error) {
	const op = "service.admin.UpdateEvent"

	if upd == (domain.EventUpdate{}) {
		return nil, fmt.Errorf("%s:%w", op, ErrNothingToUpdate)
	}

	var problems []string
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		problems = append(problems, "title must not be empty")
	}
	if upd.MaxCapacity != nil && *upd.MaxCapacity < 1 {
		problems = append(problems, "capacity must be positive")
	}
	if upd.PriceCents != nil && *upd.PriceCents < 0 {
		problems = append(problems, "price must not be negative")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s:%w", op, &ValidationError{Problems: problems})
	}

	ev, err := s.repo.UpdateEvent(ctx, id, upd)
	if err != nil {
		return nil, mapErr(op, err, ErrEventNotFound)
	}

	if upd.MaxCapacity != nil || upd.Active != nil {
		s.publish(ctx, redisrepo.ScopeEvent, id)
	}

	return ev, nil
}

func (s *Service) ArchiveEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	inactive := false
	return s.UpdateEvent(ctx, id, domain.EventUpdate{Active: &inactive})
}

// DeleteEvent removes an event and its registrations.
func (s *Service) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	const op = "service.admin.DeleteEvent"

	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		return mapErr(op, err, ErrEventNotFound)
	}

	s.publish(ctx, redisrepo.ScopeEvent, id)

	return nil
}

func mapErr(op string, err error, notFound error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s:%w", op, notFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s:%w", op, ErrConflict)
	default:
		return fmt.Errorf("%s:%w", op, err)
	}
}

func (s *Service) invalidate(ctx context.Context, editionID uuid.UUID) {
	if err := s.cache.InvalidateEdition(ctx, editionID); err != nil {
		s.logger.Warn("catalog cache invalidation failed", "edition_id", editionID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, scope string, id uuid.UUID) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, scope, id); err != nil {
		s.logger.Warn("availability publish failed", "scope", scope, "id", id, "error", err)
	}
}
