package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/notify"
	"github.com/kirinyoku/studio-booking/internal/repository"
	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
	"github.com/kirinyoku/studio-booking/internal/service/catalog"
)

type Repository interface {
	CreateEditionRegistration(ctx context.Context, reg *domain.Registration) error
	CreateEventRegistration(ctx context.Context, reg *domain.EventRegistration) error
}

type Catalog interface {
	ResolveEditionFor(ctx context.Context, ref string, choices []uuid.UUID) (*domain.Edition, error)
	EditionCatalog(ctx context.Context, e *domain.Edition) (*domain.EditionCatalog, error)
	Event(ctx context.Context, id uuid.UUID) (*domain.EventWithAvailability, error)
}

type Notifier interface {
	Dispatch(msg notify.Message) error
}

type Publisher interface {
	Publish(ctx context.Context, scope string, id uuid.UUID) error
}

type Limiter interface {
	Allow(ctx context.Context, scope, subject string) (redisrepo.Decision, error)
}

type Config struct {
	// OwnerEmail receives a copy of every registration. Empty disables it.
	OwnerEmail string
}

type Deps struct {
	Repo     Repository
	Catalog  Catalog
	Notifier Notifier
	Feed     Publisher
	Limiter  Limiter
	Logger   *slog.Logger
}

type Service struct {
	repo     Repository
	catalog  Catalog
	notifier Notifier
	feed     Publisher
	limiter  Limiter
	validate *validator.Validate
	logger   *slog.Logger
	cfg      Config
}

func New(deps Deps, cfg Config) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:     deps.Repo,
		catalog:  deps.Catalog,
		notifier: deps.Notifier,
		feed:     deps.Feed,
		limiter:  deps.Limiter,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		cfg:      cfg,
	}
}

// ContactInput holds the participant fields of a submission.
type ContactInput struct {
	FirstName string `validate:"required,max=100"`
	LastName  string `validate:"required,max=100"`
	Email     string `validate:"required,email,max=254"`
	Phone     string `validate:"required,max=40"`
	WhatsApp  string `validate:"omitempty,max=40"`
	Message   string `validate:"omitempty,max=5000"`
	Consent   bool
}

type EditionInput struct {
	ContactInput
	DateChoices []uuid.UUID
}

func (in *ContactInput) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.WhatsApp = strings.TrimSpace(in.WhatsApp)
	in.Message = strings.TrimSpace(in.Message)
}

func (in ContactInput) contact() domain.Contact {
	return domain.Contact{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		WhatsApp:  optional(in.WhatsApp),
		Message:   optional(in.Message),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) validateContact(in *ContactInput) []string {
	in.normalize()

	var problems []string
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []string{err.Error()}
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	if !in.Consent {
		problems = append(problems, "consent must be given")
	}
	return problems
}

func (s *Service) allow(ctx context.Context, clientKey string) error {
	if s.limiter == nil || clientKey == "" {
		return nil
	}

	d, err := s.limiter.Allow(ctx, "register", clientKey)
	if err != nil {
		s.logger.Warn("rate limiter unavailable", "error", err)
		return nil
	}
	if !d.Allowed {
		return &RateLimitedError{RetryAfter: d.RetryAfter}
	}

	return nil
}

// RegisterForEdition validates a submission against the edition ref resolves
// to, re-checks availability and persists a pending registration with its date
// choices. Notifications are dispatched after the write and never fail it.
//
// Parameters:
//   - ctx: request-scoped context.
//   - ref: edition UUID or programme key.
//   - in: contact fields, consent and chosen date options.
//   - clientKey: rate-limit bucket of the caller; empty disables limiting.
//
// Returns:
//   - uuid.UUID: the new registration ID.
//   - error: registration.ErrInvalidInput, ErrEditionNotFound, ErrCapacityConflict,
//     ErrRateLimited or ErrWriteFailed.
func (s *Service) RegisterForEdition(ctx context.Context, ref string, in EditionInput, clientKey string) (uuid.UUID, error) {
	const op = "service.registration.RegisterForEdition"

	problems := s.validateContact(&in.ContactInput)
	if len(in.DateChoices) == 0 {
		problems = append(problems, "at least one date choice is required")
	}
	seen := make(map[uuid.UUID]bool, len(in.DateChoices))
	for _, id := range in.DateChoices {
		if id == uuid.Nil {
			problems = append(problems, "date choice must be a valid id")
			continue
		}
		if seen[id] {
			problems = append(problems, fmt.Sprintf("date choice %s submitted twice", id))
		}
		seen[id] = true
	}
	if len(problems) > 0 {
		return uuid.Nil, fmt.Errorf("%s:%w", op, &ValidationError{Problems: problems})
	}

	if err := s.allow(ctx, clientKey); err != nil {
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	edition, err := s.catalog.ResolveEditionFor(ctx, ref, in.DateChoices)
	if err != nil {
		if errors.Is(err, catalog.ErrEditionNotFound) {
			return uuid.Nil, fmt.Errorf("%s:%w", op, ErrEditionNotFound)
		}
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	cat, err := s.catalog.EditionCatalog(ctx, edition)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	lines, full, problems := checkChoices(cat, edition.SessionsMandatory, in.DateChoices)
	if len(problems) > 0 {
		return uuid.Nil, fmt.Errorf("%s:%w", op, &ValidationError{Problems: problems})
	}
	if len(full) > 0 {
		return uuid.Nil, fmt.Errorf("%s:%w", op, &CapacityConflictError{UnitIDs: full})
	}

	reg := &domain.Registration{
		EditionID:     edition.ID,
		Contact:       in.contact(),
		Consent:       in.Consent,
		DateOptionIDs: in.DateChoices,
	}
	if err := s.repo.CreateEditionRegistration(ctx, reg); err != nil {
		// The edition was resolved above, so a missing row here is a date
		// option removed since the availability check.
		gone := &ValidationError{Problems: []string{"a chosen date is no longer offered"}}
		return uuid.Nil, fmt.Errorf("%s:%w", op, mapWriteErr(err, gone))
	}

	s.publish(ctx, redisrepo.ScopeEdition, edition.ID)

	data := notify.NewRegistrationData(reg.ID, reg.Contact, edition.Title)
	data.Dates = lines
	data.PriceCents = cat.Edition.PriceCents
	s.notifyBoth(data)

	return reg.ID, nil
}

// checkChoices resolves every chosen option against the catalog. It returns the
// booked slots for notifications, the options already full and any problems
// with the selection itself.
func checkChoices(c *domain.EditionCatalog, mandatory bool, choices []uuid.UUID) ([]notify.DateLine, []uuid.UUID, []string) {
	var (
		lines    []notify.DateLine
		full     []uuid.UUID
		problems []string
	)

	perSession := make(map[uuid.UUID]int)
	for _, id := range choices {
		sess, opt, ok := c.DateOption(id)
		if !ok {
			problems = append(problems, fmt.Sprintf("date choice %s does not belong to this edition", id))
			continue
		}
		perSession[sess.ID]++
		if perSession[sess.ID] == 2 {
			problems = append(problems, fmt.Sprintf("more than one date chosen for session %d", sess.Number))
		}
		if opt.IsFull {
			full = append(full, id)
		}
		lines = append(lines, notify.DateLine{
			Session:  sess.Title,
			When:     opt.DateTime,
			Location: opt.Location,
		})
	}

	if mandatory {
		for _, sess := range c.Sessions {
			if perSession[sess.ID] == 0 {
				problems = append(problems, fmt.Sprintf("session %d requires a date choice", sess.Number))
			}
		}
	}

	return lines, full, problems
}

// RegisterForEvent validates a submission and persists a pending registration
// for an active, upcoming event with free capacity.
func (s *Service) RegisterForEvent(ctx context.Context, eventID uuid.UUID, in ContactInput, clientKey string) (uuid.UUID, error) {
	const op = "service.registration.RegisterForEvent"

	if problems := s.validateContact(&in); len(problems) > 0 {
		return uuid.Nil, fmt.Errorf("%s:%w", op, &ValidationError{Problems: problems})
	}

	if err := s.allow(ctx, clientKey); err != nil {
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	ev, err := s.catalog.Event(ctx, eventID)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrEventNotFound):
			return uuid.Nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		case errors.Is(err, catalog.ErrEventPast):
			return uuid.Nil, fmt.Errorf("%s:%w", op, ErrEventPast)
		}
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}
	if ev.IsFull {
		return uuid.Nil, fmt.Errorf("%s:%w", op, &CapacityConflictError{UnitIDs: []uuid.UUID{ev.ID}})
	}

	reg := &domain.EventRegistration{
		EventID: ev.ID,
		Contact: in.contact(),
		Consent: in.Consent,
	}
	if err := s.repo.CreateEventRegistration(ctx, reg); err != nil {
		return uuid.Nil, fmt.Errorf("%s:%w", op, mapWriteErr(err, ErrEventNotFound))
	}

	s.publish(ctx, redisrepo.ScopeEvent, ev.ID)

	data := notify.NewRegistrationData(reg.ID, reg.Contact, ev.Title)
	data.Dates = []notify.DateLine{{When: ev.DateTime, Location: ev.Location}}
	data.PriceCents = ev.PriceCents
	s.notifyBoth(data)

	return reg.ID, nil
}

func mapWriteErr(err error, notFound error) error {
	var capErr *repository.CapacityError
	switch {
	case errors.As(err, &capErr):
		return &CapacityConflictError{UnitIDs: capErr.UnitIDs}
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	default:
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
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

func (s *Service) notifyBoth(data notify.RegistrationData) {
	if s.notifier == nil {
		return
	}

	if s.cfg.OwnerEmail != "" {
		_ = s.notifier.Dispatch(notify.Message{
			Kind: notify.KindRegistrationOwner,
			To:   s.cfg.OwnerEmail,
			Data: data,
		})
	}

	_ = s.notifier.Dispatch(notify.Message{
		Kind: notify.KindRegistrationReceived,
		To:   data.Email,
		Data: data,
	})
}
