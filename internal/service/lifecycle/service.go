package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/notify"
	"github.com/kirinyoku/studio-booking/internal/repository"
	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
)

type Repository interface {
	GetRegistration(ctx context.Context, id uuid.UUID) (*domain.Registration, error)
	ListRegistrations(ctx context.Context, editionID uuid.UUID) ([]domain.Registration, error)
	UpdateRegistration(ctx context.Context, id uuid.UUID, upd domain.RegistrationUpdate) (before, after *domain.Registration, err error)
	StampPaymentRequested(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteRegistration(ctx context.Context, id uuid.UUID) error

	GetEventRegistration(ctx context.Context, id uuid.UUID) (*domain.EventRegistration, error)
	ListEventRegistrations(ctx context.Context, eventID uuid.UUID) ([]domain.EventRegistration, error)
	UpdateEventRegistration(ctx context.Context, id uuid.UUID, upd domain.RegistrationUpdate) (before, after *domain.EventRegistration, err error)
	StampEventPaymentRequested(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteEventRegistration(ctx context.Context, id uuid.UUID) error
}

type Catalog interface {
	LoadEdition(ctx context.Context, id uuid.UUID) (*domain.EditionCatalog, error)
	LoadEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
}

type Notifier interface {
	Dispatch(msg notify.Message) error
	Send(ctx context.Context, msg notify.Message) error
}

type Publisher interface {
	Publish(ctx context.Context, scope string, id uuid.UUID) error
}

type Config struct {
	AccountHolder   string
	IBAN            string
	ReferencePrefix string
	Now             func() time.Time
}

type Service struct {
	repo     Repository
	catalog  Catalog
	notifier Notifier
	feed     Publisher
	logger   *slog.Logger
	cfg      Config
}

func New(repo Repository, catalog Catalog, notifier Notifier, feed Publisher, logger *slog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:     repo,
		catalog:  catalog,
		notifier: notifier,
		feed:     feed,
		logger:   logger,
		cfg:      cfg,
	}
}

func mapErr(op string, err error) error {
	var capErr *repository.CapacityError
	switch {
	case errors.As(err, &capErr):
		return fmt.Errorf("%s:%w", op, &CapacityConflictError{UnitIDs: capErr.UnitIDs})
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s:%w", op, ErrRegistrationNotFound)
	default:
		return fmt.Errorf("%s:%w", op, err)
	}
}

func (s *Service) Registration(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	const op = "service.lifecycle.Registration"

	reg, err := s.repo.GetRegistration(ctx, id)
	if err != nil {
		return nil, mapErr(op, err)
	}

	return reg, nil
}

func (s *Service) Registrations(ctx context.Context, editionID uuid.UUID) ([]domain.Registration, error) {
	const op = "service.lifecycle.Registrations"

	regs, err := s.repo.ListRegistrations(ctx, editionID)
	if err != nil {
		return nil, mapErr(op, err)
	}

	return regs, nil
}

// UpdateRegistration changes status, admin notes or the contacted flag. Any
// status may move to any other. Entering confirmed from another status
// dispatches a confirmation email; leaving it sends nothing.
//
// Returns:
//   - error: lifecycle.ErrNothingToUpdate if upd carries no field.
//   - error: lifecycle.ErrRegistrationNotFound if the registration does not exist.
//   - error: lifecycle.ErrCapacityConflict if reinstating a cancelled
//     registration would overbook one of its dates.
func (s *Service) UpdateRegistration(ctx context.Context, id uuid.UUID, upd domain.RegistrationUpdate) (*domain.Registration, error) {
	const op = "service.lifecycle.UpdateRegistration"

	if upd.Empty() {
		return nil, fmt.Errorf("%s:%w", op, ErrNothingToUpdate)
	}

	before, after, err := s.repo.UpdateRegistration(ctx, id, upd)
	if err != nil {
		return nil, mapErr(op, err)
	}

	if before.Status != after.Status {
		s.publish(ctx, redisrepo.ScopeEdition, after.EditionID)
	}

	if before.Status != domain.StatusConfirmed && after.Status == domain.StatusConfirmed {
		if data, err := s.editionData(ctx, after); err != nil {
			s.logger.Error("confirmation email skipped", "registration_id", id, "error", err)
		} else {
			_ = s.notifier.Dispatch(notify.Message{
				Kind: notify.KindRegistrationConfirmed,
				To:   after.Email,
				Data: data,
			})
		}
	}

	return after, nil
}

// RequestPayment sends the payment instructions synchronously and, once sent,
// stamps payment_requested_at with the current time. Calling it again re-sends
// and re-stamps; status and date choices are left untouched.
func (s *Service) RequestPayment(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	const op = "service.lifecycle.RequestPayment"

	reg, err := s.repo.GetRegistration(ctx, id)
	if err != nil {
		return nil, mapErr(op, err)
	}

	data, err := s.editionData(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	data.Payment = s.payment(reg.ID)

	if err := s.notifier.Send(ctx, notify.Message{
		Kind: notify.KindPaymentRequest,
		To:   reg.Email,
		Data: data,
	}); err != nil {
		return nil, fmt.Errorf("%s:%w: %w", op, ErrNotificationFailed, err)
	}

	now := s.cfg.Now().UTC()
	if err := s.repo.StampPaymentRequested(ctx, id, now); err != nil {
		return nil, mapErr(op, err)
	}
	reg.PaymentRequestedAt = &now

	return reg, nil
}

// DeleteRegistration hard-deletes a registration and its date choices.
func (s *Service) DeleteRegistration(ctx context.Context, id uuid.UUID) error {
	const op = "service.lifecycle.DeleteRegistration"

	reg, err := s.repo.GetRegistration(ctx, id)
	if err != nil {
		return mapErr(op, err)
	}

	if err := s.repo.DeleteRegistration(ctx, id); err != nil {
		return mapErr(op, err)
	}

	s.publish(ctx, redisrepo.ScopeEdition, reg.EditionID)

	return nil
}

func (s *Service) EventRegistration(ctx context.Context, id uuid.UUID) (*domain.EventRegistration, error) {
	const op = "service.lifecycle.EventRegistration"

	reg, err := s.repo.GetEventRegistration(ctx, id)
	if err != nil {
		return nil, mapErr(op, err)
	}

	return reg, nil
}

func (s *Service) EventRegistrations(ctx context.Context, eventID uuid.UUID) ([]domain.EventRegistration, error) {
	const op = "service.lifecycle.EventRegistrations"

	regs, err := s.repo.ListEventRegistrations(ctx, eventID)
	if err != nil {
		return nil, mapErr(op, err)
	}

	return regs, nil
}

func (s *Service) UpdateEventRegistration(ctx context.Context, id uuid.UUID, upd domain.RegistrationUpdate) (*domain.EventRegistration, error) {
	const op = "service.lifecycle.UpdateEventRegistration"

	if upd.Empty() {
		return nil, fmt.Errorf("%s:%w", op, ErrNothingToUpdate)
	}

	before, after, err := s.repo.UpdateEventRegistration(ctx, id, upd)
	if err != nil {
		return nil, mapErr(op, err)
	}

	if before.Status != after.Status {
		s.publish(ctx, redisrepo.ScopeEvent, after.EventID)
	}

	if before.Status != domain.StatusConfirmed && after.Status == domain.StatusConfirmed {
		if data, err := s.eventData(ctx, after); err != nil {
			s.logger.Error("confirmation email skipped", "event_registration_id", id, "error", err)
		} else {
			_ = s.notifier.Dispatch(notify.Message{
				Kind: notify.KindRegistrationConfirmed,
				To:   after.Email,
				Data: data,
			})
		}
	}

	return after, nil
}

func (s *Service) RequestEventPayment(ctx context.Context, id uuid.UUID) (*domain.EventRegistration, error) {
	const op = "service.lifecycle.RequestEventPayment"

	reg, err := s.repo.GetEventRegistration(ctx, id)
	if err != nil {
		return nil, mapErr(op, err)
	}

	data, err := s.eventData(ctx, reg)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	data.Payment = s.payment(reg.ID)

	if err := s.notifier.Send(ctx, notify.Message{
		Kind: notify.KindPaymentRequest,
		To:   reg.Email,
		Data: data,
	}); err != nil {
		return nil, fmt.Errorf("%s:%w: %w", op, ErrNotificationFailed, err)
	}

	now := s.cfg.Now().UTC()
	if err := s.repo.StampEventPaymentRequested(ctx, id, now); err != nil {
		return nil, mapErr(op, err)
	}
	reg.PaymentRequestedAt = &now

	return reg, nil
}

func (s *Service) DeleteEventRegistration(ctx context.Context, id uuid.UUID) error {
	const op = "service.lifecycle.DeleteEventRegistration"

	reg, err := s.repo.GetEventRegistration(ctx, id)
	if err != nil {
		return mapErr(op, err)
	}

	if err := s.repo.DeleteEventRegistration(ctx, id); err != nil {
		return mapErr(op, err)
	}

	s.publish(ctx, redisrepo.ScopeEvent, reg.EventID)

	return nil
}

func (s *Service) editionData(ctx context.Context, reg *domain.Registration) (notify.RegistrationData, error) {
	cat, err := s.catalog.LoadEdition(ctx, reg.EditionID)
	if err != nil {
		return notify.RegistrationData{}, err
	}

	data := notify.NewRegistrationData(reg.ID, reg.Contact, cat.Edition.Title)
	data.PriceCents = cat.Edition.PriceCents
	for _, id := range reg.DateOptionIDs {
		if sess, opt, ok := cat.DateOption(id); ok {
			data.Dates = append(data.Dates, notify.DateLine{
				Session:  sess.Title,
				When:     opt.DateTime,
				Location: opt.Location,
			})
		}
	}

	return data, nil
}

func (s *Service) eventData(ctx context.Context, reg *domain.EventRegistration) (notify.RegistrationData, error) {
	ev, err := s.catalog.LoadEvent(ctx, reg.EventID)
	if err != nil {
		return notify.RegistrationData{}, err
	}

	data := notify.NewRegistrationData(reg.ID, reg.Contact, ev.Title)
	data.PriceCents = ev.PriceCents
	data.Dates = []notify.DateLine{{When: ev.DateTime, Location: ev.Location}}

	return data, nil
}

func (s *Service) payment(id uuid.UUID) notify.PaymentDetails {
	return notify.PaymentDetails{
		AccountHolder: s.cfg.AccountHolder,
		IBAN:          s.cfg.IBAN,
		Reference:     s.cfg.ReferencePrefix + strings.ToUpper(id.String()[:8]),
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
