package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kirinyoku/studio-booking/internal/notify"
	redisrepo "github.com/kirinyoku/studio-booking/internal/repository/redis"
)

type Notifier interface {
	Dispatch(msg notify.Message) error
}

type Limiter interface {
	Allow(ctx context.Context, scope, subject string) (redisrepo.Decision, error)
}

type Config struct {
	OwnerEmail string
}

type Service struct {
	notifier Notifier
	limiter  Limiter
	validate *validator.Validate
	logger   *slog.Logger
	cfg      Config
}

// New builds the contact form service. limiter may be nil.
func New(notifier Notifier, limiter Limiter, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		notifier: notifier,
		limiter:  limiter,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		cfg:      cfg,
	}
}

type Input struct {
	Name    string `validate:"required,max=200"`
	Email   string `validate:"required,email,max=254"`
	Phone   string `validate:"omitempty,max=40"`
	Subject string `validate:"omitempty,max=200"`
	Message string `validate:"required,max=5000"`
	// SendCopy mails the sender a copy of the message.
	SendCopy bool
}

// Submit validates a contact or quote request and queues the message for the
// business owner, plus a copy for the sender when requested.
//
// Returns:
//   - error: contact.ErrInvalidInput, ErrRateLimited, or ErrNotDelivered when
//     the owner message could not be queued.
func (s *Service) Submit(ctx context.Context, in Input, clientKey string) error {
	const op = "service.contact.Submit"

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)

	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%s:%w", op, err)
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s:%w", op, &ValidationError{Problems: problems})
	}

	if s.limiter != nil && clientKey != "" {
		d, err := s.limiter.Allow(ctx, "contact", clientKey)
		switch {
		case err != nil:
			s.logger.Warn("rate limiter unavailable", "error", err)
		case !d.Allowed:
			return fmt.Errorf("%s:%w", op, &RateLimitedError{RetryAfter: d.RetryAfter})
		}
	}

	if in.Subject == "" {
		in.Subject = "Contact request"
	}

	data := notify.ContactData{
		Name:    in.Name,
		Email:   in.Email,
		Phone:   in.Phone,
		Subject: in.Subject,
		Message: in.Message,
	}

	if s.cfg.OwnerEmail != "" {
		if err := s.notifier.Dispatch(notify.Message{
			Kind: notify.KindContactMessage,
			To:   s.cfg.OwnerEmail,
			Data: data,
		}); err != nil {
			return fmt.Errorf("%s:%w: %w", op, ErrNotDelivered, err)
		}
	} else {
		s.logger.Warn("contact message without owner address", "from", in.Email)
	}

	if in.SendCopy {
		data.Copy = true
		_ = s.notifier.Dispatch(notify.Message{
			Kind: notify.KindContactMessage,
			To:   in.Email,
			Data: data,
		})
	}

	return nil
}
