package httpgin

import (
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/studio-booking/internal/domain"
	"github.com/kirinyoku/studio-booking/internal/service/contact"
	"github.com/kirinyoku/studio-booking/internal/service/registration"
)

// RegisterRequest is the public registration body. Field names are camelCase
// because the booking pages post them as-is.
type RegisterRequest struct {
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	WhatsApp    string      `json:"whatsapp"`
	Message     string      `json:"message"`
	Consent     bool        `json:"consent"`
	DateChoices []uuid.UUID `json:"dateChoices"`
}

func (r RegisterRequest) contact() registration.ContactInput {
	return registration.ContactInput{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
		WhatsApp:  r.WhatsApp,
		Message:   r.Message,
		Consent:   r.Consent,
	}
}

type RegisterResponse struct {
	Success        bool   `json:"success"`
	RegistrationID string `json:"registrationId"`
}

type ContactRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	SendCopy bool   `json:"sendCopy"`
}

func (r ContactRequest) input() contact.Input {
	return contact.Input{
		Name:     r.Name,
		Email:    r.Email,
		Phone:    r.Phone,
		Subject:  r.Subject,
		Message:  r.Message,
		SendCopy: r.SendCopy,
	}
}

type ErrorResponse struct {
	Error     string      `json:"error"`
	Details   []string    `json:"details,omitempty"`
	FullDates []uuid.UUID `json:"fullDates,omitempty"`
}

type LoginRequest struct {
	Secret string `json:"secret" binding:"required"`
}

type CreateEditionRequest struct {
	ProgrammeKey      string                 `json:"programme_key" binding:"required"`
	Title             string                 `json:"title" binding:"required"`
	StartDate         time.Time              `json:"start_date" binding:"required"`
	MaxCapacity       int                    `json:"max_capacity"`
	Active            *bool                  `json:"active"`
	SessionsMandatory bool                   `json:"sessions_mandatory"`
	Type              domain.EditionType     `json:"edition_type"`
	Sessions          []CreateSessionRequest `json:"sessions" binding:"dive"`
}

type CreateSessionRequest struct {
	Number          int                       `json:"session_number" binding:"required,gt=0"`
	Title           string                    `json:"title" binding:"required"`
	DurationMinutes *int                      `json:"duration_minutes"`
	DateOptions     []CreateDateOptionRequest `json:"date_options" binding:"dive"`
}

type CreateDateOptionRequest struct {
	DateTime    time.Time `json:"date_time" binding:"required"`
	Location    string    `json:"location"`
	MaxCapacity int       `json:"max_capacity" binding:"required,gt=0"`
}

func (r CreateEditionRequest) draft() domain.EditionDraft {
	active := true
	if r.Active != nil {
		active = *r.Active
	}

	d := domain.EditionDraft{
		ProgrammeKey:      r.ProgrammeKey,
		Title:             r.Title,
		StartDate:         r.StartDate,
		MaxCapacity:       r.MaxCapacity,
		Active:            active,
		SessionsMandatory: r.SessionsMandatory,
		Type:              r.Type,
		Sessions:          make([]domain.SessionDraft, 0, len(r.Sessions)),
	}
	for _, s := range r.Sessions {
		sd := domain.SessionDraft{
			Number:          s.Number,
			Title:           s.Title,
			DurationMinutes: s.DurationMinutes,
			DateOptions:     make([]domain.DateOptionDraft, 0, len(s.DateOptions)),
		}
		for _, o := range s.DateOptions {
			sd.DateOptions = append(sd.DateOptions, domain.DateOptionDraft{
				DateTime:    o.DateTime,
				Location:    o.Location,
				MaxCapacity: o.MaxCapacity,
			})
		}
		d.Sessions = append(d.Sessions, sd)
	}

	return d
}

type UpdateEditionRequest struct {
	Title             *string             `json:"title"`
	StartDate         *time.Time          `json:"start_date"`
	MaxCapacity       *int                `json:"max_capacity"`
	Active            *bool               `json:"active"`
	SessionsMandatory *bool               `json:"sessions_mandatory"`
	Type              *domain.EditionType `json:"edition_type"`
}

func (r UpdateEditionRequest) update() domain.EditionUpdate {
	return domain.EditionUpdate{
		Title:             r.Title,
		StartDate:         r.StartDate,
		MaxCapacity:       r.MaxCapacity,
		Active:            r.Active,
		SessionsMandatory: r.SessionsMandatory,
		Type:              r.Type,
	}
}

type UpdateDateOptionRequest struct {
	DateTime    *time.Time `json:"date_time"`
	Location    *string    `json:"location"`
	MaxCapacity *int       `json:"max_capacity"`
}

type CreateEventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	DateTime    time.Time `json:"date_time" binding:"required"`
	Location    string    `json:"location"`
	MaxCapacity int       `json:"max_capacity" binding:"required,gt=0"`
	PriceCents  *int64    `json:"price_cents"`
	Active      *bool     `json:"active"`
}

func (r CreateEventRequest) event() domain.Event {
	active := true
	if r.Active != nil {
		active = *r.Active
	}

	return domain.Event{
		Title:       r.Title,
		Description: r.Description,
		DateTime:    r.DateTime,
		Location:    r.Location,
		MaxCapacity: r.MaxCapacity,
		PriceCents:  r.PriceCents,
		Active:      active,
	}
}

type UpdateEventRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DateTime    *time.Time `json:"date_time"`
	Location    *string    `json:"location"`
	MaxCapacity *int       `json:"max_capacity"`
	PriceCents  *int64     `json:"price_cents"`
	Active      *bool      `json:"active"`
}

func (r UpdateEventRequest) update() domain.EventUpdate {
	return domain.EventUpdate{
		Title:       r.Title,
		Description: r.Description,
		DateTime:    r.DateTime,
		Location:    r.Location,
		MaxCapacity: r.MaxCapacity,
		PriceCents:  r.PriceCents,
		Active:      r.Active,
	}
}

type UpdateRegistrationRequest struct {
	Status     *string `json:"status"`
	AdminNotes *string `json:"admin_notes"`
	Contacted  *bool   `json:"contacted"`
}

func (r UpdateRegistrationRequest) update() (domain.RegistrationUpdate, error) {
	upd := domain.RegistrationUpdate{
		AdminNotes: r.AdminNotes,
		Contacted:  r.Contacted,
	}
	if r.Status != nil {
		st, err := domain.ParseRegistrationStatus(*r.Status)
		if err != nil {
			return domain.RegistrationUpdate{}, err
		}
		upd.Status = &st
	}

	return upd, nil
}
