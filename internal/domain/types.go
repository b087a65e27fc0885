package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type RegistrationStatus string

const (
	StatusPending   RegistrationStatus = "pending"
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusCancelled RegistrationStatus = "cancelled"
)

// ParseRegistrationStatus accepts pending, confirmed or cancelled, case-insensitively.
func ParseRegistrationStatus(s string) (RegistrationStatus, error) {
	switch st := RegistrationStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown registration status %q", s)
	}
}

// Occupies reports whether a registration in this status holds a seat.
func (s RegistrationStatus) Occupies() bool {
	return s != StatusCancelled
}

type EditionType string

const (
	EditionCollective EditionType = "collective"
	EditionIndividual EditionType = "individual"
)

func (t EditionType) Valid() bool {
	return t == EditionCollective || t == EditionIndividual
}

// Edition is one scheduled instance of a recurring programme.
type Edition struct {
	ID                uuid.UUID   `json:"id"`
	ProgrammeKey      string      `json:"programme_key"`
	Title             string      `json:"title"`
	StartDate         time.Time   `json:"start_date"`
	MaxCapacity       int         `json:"max_capacity"`
	Active            bool        `json:"active"`
	SessionsMandatory bool        `json:"sessions_mandatory"`
	Type              EditionType `json:"edition_type"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

type Session struct {
	ID              uuid.UUID `json:"id"`
	EditionID       uuid.UUID `json:"edition_id"`
	Number          int       `json:"session_number"`
	Title           string    `json:"title"`
	DurationMinutes *int      `json:"duration_minutes"`
}

// DateOption is the bookable unit of an edition.
type DateOption struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	DateTime    time.Time `json:"date_time"`
	Location    string    `json:"location"`
	MaxCapacity int       `json:"max_capacity"`
}

// Contact holds the participant fields shared by both registration kinds.
type Contact struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	WhatsApp  *string `json:"whatsapp"`
	Message   *string `json:"message"`
}

func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Registration is a participant's request to attend an edition.
type Registration struct {
	ID                 uuid.UUID          `json:"id"`
	EditionID          uuid.UUID          `json:"edition_id"`
	Contact
	Consent            bool               `json:"consent"`
	Status             RegistrationStatus `json:"status"`
	AdminNotes         *string            `json:"admin_notes"`
	Contacted          bool               `json:"contacted"`
	PaymentRequestedAt *time.Time         `json:"payment_requested_at"`
	DateOptionIDs      []uuid.UUID        `json:"date_option_ids"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Event is a single-session bookable item: one date, one capacity.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DateTime    time.Time `json:"date_time"`
	Location    string    `json:"location"`
	MaxCapacity int       `json:"max_capacity"`
	PriceCents  *int64    `json:"price_cents"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Past reports whether the event has already started at now.
func (e Event) Past(now time.Time) bool {
	return e.DateTime.Before(now)
}

type EventRegistration struct {
	ID                 uuid.UUID          `json:"id"`
	EventID            uuid.UUID          `json:"event_id"`
	Contact
	Consent            bool               `json:"consent"`
	Status             RegistrationStatus `json:"status"`
	AdminNotes         *string            `json:"admin_notes"`
	Contacted          bool               `json:"contacted"`
	PaymentRequestedAt *time.Time         `json:"payment_requested_at"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// RegistrationUpdate carries the admin-editable fields; nil means unchanged.
type RegistrationUpdate struct {
	Status     *RegistrationStatus
	AdminNotes *string
	Contacted  *bool
}

func (u RegistrationUpdate) Empty() bool {
	return u.Status == nil && u.AdminNotes == nil && u.Contacted == nil
}
