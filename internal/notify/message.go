package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/studio-booking/internal/domain"
)

type Kind string

const (
	KindRegistrationReceived  Kind = "registration_received"
	KindRegistrationOwner     Kind = "registration_owner"
	KindRegistrationConfirmed Kind = "registration_confirmed"
	KindPaymentRequest        Kind = "payment_request"
	KindContactMessage        Kind = "contact_message"
)

// Message is one email to render and send.
type Message struct {
	Kind Kind
	To   string
	Data any
}

// DateLine is one booked slot as shown in an email.
type DateLine struct {
	Session  string
	When     time.Time
	Location string
}

// RegistrationData is the render context of every registration email.
type RegistrationData struct {
	RegistrationID uuid.UUID
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	WhatsApp       string
	Message        string
	Title          string
	Dates          []DateLine
	PriceCents     *int64
	Payment        PaymentDetails
}

// NewRegistrationData copies the participant fields of c into a render context.
func NewRegistrationData(id uuid.UUID, c domain.Contact, title string) RegistrationData {
	d := RegistrationData{
		RegistrationID: id,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		Email:          c.Email,
		Phone:          c.Phone,
		Title:          title,
	}
	if c.WhatsApp != nil {
		d.WhatsApp = *c.WhatsApp
	}
	if c.Message != nil {
		d.Message = *c.Message
	}
	return d
}

// Price formats PriceCents as euros, or returns "" when no price is known.
func (d RegistrationData) Price() string {
	if d.PriceCents == nil {
		return ""
	}
	return formatCents(*d.PriceCents)
}

// PaymentDetails are the bank transfer instructions included in payment requests.
type PaymentDetails struct {
	AccountHolder string
	IBAN          string
	Reference     string
}

type ContactData struct {
	Name    string
	Email   string
	Phone   string
	Subject string
	Message string
	Copy    bool
}
