package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionWithOptions is a session and its date options, ordered by date-time.
type SessionWithOptions struct {
	Session
	DateOptions []DateOption `json:"date_options"`
}

type DateOptionWithAvailability struct {
	DateOption
	Counts
}

type SessionView struct {
	Session
	DateOptions []DateOptionWithAvailability `json:"date_options"`
}

// EditionSummary is an edition with its derived duration and price.
type EditionSummary struct {
	Edition
	TotalDurationMinutes *int   `json:"total_duration_minutes"`
	PriceCents           *int64 `json:"price_cents"`
}

// EditionCatalog is what the booking page renders before submission.
type EditionCatalog struct {
	Edition  EditionSummary `json:"edition"`
	Sessions []SessionView  `json:"sessions"`
}

// DateOption looks up an option of the edition by ID.
func (c *EditionCatalog) DateOption(id uuid.UUID) (SessionView, DateOptionWithAvailability, bool) {
	for _, s := range c.Sessions {
		for _, o := range s.DateOptions {
			if o.ID == id {
				return s, o, true
			}
		}
	}
	return SessionView{}, DateOptionWithAvailability{}, false
}

// EditionStructure is the cacheable part of a catalog: everything but counts.
type EditionStructure struct {
	Edition  Edition              `json:"edition"`
	Sessions []SessionWithOptions `json:"sessions"`
}

// OptionIDs lists every date option ID of the edition.
func (s EditionStructure) OptionIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, sess := range s.Sessions {
		for _, o := range sess.DateOptions {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// TotalDuration sums the session durations that are set. It returns nil when
// no session carries a duration.
func TotalDuration(sessions []Session) *int {
	total, seen := 0, false
	for _, s := range sessions {
		if s.DurationMinutes != nil && *s.DurationMinutes > 0 {
			total += *s.DurationMinutes
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return &total
}

// CollectivePrice prices a collective edition at hourlyRateCents per hour of
// total duration, rounded up to the cent. Other edition types have no derived price.
func CollectivePrice(t EditionType, totalMinutes *int, hourlyRateCents int64) *int64 {
	if t != EditionCollective || totalMinutes == nil || hourlyRateCents <= 0 {
		return nil
	}
	price := (int64(*totalMinutes)*hourlyRateCents + 59) / 60
	return &price
}

type EventWithAvailability struct {
	Event
	Counts
}

// EditionDraft is an edition created together with its sessions and date options.
type EditionDraft struct {
	ProgrammeKey      string
	Title             string
	StartDate         time.Time
	MaxCapacity       int
	Active            bool
	SessionsMandatory bool
	Type              EditionType
	Sessions          []SessionDraft
}

type SessionDraft struct {
	Number          int
	Title           string
	DurationMinutes *int
	DateOptions     []DateOptionDraft
}

type DateOptionDraft struct {
	DateTime    time.Time
	Location    string
	MaxCapacity int
}

// EditionUpdate patches edition metadata; nil means unchanged.
type EditionUpdate struct {
	Title             *string
	StartDate         *time.Time
	MaxCapacity       *int
	Active            *bool
	SessionsMandatory *bool
	Type              *EditionType
}

type DateOptionUpdate struct {
	DateTime    *time.Time
	Location    *string
	MaxCapacity *int
}

type EventUpdate struct {
	Title       *string
	Description *string
	DateTime    *time.Time
	Location    *string
	MaxCapacity *int
	PriceCents  *int64
	Active      *bool
}
