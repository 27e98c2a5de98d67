package event

import (
	"time"

	"github.com/trezcool/babillard/core"
	"github.com/trezcool/babillard/core/notification"
)

const (
	DefaultEventType = "general"

	defaultListLimit = 50
	maxListLimit     = 200
)

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartAt     time.Time `json:"start_at"` // UTC
	EndAt       time.Time `json:"end_at"`   // UTC
	Location    string    `json:"location,omitempty"`
	EventType   string    `json:"event_type"`
	Color       string    `json:"color,omitempty"`
	CreatedBy   string    `json:"created_by"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// VisibleTo reports whether actor may see the event.
// Admins see every event; other roles see public events and their own.
func (ev Event) VisibleTo(actor core.Actor) bool {
	return actor.IsAdmin() || ev.IsPublic || ev.CreatedBy == actor.ID
}

// notification returns the Notification announcing the event.
func (ev Event) notification() notification.Notification {
	return notification.Notification{
		Title:     "New event: " + ev.Title,
		Message:   ev.Title + " starts " + ev.StartAt.Format(time.RFC1123),
		Kind:      notification.KindEvent,
		CreatedBy: ev.CreatedBy,
		ActionRef: "/events/" + ev.ID,
	}
}

// NewEvent contains information needed to create a new Event.
type NewEvent struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	StartAt     time.Time `json:"start_at" validate:"required"`
	EndAt       time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
	Location    string    `json:"location" validate:"max=200"`
	EventType   string    `json:"event_type" validate:"max=50"`
	Color       string    `json:"color" validate:"max=20"`
	IsPublic    *bool     `json:"is_public"` // defaults to true
}

func (ne *NewEvent) clean() {
	ne.Title = core.CleanString(ne.Title)
	ne.Description = core.CleanString(ne.Description)
	ne.Location = core.CleanString(ne.Location)
	ne.EventType = core.CleanString(ne.EventType, true /* lower */)
	if ne.EventType == "" {
		ne.EventType = DefaultEventType
	}
	ne.Color = core.CleanString(ne.Color, true /* lower */)
	ne.StartAt = ne.StartAt.UTC().Truncate(time.Microsecond)
	ne.EndAt = ne.EndAt.UTC().Truncate(time.Microsecond)
}

// UpdateEvent defines what information may be provided to modify an existing Event.
// nil fields keep their current value.
type UpdateEvent struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	Location    *string    `json:"location"`
	EventType   *string    `json:"event_type"`
	Color       *string    `json:"color"`
	IsPublic    *bool      `json:"is_public"`
}

func (ue *UpdateEvent) clean() {
	cleanPtr := func(s *string, lower bool) *string {
		if s == nil {
			return nil
		}
		c := core.CleanString(*s, lower)
		return &c
	}
	ue.Title = cleanPtr(ue.Title, false)
	ue.Description = cleanPtr(ue.Description, false)
	ue.Location = cleanPtr(ue.Location, false)
	ue.EventType = cleanPtr(ue.EventType, true)
	if ue.EventType != nil && *ue.EventType == "" {
		ue.EventType = nil
	}
	ue.Color = cleanPtr(ue.Color, true)
	if ue.StartAt != nil {
		t := ue.StartAt.UTC().Truncate(time.Microsecond)
		ue.StartAt = &t
	}
	if ue.EndAt != nil {
		t := ue.EndAt.UTC().Truncate(time.Microsecond)
		ue.EndAt = &t
	}
}

// merge returns the NewEvent that ev becomes once ue is applied.
func (ue UpdateEvent) merge(ev Event) NewEvent {
	ne := NewEvent{
		Title:       ev.Title,
		Description: ev.Description,
		StartAt:     ev.StartAt,
		EndAt:       ev.EndAt,
		Location:    ev.Location,
		EventType:   ev.EventType,
		Color:       ev.Color,
		IsPublic:    &ev.IsPublic,
	}
	if ue.Title != nil {
		ne.Title = *ue.Title
	}
	if ue.Description != nil {
		ne.Description = *ue.Description
	}
	if ue.StartAt != nil {
		ne.StartAt = *ue.StartAt
	}
	if ue.EndAt != nil {
		ne.EndAt = *ue.EndAt
	}
	if ue.Location != nil {
		ne.Location = *ue.Location
	}
	if ue.EventType != nil {
		ne.EventType = *ue.EventType
	}
	if ue.Color != nil {
		ne.Color = *ue.Color
	}
	if ue.IsPublic != nil {
		ne.IsPublic = ue.IsPublic
	}
	return ne
}

// QueryFilter applies AND operation on its non-zero fields. Events are ordered by start time.
type QueryFilter struct {
	From      time.Time // start_at >= From
	To        time.Time // start_at <= To
	CreatedBy string
	// VisibleTo restricts the result to public events and the ones created by this user.
	VisibleTo string
	Limit     int
}

// CreateResult holds a created Event and the outcome of announcing it.
// FanOutErr is set when the notification could not be delivered; the event exists regardless.
type CreateResult struct {
	Event     Event                       `json:"event"`
	FanOut    *notification.FanOutSummary `json:"fan_out,omitempty"`
	FanOutErr error                       `json:"-"`
	Warning   string                      `json:"warning,omitempty"`
}
