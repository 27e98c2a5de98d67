package notification

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/trezcool/babillard/core"
)

// Kinds
const (
	KindInfo    = "info"
	KindEvent   = "event"
	KindWarning = "warning"
	KindSuccess = "success"
	KindError   = "error"
)

var Kinds = []string{KindInfo, KindEvent, KindWarning, KindSuccess, KindError}

// Filters
const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
)

type Filter string

// ParseFilter defaults to FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch Filter(core.CleanString(s, true /* lower */)) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterUnread:
		return FilterUnread, nil
	}
	return "", core.NewValidationError(nil, core.FieldError{Field: "filter", Error: "filter must be one of all, unread"})
}

// Notification is immutable once created.
type Notification struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Kind        string     `json:"kind"`
	CreatedBy   string     `json:"created_by"`
	ActionRef   string     `json:"action_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	FannedOutAt *time.Time `json:"-"`
}

func (n Notification) Validate() error {
	var flds []core.FieldError
	if strings.TrimSpace(n.Title) == "" {
		flds = append(flds, core.FieldError{Field: "title", Error: "this field is required"})
	}
	if !isKind(n.Kind) {
		flds = append(flds, core.FieldError{Field: "kind", Error: "kind must be one of " + strings.Join(Kinds, ", ")})
	}
	if n.CreatedBy == "" {
		flds = append(flds, core.FieldError{Field: "created_by", Error: "this field is required"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func isKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Recipient is the per user delivery and read-state record of a Notification.
type Recipient struct {
	NotificationID string     `json:"notification_id"`
	UserID         string     `json:"user_id"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at"`
}

// Item is a Notification as delivered to one user.
type Item struct {
	Notification
	IsRead bool       `json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}

type Page struct {
	Items      []Item `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Cursor points at the last Item of a page (items are listed newest first).
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func (c Cursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor returns nil for an empty string.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	errInvalid := core.NewValidationError(nil, core.FieldError{Field: "cursor", Error: "invalid cursor"})

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errInvalid
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, errInvalid
	}
	tstamp, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, errInvalid
	}
	return &Cursor{CreatedAt: tstamp.UTC(), ID: parts[1]}, nil
}

// FanOutSummary describes the outcome of delivering one Notification.
type FanOutSummary struct {
	NotificationID  string `json:"notification_id"`
	Audience        int    `json:"audience"`
	Delivered       int    `json:"delivered"`
	Skipped         int    `json:"skipped"` // already delivered recipients
	AlreadyComplete bool   `json:"already_complete,omitempty"`
}

// RetryResult is the outcome of completing one pending fan-out.
type RetryResult struct {
	Summary FanOutSummary
	Err     error
}
