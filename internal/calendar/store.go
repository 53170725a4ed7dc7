// Package calendar holds the calendar store contract, its in-memory and
// SQLite backends, and the working-hours slot finder.
package calendar

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when an event id is unknown to the store.
var ErrNotFound = errors.New("calendar event not found")

// Event is a single calendar entry.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// Duration returns the event length.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// NewEvent describes an event to create.
type NewEvent struct {
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// Patch lists the fields to change on an existing event. Nil fields are left as is.
type Patch struct {
	Title       *string
	Description *string
	Location    *string
	Start       *time.Time
	End         *time.Time
	Attendees   []string
}

// Apply returns a copy of event with the patch applied.
func (p Patch) Apply(event Event) Event {
	if p.Title != nil {
		event.Title = *p.Title
	}
	if p.Description != nil {
		event.Description = *p.Description
	}
	if p.Location != nil {
		event.Location = *p.Location
	}
	if p.Start != nil {
		event.Start = *p.Start
	}
	if p.End != nil {
		event.End = *p.End
	}
	if p.Attendees != nil {
		event.Attendees = append([]string(nil), p.Attendees...)
	}
	return event
}

// Query filters ListEvents. Zero bounds are open.
type Query struct {
	From       time.Time
	To         time.Time
	Search     string
	MaxResults int
}

// Matches reports whether event falls within the query bounds and search term.
func (q Query) Matches(event Event) bool {
	if !q.From.IsZero() && event.End.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !event.Start.Before(q.To) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(q.Search)); term != "" {
		haystack := strings.ToLower(event.Title + "\n" + event.Description)
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// Store is the CRUD surface the pipeline needs from a calendar backend.
type Store interface {
	ListEvents(ctx context.Context, query Query) ([]Event, error)
	CreateEvent(ctx context.Context, event NewEvent) (string, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	UpdateEvent(ctx context.Context, id string, patch Patch) (string, error)
}

func validateNewEvent(event NewEvent) error {
	if strings.TrimSpace(event.Title) == "" {
		return errors.New("event title is required")
	}
	if event.Start.IsZero() || event.End.IsZero() {
		return errors.New("event start and end are required")
	}
	if !event.End.After(event.Start) {
		return errors.New("event end must be after start")
	}
	return nil
}
