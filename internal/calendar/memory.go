package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps events in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]Event
}

// NewMemoryStore returns a store seeded with events. Seed events without an
// id are assigned one.
func NewMemoryStore(seed ...Event) *MemoryStore {
	s := &MemoryStore{events: make(map[string]Event, len(seed))}
	for _, ev := range seed {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		s.events[ev.ID] = cloneEvent(ev)
	}
	return s
}

func (s *MemoryStore) ListEvents(ctx context.Context, query Query) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Event, 0, len(s.events))
	for _, ev := range s.events {
		if query.Matches(ev) {
			out = append(out, cloneEvent(ev))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	if query.MaxResults > 0 && len(out) > query.MaxResults {
		out = out[:query.MaxResults]
	}
	return out, nil
}

func (s *MemoryStore) CreateEvent(ctx context.Context, event NewEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateNewEvent(event); err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.events[id] = cloneEvent(Event{
		ID:          id,
		Title:       event.Title,
		Start:       event.Start,
		End:         event.End,
		Description: event.Description,
		Location:    event.Location,
		Attendees:   event.Attendees,
	})
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return Event{}, fmt.Errorf("get event %q: %w", id, ErrNotFound)
	}
	return cloneEvent(ev), nil
}

func (s *MemoryStore) UpdateEvent(ctx context.Context, id string, patch Patch) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return "", fmt.Errorf("update event %q: %w", id, ErrNotFound)
	}
	s.events[id] = cloneEvent(patch.Apply(ev))
	return id, nil
}

func cloneEvent(ev Event) Event {
	if ev.Attendees != nil {
		ev.Attendees = append([]string(nil), ev.Attendees...)
	}
	return ev
}
