package orchestrator

import (
	"context"
	"testing"
	"time"

	"meetflow/internal/attendee"
	"meetflow/internal/calendar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// monday is 2025-01-06 08:00 in New York.
func monday(loc *time.Location) time.Time {
	return time.Date(2025, time.January, 6, 8, 0, 0, 0, loc)
}

func newTestExecutor(t *testing.T, store calendar.Store) *executor {
	t.Helper()
	loc := newYork(t)
	cfg := DefaultConfig()
	cfg.Hours.Location = loc
	return &executor{
		store:    store,
		resolver: attendee.NewResolver(attendee.FallbackDirectory()),
		cfg:      cfg,
		now:      func() time.Time { return monday(loc) },
	}
}

func execute(t *testing.T, e *executor, actions ...Action) []ExecutionResult {
	t.Helper()
	return e.Execute(context.Background(), actions, true, newRecorder(e.now))
}

func TestExecutorWithoutAutoExecuteOnlyWarns(t *testing.T) {
	store := calendar.NewMemoryStore()
	e := newTestExecutor(t, store)

	results := e.Execute(context.Background(), []Action{{Kind: ActionCreateEvent, Title: "Sync"}}, false, newRecorder(e.now))
	require.Len(t, results, 1)
	assert.Equal(t, StatusWarning, results[0].Status)
	assert.Equal(t, KindPendingApproval, results[0].Kind)

	events, err := store.ListEvents(context.Background(), calendar.Query{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestExecutorFailedActionDoesNotStopBatch(t *testing.T) {
	store := calendar.NewMemoryStore()
	e := newTestExecutor(t, store)

	results := execute(t, e,
		Action{Kind: ActionAddNotes, EventID: "does-not-exist", Notes: "follow up"},
		Action{Kind: ActionCreateEvent, Title: "Planning", DurationMinutes: 45},
	)
	require.Len(t, results, 2)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Equal(t, ActionAddNotes, results[0].Kind)
	assert.Contains(t, results[0].Detail, "not found")

	assert.Equal(t, StatusSuccess, results[1].Status)
	assert.Equal(t, ActionCreateEvent, results[1].Kind)
	require.NotEmpty(t, results[1].EventID)

	ev, err := store.GetEvent(context.Background(), results[1].EventID)
	require.NoError(t, err)
	loc := newYork(t)
	assert.True(t, ev.Start.Equal(time.Date(2025, 1, 6, 9, 0, 0, 0, loc)))
	assert.Equal(t, 45*time.Minute, ev.Duration())
}

func TestExecutorRunsPhaseOneBeforeCreates(t *testing.T) {
	loc := newYork(t)
	store := calendar.NewMemoryStore(calendar.Event{
		ID:    "standup",
		Title: "Standup",
		Start: time.Date(2025, 1, 6, 9, 0, 0, 0, loc),
		End:   time.Date(2025, 1, 6, 10, 0, 0, 0, loc),
	})
	e := newTestExecutor(t, store)

	results := execute(t, e,
		Action{Kind: ActionCreateEvent, Title: "First", DurationMinutes: 30},
		Action{Kind: ActionFindSlot, DurationMinutes: 60},
		Action{Kind: ActionCreateEvent, Title: "Second", DurationMinutes: 30},
	)
	require.Len(t, results, 3)
	assert.Equal(t, ActionFindSlot, results[0].Kind)
	require.Len(t, results[0].Slots, findSlotLimit)

	// Each create consumes the next buffered slot.
	require.Equal(t, StatusSuccess, results[1].Status)
	require.Equal(t, StatusSuccess, results[2].Status)
	first, err := store.GetEvent(context.Background(), results[1].EventID)
	require.NoError(t, err)
	second, err := store.GetEvent(context.Background(), results[2].EventID)
	require.NoError(t, err)
	assert.True(t, first.Start.Equal(time.Date(2025, 1, 6, 10, 0, 0, 0, loc)), first.Start)
	assert.True(t, second.Start.Equal(time.Date(2025, 1, 7, 9, 0, 0, 0, loc)), second.Start)
	assert.Equal(t, 30*time.Minute, second.Duration())
}

func TestExecutorDatedCreate(t *testing.T) {
	loc := newYork(t)
	store := calendar.NewMemoryStore(calendar.Event{
		ID:    "review",
		Title: "Review",
		Start: time.Date(2025, 1, 7, 9, 0, 0, 0, loc),
		End:   time.Date(2025, 1, 7, 11, 0, 0, 0, loc),
	})
	e := newTestExecutor(t, store)

	cases := []struct {
		name string
		date string
		want time.Time
	}{
		{"first free slot on the date", "2025-01-07", time.Date(2025, 1, 7, 11, 0, 0, 0, loc)},
		{"weekend falls back to 14:00", "2025-01-11", time.Date(2025, 1, 11, 14, 0, 0, 0, loc)},
		{"beyond the search window falls back to 14:00", "2025-03-03", time.Date(2025, 3, 3, 14, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results := execute(t, e, Action{Kind: ActionCreateEvent, Title: "Dated", Date: tc.date, DurationMinutes: 30})
			require.Len(t, results, 1)
			require.Equal(t, StatusSuccess, results[0].Status, results[0].Detail)
			ev, err := store.GetEvent(context.Background(), results[0].EventID)
			require.NoError(t, err)
			assert.True(t, ev.Start.Equal(tc.want), "got %s", ev.Start)
		})
	}
}

func TestExecutorCreateWithoutAnySlot(t *testing.T) {
	store := calendar.NewMemoryStore()
	e := newTestExecutor(t, store)
	e.cfg.Hours.End = e.cfg.Hours.Start

	results := execute(t, e, Action{Kind: ActionCreateEvent, Title: "Impossible"})
	require.Len(t, results, 1)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Equal(t, "Cannot create event: No available slots found", results[0].Message)
}

func TestExecutorCreateRejectsBadDate(t *testing.T) {
	e := newTestExecutor(t, calendar.NewMemoryStore())
	results := execute(t, e, Action{Kind: ActionCreateEvent, Title: "Oops", Date: "next tuesday"})
	require.Len(t, results, 1)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Contains(t, results[0].Detail, "invalid event_date")
}

func TestExecutorResolvesAttendeesAndDefaultsTitle(t *testing.T) {
	store := calendar.NewMemoryStore()
	e := newTestExecutor(t, store)

	results := execute(t, e, Action{Kind: ActionCreateEvent, Attendees: []string{"alice", "Zed Quill"}})
	require.Len(t, results, 1)
	require.Equal(t, StatusSuccess, results[0].Status)

	ev, err := store.GetEvent(context.Background(), results[0].EventID)
	require.NoError(t, err)
	assert.Equal(t, defaultTitle, ev.Title)
	assert.Equal(t, []string{"alice.nguyen@example.com", "zed.quill@example.com"}, ev.Attendees)
	assert.Contains(t, results[0].Message, "with 2 attendees")
}

func TestExecutorNotesAndUpdates(t *testing.T) {
	loc := newYork(t)
	store := calendar.NewMemoryStore(calendar.Event{
		ID:          "kickoff",
		Title:       "Kickoff",
		Description: "Agenda",
		Start:       time.Date(2025, 1, 3, 9, 0, 0, 0, loc),
		End:         time.Date(2025, 1, 3, 10, 0, 0, 0, loc),
	})
	e := newTestExecutor(t, store)

	results := execute(t, e, Action{Kind: ActionAddNotes, EventID: "kickoff", Notes: "Alice owns the budget"})
	require.Equal(t, StatusSuccess, results[0].Status)
	assert.NotEmpty(t, results[0].Detail)
	ev, err := store.GetEvent(context.Background(), "kickoff")
	require.NoError(t, err)
	assert.Equal(t, "Agenda\n\nNotes:\nAlice owns the budget", ev.Description)

	results = execute(t, e, Action{Kind: ActionUpdateEvent, EventID: "kickoff", Title: "Kickoff (moved)"})
	require.Equal(t, StatusSuccess, results[0].Status)
	ev, err = store.GetEvent(context.Background(), "kickoff")
	require.NoError(t, err)
	assert.Equal(t, "Updated notes", ev.Description)
	assert.Equal(t, "Kickoff (moved)", ev.Title)

	results = execute(t, e, Action{Kind: ActionUpdateEvent})
	assert.Equal(t, StatusError, results[0].Status)
}
