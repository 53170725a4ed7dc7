package calendar

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeBackends(t *testing.T) map[string]Store {
	t.Helper()
	sqliteStore, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "calendar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	base := time.Date(2025, time.March, 3, 15, 0, 0, 0, time.UTC)

	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := store.CreateEvent(ctx, NewEvent{
				Title:       "Budget review",
				Start:       base,
				End:         base.Add(30 * time.Minute),
				Description: "Q2 numbers",
				Attendees:   []string{"alice@example.com"},
			})
			require.NoError(t, err)
			require.NotEmpty(t, id)

			_, err = store.CreateEvent(ctx, NewEvent{
				Title: "Standup",
				Start: base.Add(-24 * time.Hour),
				End:   base.Add(-24*time.Hour + 15*time.Minute),
			})
			require.NoError(t, err)

			got, err := store.GetEvent(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "Budget review", got.Title)
			assert.True(t, got.Start.Equal(base))
			assert.Equal(t, []string{"alice@example.com"}, got.Attendees)

			events, err := store.ListEvents(ctx, Query{})
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, "Standup", events[0].Title)

			events, err = store.ListEvents(ctx, Query{From: base.Add(-time.Hour), To: base.Add(time.Hour)})
			require.NoError(t, err)
			require.Len(t, events, 1)

			events, err = store.ListEvents(ctx, Query{Search: "q2"})
			require.NoError(t, err)
			require.Len(t, events, 1)

			events, err = store.ListEvents(ctx, Query{MaxResults: 1})
			require.NoError(t, err)
			require.Len(t, events, 1)

			desc := got.Description + "\n\nNotes:\nAlice owns the forecast"
			updatedID, err := store.UpdateEvent(ctx, id, Patch{Description: &desc})
			require.NoError(t, err)
			assert.Equal(t, id, updatedID)

			got, err = store.GetEvent(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, desc, got.Description)
			assert.Equal(t, "Budget review", got.Title)
		})
	}
}

func TestStoreNotFoundAndValidation(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.GetEvent(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			title := "x"
			_, err = store.UpdateEvent(ctx, "missing", Patch{Title: &title})
			require.ErrorIs(t, err, ErrNotFound)

			now := time.Now()
			_, err = store.CreateEvent(ctx, NewEvent{Title: "", Start: now, End: now.Add(time.Hour)})
			require.Error(t, err)
			_, err = store.CreateEvent(ctx, NewEvent{Title: "backwards", Start: now, End: now.Add(-time.Hour)})
			require.Error(t, err)
		})
	}
}

func TestDiffText(t *testing.T) {
	change := DiffText("Agenda", "Agenda\n\nNotes:\nship it")
	assert.False(t, change.Empty())
	assert.Equal(t, len("\n\nNotes:\nship it"), change.AddedChars)
	assert.Zero(t, change.DeletedChars)
	assert.NotEmpty(t, change.Patch)

	assert.True(t, DiffText("same", "same").Empty())
}
