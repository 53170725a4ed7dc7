package orchestrator

import (
	"context"
	"fmt"
	"time"

	"meetflow/internal/calendar"
	"meetflow/internal/progress"
)

type calendarStage struct {
	store calendar.Store
	cfg   Config
	now   func() time.Time
}

func (calendarStage) Name() string  { return StageFetchCalendar }
func (calendarStage) Title() string { return "Calendar Context Fetch" }

func (s calendarStage) Input(State) string {
	return fmt.Sprintf("Fetching events from the past %d days and the next %d days",
		s.cfg.ContextDaysBack, s.cfg.ContextDaysAhead)
}

func (s calendarStage) Run(ctx context.Context, st State, rec *Recorder) (State, error) {
	now := s.now()
	events, err := s.store.ListEvents(ctx, calendar.Query{
		From:       now.AddDate(0, 0, -s.cfg.ContextDaysBack),
		To:         now.AddDate(0, 0, s.cfg.ContextDaysAhead),
		MaxResults: s.cfg.ContextMaxEvents,
	})
	if err != nil {
		rec.Add(progress.LogError, "Calendar fetch failed: %v", err)
		return st, fmt.Errorf("list calendar events: %w", err)
	}
	rec.Add(progress.LogOutput, "Calendar fetch complete: found %d events", len(events))
	st.CalendarEvents = events
	return st, nil
}
