package orchestrator

import (
	"context"
	"fmt"
	"time"

	"meetflow/internal/extract"
	"meetflow/internal/llm"
	"meetflow/internal/logging"
	"meetflow/internal/progress"
)

const (
	planTranscriptChars = 2000
	planRelatedLimit    = 3
	planEventLimit      = 5
)

type planStage struct {
	gen    llm.Generator
	cfg    Config
	now    func() time.Time
	logger logging.Logger
}

func (planStage) Name() string  { return StagePlanActions }
func (planStage) Title() string { return "Action Planner" }

func (planStage) Input(st State) string {
	return fmt.Sprintf("Planning from %d action items, %d related meetings and %d calendar events",
		len(st.Analysis.ActionItems), len(st.Related), len(st.CalendarEvents))
}

type planContext struct {
	Transcript     string        `json:"transcript"`
	ActionItems    []string      `json:"action_items"`
	MentionedDates []string      `json:"mentioned_dates"`
	Participants   []string      `json:"participants"`
	KeyTopics      []string      `json:"key_topics"`
	Entities       []Entity      `json:"entities,omitempty"`
	Related        []eventDigest `json:"related_meetings"`
	CalendarEvents []eventDigest `json:"calendar_events"`
}

func (s planStage) Run(ctx context.Context, st State, rec *Recorder) (State, error) {
	logger := logging.FromContext(ctx, s.logger)
	today := s.now().In(s.cfg.Hours.Location)
	tomorrow := today.AddDate(0, 0, 1)

	pc := planContext{
		Transcript:     truncate(st.Transcript, planTranscriptChars),
		ActionItems:    st.Analysis.ActionItems,
		MentionedDates: st.Analysis.Dates,
		Participants:   st.Analysis.Participants,
		KeyTopics:      st.Analysis.Topics,
		Entities:       st.Research.Entities,
	}
	for i, m := range st.Related {
		if i == planRelatedLimit {
			break
		}
		pc.Related = append(pc.Related, eventDigest{ID: m.EventID, Title: m.Title})
	}
	for i, ev := range st.CalendarEvents {
		if i == planEventLimit {
			break
		}
		pc.CalendarEvents = append(pc.CalendarEvents, eventDigest{ID: ev.ID, Title: ev.Title, Start: ev.Start.Format(time.RFC3339)})
	}
	contextJSON, err := indentJSON(pc)
	if err != nil {
		return st, err
	}

	text, err := ask(ctx, s.gen, rec, llm.Request{
		Tag:    StagePlanActions,
		System: fmt.Sprintf(planSystemPrompt, today.Format(time.DateOnly), tomorrow.Format(time.DateOnly)),
		User:   "Context:\n" + contextJSON + "\n\nWhich actions should be taken?",
		JSON:   true,
	})
	if err != nil {
		return st, err
	}

	planned, err := extract.DecodeList[plannedAction](text, nil)
	if err != nil {
		logger.Warn("Action plan unparseable: %v", err)
		rec.Add(progress.LogError, "Failed to parse planned actions: %v", err)
	}

	actions := make([]Action, 0, len(planned))
	for i, p := range planned {
		action, err := p.action()
		if err != nil {
			logger.Warn("Skipping planned action %d: %v", i, err)
			rec.Add(progress.LogError, "Skipped action %d: %v", i+1, err)
			continue
		}
		actions = append(actions, action)
	}
	for i, a := range actions {
		rec.Add(progress.LogProcessing, "Action %d: %s", i+1, describeAction(a))
	}
	rec.Add(progress.LogOutput, "Planned %d actions for execution", len(actions))

	st.Actions = actions
	return st, nil
}

func describeAction(a Action) string {
	switch a.Kind {
	case ActionCreateEvent:
		when := a.Date
		if when == "" {
			when = "next free slot"
		}
		return fmt.Sprintf("%s %q on %s (%d min)", a.Kind, a.Title, when, a.DurationMinutes)
	case ActionAddNotes, ActionUpdateEvent:
		return fmt.Sprintf("%s on %s", a.Kind, a.EventID)
	default:
		return fmt.Sprintf("%s (%d min)", a.Kind, a.DurationMinutes)
	}
}
