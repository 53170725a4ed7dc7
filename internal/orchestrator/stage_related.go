package orchestrator

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"meetflow/internal/extract"
	"meetflow/internal/llm"
	"meetflow/internal/logging"
	"meetflow/internal/progress"
)

const (
	relatedAnalysisChars    = 500
	relatedDescriptionChars = 100
)

type relatedStage struct {
	gen    llm.Generator
	cfg    Config
	logger logging.Logger
}

func (relatedStage) Name() string  { return StageRelatedMeetings }
func (relatedStage) Title() string { return "Related Meetings Finder" }

func (relatedStage) Input(st State) string {
	return fmt.Sprintf("Analyzing %d calendar events", len(st.CalendarEvents))
}

type eventDigest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	Description string `json:"description,omitempty"`
}

func (s relatedStage) Run(ctx context.Context, st State, rec *Recorder) (State, error) {
	st.Related = nil
	if len(st.CalendarEvents) == 0 {
		rec.Add(progress.LogProcessing, "Calendar is empty, nothing to correlate")
		return st, nil
	}

	candidates := st.CalendarEvents
	if len(candidates) > s.cfg.RelatedLimit {
		candidates = candidates[:s.cfg.RelatedLimit]
	}
	titles := make(map[string]string, len(candidates))
	digests := make([]eventDigest, 0, len(candidates))
	for _, ev := range candidates {
		titles[ev.ID] = ev.Title
		digests = append(digests, eventDigest{
			ID:          ev.ID,
			Title:       ev.Title,
			Start:       ev.Start.Format(time.RFC3339),
			Description: truncate(ev.Description, relatedDescriptionChars),
		})
	}
	eventsJSON, err := indentJSON(digests)
	if err != nil {
		return st, err
	}
	analysis := ""
	if msg, ok := st.LastMessage(StageAnalyzeTranscript); ok {
		analysis = truncate(msg.Content, relatedAnalysisChars)
	}

	text, err := ask(ctx, s.gen, rec, llm.Request{
		Tag:    StageRelatedMeetings,
		System: relatedSystemPrompt,
		User:   fmt.Sprintf("Meeting analysis:\n%s\n\nCalendar events:\n%s\n\nWhich events are related?", analysis, eventsJSON),
		JSON:   true,
	})
	if err != nil {
		return st, err
	}

	matches, err := extract.DecodeList[RelatedMeeting](text, nil)
	if err != nil {
		logging.FromContext(ctx, s.logger).Warn("Related meetings output unparseable: %v", err)
		rec.Add(progress.LogError, "Could not parse related meetings: %v", err)
	}

	related := make([]RelatedMeeting, 0, len(matches))
	for _, m := range matches {
		title, ok := titles[m.EventID]
		if !ok {
			continue
		}
		m.Title = title
		related = append(related, m)
	}
	slices.SortStableFunc(related, func(a, b RelatedMeeting) int {
		return cmp.Compare(b.Score, a.Score)
	})

	rec.Add(progress.LogOutput, "Found %d related meetings", len(related))
	st.Related = related
	return st, nil
}
