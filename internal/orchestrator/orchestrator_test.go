package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"meetflow/internal/calendar"
	"meetflow/internal/llm"
	"meetflow/internal/mail"
	"meetflow/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceTranscript = "Let's meet Tuesday for 30 minutes with Alice to discuss budget"

func aliceReplies() map[string]llm.Reply {
	return map[string]llm.Reply{
		StageAnalyzeTranscript: llm.Text(`{"meeting_title": "Budget discussion", "is_past_meeting": false,
			"mentioned_dates": ["2025-01-07"], "participants": ["Alice"], "key_topics": ["budget"],
			"action_items": ["Meet Alice on Tuesday"], "summary": "Meet Alice on Tuesday to discuss the budget."}`),
		StageResearchEntities: llm.Text(`<think>Alice is a person.</think>
			{"entities": [{"name": "Alice", "type": "person", "context": "attendee"}], "key_topics": ["budget"], "summary": "Budget talk"}`),
		StagePlanActions: llm.Text("Here is the plan:\n```json\n" +
			`[{"action_type": "create_event", "event_title": "Budget Discussion", "event_date": "2025-01-07",
			"duration_minutes": "30", "attendees": ["alice"], "notes": "Discuss budget"}]` + "\n```"),
		StageAssessDecisions: llm.Text(`[{"action_index": 0, "priority": "high", "feasibility": 9}]`),
		StageAssessRisks:     llm.Text(`{"risks": [], "overall_risk_level": "low"}`),
		StageGenerateSummary: llm.Text("## Meeting Overview\nBudget discussion with Alice on Tuesday."),
		StageGenerateSummary + ".next_steps": llm.Text("# Next steps\n1. Prepare the budget draft\n2. Share the agenda with Alice"),
	}
}

type harness struct {
	orch        *Orchestrator
	store       *calendar.MemoryStore
	gen         *llm.Scripted
	metrics     *Metrics
	broadcaster *progress.Broadcaster
}

func newHarness(t *testing.T, replies map[string]llm.Reply, mutate ...func(*Dependencies)) *harness {
	t.Helper()
	loc := newYork(t)
	cfg := DefaultConfig()
	cfg.Hours.Location = loc

	h := &harness{
		store:       calendar.NewMemoryStore(),
		gen:         llm.NewScripted(replies),
		metrics:     MustNewMetrics(prometheus.NewRegistry()),
		broadcaster: progress.NewBroadcaster(),
	}
	deps := Dependencies{
		Generator:   h.gen,
		Calendar:    h.store,
		Broadcaster: h.broadcaster,
		Metrics:     h.metrics,
		Config:      cfg,
		Now:         func() time.Time { return monday(loc) },
	}
	for _, m := range mutate {
		m(&deps)
	}
	orch, err := New(deps)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func drain(sub *progress.Subscription) []progress.Event {
	var events []progress.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestRunSchedulesMeetingFromTranscript(t *testing.T) {
	h := newHarness(t, aliceReplies())
	sub := h.broadcaster.Subscribe()
	defer sub.Close()

	res, err := h.orch.Run(context.Background(), Input{Transcript: aliceTranscript, AutoExecute: true})
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	assert.Len(t, res.WorkflowID, 8)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionCreateEvent, res.Actions[0].Kind)
	assert.Equal(t, 30, res.Actions[0].DurationMinutes)

	require.Len(t, res.Results, 1)
	assert.Equal(t, StatusSuccess, res.Results[0].Status)
	require.NotEmpty(t, res.Results[0].EventID)
	assert.Contains(t, res.Summary, "Alice")
	assert.Equal(t, []string{"Prepare the budget draft", "Share the agenda with Alice"}, res.NextSteps)

	ev, err := h.store.GetEvent(context.Background(), res.Results[0].EventID)
	require.NoError(t, err)
	loc := newYork(t)
	assert.True(t, ev.Start.Equal(time.Date(2025, 1, 7, 9, 0, 0, 0, loc)), ev.Start)
	assert.Equal(t, 30*time.Minute, ev.Duration())
	assert.Equal(t, []string{"alice.nguyen@example.com"}, ev.Attendees)

	require.NotNil(t, res.Decisions)
	assert.Equal(t, "high", res.Decisions.Decisions[0].Priority)
	require.NotNil(t, res.Risks)
	assert.Equal(t, "low", res.Risks.OverallRiskLevel)
	assert.Len(t, res.Research.Entities, 1)

	// The calendar was empty, so relevance scoring made no model call.
	assert.Equal(t, []string{
		StageAnalyzeTranscript,
		StageResearchEntities,
		StagePlanActions,
		StageAssessDecisions,
		StageAssessRisks,
		StageGenerateSummary,
		StageGenerateSummary + ".next_steps",
	}, h.gen.Tags())

	events := drain(sub)
	require.NotEmpty(t, events)
	var starts, completes []string
	for _, ev := range events {
		assert.Equal(t, res.WorkflowID, ev.WorkflowID)
		switch ev.Type {
		case progress.EventStageStart:
			starts = append(starts, ev.Stage)
		case progress.EventStageComplete:
			completes = append(completes, ev.Stage)
		}
	}
	assert.Equal(t, h.orch.Stages(), starts)
	assert.Equal(t, h.orch.Stages(), completes)
	last := events[len(events)-1]
	assert.Equal(t, progress.EventWorkflowComplete, last.Type)

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.runs.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.actionResults.WithLabelValues("CREATE_EVENT", "success")))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.runsActive))
}

func TestRunWithoutAutoExecuteLeavesCalendarAlone(t *testing.T) {
	h := newHarness(t, aliceReplies())

	res, err := h.orch.Run(context.Background(), Input{Transcript: aliceTranscript, WorkflowID: "fixed123"})
	require.NoError(t, err)
	assert.Equal(t, "fixed123", res.WorkflowID)
	require.Len(t, res.Results, 1)
	assert.Equal(t, KindPendingApproval, res.Results[0].Kind)

	events, err := h.store.ListEvents(context.Background(), calendar.Query{})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRunCoercesBarePlannedObject(t *testing.T) {
	replies := aliceReplies()
	replies[StagePlanActions] = llm.Text(`{"action_type": "CREATE_EVENT", "event_title": "Review [Q3] budget",
		"event_date": "2025-01-07", "duration_minutes": 30, "attendees": ["Alice"]}`)
	h := newHarness(t, replies)

	res, err := h.orch.Run(context.Background(), Input{Transcript: aliceTranscript, AutoExecute: true})
	require.NoError(t, err)

	require.Len(t, res.Actions, 1)
	assert.Equal(t, ActionCreateEvent, res.Actions[0].Kind)
	assert.Equal(t, "Review [Q3] budget", res.Actions[0].Title)
	assert.Equal(t, []string{"Alice"}, res.Actions[0].Attendees)

	require.Len(t, res.Results, 1)
	assert.Equal(t, StatusSuccess, res.Results[0].Status)
	ev, err := h.store.GetEvent(context.Background(), res.Results[0].EventID)
	require.NoError(t, err)
	assert.Equal(t, "Review [Q3] budget", ev.Title)
	assert.Equal(t, []string{"alice.nguyen@example.com"}, ev.Attendees)
}

func TestRunWrapsBareAnalysisList(t *testing.T) {
	replies := aliceReplies()
	replies[StageAnalyzeTranscript] = llm.Text(`["Send the deck", {"task": "Book a room"}, ""]`)
	h := newHarness(t, replies)

	res, err := h.orch.Run(context.Background(), Input{Transcript: aliceTranscript})
	require.NoError(t, err)

	assert.Equal(t, "Meeting Discussion", res.Analysis.Title)
	assert.Equal(t, []string{"Send the deck", "Book a room"}, res.Analysis.ActionItems)
	assert.Equal(t, aliceTranscript, res.Analysis.Summary)
}

func TestIndentJSONReportsEncodeFailure(t *testing.T) {
	out, err := indentJSON(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Empty(t, out)

	out, err = indentJSON(eventDigest{ID: "e1", Title: "Sync"})
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Sync"`)
}

func TestRunHaltsOnTransportFailure(t *testing.T) {
	replies := aliceReplies()
	replies[StagePlanActions] = llm.Fail(errors.New("connection reset by peer"))
	h := newHarness(t, replies)
	sub := h.broadcaster.Subscribe()
	defer sub.Close()

	res, err := h.orch.Run(context.Background(), Input{Transcript: aliceTranscript, AutoExecute: true})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePlanActions, stageErr.Stage)
	assert.False(t, res.Succeeded())
	assert.Equal(t, StagePlanActions, res.FailedStage)
	assert.NotEmpty(t, res.Error)
	// Work done before the failure is kept.
	assert.Equal(t, "Budget discussion", res.Analysis.Title)
	assert.Empty(t, res.Results)

	assert.NotContains(t, h.gen.Tags(), StageGenerateSummary)
	events := drain(sub)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, progress.EventWorkflowError, last.Type)
	assert.Equal(t, StagePlanActions, last.Stage)
	for _, ev := range events {
		if ev.Type == progress.EventStageComplete {
			assert.NotEqual(t, StagePlanActions, ev.Stage)
		}
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.stageFailures.WithLabelValues(StagePlanActions, "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.runs.WithLabelValues("error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.runsActive))
}

func TestRunAbsorbsMalformedOutput(t *testing.T) {
	transcript := strings.Repeat("we talked about many things ", 20)
	h := newHarness(t, map[string]llm.Reply{
		StageAnalyzeTranscript: llm.Text("Sorry, I cannot produce JSON today."),
		StageResearchEntities:  llm.Text("{entities: oops"),
		StagePlanActions:       llm.Text(`[{"action_type": "SEND_FAX"}]`),
		StageGenerateSummary:   llm.Text(""),
	})

	res, err := h.orch.Run(context.Background(), Input{Transcript: transcript, AutoExecute: true})
	require.NoError(t, err)

	assert.Equal(t, "Meeting Discussion", res.Analysis.Title)
	assert.Equal(t, []rune(transcript)[:fallbackSummaryChars], []rune(res.Analysis.Summary))
	assert.Empty(t, res.Actions)
	assert.Empty(t, res.Results)
	assert.Nil(t, res.Decisions)
	assert.Nil(t, res.Risks)
	assert.Empty(t, res.NextSteps)
	assert.True(t, strings.HasPrefix(res.Summary, "## Meeting Overview"))

	assert.NotContains(t, h.gen.Tags(), StageAssessDecisions)
	assert.NotContains(t, h.gen.Tags(), StageAssessRisks)
}

func TestRunRejectsEmptyTranscript(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.Run(context.Background(), Input{Transcript: "   "})
	require.ErrorIs(t, err, ErrEmptyTranscript)
}

type blockingGenerator struct{}

func (blockingGenerator) Model() string { return "blocking" }

func (blockingGenerator) Generate(ctx context.Context, _ llm.Request) (llm.Response, error) {
	<-ctx.Done()
	return llm.Response{}, ctx.Err()
}

func TestRunStageTimeout(t *testing.T) {
	h := newHarness(t, nil, func(d *Dependencies) {
		d.Generator = blockingGenerator{}
		d.Config.StageTimeout = 20 * time.Millisecond
	})

	_, err := h.orch.Run(context.Background(), Input{Transcript: aliceTranscript})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.stageFailures.WithLabelValues(StageAnalyzeTranscript, "timeout")))
}

func TestRunScoresRelatedMeetings(t *testing.T) {
	loc := newYork(t)
	replies := aliceReplies()
	replies[StageRelatedMeetings] = llm.Text(`[
		{"event_id": "q3", "relevance_score": 3, "reasoning": "older budget"},
		{"event_id": "ghost", "relevance_score": 10, "reasoning": "made up"},
		{"event_id": "q4", "relevance_score": 9, "reasoning": "same budget"}
	]`)
	seeded := calendar.NewMemoryStore(
		calendar.Event{ID: "q3", Title: "Q3 budget", Start: time.Date(2025, 1, 2, 10, 0, 0, 0, loc), End: time.Date(2025, 1, 2, 11, 0, 0, 0, loc)},
		calendar.Event{ID: "q4", Title: "Q4 budget", Start: time.Date(2025, 1, 3, 10, 0, 0, 0, loc), End: time.Date(2025, 1, 3, 11, 0, 0, 0, loc)},
	)
	h := newHarness(t, replies, func(d *Dependencies) { d.Calendar = seeded })

	res, err := h.orch.Run(context.Background(), Input{Transcript: aliceTranscript})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CalendarEventsCount)
	require.Len(t, res.Related, 2)
	assert.Equal(t, "q4", res.Related[0].EventID)
	assert.Equal(t, "Q4 budget", res.Related[0].Title)
	assert.Equal(t, "q3", res.Related[1].EventID)
	assert.Equal(t, 2, res.RelatedMeetingsCount)
	assert.Contains(t, h.gen.Tags(), StageRelatedMeetings)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func TestRunMailsSummary(t *testing.T) {
	mailer := &recordingMailer{}
	h := newHarness(t, aliceReplies(), func(d *Dependencies) {
		d.Mailer = mailer
		d.Config.SummaryRecipients = []string{"team@example.com"}
	})

	_, err := h.orch.Run(context.Background(), Input{Transcript: aliceTranscript, AutoExecute: true})
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, []string{"team@example.com"}, msg.To)
	assert.True(t, strings.HasPrefix(msg.Subject, "AI Meeting Summary: 2025-01-06"))
	assert.Contains(t, msg.Text, "Suggested Next Steps")
	assert.Contains(t, msg.HTML, "<h2>Meeting Overview</h2>")
}

func TestRunSurvivesMailFailure(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp: 550 mailbox unavailable")}
	h := newHarness(t, aliceReplies(), func(d *Dependencies) {
		d.Mailer = mailer
		d.Config.SummaryRecipients = []string{"team@example.com"}
	})

	res, err := h.orch.Run(context.Background(), Input{Transcript: aliceTranscript, AutoExecute: true})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())
	assert.Len(t, mailer.sent, 1)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Dependencies{Calendar: calendar.NewMemoryStore()})
	require.Error(t, err)
	_, err = New(Dependencies{Generator: llm.Offline{}})
	require.Error(t, err)
}
