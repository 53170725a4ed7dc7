package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"meetflow/internal/llm"
	"meetflow/internal/logging"
	"meetflow/internal/mail"
	"meetflow/internal/progress"
	"meetflow/internal/report"
)

const (
	summaryTranscriptChars = 500
	maxNextSteps           = 4
)

type summaryStage struct {
	gen    llm.Generator
	mailer mail.Mailer
	cfg    Config
	now    func() time.Time
	logger logging.Logger
}

func (summaryStage) Name() string  { return StageGenerateSummary }
func (summaryStage) Title() string { return "Summary Generator" }

func (summaryStage) Input(st State) string {
	return fmt.Sprintf("Summarizing %d planned actions and %d execution results", len(st.Actions), len(st.Results))
}

type summaryContext struct {
	TranscriptPreview string          `json:"transcript_preview"`
	Title             string          `json:"meeting_title"`
	Participants      []string        `json:"participants"`
	Topics            []string        `json:"key_topics"`
	ActionsTaken      []summaryAction `json:"actions_taken"`
	Results           []string        `json:"results"`
}

type summaryAction struct {
	Action    ActionKind `json:"action"`
	Title     string     `json:"title,omitempty"`
	Date      string     `json:"date,omitempty"`
	Attendees []string   `json:"attendees,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
}

func (s summaryStage) Run(ctx context.Context, st State, rec *Recorder) (State, error) {
	logger := logging.FromContext(ctx, s.logger)

	sc := summaryContext{
		TranscriptPreview: truncate(st.Transcript, summaryTranscriptChars),
		Title:             st.Analysis.Title,
		Participants:      st.Analysis.Participants,
		Topics:            st.Analysis.Topics,
	}
	for _, a := range st.Actions {
		sc.ActionsTaken = append(sc.ActionsTaken, summaryAction{
			Action: a.Kind, Title: a.Title, Date: a.Date, Attendees: a.Attendees, Reasoning: a.Reasoning,
		})
	}
	for _, r := range st.Results {
		sc.Results = append(sc.Results, fmt.Sprintf("%s: %s", r.Status, r.Message))
	}
	contextJSON, err := indentJSON(sc)
	if err != nil {
		return st, err
	}

	summary, err := ask(ctx, s.gen, rec, llm.Request{
		Tag:    StageGenerateSummary,
		System: summarySystemPrompt,
		User:   "Create a structured summary of this meeting:\n\n" + contextJSON,
	})
	if err != nil {
		return st, err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		rec.Add(progress.LogProcessing, "Model returned an empty summary, rendering the fallback")
		summary = FallbackSummary(st)
	}

	st.Summary = summary
	st.NextSteps = s.nextSteps(ctx, st, rec)
	s.send(ctx, st, rec, logger)

	rec.Add(progress.LogOutput, "Summary generated with %d next steps", len(st.NextSteps))
	return st.withMessage(StageGenerateSummary, "Summary:\n"+summary), nil
}

var listMarker = regexp.MustCompile(`^(\d+[.)]|[-*•])\s*`)

// nextSteps never fails the stage; errors yield no steps.
func (s summaryStage) nextSteps(ctx context.Context, st State, rec *Recorder) []string {
	text, err := ask(ctx, s.gen, rec, llm.Request{
		Tag:    StageGenerateSummary + ".next_steps",
		System: nextStepsSystemPrompt,
		User: fmt.Sprintf("Meeting summary:\n%s\n\nScheduled events: %d\n\nSuggest the next steps:",
			st.Summary, Count(st.Results, StatusSuccess)),
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Warn("Next steps generation failed: %v", err)
		return nil
	}
	return parseNextSteps(text)
}

func parseNextSteps(text string) []string {
	var steps []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line = strings.TrimSpace(listMarker.ReplaceAllString(line, "")); line == "" {
			continue
		}
		steps = append(steps, line)
		if len(steps) == maxNextSteps {
			break
		}
	}
	return steps
}

func (s summaryStage) send(ctx context.Context, st State, rec *Recorder, logger logging.Logger) {
	if s.mailer == nil || len(s.cfg.SummaryRecipients) == 0 {
		return
	}
	subject := s.cfg.SummarySubject + ": " + s.now().In(s.cfg.Hours.Location).Format("2006-01-02 03:04 PM MST")

	body := st.Summary
	if len(st.NextSteps) > 0 {
		body += "\n\n## Suggested Next Steps\n"
		for i, step := range st.NextSteps {
			body += fmt.Sprintf("%d. %s\n", i+1, step)
		}
	}
	html, err := report.Email(st.Analysis.Title, st.WorkflowID, body)
	if err != nil {
		logger.Warn("Rendering summary email failed, sending text only: %v", err)
		html = ""
	}
	err = s.mailer.Send(ctx, mail.Message{
		To:      s.cfg.SummaryRecipients,
		Subject: subject,
		Text:    body,
		HTML:    html,
	})
	if err != nil {
		logger.Warn("Summary email not sent: %v", err)
		rec.Add(progress.LogError, "Summary email not sent: %v", err)
		return
	}
	rec.Add(progress.LogProcessing, "Summary emailed to %d recipients", len(s.cfg.SummaryRecipients))
}

// FallbackSummary renders a deterministic markdown summary from the state.
func FallbackSummary(st State) string {
	var b strings.Builder
	b.WriteString("## Meeting Overview\n")
	b.WriteString(st.Analysis.Summary)
	b.WriteString("\n")

	bullets := func(header string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n", header)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	bullets("Participants", st.Analysis.Participants)
	bullets("Key Topics Discussed", st.Analysis.Topics)

	var scheduled []string
	for _, r := range st.Results {
		if r.Kind != ActionCreateEvent || r.Status != StatusSuccess {
			continue
		}
		line := r.Message
		if len(r.Slots) > 0 {
			line += ": " + r.Slots[0].String()
		}
		scheduled = append(scheduled, line)
	}
	for _, a := range st.Actions {
		if a.Kind == ActionCreateEvent && len(a.Attendees) > 0 && len(scheduled) > 0 {
			scheduled = append(scheduled, fmt.Sprintf("Attendees for %q: %s", titleOr(a.Title), strings.Join(a.Attendees, ", ")))
		}
	}
	bullets("Scheduled Events", scheduled)

	if len(st.Analysis.ActionItems) > 0 {
		b.WriteString("\n## Action Items\n")
		for _, item := range st.Analysis.ActionItems {
			fmt.Fprintf(&b, "- [ ] %s\n", item)
		}
	}
	return strings.TrimSpace(b.String())
}

func titleOr(title string) string {
	if title == "" {
		return defaultTitle
	}
	return title
}
