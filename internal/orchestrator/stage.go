package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"meetflow/internal/extract"
	"meetflow/internal/llm"
	"meetflow/internal/observability"
	"meetflow/internal/progress"

	"go.opentelemetry.io/otel/attribute"
)

// Stage names, in pipeline order.
const (
	StageAnalyzeTranscript = "analyze_transcript"
	StageResearchEntities  = "research_entities"
	StageFetchCalendar     = "fetch_calendar_context"
	StageRelatedMeetings   = "find_related_meetings"
	StagePlanActions       = "plan_actions"
	StageAssessDecisions   = "assess_decisions"
	StageAssessRisks       = "assess_risks"
	StageExecuteActions    = "execute_actions"
	StageGenerateSummary   = "generate_summary"
)

// Stage is one step of the pipeline. Run receives a copy of the state and
// returns the updated copy. A returned error halts the run; malformed model
// output must be absorbed by the stage itself.
type Stage interface {
	Name() string
	Title() string
	// Input describes what the stage is about to consume.
	Input(st State) string
	Run(ctx context.Context, st State, rec *Recorder) (State, error)
}

// Recorder collects the log entries a stage reports with its progress
// events.
type Recorder struct {
	mu      sync.Mutex
	now     func() time.Time
	entries []progress.LogEntry
}

func newRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Add appends a formatted entry.
func (r *Recorder) Add(kind progress.LogType, format string, args ...any) {
	r.AddMeta(kind, nil, format, args...)
}

// AddMeta appends a formatted entry with metadata.
func (r *Recorder) AddMeta(kind progress.LogType, meta map[string]any, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	r.mu.Lock()
	r.entries = append(r.entries, progress.LogEntry{Type: kind, Message: msg, Metadata: meta, Timestamp: r.now()})
	r.mu.Unlock()
}

// Entries returns a snapshot of the recorded entries.
func (r *Recorder) Entries() []progress.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.LogEntry(nil), r.entries...)
}

const thinkingPreview = 500

// ask runs one model call and records the api_call and thinking entries.
// The returned text has thinking spans removed.
func ask(ctx context.Context, gen llm.Generator, rec *Recorder, req llm.Request) (string, error) {
	ctx, span := observability.ChildSpan(ctx, observability.SpanLLMGenerate,
		attribute.String(observability.AttrModel, gen.Model()),
		attribute.String(observability.AttrStage, req.Tag),
	)
	resp, err := gen.Generate(ctx, req)
	observability.EndSpan(span, err)
	if err != nil {
		rec.Add(progress.LogError, "Model call failed: %v", err)
		return "", fmt.Errorf("generate %s: %w", req.Tag, err)
	}
	rec.AddMeta(progress.LogAPICall, map[string]any{
		"model":      resp.Model,
		"latency_ms": resp.Latency.Milliseconds(),
	}, "Model call completed")
	if thinking := extract.Thinking(resp.Text); thinking != "" {
		rec.Add(progress.LogThinking, "%s", truncate(thinking, thinkingPreview))
	}
	return extract.StripThinking(resp.Text), nil
}

// indentJSON renders v for prompts and stage messages.
func indentJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %T: %w", v, err)
	}
	return string(b), nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
