package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"meetflow/internal/extract"
	"meetflow/internal/llm"
	"meetflow/internal/logging"
	"meetflow/internal/progress"
)

const fallbackSummaryChars = 200

type analyzeStage struct {
	gen    llm.Generator
	logger logging.Logger
}

func (analyzeStage) Name() string  { return StageAnalyzeTranscript }
func (analyzeStage) Title() string { return "Transcript Analyzer" }

func (analyzeStage) Input(st State) string {
	return fmt.Sprintf("Transcript length: %d characters", utf8.RuneCountInString(st.Transcript))
}

func (s analyzeStage) Run(ctx context.Context, st State, rec *Recorder) (State, error) {
	text, err := ask(ctx, s.gen, rec, llm.Request{
		Tag:    StageAnalyzeTranscript,
		System: analyzeSystemPrompt,
		User:   "Analyze this meeting transcript:\n\n" + st.Transcript,
		JSON:   true,
	})
	if err != nil {
		return st, err
	}

	fallback := defaultAnalysis(st.Transcript)
	analysis, err := extract.DecodeObject(text, fallback, func(items []actionItem) Analysis {
		a := fallback
		for _, item := range items {
			if item != "" {
				a.ActionItems = append(a.ActionItems, string(item))
			}
		}
		return a
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Warn("Analysis output unparseable, using defaults: %v", err)
		rec.Add(progress.LogError, "Could not parse analysis, using defaults: %v", err)
	}
	if strings.TrimSpace(analysis.Title) == "" {
		analysis.Title = fallback.Title
	}
	if strings.TrimSpace(analysis.Summary) == "" {
		analysis.Summary = fallback.Summary
	}

	rec.Add(progress.LogOutput, "Analysis complete: %d topics, %d action items, %d participants",
		len(analysis.Topics), len(analysis.ActionItems), len(analysis.Participants))

	st.Analysis = analysis
	encoded, err := indentJSON(analysis)
	if err != nil {
		return st, err
	}
	return st.withMessage(StageAnalyzeTranscript, "Meeting Analysis: "+encoded), nil
}

func defaultAnalysis(transcript string) Analysis {
	return Analysis{
		Title:   "Meeting Discussion",
		Summary: truncate(strings.TrimSpace(transcript), fallbackSummaryChars),
	}
}

// actionItem accepts a plain string or an object describing the task.
type actionItem string

var actionItemKeys = []string{"task", "action", "description", "title", "item"}

func (a *actionItem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = actionItem(strings.TrimSpace(s))
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for _, key := range actionItemKeys {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			*a = actionItem(strings.TrimSpace(v))
			return nil
		}
	}
	*a = actionItem(data)
	return nil
}
