package orchestrator

import (
	"context"
	"fmt"
	"unicode/utf8"

	"meetflow/internal/extract"
	"meetflow/internal/llm"
	"meetflow/internal/logging"
	"meetflow/internal/progress"
)

const assessActionLimit = 3

func firstActions(actions []Action) []Action {
	if len(actions) > assessActionLimit {
		return actions[:assessActionLimit]
	}
	return actions
}

// decisionStage annotates planned actions with priority and feasibility.
// The result is advisory and never changes which actions run.
type decisionStage struct {
	gen    llm.Generator
	logger logging.Logger
}

func (decisionStage) Name() string  { return StageAssessDecisions }
func (decisionStage) Title() string { return "Decision Analyzer" }

func (decisionStage) Input(st State) string {
	return fmt.Sprintf("Evaluating %d planned actions", len(st.Actions))
}

func (s decisionStage) Run(ctx context.Context, st State, rec *Recorder) (State, error) {
	st.Decisions = nil
	if len(st.Actions) == 0 {
		rec.Add(progress.LogProcessing, "No planned actions to evaluate")
		return st, nil
	}

	actionsJSON, err := indentJSON(firstActions(st.Actions))
	if err != nil {
		return st, err
	}
	text, err := ask(ctx, s.gen, rec, llm.Request{
		Tag:    StageAssessDecisions,
		System: decisionSystemPrompt,
		User:   "Planned actions to evaluate:\n" + actionsJSON,
		JSON:   true,
	})
	if err != nil {
		return st, err
	}

	assessment, err := extract.DecodeObject(text, DecisionAssessment{}, func(d []Decision) DecisionAssessment {
		return DecisionAssessment{Decisions: d}
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Warn("Decision assessment unparseable: %v", err)
		rec.Add(progress.LogError, "Could not parse decision assessment: %v", err)
		return st, nil
	}
	rec.Add(progress.LogOutput, "Assessed %d actions", len(assessment.Decisions))
	st.Decisions = &assessment
	return st, nil
}

// riskStage flags risks across the planned actions. Advisory only.
type riskStage struct {
	gen    llm.Generator
	logger logging.Logger
}

func (riskStage) Name() string  { return StageAssessRisks }
func (riskStage) Title() string { return "Risk Assessor" }

func (riskStage) Input(st State) string {
	return fmt.Sprintf("Checking %d actions against %d calendar events", len(st.Actions), len(st.CalendarEvents))
}

func (s riskStage) Run(ctx context.Context, st State, rec *Recorder) (State, error) {
	st.Risks = nil
	if len(st.Actions) == 0 {
		rec.Add(progress.LogProcessing, "No planned actions to assess")
		return st, nil
	}

	type brief struct {
		Kind  ActionKind `json:"action_type"`
		Title string     `json:"title,omitempty"`
		Date  string     `json:"date,omitempty"`
	}
	briefs := make([]brief, 0, assessActionLimit)
	for _, a := range firstActions(st.Actions) {
		briefs = append(briefs, brief{Kind: a.Kind, Title: a.Title, Date: a.Date})
	}
	briefsJSON, err := indentJSON(briefs)
	if err != nil {
		return st, err
	}
	user := fmt.Sprintf("Actions: %d\nCalendar events: %d\nTranscript length: %d characters\n\nPlanned actions:\n%s\n\nIdentify the risks:",
		len(st.Actions), len(st.CalendarEvents), utf8.RuneCountInString(st.Transcript), briefsJSON)

	text, err := ask(ctx, s.gen, rec, llm.Request{
		Tag:    StageAssessRisks,
		System: riskSystemPrompt,
		User:   user,
		JSON:   true,
	})
	if err != nil {
		return st, err
	}

	assessment, err := extract.DecodeObject(text, RiskAssessment{}, func(r []Risk) RiskAssessment {
		return RiskAssessment{Risks: r}
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Warn("Risk assessment unparseable: %v", err)
		rec.Add(progress.LogError, "Could not parse risk assessment: %v", err)
		return st, nil
	}
	level := assessment.OverallRiskLevel
	if level == "" {
		level = "unknown"
	}
	rec.Add(progress.LogOutput, "Identified %d risks, overall level %s", len(assessment.Risks), level)
	st.Risks = &assessment
	return st, nil
}
