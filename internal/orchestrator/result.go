package orchestrator

import (
	"time"

	mferrors "meetflow/internal/errors"
)

// Result is what a caller sees of a finished or halted run.
type Result struct {
	WorkflowID           string              `json:"workflow_id"`
	Status               string              `json:"status"`
	FailedStage          string              `json:"failed_stage,omitempty"`
	Error                string              `json:"error,omitempty"`
	Analysis             Analysis            `json:"analysis"`
	Research             Research            `json:"research"`
	Related              []RelatedMeeting    `json:"related_meetings"`
	Actions              []Action            `json:"planned_actions"`
	Decisions            *DecisionAssessment `json:"decisions,omitempty"`
	Risks                *RiskAssessment     `json:"risks,omitempty"`
	Results              []ExecutionResult   `json:"execution_results"`
	Summary              string              `json:"summary"`
	NextSteps            []string            `json:"next_steps"`
	CalendarEventsCount  int                 `json:"calendar_events_count"`
	RelatedMeetingsCount int                 `json:"related_meetings_count"`
	StartedAt            time.Time           `json:"started_at"`
	FinishedAt           time.Time           `json:"finished_at"`

	// State is the final pipeline state.
	State State `json:"-"`
}

// Result statuses.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
)

func newResult(st State, started, finished time.Time, failure *StageError) Result {
	res := Result{
		WorkflowID:           st.WorkflowID,
		Status:               ResultCompleted,
		Analysis:             st.Analysis,
		Research:             st.Research,
		Related:              st.Related,
		Actions:              st.Actions,
		Decisions:            st.Decisions,
		Risks:                st.Risks,
		Results:              st.Results,
		Summary:              st.Summary,
		NextSteps:            st.NextSteps,
		CalendarEventsCount:  len(st.CalendarEvents),
		RelatedMeetingsCount: len(st.Related),
		StartedAt:            started,
		FinishedAt:           finished,
		State:                st,
	}
	if failure != nil {
		res.Status = ResultFailed
		res.FailedStage = failure.Stage
		res.Error = mferrors.FormatForDisplay(failure.Err)
	}
	return res
}

// Succeeded reports whether the run finished every stage.
func (r Result) Succeeded() bool {
	return r.Status == ResultCompleted
}
