package orchestrator

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"meetflow/internal/calendar"
)

// Message is one entry of the run's append-only handoff log.
type Message struct {
	Role    string `json:"role"`
	Stage   string `json:"stage"`
	Content string `json:"content"`
}

// Analysis is the structured reading of the transcript.
type Analysis struct {
	Title        string   `json:"meeting_title"`
	IsPast       bool     `json:"is_past_meeting"`
	Dates        []string `json:"mentioned_dates"`
	Participants []string `json:"participants"`
	Topics       []string `json:"key_topics"`
	ActionItems  []string `json:"action_items"`
	Summary      string   `json:"summary"`
}

// Entity is something the transcript refers to.
type Entity struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Context string `json:"context"`
}

// Research is the entity extraction output.
type Research struct {
	Entities  []Entity `json:"entities"`
	KeyTopics []string `json:"key_topics"`
	Summary   string   `json:"summary"`
}

// RelatedMeeting links the transcript to a calendar event.
type RelatedMeeting struct {
	EventID   string  `json:"event_id"`
	Title     string  `json:"title,omitempty"`
	Score     float64 `json:"relevance_score"`
	Reasoning string  `json:"reasoning"`
}

// Decision is an advisory assessment of one planned action.
type Decision struct {
	ActionIndex    int      `json:"action_index"`
	Priority       string   `json:"priority"`
	Feasibility    float64  `json:"feasibility"`
	Recommendation string   `json:"recommendation"`
	Risks          []string `json:"risks"`
	Mitigation     string   `json:"mitigation"`
}

// DecisionAssessment is the output of the decision stage.
type DecisionAssessment struct {
	Decisions         []Decision `json:"decisions"`
	OverallAssessment string     `json:"overall_assessment"`
	CriticalPath      []string   `json:"critical_path_items"`
}

// Risk is one identified risk.
type Risk struct {
	Description     string `json:"description"`
	Severity        string `json:"severity"`
	AffectedActions []int  `json:"affected_actions"`
	Mitigation      string `json:"mitigation"`
	Owner           string `json:"owner"`
}

// RiskAssessment is the output of the risk stage.
type RiskAssessment struct {
	Risks            []Risk   `json:"risks"`
	OverallRiskLevel string   `json:"overall_risk_level"`
	CriticalBlockers []string `json:"critical_blockers"`
	Recommendations  []string `json:"recommendations"`
}

// ActionKind is the calendar mutation an action performs.
type ActionKind string

const (
	ActionAddNotes    ActionKind = "ADD_NOTES"
	ActionCreateEvent ActionKind = "CREATE_EVENT"
	ActionFindSlot    ActionKind = "FIND_SLOT"
	ActionUpdateEvent ActionKind = "UPDATE_EVENT"

	// KindPendingApproval tags the synthetic result of a run without auto-execute.
	KindPendingApproval ActionKind = "pending_approval"
)

var actionAliases = map[string]ActionKind{
	"ADD_NOTES":           ActionAddNotes,
	"ADD_NOTE":            ActionAddNotes,
	"CREATE_EVENT":        ActionCreateEvent,
	"CREATE_MEETING":      ActionCreateEvent,
	"SCHEDULE_MEETING":    ActionCreateEvent,
	"FIND_SLOT":           ActionFindSlot,
	"FIND_SLOTS":          ActionFindSlot,
	"FIND_AVAILABLE_SLOT": ActionFindSlot,
	"UPDATE_EVENT":        ActionUpdateEvent,
}

// ParseActionKind normalizes free-form kinds such as "create event" or
// "find_available_slot".
func ParseActionKind(raw string) (ActionKind, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if kind, ok := actionAliases[key]; ok {
		return kind, nil
	}
	return "", fmt.Errorf("unknown action type %q", raw)
}

// DefaultDurationMinutes applies when an action names no duration.
const DefaultDurationMinutes = 60

// Action is one planned calendar mutation. Actions are produced by the
// planning stage and not modified afterwards.
type Action struct {
	Kind            ActionKind `json:"action_type"`
	EventID         string     `json:"calendar_event_id,omitempty"`
	Title           string     `json:"event_title,omitempty"`
	Date            string     `json:"event_date,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Attendees       []string   `json:"attendees,omitempty"`
	Reasoning       string     `json:"reasoning,omitempty"`
}

// Duration returns the action's meeting length.
func (a Action) Duration() time.Duration {
	if a.DurationMinutes <= 0 {
		return DefaultDurationMinutes * time.Minute
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

// plannedAction is the lenient shape the model answers with.
type plannedAction struct {
	Kind      string    `json:"action_type"`
	EventID   string    `json:"calendar_event_id"`
	Title     string    `json:"event_title"`
	Date      string    `json:"event_date"`
	Notes     string    `json:"notes"`
	Duration  flexInt   `json:"duration_minutes"`
	Attendees flexNames `json:"attendees"`
	Reasoning string    `json:"reasoning"`
}

func (p plannedAction) action() (Action, error) {
	kind, err := ParseActionKind(p.Kind)
	if err != nil {
		return Action{}, err
	}
	duration := int(p.Duration)
	if duration <= 0 {
		duration = DefaultDurationMinutes
	}
	return Action{
		Kind:            kind,
		EventID:         strings.TrimSpace(p.EventID),
		Title:           strings.TrimSpace(p.Title),
		Date:            strings.TrimSpace(p.Date),
		Notes:           p.Notes,
		DurationMinutes: duration,
		Attendees:       slices.Clone([]string(p.Attendees)),
		Reasoning:       p.Reasoning,
	}, nil
}

// flexInt accepts 30, 30.0, "30" and null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if v, err := n.Float64(); err == nil {
			*f = flexInt(v)
			return nil
		}
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(v)
		return nil
	}
	*f = 0
	return nil
}

// flexNames accepts a list of names, a single comma separated string or null.
type flexNames []string

func (f *flexNames) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*f = out
		return nil
	}
	*f = nil
	return nil
}

// ResultStatus is the outcome of one executed action.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
	StatusWarning ResultStatus = "warning"
)

// ExecutionResult records what happened to one action.
type ExecutionResult struct {
	Status    ResultStatus        `json:"status"`
	Kind      ActionKind          `json:"action_type"`
	Message   string              `json:"message"`
	EventID   string              `json:"event_id,omitempty"`
	Detail    string              `json:"technical_details,omitempty"`
	Slots     []calendar.TimeSlot `json:"slots,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// State is the pipeline record handed from stage to stage. Stages receive a
// copy and return the updated copy; slices are never appended in place.
type State struct {
	WorkflowID     string              `json:"workflow_id"`
	Transcript     string              `json:"transcript"`
	AutoExecute    bool                `json:"auto_execute"`
	Analysis       Analysis            `json:"analysis"`
	Research       Research            `json:"research"`
	CalendarEvents []calendar.Event    `json:"calendar_events"`
	Related        []RelatedMeeting    `json:"related_meetings"`
	Actions        []Action            `json:"planned_actions"`
	Decisions      *DecisionAssessment `json:"decisions,omitempty"`
	Risks          *RiskAssessment     `json:"risks,omitempty"`
	Results        []ExecutionResult   `json:"execution_results"`
	Summary        string              `json:"summary"`
	NextSteps      []string            `json:"next_steps"`
	Messages       []Message           `json:"messages"`
}

// withMessage returns st with msg appended to a fresh backing array.
func (st State) withMessage(stage, content string) State {
	st.Messages = append(slices.Clip(st.Messages), Message{Role: "assistant", Stage: stage, Content: content})
	return st
}

// LastMessage returns the most recent message written by stage.
func (st State) LastMessage(stage string) (Message, bool) {
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].Stage == stage {
			return st.Messages[i], true
		}
	}
	return Message{}, false
}

// Count returns the number of results with status.
func Count(results []ExecutionResult, status ResultStatus) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}
	return n
}
