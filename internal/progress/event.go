// Package progress fans pipeline stage events out to live observers.
package progress

import "time"

// EventType identifies a progress event.
type EventType string

const (
	EventStageStart       EventType = "stage_start"
	EventStageComplete    EventType = "stage_complete"
	EventHeartbeat        EventType = "heartbeat"
	EventConnected        EventType = "connected"
	EventWorkflowComplete EventType = "workflow_complete"
	EventWorkflowError    EventType = "workflow_error"
)

// Terminal reports whether no further events follow for the workflow.
func (t EventType) Terminal() bool {
	return t == EventWorkflowComplete || t == EventWorkflowError
}

// LogType tags a stage log entry.
type LogType string

const (
	LogProcessing LogType = "processing"
	LogInput      LogType = "input"
	LogOutput     LogType = "output"
	LogThinking   LogType = "thinking"
	LogAPICall    LogType = "api_call"
	LogError      LogType = "error"
)

// LogEntry is one line of stage activity.
type LogEntry struct {
	Type      LogType        `json:"type"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Event is a single progress notification. Events are treated as immutable
// once published.
type Event struct {
	Type       EventType  `json:"type"`
	Stage      string     `json:"stage,omitempty"`
	Title      string     `json:"title,omitempty"`
	WorkflowID string     `json:"workflow_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Logs       []LogEntry `json:"logs,omitempty"`
	Data       any        `json:"data,omitempty"`
}

// Heartbeat returns a synthetic liveness event.
func Heartbeat(workflowID string) Event {
	return Event{Type: EventHeartbeat, WorkflowID: workflowID, Timestamp: time.Now()}
}

// Connected returns the greeting sent when an observer attaches.
func Connected(workflowID string) Event {
	return Event{Type: EventConnected, WorkflowID: workflowID, Timestamp: time.Now()}
}
