package models

// ProgressEvent is one line of the newline-delimited JSON progress
// protocol streamed to the caller while a pipeline runs.
//
// Types follow the convention "start:<op>" / "end:<op>" for bracketed
// long operations, or a bare name for point events. Consumers match a
// start/end pair by operation name; an unmatched "start:" marks an
// in-flight (or abandoned) step.
type ProgressEvent struct {
	Type       string `json:"type"`
	Step       int    `json:"step,omitempty"`
	TotalSteps int    `json:"totalSteps,omitempty"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`

	// RunID correlates every event of one pipeline run; assigned when
	// the run starts.
	RunID string `json:"runId,omitempty"`
}

// Point event types emitted by the pipelines.
const (
	EventError            = "error"
	EventChangeStrategy   = "changeStrategy"
	EventFinalCompetitors = "finalCompetitors"
	EventFinalKeywords    = "finalKeywords"
	EventScoreKeyword     = "process:scoreKeyword"
)

// StartEvent builds a "start:<op>" event for a bracketed step.
func StartEvent(op string, step, total int, message string) ProgressEvent {
	return ProgressEvent{Type: "start:" + op, Step: step, TotalSteps: total, Message: message}
}

// EndEvent builds the matching "end:<op>" event.
func EndEvent(op string, step, total int, data any) ProgressEvent {
	return ProgressEvent{Type: "end:" + op, Step: step, TotalSteps: total, Data: data}
}
