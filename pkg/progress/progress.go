package progress

import "time"

// EventType identifies what happened in a pipeline instance.
type EventType string

const (
	EventStepStarted   EventType = "step_started"
	EventPhaseChanged  EventType = "phase_changed"
	EventAttemptFailed EventType = "attempt_failed"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
)

// Event is one progress notification from a running step.
type Event struct {
	Type      EventType `json:"type"`
	StepID    string    `json:"step_id"`
	Phase     string    `json:"phase,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives progress events. Implementations must not block the caller
// for long; the pipeline publishes synchronously between state transitions.
type Sink interface {
	Publish(event Event)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(Event) {}
