package models

import (
	"time"
)

// SessionEvent is pushed to the browser over the session event stream each
// time the state machine transitions or a synthesis result lands.
type SessionEvent struct {
	SessionID string         `json:"session_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Event types
const (
	EventTypeStateChanged      = "session.state_changed"
	EventTypeQuestionsReady    = "session.questions_ready"
	EventTypePreliminaryReady  = "session.preliminary_ready"
	EventTypeResultReady       = "session.result_ready"
	EventTypeAnalysisReady     = "session.analysis_ready"
	EventTypeSynthesisFailed   = "session.synthesis_failed"
	EventTypeSessionReset      = "session.reset"
	EventTypeSessionTerminated = "session.terminated"
)
