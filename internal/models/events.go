package models

// Client notification event types. Delivery is at-least-once; the client
// does not acknowledge.
const (
	EventTypeStatus     = "session.status"
	EventTypeTranscript = "session.transcript"
	EventTypeError      = "session.error"
)

// StatusEvent describes a session state change.
type StatusEvent struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	State     string `json:"state"`
	Detail    string `json:"detail,omitempty"`
}

// TranscriptEvent carries one transcript result to the client.
type TranscriptEvent struct {
	EventType   string  `json:"eventType"`
	SessionID   string  `json:"sessionId"`
	Timestamp   int64   `json:"timestamp"`
	Transcript  string  `json:"transcript"`
	IsFinal     bool    `json:"isFinal"`
	Speaker     string  `json:"speaker"`
	Confidence  float64 `json:"confidence"`
	PiiRedacted bool    `json:"piiRedacted"`
}

// ErrorEvent carries a human-readable failure description to the client.
type ErrorEvent struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}
