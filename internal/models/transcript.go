// Package models defines the data structures shared across the
// transcription pipeline.
package models

// Word type tags attached to provider result words. Anything other than
// actual speech (punctuation, fillers, markers) is attributed with lower
// confidence by the speaker aggregator.
const (
	WordTypeSpeech      = "speech"
	WordTypePunctuation = "punctuation"
)

// WordTag is the word-level speaker attribution emitted by the provider
// alongside a transcript result.
type WordTag struct {
	Speaker string `json:"speaker"`
	Type    string `json:"type"`
}

// TranscriptSegment is one speaker-attributed piece of transcript.
// Immutable once IsFinal is set; only final segments are persisted.
type TranscriptSegment struct {
	ID          string  `json:"id"`
	SessionID   string  `json:"sessionId"`
	Text        string  `json:"text"`
	Speaker     string  `json:"speaker"`
	Confidence  float64 `json:"confidence"`
	TimestampMs int64   `json:"timestampMs"`
	IsFinal     bool    `json:"isFinal"`
	PiiDetected bool    `json:"piiDetected"`
}

// SessionMetadata is the durable per-session metadata used to re-derive
// session flags when in-memory state is unavailable.
type SessionMetadata struct {
	Language          string `json:"language"`
	PiiMaskingEnabled bool   `json:"piiMaskingEnabled"`
}
