// Package provider defines the boundary to the external streaming
// speech-to-text service.
package provider

import (
	"context"
	"errors"

	"clinical-transcription-service/internal/models"
)

// Params are the connection parameters for one streaming session.
type Params struct {
	SessionID    string
	SampleRateHz int
	Encoding     string
	Language     string
	// SpeakerCount is an optional diarization hint; 0 means provider default.
	SpeakerCount int
	// RedactPII requests provider-side redaction. Some provider
	// configurations reject it; the orchestrator retries once without it.
	RedactPII bool
}

// Result is one transcript result event from the provider.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
	// Words carries word-level speaker tags when diarization is on.
	Words []models.WordTag
}

// Connection error taxonomy. Implementations wrap their transport errors
// into these so the orchestrator's failure handling stays provider-agnostic.
var (
	ErrThrottled     = errors.New("provider: throttled")
	ErrLimitExceeded = errors.New("provider: limit exceeded")
	ErrUnavailable   = errors.New("provider: unavailable")

	// ErrBackpressure is returned by Stream.Send when the sink cannot
	// accept more data immediately; the caller waits on Drained.
	ErrBackpressure = errors.New("provider: sink backpressure")
)

// Stream is one live provider connection: an inbound audio sink and an
// outbound result stream.
type Stream interface {
	// Send writes one audio chunk to the inbound sink. Returns
	// ErrBackpressure when the sink is full.
	Send(chunk []byte) error

	// Drained signals that a backpressured sink can accept data again.
	Drained() <-chan struct{}

	// Results is the outbound result stream. Closed when the stream ends;
	// Err reports why.
	Results() <-chan Result

	// Err returns the terminal stream error after Results is closed, or
	// nil for a clean end.
	Err() error

	// CloseSend closes the sink for writes; results keep flowing until
	// the provider finishes.
	CloseSend() error

	// Close tears the connection down.
	Close() error
}

// Provider opens streaming connections to the speech-to-text service.
type Provider interface {
	Connect(ctx context.Context, p Params) (Stream, error)
}
