package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"clinical-transcription-service/internal/provider"
	"clinical-transcription-service/internal/speaker"
)

// DefaultBufferCapacity bounds pendingChunks; the oldest chunk is evicted
// once the capacity is exceeded.
const DefaultBufferCapacity = 100

// Options is the full option set for one session, validated once at
// session start and fixed for the session's lifetime.
type Options struct {
	SampleRateHz int
	Encoding     string
	Language     string
	// SpeakerCount is an optional diarization hint; 0 leaves it to the provider.
	SpeakerCount int
	// PiiMasking enables reversible redaction of final transcripts.
	PiiMasking bool
}

var supportedSampleRates = map[int]bool{8000: true, 16000: true, 22050: true, 44100: true, 48000: true}
var supportedEncodings = map[string]bool{"LINEAR16": true, "MULAW": true, "FLAC": true}

// Validate reports the first invalid option. Called once at session start;
// failures surface synchronously and no session record is created.
func (o Options) Validate() error {
	if !supportedSampleRates[o.SampleRateHz] {
		return fmt.Errorf("session: unsupported sample rate %d", o.SampleRateHz)
	}
	if !supportedEncodings[o.Encoding] {
		return fmt.Errorf("session: unsupported encoding %q", o.Encoding)
	}
	if o.Language == "" {
		return errors.New("session: language is required")
	}
	if o.SpeakerCount < 0 || o.SpeakerCount > 6 {
		return fmt.Errorf("session: speaker count %d out of range [0,6]", o.SpeakerCount)
	}
	return nil
}

// RetryState tracks provider connection attempts and features disabled by
// the bounded fallback.
type RetryState struct {
	Attempts          int
	RedactionDisabled bool
}

// Session is the mutable per-session record. The embedded mutex is the
// per-session lock: every handler acting on the same id must hold it, so
// no two run concurrently. All other methods assume the caller holds it.
type Session struct {
	sync.Mutex

	ID                 string
	Options            Options
	StartedAt          time.Time
	ConnectionDeadline time.Time

	state          State
	pending        [][]byte
	bufferCapacity int
	bytesReceived  int64
	chunksReceived int64

	Speaker *speaker.State
	Retry   RetryState

	// Stream is the provider connection. Owned exclusively by the
	// orchestrator instance that created the session.
	Stream provider.Stream

	connectTimer *time.Timer
	cleanupTimer *time.Timer
}

// New creates a session in Connecting state.
func New(id string, opts Options, bufferCapacity int, now time.Time, connectTimeout time.Duration) *Session {
	if bufferCapacity <= 0 {
		bufferCapacity = DefaultBufferCapacity
	}
	return &Session{
		ID:                 id,
		Options:            opts,
		StartedAt:          now,
		ConnectionDeadline: now.Add(connectTimeout),
		state:              StateConnecting,
		bufferCapacity:     bufferCapacity,
		Speaker:            speaker.NewState(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// TransitionTo moves the session to the given state, rejecting transitions
// the lifecycle does not allow.
func (s *Session) TransitionTo(to State) error {
	if !canTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	return nil
}

// Buffer appends a chunk to pendingChunks, evicting the oldest entry once
// the bounded capacity is exceeded. Returns the number of evicted chunks
// (0 or 1) and updates the receive counters.
func (s *Session) Buffer(chunk []byte) int {
	evicted := 0
	if len(s.pending) >= s.bufferCapacity {
		s.pending = s.pending[1:]
		evicted = 1
	}
	s.pending = append(s.pending, chunk)
	s.RecordChunk(len(chunk))
	return evicted
}

// DrainPending returns the buffered chunks in original arrival order and
// clears the queue.
func (s *Session) DrainPending() [][]byte {
	out := s.pending
	s.pending = nil
	return out
}

// ClearPending discards the buffered chunks. Used across a fallback
// reconnect to a different configuration, where replay is not allowed.
func (s *Session) ClearPending() int {
	n := len(s.pending)
	s.pending = nil
	return n
}

// PendingLen returns the number of buffered chunks.
func (s *Session) PendingLen() int { return len(s.pending) }

// RecordChunk advances the monotonic receive counters.
func (s *Session) RecordChunk(n int) {
	s.chunksReceived++
	s.bytesReceived += int64(n)
}

// Counters returns (bytesReceived, chunksReceived).
func (s *Session) Counters() (int64, int64) {
	return s.bytesReceived, s.chunksReceived
}

// SetConnectTimer installs the connection deadline timer, replacing any
// previous one.
func (s *Session) SetConnectTimer(d time.Duration, fn func()) {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
	}
	s.connectTimer = time.AfterFunc(d, fn)
}

// SetCleanupTimer installs the stop-grace cleanup timer.
func (s *Session) SetCleanupTimer(d time.Duration, fn func()) {
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
	}
	s.cleanupTimer = time.AfterFunc(d, fn)
}

// StopTimers cancels the session's timers. Must run on every path that
// retires the session so a stale timer cannot fire against a reused id.
func (s *Session) StopTimers() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
		s.cleanupTimer = nil
	}
}
