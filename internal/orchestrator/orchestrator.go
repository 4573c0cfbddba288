// Package orchestrator drives one transcription session through
// connect, buffer, stream, stop, and cleanup, coordinating audio
// ingestion, the provider connection, and result consumption.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clinical-transcription-service/internal/events"
	"clinical-transcription-service/internal/models"
	"clinical-transcription-service/internal/observability/metrics"
	"clinical-transcription-service/internal/pii"
	"clinical-transcription-service/internal/provider"
	"clinical-transcription-service/internal/session"
)

// ErrSessionNotFound is returned by StopSession for an unknown id.
var ErrSessionNotFound = errors.New("orchestrator: session not found")

// TranscriptStore is the durable storage boundary: incremental append of
// finalized segments plus the session metadata written at start so the
// adapter can re-derive flags after in-memory state loss.
type TranscriptStore interface {
	SaveSessionMetadata(ctx context.Context, sessionID string, meta models.SessionMetadata) error
	AppendFinalSegment(ctx context.Context, sessionID string, seg models.TranscriptSegment) error
}

// Config bounds the per-session resource usage.
type Config struct {
	// BufferCapacity bounds pendingChunks while the provider handshake
	// is outstanding; the oldest chunk is evicted beyond it.
	BufferCapacity int
	// ConnectTimeout is the provider connection deadline.
	ConnectTimeout time.Duration
	// StopGrace is the delay between a stop request and removal, so
	// trailing provider results can still be persisted.
	StopGrace time.Duration
	// BackpressureWait bounds the wait for a sink drain signal. The
	// audio hot path never blocks longer than this.
	BackpressureWait time.Duration
	// DefaultOptions fills unset session option fields at start; a fully
	// zero option set inherits it wholesale, including the masking flag.
	DefaultOptions session.Options
	// Masking parameterizes the redaction pass applied to final segments.
	Masking pii.Options
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{
		BufferCapacity:   session.DefaultBufferCapacity,
		ConnectTimeout:   30 * time.Second,
		StopGrace:        3 * time.Second,
		BackpressureWait: time.Second,
	}
}

// Orchestrator owns every active session's provider connection and audio
// sink. Handlers for one session id are serialized on the session lock;
// distinct sessions proceed independently.
type Orchestrator struct {
	cfg         Config
	store       session.Store
	prov        provider.Provider
	engine      *pii.Engine
	transcripts TranscriptStore
	notifier    events.Notifier
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// New creates an orchestrator.
func New(
	cfg Config,
	store session.Store,
	prov provider.Provider,
	engine *pii.Engine,
	transcripts TranscriptStore,
	notifier events.Notifier,
	logger zerolog.Logger,
) *Orchestrator {
	def := DefaultConfig()
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = def.BufferCapacity
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = def.StopGrace
	}
	if cfg.BackpressureWait <= 0 {
		cfg.BackpressureWait = def.BackpressureWait
	}
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		prov:        prov,
		engine:      engine,
		transcripts: transcripts,
		notifier:    notifier,
		metrics:     metrics.DefaultMetrics,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
	}
}

// StartSession validates the option set, registers the session, and
// begins the provider connection attempt. Validation failures surface
// synchronously and leave no session record.
func (o *Orchestrator) StartSession(ctx context.Context, id string, opts session.Options) error {
	if id == "" {
		return errors.New("orchestrator: session id is required")
	}
	if opts == (session.Options{}) {
		opts = o.cfg.DefaultOptions
	} else {
		if opts.SampleRateHz == 0 {
			opts.SampleRateHz = o.cfg.DefaultOptions.SampleRateHz
		}
		if opts.Encoding == "" {
			opts.Encoding = o.cfg.DefaultOptions.Encoding
		}
		if opts.Language == "" {
			opts.Language = o.cfg.DefaultOptions.Language
		}
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	sess := session.New(id, opts, o.cfg.BufferCapacity, time.Now(), o.cfg.ConnectTimeout)
	if err := o.store.Insert(sess); err != nil {
		return err
	}
	o.metrics.RecordSessionStart()

	if err := o.transcripts.SaveSessionMetadata(ctx, id, models.SessionMetadata{
		Language:          opts.Language,
		PiiMaskingEnabled: opts.PiiMasking,
	}); err != nil {
		o.logger.Error().Err(err).Str("sessionId", id).Msg("Failed to persist session metadata")
	}

	o.logger.Info().
		Str("sessionId", id).
		Str("language", opts.Language).
		Int("sampleRateHz", opts.SampleRateHz).
		Bool("piiMasking", opts.PiiMasking).
		Msg("Session started, connecting to provider")
	o.notifyStatus(sess, session.StateConnecting, "connecting to transcription provider")

	sess.Lock()
	sess.SetConnectTimer(o.cfg.ConnectTimeout, func() { o.onConnectTimeout(sess) })
	sess.Unlock()

	go o.connect(sess)
	return nil
}

// connect issues one provider connection attempt with the session's
// current retry configuration and drives the resulting transition.
func (o *Orchestrator) connect(sess *session.Session) {
	sess.Lock()
	params := provider.Params{
		SessionID:    sess.ID,
		SampleRateHz: sess.Options.SampleRateHz,
		Encoding:     sess.Options.Encoding,
		Language:     sess.Options.Language,
		SpeakerCount: sess.Options.SpeakerCount,
		RedactPII:    sess.Options.PiiMasking && !sess.Retry.RedactionDisabled,
	}
	sess.Retry.Attempts++
	deadline := sess.ConnectionDeadline
	sess.Unlock()

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	stream, err := o.prov.Connect(ctx, params)

	sess.Lock()
	defer sess.Unlock()

	switch sess.State() {
	case session.StateClosed, session.StateStopping:
		// Stopped or retired while the handshake was in flight.
		if stream != nil {
			_ = stream.Close()
		}
		return
	}

	if err != nil {
		o.handleConnectFailure(sess, err)
		return
	}

	sess.StopTimers()
	if terr := sess.TransitionTo(session.StateActive); terr != nil {
		o.logger.Error().Err(terr).Str("sessionId", sess.ID).Msg("Unexpected state on provider ready")
		_ = stream.Close()
		return
	}
	sess.Stream = stream

	// Flush everything buffered during the handshake, in arrival order,
	// then clear the queue.
	flushed := 0
	for _, chunk := range sess.DrainPending() {
		if o.writeChunk(sess, chunk) {
			flushed++
		}
	}

	o.logger.Info().
		Str("sessionId", sess.ID).
		Int("attempt", sess.Retry.Attempts).
		Int("flushedChunks", flushed).
		Msg("Provider connection active")
	o.notifyStatus(sess, session.StateActive, "transcription active")

	go o.consumeResults(sess, stream)
}

// handleConnectFailure applies the bounded fallback: if the failed
// attempt requested PII redaction, retry exactly once with the feature
// disabled; otherwise surface the error and remove the session. Buffered
// chunks are never replayed into a retry with a different configuration.
// Caller holds the session lock.
func (o *Orchestrator) handleConnectFailure(sess *session.Session, err error) {
	if sess.State() != session.StateFailed {
		if terr := sess.TransitionTo(session.StateFailed); terr != nil {
			o.logger.Error().Err(terr).Str("sessionId", sess.ID).Msg("Invalid transition on connect failure")
		}
	}

	redactRequested := sess.Options.PiiMasking && !sess.Retry.RedactionDisabled
	if redactRequested && sess.Retry.Attempts == 1 {
		sess.Retry.RedactionDisabled = true
		dropped := sess.ClearPending()
		o.metrics.RecordFallbackRetry()
		o.logger.Warn().
			Err(err).
			Str("sessionId", sess.ID).
			Int("discardedChunks", dropped).
			Msg("Provider rejected connection with PII redaction, retrying once without it")
		o.notifyStatus(sess, session.StateFailed, "retrying connection without PII redaction")
		go o.connect(sess)
		return
	}

	o.logger.Error().Err(err).Str("sessionId", sess.ID).Int("attempts", sess.Retry.Attempts).
		Msg("Provider connection failed, removing session")
	o.failAndRemove(sess, fmt.Errorf("provider connection failed: %w", err))
}

// onConnectTimeout fires when the provider has not responded before the
// connection deadline.
func (o *Orchestrator) onConnectTimeout(sess *session.Session) {
	sess.Lock()
	defer sess.Unlock()

	switch sess.State() {
	case session.StateConnecting, session.StateBuffering, session.StateFailed:
	default:
		return
	}
	if sess.State() != session.StateFailed {
		_ = sess.TransitionTo(session.StateFailed)
	}
	o.logger.Error().Str("sessionId", sess.ID).Dur("timeout", o.cfg.ConnectTimeout).
		Msg("Provider connection deadline exceeded")
	o.failAndRemove(sess, fmt.Errorf("provider connection timed out after %s", o.cfg.ConnectTimeout))
}

// PushAudio ingests one audio chunk for the session. Hot path: it never
// blocks beyond the bounded backpressure wait and never returns an error
// for a malformed or orphaned chunk; those are dropped and logged.
func (o *Orchestrator) PushAudio(_ context.Context, id string, chunk []byte) error {
	sess, ok := o.store.Get(id)
	if !ok {
		o.logger.Warn().Str("sessionId", id).Int("bytes", len(chunk)).
			Msg("Audio chunk for unknown session dropped")
		o.metrics.RecordChunkDropped("orphaned")
		return nil
	}

	sess.Lock()
	defer sess.Unlock()

	st := sess.State()
	if !st.AcceptsAudio() {
		o.logger.Debug().Str("sessionId", id).Stringer("state", st).
			Msg("Audio chunk dropped, session not accepting audio")
		o.metrics.RecordChunkDropped("state")
		return nil
	}

	// 16-bit PCM frames must be non-empty with an even byte count.
	if len(chunk) == 0 || len(chunk)%2 != 0 {
		o.logger.Warn().Str("sessionId", id).Int("bytes", len(chunk)).
			Msg("Malformed audio chunk dropped")
		o.metrics.RecordChunkDropped("invalid")
		return nil
	}

	switch st {
	case session.StateConnecting:
		_ = sess.TransitionTo(session.StateBuffering)
		fallthrough
	case session.StateBuffering:
		if evicted := sess.Buffer(chunk); evicted > 0 {
			o.metrics.RecordBufferEviction()
			o.logger.Debug().Str("sessionId", id).Msg("Pending buffer full, oldest chunk evicted")
		}
	case session.StateActive:
		sess.RecordChunk(len(chunk))
		o.writeChunk(sess, chunk)
	}

	o.metrics.RecordAudioAccepted(len(chunk))
	return nil
}

// writeChunk writes one chunk to the provider sink, honoring the bounded
// backpressure wait. Exceeding the wait drops the chunk and moves on so a
// stalled sink cannot stall the capture side. Caller holds the session
// lock.
func (o *Orchestrator) writeChunk(sess *session.Session, chunk []byte) bool {
	err := sess.Stream.Send(chunk)
	if err == nil {
		return true
	}
	if !errors.Is(err, provider.ErrBackpressure) {
		// Fatal sink errors surface through the result stream; the write
		// path just records the loss.
		o.logger.Error().Err(err).Str("sessionId", sess.ID).Msg("Audio sink write failed")
		o.metrics.RecordChunkDropped("sink_error")
		return false
	}

	o.metrics.RecordBackpressureWait()
	timer := time.NewTimer(o.cfg.BackpressureWait)
	defer timer.Stop()
	select {
	case <-sess.Stream.Drained():
		if err := sess.Stream.Send(chunk); err != nil {
			o.logger.Error().Err(err).Str("sessionId", sess.ID).Msg("Audio sink write failed after drain")
			o.metrics.RecordChunkDropped("sink_error")
			return false
		}
		return true
	case <-timer.C:
		o.metrics.RecordBackpressureTimeout()
		o.logger.Warn().Str("sessionId", sess.ID).Dur("wait", o.cfg.BackpressureWait).
			Msg("Sink drain wait exceeded, dropping chunk")
		o.metrics.RecordChunkDropped("backpressure")
		return false
	}
}

// consumeResults drains the provider result stream until it closes.
func (o *Orchestrator) consumeResults(sess *session.Session, stream provider.Stream) {
	for res := range stream.Results() {
		o.handleResult(sess, stream, res)
	}
	err := stream.Err()

	sess.Lock()
	defer sess.Unlock()

	if sess.Stream != stream {
		// Superseded by a fallback reconnect.
		return
	}
	switch sess.State() {
	case session.StateActive:
		if err == nil {
			err = errors.New("provider closed the result stream")
		}
		_ = sess.TransitionTo(session.StateFailed)
		o.logger.Error().Err(err).Str("sessionId", sess.ID).Msg("Provider stream failed")
		o.failAndRemove(sess, fmt.Errorf("provider stream error: %w", err))
	case session.StateStopping:
		// Expected during drain; the cleanup timer finishes the session.
	}
}

// handleResult decodes one provider result into a transcript segment,
// attributes a speaker, masks PII on non-empty finals, persists, and
// notifies the client. The session lock is released before the persist
// and publish calls: a stalled broker or database must not block the
// audio hot path for the session. Per-session ordering is preserved
// because results arrive on a single consumer goroutine.
func (o *Orchestrator) handleResult(sess *session.Session, stream provider.Stream, res provider.Result) {
	sess.Lock()
	if sess.Stream != stream {
		sess.Unlock()
		return
	}
	st := sess.State()
	if st != session.StateActive && st != session.StateStopping {
		// Late result for a retired id.
		sess.Unlock()
		return
	}

	now := time.Now()
	spk, _ := sess.Speaker.Observe(res.Words, now)
	masking := sess.Options.PiiMasking && !sess.Retry.RedactionDisabled
	sess.Unlock()

	seg := models.TranscriptSegment{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		Text:        res.Text,
		Speaker:     spk,
		Confidence:  res.Confidence,
		TimestampMs: now.UnixMilli(),
		IsFinal:     res.IsFinal,
	}

	if !res.IsFinal {
		o.metrics.RecordPartialTranscript()
		o.notifyTranscript(sess, seg)
		return
	}
	if strings.TrimSpace(res.Text) == "" {
		return
	}

	if masking {
		masked, err := o.engine.Mask(res.Text, o.cfg.Masking)
		if err != nil {
			o.logger.Error().Err(err).Str("sessionId", sess.ID).Msg("PII masking failed, persisting unmasked")
		} else {
			seg.Text = masked.MaskedText
			seg.PiiDetected = masked.Metadata.Detected()
			if seg.PiiDetected {
				counts := make(map[string]int, len(masked.Metadata.CountsByType))
				for t, n := range masked.Metadata.CountsByType {
					counts[string(t)] = n
				}
				o.metrics.RecordPiiMasked(counts)
			}
		}
	}

	if err := o.transcripts.AppendFinalSegment(context.Background(), sess.ID, seg); err != nil {
		o.logger.Error().Err(err).Str("sessionId", sess.ID).Str("segmentId", seg.ID).
			Msg("Failed to persist final segment")
		o.metrics.RecordPersistError()
	}
	o.metrics.RecordFinalTranscript()
	o.notifyTranscript(sess, seg)
}

// StopSession closes the audio sink for writes and schedules removal
// after the grace period, so trailing provider results still land.
func (o *Orchestrator) StopSession(_ context.Context, id string) error {
	sess, ok := o.store.Get(id)
	if !ok {
		return ErrSessionNotFound
	}

	sess.Lock()
	defer sess.Unlock()

	switch sess.State() {
	case session.StateStopping, session.StateClosed:
		return nil
	case session.StateFailed:
		// Fallback retry in flight; a stop just retires the session.
		o.retire(sess, false)
		return nil
	}

	if err := sess.TransitionTo(session.StateStopping); err != nil {
		return err
	}
	sess.StopTimers()

	if sess.Stream != nil {
		if err := sess.Stream.CloseSend(); err != nil {
			o.logger.Warn().Err(err).Str("sessionId", id).Msg("Error closing audio sink")
		}
	}

	now := time.Now()
	sess.Speaker.CloseOut(now)
	sess.Speaker.MergeSegments()

	o.logger.Info().Str("sessionId", id).Msg("Session stopping, draining trailing results")
	o.notifyStatus(sess, session.StateStopping, speakerSummary(sess))

	sess.SetCleanupTimer(o.cfg.StopGrace, func() { o.finalize(sess) })
	return nil
}

// finalize runs after the stop grace period: the session becomes Closed
// and leaves the registry.
func (o *Orchestrator) finalize(sess *session.Session) {
	sess.Lock()
	defer sess.Unlock()
	if sess.State() != session.StateStopping {
		return
	}
	o.retire(sess, true)
}

// retire transitions to Closed, releases the connection and timers, and
// removes the session from the registry. Caller holds the session lock.
func (o *Orchestrator) retire(sess *session.Session, success bool) {
	_ = sess.TransitionTo(session.StateClosed)
	if sess.Stream != nil {
		_ = sess.Stream.Close()
	}
	sess.StopTimers()
	o.store.Remove(sess.ID)
	o.notifyStatus(sess, session.StateClosed, "session closed")
	o.metrics.RecordSessionEnd(success, time.Since(sess.StartedAt).Seconds())
	o.logger.Info().Str("sessionId", sess.ID).Bool("success", success).Msg("Session removed")
}

// failAndRemove surfaces an unrecoverable failure to the client and
// retires the session immediately. Caller holds the session lock; state
// is already Failed.
func (o *Orchestrator) failAndRemove(sess *session.Session, err error) {
	o.notifyError(sess, err)
	o.retire(sess, false)
}

// ActiveSessions returns the number of sessions in the registry.
func (o *Orchestrator) ActiveSessions() int {
	return o.store.Len()
}

func (o *Orchestrator) notifyStatus(sess *session.Session, st session.State, detail string) {
	ev := models.StatusEvent{
		EventType: models.EventTypeStatus,
		SessionID: sess.ID,
		Timestamp: time.Now().UnixMilli(),
		State:     st.String(),
		Detail:    detail,
	}
	if err := o.notifier.NotifyStatus(context.Background(), sess.ID, ev); err != nil {
		o.logger.Error().Err(err).Str("sessionId", sess.ID).Msg("Failed to publish status event")
	}
}

func (o *Orchestrator) notifyTranscript(sess *session.Session, seg models.TranscriptSegment) {
	ev := models.TranscriptEvent{
		EventType:   models.EventTypeTranscript,
		SessionID:   sess.ID,
		Timestamp:   seg.TimestampMs,
		Transcript:  seg.Text,
		IsFinal:     seg.IsFinal,
		Speaker:     seg.Speaker,
		Confidence:  seg.Confidence,
		PiiRedacted: seg.PiiDetected,
	}
	if err := o.notifier.NotifyTranscript(context.Background(), sess.ID, ev); err != nil {
		o.logger.Error().Err(err).Str("sessionId", sess.ID).Msg("Failed to publish transcript event")
	}
}

func (o *Orchestrator) notifyError(sess *session.Session, cause error) {
	ev := models.ErrorEvent{
		EventType: models.EventTypeError,
		SessionID: sess.ID,
		Timestamp: time.Now().UnixMilli(),
		Message:   cause.Error(),
	}
	if err := o.notifier.NotifyError(context.Background(), sess.ID, ev); err != nil {
		o.logger.Error().Err(err).Str("sessionId", sess.ID).Msg("Failed to publish error event")
	}
}

// speakerSummary renders cumulative per-speaker durations for the final
// status event.
func speakerSummary(sess *session.Session) string {
	timings := sess.Speaker.Timings
	if len(timings) == 0 {
		return "stopping"
	}
	speakers := make([]string, 0, len(timings))
	for spk := range timings {
		speakers = append(speakers, spk)
	}
	sort.Strings(speakers)
	parts := make([]string, 0, len(speakers))
	for _, spk := range speakers {
		parts = append(parts, fmt.Sprintf("%s=%s", spk, timings[spk].Round(time.Millisecond)))
	}
	return "stopping, speaker timings: " + strings.Join(parts, " ")
}
