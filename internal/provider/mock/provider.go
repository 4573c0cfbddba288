// Package mock provides a scriptable provider for development and tests
// without cloud credentials. It simulates progressive partial results,
// one final per utterance with word-level speaker tags, connect failures,
// and sink backpressure.
package mock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"clinical-transcription-service/internal/models"
	"clinical-transcription-service/internal/provider"
)

// Utterance is one scripted exchange.
type Utterance struct {
	Partials   []string
	Final      string
	Confidence float64
	Speaker    string
}

// DefaultUtterances drives the development mode when no script is given.
var DefaultUtterances = []Utterance{
	{
		Partials:   []string{"the patient", "the patient reports"},
		Final:      "the patient reports intermittent chest pain",
		Confidence: 0.94,
		Speaker:    "1",
	},
	{
		Partials:   []string{"since", "since last"},
		Final:      "since last Tuesday after exercise",
		Confidence: 0.91,
		Speaker:    "2",
	},
}

// Config controls simulated behavior.
type Config struct {
	// FailWhenRedact rejects any connect that requests provider-side
	// redaction.
	FailWhenRedact bool
	// FailConnects rejects the first N connect attempts.
	FailConnects int
	// ConnectErr overrides the error returned for rejected connects.
	ConnectErr error
	// Script replaces DefaultUtterances. Empty disables automatic
	// emission; tests then push results through Stream.Emit.
	Script []Utterance
	// ResultDelay is the simulated processing delay before each scripted
	// result. Zero emits synchronously.
	ResultDelay time.Duration
}

// Provider implements provider.Provider with scripted behavior.
type Provider struct {
	mu       sync.Mutex
	cfg      Config
	connects []provider.Params
	streams  []*Stream
}

// New creates a mock provider.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

// Connect records the attempt and either fails per config or returns a
// new scripted stream.
func (p *Provider) Connect(_ context.Context, params provider.Params) (provider.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.connects = append(p.connects, params)

	if p.cfg.FailConnects > 0 {
		p.cfg.FailConnects--
		return nil, p.connectErr()
	}
	if p.cfg.FailWhenRedact && params.RedactPII {
		return nil, p.connectErr()
	}

	s := newStream(params, p.cfg)
	p.streams = append(p.streams, s)
	return s, nil
}

func (p *Provider) connectErr() error {
	if p.cfg.ConnectErr != nil {
		return p.cfg.ConnectErr
	}
	return fmt.Errorf("%w: simulated connect failure", provider.ErrUnavailable)
}

// Connects returns every recorded connect attempt in order.
func (p *Provider) Connects() []provider.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]provider.Params, len(p.connects))
	copy(out, p.connects)
	return out
}

// LastStream returns the most recently opened stream, or nil.
func (p *Provider) LastStream() *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.streams) == 0 {
		return nil
	}
	return p.streams[len(p.streams)-1]
}

// Stream is a scripted provider connection. Exported so tests can drive
// backpressure and result emission directly.
type Stream struct {
	mu     sync.Mutex
	params provider.Params
	cfg    Config

	sent       [][]byte
	sendClosed bool
	closed     bool
	err        error

	results   chan provider.Result
	resultsWg sync.WaitGroup

	backpressured bool
	drainCh       chan struct{}

	script        []Utterance
	scriptIdx     int
	partialIdx    int
	alwaysDrained chan struct{}
}

func newStream(params provider.Params, cfg Config) *Stream {
	script := cfg.Script
	if script == nil {
		script = DefaultUtterances
	}
	ad := make(chan struct{})
	close(ad)
	return &Stream{
		params:        params,
		cfg:           cfg,
		results:       make(chan provider.Result, 64),
		script:        script,
		alwaysDrained: ad,
	}
}

// Send records the chunk and advances the script. Returns
// ErrBackpressure while backpressure is simulated.
func (s *Stream) Send(chunk []byte) error {
	s.mu.Lock()
	if s.closed || s.sendClosed {
		s.mu.Unlock()
		return errors.New("mock: send on closed stream")
	}
	if s.backpressured {
		s.mu.Unlock()
		return provider.ErrBackpressure
	}
	s.sent = append(s.sent, chunk)
	next := s.nextScripted()
	s.mu.Unlock()

	for _, res := range next {
		s.deliver(res)
	}
	return nil
}

// nextScripted returns the results triggered by one audio frame:
// one partial per frame, then the final once partials are exhausted.
// Caller holds the lock.
func (s *Stream) nextScripted() []provider.Result {
	if len(s.script) == 0 || s.scriptIdx >= len(s.script) {
		return nil
	}
	utt := s.script[s.scriptIdx]
	if s.partialIdx < len(utt.Partials) {
		text := utt.Partials[s.partialIdx]
		s.partialIdx++
		return []provider.Result{{
			Text:  text,
			Words: speakerTags(text, utt.Speaker),
		}}
	}
	s.scriptIdx++
	s.partialIdx = 0
	return []provider.Result{{
		Text:       utt.Final,
		IsFinal:    true,
		Confidence: utt.Confidence,
		Words:      speakerTags(utt.Final, utt.Speaker),
	}}
}

func speakerTags(text, speaker string) []models.WordTag {
	n := len(strings.Fields(text))
	tags := make([]models.WordTag, 0, n)
	for i := 0; i < n; i++ {
		tags = append(tags, models.WordTag{Speaker: speaker, Type: models.WordTypeSpeech})
	}
	return tags
}

func (s *Stream) deliver(res provider.Result) {
	if s.cfg.ResultDelay > 0 {
		s.resultsWg.Add(1)
		go func() {
			defer s.resultsWg.Done()
			time.Sleep(s.cfg.ResultDelay)
			s.Emit(res)
		}()
		return
	}
	s.Emit(res)
}

// Emit pushes one result to the outbound stream. Safe to call from tests.
func (s *Stream) Emit(res provider.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.results <- res
}

// SetBackpressure toggles the simulated sink-full condition. Turning it
// off fires the drain signal.
func (s *Stream) SetBackpressure(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.backpressured = true
		s.drainCh = make(chan struct{})
		return
	}
	if s.backpressured {
		s.backpressured = false
		close(s.drainCh)
	}
}

func (s *Stream) Drained() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backpressured {
		return s.drainCh
	}
	return s.alwaysDrained
}

func (s *Stream) Results() <-chan provider.Result { return s.results }

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Fail terminates the result stream with the given error.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.results)
}

// End terminates the result stream cleanly.
func (s *Stream) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.results)
}

func (s *Stream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendClosed = true
	return nil
}

// Close tears the stream down and ends the result stream if still open.
func (s *Stream) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.results)
	}
	s.mu.Unlock()
	s.resultsWg.Wait()
	return nil
}

// Sent returns the chunks written to the sink, in order.
func (s *Stream) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// SendClosed reports whether CloseSend was called.
func (s *Stream) SendClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendClosed
}
