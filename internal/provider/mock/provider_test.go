package mock

import (
	"context"
	"errors"
	"testing"

	"clinical-transcription-service/internal/provider"
)

func testParams(redact bool) provider.Params {
	return provider.Params{
		SessionID:    "s1",
		SampleRateHz: 16000,
		Encoding:     "LINEAR16",
		Language:     "en-US",
		RedactPII:    redact,
	}
}

func collect(s *Stream, n int) []provider.Result {
	out := make([]provider.Result, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, <-s.Results())
	}
	return out
}

func TestScriptedEmission(t *testing.T) {
	p := New(Config{Script: []Utterance{{
		Partials:   []string{"the patient", "the patient reports"},
		Final:      "the patient reports chest pain",
		Confidence: 0.9,
		Speaker:    "1",
	}}})

	stream, err := p.Connect(context.Background(), testParams(false))
	if err != nil {
		t.Fatal(err)
	}
	s := stream.(*Stream)

	for i := 0; i < 3; i++ {
		if err := s.Send([]byte{1, 2}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	results := collect(s, 3)
	if results[0].IsFinal || results[1].IsFinal {
		t.Error("first two results should be partials")
	}
	final := results[2]
	if !final.IsFinal || final.Text != "the patient reports chest pain" {
		t.Errorf("unexpected final: %+v", final)
	}
	if len(final.Words) != 5 {
		t.Errorf("expected 5 word tags, got %d", len(final.Words))
	}
	if final.Words[0].Speaker != "1" {
		t.Errorf("expected speaker 1, got %q", final.Words[0].Speaker)
	}
}

func TestFailWhenRedact(t *testing.T) {
	p := New(Config{FailWhenRedact: true})

	if _, err := p.Connect(context.Background(), testParams(true)); !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for redacting connect, got %v", err)
	}
	if _, err := p.Connect(context.Background(), testParams(false)); err != nil {
		t.Errorf("non-redacting connect should succeed, got %v", err)
	}
	if got := len(p.Connects()); got != 2 {
		t.Errorf("expected 2 recorded attempts, got %d", got)
	}
}

func TestBackpressureSignaling(t *testing.T) {
	p := New(Config{Script: []Utterance{}})
	stream, err := p.Connect(context.Background(), testParams(false))
	if err != nil {
		t.Fatal(err)
	}
	s := stream.(*Stream)

	select {
	case <-s.Drained():
	default:
		t.Fatal("unpressured stream must report drained")
	}

	s.SetBackpressure(true)
	if err := s.Send([]byte{1, 2}); !errors.Is(err, provider.ErrBackpressure) {
		t.Fatalf("expected ErrBackpressure, got %v", err)
	}
	drained := s.Drained()
	select {
	case <-drained:
		t.Fatal("drain signal fired while backpressured")
	default:
	}

	s.SetBackpressure(false)
	select {
	case <-drained:
	default:
		t.Fatal("drain signal did not fire on release")
	}
	if err := s.Send([]byte{1, 2}); err != nil {
		t.Errorf("send after drain: %v", err)
	}
}

func TestSendAfterCloseSend(t *testing.T) {
	p := New(Config{Script: []Utterance{}})
	stream, _ := p.Connect(context.Background(), testParams(false))
	s := stream.(*Stream)

	if err := s.CloseSend(); err != nil {
		t.Fatal(err)
	}
	if err := s.Send([]byte{1, 2}); err == nil {
		t.Error("send after CloseSend must fail")
	}
	if !s.SendClosed() {
		t.Error("SendClosed should report true")
	}
}
