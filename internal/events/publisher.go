package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"clinical-transcription-service/internal/models"
	"clinical-transcription-service/internal/observability/metrics"
)

// Publisher delivers session events to Kafka, one topic per event kind.
// With Kafka disabled it degrades to log-only mode, which keeps the
// orchestrator testable and lets development run without brokers.
type Publisher struct {
	writerStatus     *kafka.Writer
	writerTranscript *kafka.Writer
	writerError      *kafka.Writer
	principal        string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicStatus     string
	TopicTranscript string
	TopicError      string
	Principal       string
	Enabled         bool
}

// New creates a Kafka-backed notifier.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, session events in log-only mode")
		p := &Publisher{enabled: false, metrics: m}
		if cfg != nil {
			p.principal = cfg.Principal
		}
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicStatus", cfg.TopicStatus).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("topicError", cfg.TopicError).
		Str("principal", cfg.Principal).
		Msg("Kafka session event publisher initialized")

	return &Publisher{
		writerStatus:     newWriter(cfg.TopicStatus),
		writerTranscript: newWriter(cfg.TopicTranscript),
		writerError:      newWriter(cfg.TopicError),
		principal:        cfg.Principal,
		enabled:          true,
		metrics:          m,
	}
}

func (p *Publisher) NotifyStatus(ctx context.Context, sessionID string, ev models.StatusEvent) error {
	return p.publish(ctx, p.writerStatus, models.EventTypeStatus, sessionID, ev)
}

func (p *Publisher) NotifyTranscript(ctx context.Context, sessionID string, ev models.TranscriptEvent) error {
	return p.publish(ctx, p.writerTranscript, models.EventTypeTranscript, sessionID, ev)
}

func (p *Publisher) NotifyError(ctx context.Context, sessionID string, ev models.ErrorEvent) error {
	return p.publish(ctx, p.writerError, models.EventTypeError, sessionID, ev)
}

// publish marshals and writes one event, keyed by session id so all
// events for a session land on one partition in order.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, eventType, sessionID string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("eventType", eventType).Msg("Failed to marshal session event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("eventType", eventType).
		Str("sessionId", sessionID).
		RawJSON("payload", payload).
		Msg("Publishing session event")

	if !p.enabled || writer == nil {
		p.metrics.RecordEventPublish(eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(sessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("eventType", eventType).
			Str("sessionId", sessionID).
			Msg("Failed to write session event to Kafka")
		p.metrics.RecordEventPublish(eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordEventPublish(eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes all writers.
func (p *Publisher) Close() error {
	var err error
	for _, w := range []*kafka.Writer{p.writerStatus, p.writerTranscript, p.writerError} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("topic", w.Topic).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
