// Package config loads service configuration from the environment.
// Every option is enumerated with a default; invalid values fall back to
// the default rather than failing startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the full service configuration, loaded once at startup.
type Configuration struct {
	Service       ServiceConfig
	Provider      ProviderConfig
	Session       SessionConfig
	PII           PIIConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the service.
type ServiceConfig struct {
	Principal string
	OpsPort   string
}

// ProviderConfig selects and parameterizes the speech-to-text provider.
type ProviderConfig struct {
	Name         string // "google" or "mock"
	LanguageCode string
	SampleRateHz int
	Encoding     string
}

// SessionConfig bounds per-session resource usage in the orchestrator.
type SessionConfig struct {
	BufferCapacity   int
	ConnectTimeout   time.Duration
	StopGrace        time.Duration
	BackpressureWait time.Duration
}

// PIIConfig sets session defaults for the redaction engine.
type PIIConfig struct {
	MaskingDefault bool
	PreserveLength bool
	MaskChar       string
}

// KafkaConfig configures the client notification channel.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicStatus     string
	TopicTranscript string
	TopicError      string
	Principal       string
}

// ObservabilityConfig configures logging and metrics.
type ObservabilityConfig struct {
	LogLevel string
	Database string
}

// Load reads the configuration from the environment.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-clinical-transcription")
	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			OpsPort:   envOrDefault("OPS_PORT", "8080"),
		},
		Provider: ProviderConfig{
			Name:         envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode: envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz: envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			Encoding:     envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
		},
		Session: SessionConfig{
			BufferCapacity:   envOrDefaultInt("SESSION_BUFFER_CAPACITY", 100),
			ConnectTimeout:   envOrDefaultDuration("SESSION_CONNECT_TIMEOUT", 30*time.Second),
			StopGrace:        envOrDefaultDuration("SESSION_STOP_GRACE", 3*time.Second),
			BackpressureWait: envOrDefaultDuration("SESSION_BACKPRESSURE_WAIT", time.Second),
		},
		PII: PIIConfig{
			MaskingDefault: envOrDefaultBool("PII_MASKING_DEFAULT", true),
			PreserveLength: envOrDefaultBool("PII_PRESERVE_LENGTH", false),
			MaskChar:       envOrDefault("PII_MASK_CHAR", "*"),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicStatus:     envOrDefault("KAFKA_TOPIC_STATUS", "session.status"),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "session.transcript"),
			TopicError:      envOrDefault("KAFKA_TOPIC_ERROR", "session.error"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel: envOrDefault("LOG_LEVEL", "info"),
			Database: envOrDefault("SQLITE_PATH", "transcripts.db"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
