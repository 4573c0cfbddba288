package config

import (
	"os"
	"testing"
	"time"
)

var allVars = []string{
	"SERVICE_PRINCIPAL", "OPS_PORT", "LOG_LEVEL", "SQLITE_PATH",
	"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ", "STT_AUDIO_ENCODING",
	"SESSION_BUFFER_CAPACITY", "SESSION_CONNECT_TIMEOUT", "SESSION_STOP_GRACE", "SESSION_BACKPRESSURE_WAIT",
	"PII_MASKING_DEFAULT", "PII_PRESERVE_LENGTH", "PII_MASK_CHAR",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_STATUS", "KAFKA_TOPIC_TRANSCRIPT", "KAFKA_TOPIC_ERROR", "KAFKA_PRINCIPAL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range allVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Service.Principal != "svc-clinical-transcription" {
		t.Errorf("expected default principal, got %s", cfg.Service.Principal)
	}
	if cfg.Provider.Name != "mock" {
		t.Errorf("expected default provider 'mock', got %s", cfg.Provider.Name)
	}
	if cfg.Provider.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.Provider.LanguageCode)
	}
	if cfg.Provider.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.Provider.SampleRateHz)
	}
	if cfg.Session.BufferCapacity != 100 {
		t.Errorf("expected default buffer capacity 100, got %d", cfg.Session.BufferCapacity)
	}
	if cfg.Session.ConnectTimeout != 30*time.Second {
		t.Errorf("expected default connect timeout 30s, got %v", cfg.Session.ConnectTimeout)
	}
	if cfg.Session.StopGrace != 3*time.Second {
		t.Errorf("expected default stop grace 3s, got %v", cfg.Session.StopGrace)
	}
	if cfg.Session.BackpressureWait != time.Second {
		t.Errorf("expected default backpressure wait 1s, got %v", cfg.Session.BackpressureWait)
	}
	if !cfg.PII.MaskingDefault {
		t.Error("expected PII masking enabled by default")
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("STT_PROVIDER", "google")
	t.Setenv("STT_LANGUAGE_CODE", "es-ES")
	t.Setenv("STT_SAMPLE_RATE_HZ", "8000")
	t.Setenv("SESSION_BUFFER_CAPACITY", "50")
	t.Setenv("SESSION_CONNECT_TIMEOUT", "10s")
	t.Setenv("PII_MASKING_DEFAULT", "false")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Provider.Name != "google" {
		t.Errorf("expected provider 'google', got %s", cfg.Provider.Name)
	}
	if cfg.Provider.LanguageCode != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", cfg.Provider.LanguageCode)
	}
	if cfg.Provider.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.Provider.SampleRateHz)
	}
	if cfg.Session.BufferCapacity != 50 {
		t.Errorf("expected buffer capacity 50, got %d", cfg.Session.BufferCapacity)
	}
	if cfg.Session.ConnectTimeout != 10*time.Second {
		t.Errorf("expected connect timeout 10s, got %v", cfg.Session.ConnectTimeout)
	}
	if cfg.PII.MaskingDefault {
		t.Error("expected PII masking disabled")
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker-1:9092" || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	t.Setenv("SESSION_CONNECT_TIMEOUT", "invalid")
	t.Setenv("PII_MASKING_DEFAULT", "invalid")

	cfg := Load()

	if cfg.Provider.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Provider.SampleRateHz)
	}
	if cfg.Session.ConnectTimeout != 30*time.Second {
		t.Errorf("expected default connect timeout on invalid input, got %v", cfg.Session.ConnectTimeout)
	}
	if !cfg.PII.MaskingDefault {
		t.Error("expected default masking on invalid input")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "my-service")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				t.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
