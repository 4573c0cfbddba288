package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinical-transcription-service/internal/app"
	"clinical-transcription-service/internal/config"
	"clinical-transcription-service/internal/events"
	ophttp "clinical-transcription-service/internal/http"
	"clinical-transcription-service/internal/observability"
	"clinical-transcription-service/internal/orchestrator"
	"clinical-transcription-service/internal/pii"
	"clinical-transcription-service/internal/provider"
	googleprovider "clinical-transcription-service/internal/provider/google"
	mockprovider "clinical-transcription-service/internal/provider/mock"
	"clinical-transcription-service/internal/session"
	"clinical-transcription-service/internal/storage/sqlite"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	if err := application.Start(); err != nil {
		application.Logger.Fatal().Err(err).Msg("Application start failed")
	}

	db, err := sqlite.Open(cfg.Observability.Database)
	if err != nil {
		application.Logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	transcripts, err := sqlite.NewTranscriptStore(db, application.Logger)
	if err != nil {
		application.Logger.Fatal().Err(err).Msg("Failed to initialize transcript store")
	}

	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicStatus:     cfg.Kafka.TopicStatus,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicError:      cfg.Kafka.TopicError,
		Principal:       cfg.Kafka.Principal,
	})
	defer publisher.Close()

	var prov provider.Provider
	switch cfg.Provider.Name {
	case "google":
		gp, err := googleprovider.New(context.Background())
		if err != nil {
			application.Logger.Fatal().Err(err).Msg("Failed to create Google speech provider")
		}
		defer gp.Close()
		prov = gp
	default:
		application.Logger.Info().Msg("Using mock speech provider")
		prov = mockprovider.New(mockprovider.Config{ResultDelay: 50 * time.Millisecond})
	}

	orch := orchestrator.New(
		orchestrator.Config{
			BufferCapacity:   cfg.Session.BufferCapacity,
			ConnectTimeout:   cfg.Session.ConnectTimeout,
			StopGrace:        cfg.Session.StopGrace,
			BackpressureWait: cfg.Session.BackpressureWait,
			DefaultOptions: session.Options{
				SampleRateHz: cfg.Provider.SampleRateHz,
				Encoding:     cfg.Provider.Encoding,
				Language:     cfg.Provider.LanguageCode,
				PiiMasking:   cfg.PII.MaskingDefault,
			},
			Masking: pii.Options{
				PreserveLength: cfg.PII.PreserveLength,
				MaskChar:       cfg.PII.MaskChar,
			},
		},
		session.NewMemoryStore(),
		prov,
		pii.NewEngine(),
		transcripts,
		publisher,
		application.Logger,
	)

	opsServer := observability.NewServer(":"+cfg.Service.OpsPort, ophttp.NewRouter(orch))
	opsServer.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	application.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(ctx); err != nil {
		application.Logger.Error().Err(err).Msg("Ops server shutdown error")
	}
}
