// Package app holds process-wide state for the service.
package app

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"clinical-transcription-service/internal/config"
	"clinical-transcription-service/internal/observability/logging"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
}

// New constructs the Application and configures logging.
func New(cfg *config.Configuration) *Application {
	a := &Application{Cfg: cfg}
	a.Logger = logging.Init(logging.Config{
		Level:   cfg.Observability.LogLevel,
		Console: os.Getenv("ENV") == "dev",
		Service: cfg.Service.Principal,
	})

	a.Logger.Info().
		Str("logLevel", cfg.Observability.LogLevel).
		Str("environment", os.Getenv("ENV")).
		Msg("Clinical transcription service application created")
	return a
}

// Start performs startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Clinical transcription service starting")
	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("Clinical transcription service shutting down")
}
