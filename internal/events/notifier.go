// Package events delivers session notifications to the client channel.
package events

import (
	"context"

	"clinical-transcription-service/internal/models"
)

// Notifier is the client notification channel: at-least-once delivery of
// status, transcript, and error events to the client owning the session.
// No acknowledgment is expected.
type Notifier interface {
	NotifyStatus(ctx context.Context, sessionID string, ev models.StatusEvent) error
	NotifyTranscript(ctx context.Context, sessionID string, ev models.TranscriptEvent) error
	NotifyError(ctx context.Context, sessionID string, ev models.ErrorEvent) error
	Close() error
}
