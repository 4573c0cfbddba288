// Package sqlite provides durable storage for session metadata and
// finalized transcript segments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"clinical-transcription-service/internal/models"
)

// ErrSessionMetadataNotFound is returned when no durable record exists
// for a session id.
var ErrSessionMetadataNotFound = errors.New("sqlite: session metadata not found")

// Open opens (creating if needed) the service database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// TranscriptStore persists session metadata and appends finalized
// transcript segments. Appends are duplicate-tolerant: delivering the
// same segment twice grows the text log and the segment list but never
// corrupts state.
type TranscriptStore struct {
	db     *sql.DB
	logger zerolog.Logger

	// metaCache avoids a metadata query per segment. On a cache miss
	// (e.g. after a process restart) flags are re-derived from the
	// sessions table.
	mu        sync.RWMutex
	metaCache map[string]models.SessionMetadata
}

// NewTranscriptStore creates the store and its tables.
func NewTranscriptStore(db *sql.DB, logger zerolog.Logger) (*TranscriptStore, error) {
	s := &TranscriptStore{
		db:        db,
		logger:    logger.With().Str("component", "sqlite-transcripts").Logger(),
		metaCache: make(map[string]models.SessionMetadata),
	}
	if err := s.initDB(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TranscriptStore) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			language TEXT NOT NULL,
			pii_masking_enabled INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_segments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			segment_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			speaker TEXT NOT NULL,
			content TEXT NOT NULL,
			confidence REAL NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			pii_detected INTEGER NOT NULL,
			language TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcript_segments table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_transcripts (
			session_id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create session_transcripts table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_segments_session_id ON transcript_segments(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_segments_timestamp ON transcript_segments(timestamp_ms)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// SaveSessionMetadata upserts the durable per-session metadata.
func (s *TranscriptStore) SaveSessionMetadata(ctx context.Context, sessionID string, meta models.SessionMetadata) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, language, pii_masking_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			language = excluded.language,
			pii_masking_enabled = excluded.pii_masking_enabled,
			updated_at = excluded.updated_at
	`, sessionID, meta.Language, boolToInt(meta.PiiMaskingEnabled), now, now)
	if err != nil {
		return fmt.Errorf("failed to save session metadata: %w", err)
	}

	s.mu.Lock()
	s.metaCache[sessionID] = meta
	s.mu.Unlock()
	return nil
}

// SessionMetadata fetches {language, piiMaskingEnabled} by session id,
// from cache when warm, otherwise from the sessions table.
func (s *TranscriptStore) SessionMetadata(ctx context.Context, sessionID string) (models.SessionMetadata, error) {
	s.mu.RLock()
	meta, ok := s.metaCache[sessionID]
	s.mu.RUnlock()
	if ok {
		return meta, nil
	}

	var language string
	var masking int
	err := s.db.QueryRowContext(ctx,
		`SELECT language, pii_masking_enabled FROM sessions WHERE id = ?`, sessionID,
	).Scan(&language, &masking)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionMetadata{}, ErrSessionMetadataNotFound
	}
	if err != nil {
		return models.SessionMetadata{}, fmt.Errorf("failed to fetch session metadata: %w", err)
	}

	meta = models.SessionMetadata{Language: language, PiiMaskingEnabled: masking != 0}
	s.mu.Lock()
	s.metaCache[sessionID] = meta
	s.mu.Unlock()
	return meta, nil
}

// AppendFinalSegment appends one finalized segment to the segment list
// and the session's cumulative text log. The session's language is
// re-derived from durable metadata when the in-memory cache is cold;
// an unknown session still gets its segment stored.
func (s *TranscriptStore) AppendFinalSegment(ctx context.Context, sessionID string, seg models.TranscriptSegment) error {
	language := ""
	if meta, err := s.SessionMetadata(ctx, sessionID); err == nil {
		language = meta.Language
	} else if !errors.Is(err, ErrSessionMetadataNotFound) {
		s.logger.Warn().Err(err).Str("sessionId", sessionID).Msg("Metadata lookup failed on append")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript_segments
			(segment_id, session_id, speaker, content, confidence, timestamp_ms, pii_detected, language, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, seg.ID, sessionID, seg.Speaker, seg.Text, seg.Confidence, seg.TimestampMs, boolToInt(seg.PiiDetected), language, now)
	if err != nil {
		return fmt.Errorf("failed to append segment: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_transcripts (session_id, content, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			content = session_transcripts.content || char(10) || excluded.content,
			updated_at = excluded.updated_at
	`, sessionID, seg.Text, now)
	if err != nil {
		return fmt.Errorf("failed to append to transcript log: %w", err)
	}
	return nil
}

// Segments returns the session's persisted segments in append order.
func (s *TranscriptStore) Segments(ctx context.Context, sessionID string) ([]models.TranscriptSegment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT segment_id, session_id, speaker, content, confidence, timestamp_ms, pii_detected
		FROM transcript_segments WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var out []models.TranscriptSegment
	for rows.Next() {
		var seg models.TranscriptSegment
		var pii int
		if err := rows.Scan(&seg.ID, &seg.SessionID, &seg.Speaker, &seg.Text, &seg.Confidence, &seg.TimestampMs, &pii); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		seg.IsFinal = true
		seg.PiiDetected = pii != 0
		out = append(out, seg)
	}
	return out, rows.Err()
}

// TranscriptText returns the session's cumulative text log.
func (s *TranscriptStore) TranscriptText(ctx context.Context, sessionID string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM session_transcripts WHERE session_id = ?`, sessionID,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch transcript log: %w", err)
	}
	return content, nil
}

// InvalidateCache drops the in-memory metadata cache. Used by tests to
// simulate a process restart.
func (s *TranscriptStore) InvalidateCache() {
	s.mu.Lock()
	s.metaCache = make(map[string]models.SessionMetadata)
	s.mu.Unlock()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
