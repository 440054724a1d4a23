package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/infrastructure/database"
)

// ErrTranscriptNotFound is returned when no transcript exists for a session
var ErrTranscriptNotFound = errors.New("transcript not found")

const transcriptSchema = `
	CREATE TABLE IF NOT EXISTS honeypot_transcripts (
		session_id     TEXT PRIMARY KEY,
		started_at     TIMESTAMPTZ NOT NULL,
		last_updated   TIMESTAMPTZ NOT NULL,
		version        BIGINT NOT NULL,
		total_messages INTEGER NOT NULL,
		history        JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_honeypot_transcripts_last_updated
		ON honeypot_transcripts (last_updated DESC);`

// TranscriptRepository archives session transcripts in PostgreSQL
type TranscriptRepository struct {
	db database.DBTX
}

// NewTranscriptRepository creates a new transcript repository
func NewTranscriptRepository(db database.DBTX) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Name identifies the sink in logs and metrics
func (r *TranscriptRepository) Name() string {
	return "postgres"
}

// EnsureSchema creates the transcript table if it does not exist
func (r *TranscriptRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, transcriptSchema); err != nil {
		return fmt.Errorf("failed to create transcript schema: %w", err)
	}
	return nil
}

// SaveTranscript upserts the snapshot. Rows are ordered by (started_at, version):
// an older snapshot never overwrites a newer one, and a session recreated
// under the same id after eviction replaces the earlier conversation.
func (r *TranscriptRepository) SaveTranscript(ctx context.Context, t *models.Transcript) error {
	history, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	query := `
		INSERT INTO honeypot_transcripts (
			session_id, started_at, last_updated, version, total_messages, history
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			last_updated = EXCLUDED.last_updated,
			version = EXCLUDED.version,
			total_messages = EXCLUDED.total_messages,
			history = EXCLUDED.history
		WHERE (honeypot_transcripts.started_at, honeypot_transcripts.version)
			< (EXCLUDED.started_at, EXCLUDED.version)`

	_, err = r.db.Exec(ctx, query,
		t.SessionID, t.StartedAt, t.LastUpdated, t.Version, t.TotalMessages, history,
	)
	if err != nil {
		return fmt.Errorf("failed to save transcript %s: %w", t.SessionID, err)
	}
	return nil
}

// GetBySessionID loads the archived transcript for a session
func (r *TranscriptRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Transcript, error) {
	query := `
		SELECT session_id, started_at, last_updated, version, total_messages, history
		FROM honeypot_transcripts
		WHERE session_id = $1`

	t, err := scanTranscript(r.db.QueryRow(ctx, query, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTranscriptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript %s: %w", sessionID, err)
	}
	return t, nil
}

// ListRecent returns the most recently updated transcripts
func (r *TranscriptRepository) ListRecent(ctx context.Context, limit int) ([]*models.Transcript, error) {
	query := `
		SELECT session_id, started_at, last_updated, version, total_messages, history
		FROM honeypot_transcripts
		ORDER BY last_updated DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	var out []*models.Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTranscript(row pgx.Row) (*models.Transcript, error) {
	var (
		t       models.Transcript
		history []byte
	)
	if err := row.Scan(&t.SessionID, &t.StartedAt, &t.LastUpdated, &t.Version, &t.TotalMessages, &history); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(history, &t.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return &t, nil
}
