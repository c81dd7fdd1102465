package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hypecast/backend/internal/models"
)

const sessionColumns = `id, title, source_url, ingest_key_hash, started_at, ended_at, peak_viewers, moment_count, created_at, updated_at`

// Repository handles stream_sessions persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new live session.
func (r *Repository) Create(ctx context.Context, s *models.StreamSession) error {
	const q = `INSERT INTO stream_sessions (id, title, source_url, ingest_key_hash, started_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.ID, s.Title, s.SourceURL, s.IngestKeyHash, s.StartedAt).
		Scan(&s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a session, or nil when not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.StreamSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM stream_sessions WHERE id = $1`
	var s models.StreamSession
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.Title, &s.SourceURL, &s.IngestKeyHash,
		&s.StartedAt, &s.EndedAt, &s.PeakViewers, &s.MomentCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// List returns sessions newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.StreamSession, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + sessionColumns + ` FROM stream_sessions ORDER BY started_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.StreamSession
	for rows.Next() {
		var s models.StreamSession
		if err := rows.Scan(&s.ID, &s.Title, &s.SourceURL, &s.IngestKeyHash,
			&s.StartedAt, &s.EndedAt, &s.PeakViewers, &s.MomentCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// End marks a session ended and persists its final stats. Ending an already
// ended session is a no-op.
func (r *Repository) End(ctx context.Context, id uuid.UUID, endedAt time.Time, peakViewers, momentCount int) error {
	const q = `UPDATE stream_sessions
		SET ended_at = $1, peak_viewers = GREATEST(peak_viewers, $2), moment_count = $3, updated_at = NOW()
		WHERE id = $4 AND ended_at IS NULL`
	_, err := r.pool.Exec(ctx, q, endedAt, peakViewers, momentCount, id)
	return err
}

// UpdateStats persists running peak viewers and moment count mid-session.
func (r *Repository) UpdateStats(ctx context.Context, id uuid.UUID, peakViewers, momentCount int) error {
	const q = `UPDATE stream_sessions
		SET peak_viewers = GREATEST(peak_viewers, $1), moment_count = GREATEST(moment_count, $2), updated_at = NOW()
		WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, peakViewers, momentCount, id)
	return err
}
