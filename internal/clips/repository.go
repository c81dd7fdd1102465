package clips

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hypecast/backend/internal/models"
)

// Repository handles clip_jobs and clip_renditions persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a clip jobs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new clip job in requested state.
func (r *Repository) Create(ctx context.Context, c *models.ClipJob) error {
	const q = `INSERT INTO clip_jobs (id, moment_id, session_id, source_ref, window_start, window_end, status, title, description, hashtags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, q, c.ID, c.MomentID, c.SessionID, c.SourceRef,
		c.WindowStart, c.WindowEnd, c.Status, c.Title, c.Description, c.Hashtags).
		Scan(&c.CreatedAt, &c.UpdatedAt)
}

// GetByID returns a clip job with its renditions, or nil when not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ClipJob, error) {
	const q = `SELECT id, moment_id, session_id, source_ref, window_start, window_end, status, failure_reason, title, description, hashtags, created_at, updated_at
		FROM clip_jobs WHERE id = $1`
	var c models.ClipJob
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.MomentID, &c.SessionID, &c.SourceRef,
		&c.WindowStart, &c.WindowEnd, &c.Status, &c.FailureReason, &c.Title, &c.Description,
		&c.Hashtags, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	renditions, err := r.listRenditions(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Renditions = renditions
	return &c, nil
}

// GetByMoment returns the clip job created for a moment, or nil. Used to
// guarantee exactly one clip job per detected moment.
func (r *Repository) GetByMoment(ctx context.Context, momentID uuid.UUID) (*models.ClipJob, error) {
	const q = `SELECT id FROM clip_jobs WHERE moment_id = $1`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q, momentID).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// ListIDsBySession returns all clip IDs produced by a session, for
// cancellation of their scheduled publish tasks on session end.
func (r *Repository) ListIDsBySession(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT id FROM clip_jobs WHERE session_id = $1`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateStatus moves a clip to a new status unless it is already terminal.
// failed is terminal: rendering is never retried for a clip.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status, reason string) error {
	const q = `UPDATE clip_jobs SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE id = $3 AND status NOT IN ($4, $5)`
	_, err := r.pool.Exec(ctx, q, status, reason, id, models.ClipStatusRendered, models.ClipStatusFailed)
	return err
}

// ReplaceRenditions swaps the clip's renditions for the given set.
func (r *Repository) ReplaceRenditions(ctx context.Context, clipID uuid.UUID, renditions []models.Rendition) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM clip_renditions WHERE clip_id = $1`, clipID); err != nil {
		return err
	}
	const insert = `INSERT INTO clip_renditions (id, clip_id, platform, kind, format, url, s3_key, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, rd := range renditions {
		if rd.ID == uuid.Nil {
			rd.ID = uuid.New()
		}
		if _, err := tx.Exec(ctx, insert, rd.ID, clipID, rd.Platform, rd.Kind, rd.Format, rd.URL, rd.S3Key, rd.Duration); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// UpdateRenditionStorage records the mirrored S3 location for a rendition.
func (r *Repository) UpdateRenditionStorage(ctx context.Context, renditionID uuid.UUID, url, s3Key string) error {
	const q = `UPDATE clip_renditions SET url = $1, s3_key = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, url, s3Key, renditionID)
	return err
}

func (r *Repository) listRenditions(ctx context.Context, clipID uuid.UUID) ([]models.Rendition, error) {
	const q = `SELECT id, clip_id, platform, kind, format, url, s3_key, duration
		FROM clip_renditions WHERE clip_id = $1 ORDER BY kind, platform`
	rows, err := r.pool.Query(ctx, q, clipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Rendition
	for rows.Next() {
		var rd models.Rendition
		if err := rows.Scan(&rd.ID, &rd.ClipID, &rd.Platform, &rd.Kind, &rd.Format, &rd.URL, &rd.S3Key, &rd.Duration); err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}
