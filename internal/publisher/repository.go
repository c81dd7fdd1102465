package publisher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hypecast/backend/internal/models"
)

// Repository persists publish tasks in PostgreSQL. The UNIQUE (clip_id,
// platform) constraint enforces the one-task-per-destination invariant.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a publish task repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `id, clip_id, platform, title, description, hashtags, status, attempt, scheduled_for, post_id, post_url, error_code, created_at, updated_at`

func scanTask(row pgx.Row) (*models.PublishTask, error) {
	var t models.PublishTask
	err := row.Scan(&t.ID, &t.ClipID, &t.Platform, &t.Title, &t.Description, &t.Hashtags,
		&t.Status, &t.Attempt, &t.ScheduledFor, &t.PostID, &t.PostURL, &t.ErrorCode,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateOrGet inserts the task unless a row for (clip_id, platform) already
// exists, and returns the current row either way.
func (r *Repository) CreateOrGet(ctx context.Context, task *models.PublishTask) (*models.PublishTask, error) {
	const insert = `INSERT INTO publish_tasks (id, clip_id, platform, title, description, hashtags, status, attempt, scheduled_for, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, NOW(), NOW())
		ON CONFLICT (clip_id, platform) DO NOTHING`
	_, err := r.pool.Exec(ctx, insert, task.ID, task.ClipID, task.Platform, task.Title,
		task.Description, task.Hashtags, task.Status, task.ScheduledFor)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, task.ClipID, task.Platform)
}

// Get returns the task for (clipID, platform), or nil when none exists.
func (r *Repository) Get(ctx context.Context, clipID uuid.UUID, platform string) (*models.PublishTask, error) {
	const q = `SELECT ` + taskColumns + ` FROM publish_tasks WHERE clip_id = $1 AND platform = $2`
	t, err := scanTask(r.pool.QueryRow(ctx, q, clipID, platform))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListByClip returns all tasks for a clip.
func (r *Repository) ListByClip(ctx context.Context, clipID uuid.UUID) ([]models.PublishTask, error) {
	const q = `SELECT ` + taskColumns + ` FROM publish_tasks WHERE clip_id = $1 ORDER BY platform`
	rows, err := r.pool.Query(ctx, q, clipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []models.PublishTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// MarkProcessing sets the task processing with the given attempt number.
// Terminal rows are never touched (monotonic status transitions).
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID, attempt int) error {
	const q = `UPDATE publish_tasks SET status = $1, attempt = $2, updated_at = NOW()
		WHERE id = $3 AND status NOT IN ($4, $5)`
	_, err := r.pool.Exec(ctx, q, models.PublishStatusProcessing, attempt, id,
		models.PublishStatusSuccess, models.PublishStatusFailed)
	return err
}

// MarkSuccess records the external post on the task.
func (r *Repository) MarkSuccess(ctx context.Context, id uuid.UUID, attempt int, postID, postURL string) error {
	const q = `UPDATE publish_tasks SET status = $1, attempt = $2, post_id = $3, post_url = $4, error_code = '', updated_at = NOW()
		WHERE id = $5 AND status NOT IN ($1, $6)`
	_, err := r.pool.Exec(ctx, q, models.PublishStatusSuccess, attempt, postID, postURL, id, models.PublishStatusFailed)
	return err
}

// MarkFailed records a terminal failure with its classification code.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, attempt int, code string) error {
	const q = `UPDATE publish_tasks SET status = $1, attempt = $2, error_code = $3, updated_at = NOW()
		WHERE id = $4 AND status NOT IN ($1, $5)`
	_, err := r.pool.Exec(ctx, q, models.PublishStatusFailed, attempt, code, id, models.PublishStatusSuccess)
	return err
}

// MarkScheduled records the deferred publication time.
func (r *Repository) MarkScheduled(ctx context.Context, id uuid.UUID, due time.Time) error {
	const q = `UPDATE publish_tasks SET status = $1, scheduled_for = $2, updated_at = NOW()
		WHERE id = $3 AND status NOT IN ($4, $5)`
	_, err := r.pool.Exec(ctx, q, models.PublishStatusScheduled, due, id,
		models.PublishStatusSuccess, models.PublishStatusFailed)
	return err
}
