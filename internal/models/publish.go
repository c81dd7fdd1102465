package models

import (
	"time"

	"github.com/google/uuid"
)

// Publish task statuses. Transitions are monotonic: a task never re-enters
// queued once it has left it, except via the explicit scheduled re-trigger.
const (
	PublishStatusQueued     = "queued"
	PublishStatusProcessing = "processing"
	PublishStatusSuccess    = "success"
	PublishStatusFailed     = "failed"
	PublishStatusScheduled  = "scheduled"
)

// PublishTask is one platform destination for a clip. At most one task exists
// per (clip_id, platform); retries mutate attempt/status on the same task.
type PublishTask struct {
	ID           uuid.UUID  `json:"id"`
	ClipID       uuid.UUID  `json:"clip_id"`
	Platform     string     `json:"platform"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Hashtags     []string   `json:"hashtags"`
	Status       string     `json:"status"`
	Attempt      int        `json:"attempt"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	PostID       string     `json:"post_id,omitempty"`
	PostURL      string     `json:"post_url,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IdempotencyKey identifies the external side effect for this task.
func (t *PublishTask) IdempotencyKey() string {
	return t.ClipID.String() + ":" + t.Platform
}

// Terminal reports whether the task has reached a final state.
func (t *PublishTask) Terminal() bool {
	return t.Status == PublishStatusSuccess || t.Status == PublishStatusFailed
}

// PlatformResult is the final outcome for one platform in a publish report.
// Immutable once the task reaches success, failed or scheduled.
type PlatformResult struct {
	Platform     string     `json:"platform"`
	Status       string     `json:"status"`
	PostID       string     `json:"post_id,omitempty"`
	PostURL      string     `json:"post_url,omitempty"`
	Error        string     `json:"error,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	Attempts     int        `json:"attempts,omitempty"`
}

// PublishReport enumerates every requested platform exactly once with its
// final status. Partial failure is a normal outcome, not an error.
type PublishReport struct {
	ClipID  uuid.UUID        `json:"clip_id"`
	Results []PlatformResult `json:"results"`
}
