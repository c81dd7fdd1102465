package models

import (
	"time"

	"github.com/google/uuid"
)

// Clip job statuses. failed is terminal: rendering is never retried
// automatically for a clip.
const (
	ClipStatusRequested = "requested"
	ClipStatusRendering = "rendering"
	ClipStatusRendered  = "rendered"
	ClipStatusFailed    = "failed"
)

// Rendition is one rendered output file for a clip (master, thumbnail, or a
// platform aspect-ratio variant).
type Rendition struct {
	ID       uuid.UUID `json:"id"`
	ClipID   uuid.UUID `json:"clip_id"`
	Platform string    `json:"platform,omitempty"` // empty for master/thumbnail
	Kind     string    `json:"kind"`               // master | thumbnail | platform
	Format   string    `json:"format"`             // aspect ratio, e.g. 9:16
	URL      string    `json:"url"`                // renderer URL, replaced by S3 URL once mirrored
	S3Key    string    `json:"s3_key,omitempty"`
	Duration float64   `json:"duration,omitempty"` // seconds
}

// ClipJob tracks one clip through render and distribution. The clip ID is the
// idempotency key for every publish task tied to this moment.
type ClipJob struct {
	ID            uuid.UUID   `json:"clip_id"`
	MomentID      uuid.UUID   `json:"moment_id"`
	SessionID     uuid.UUID   `json:"session_id"`
	SourceRef     string      `json:"source_ref"` // session video URL
	WindowStart   time.Time   `json:"window_start"`
	WindowEnd     time.Time   `json:"window_end"`
	Status        string      `json:"status"`
	FailureReason string      `json:"failure_reason,omitempty"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Hashtags      []string    `json:"hashtags"`
	Renditions    []Rendition `json:"renditions,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// MasterURL returns the master rendition URL, or empty if not rendered yet.
func (c *ClipJob) MasterURL() string {
	for _, r := range c.Renditions {
		if r.Kind == RenditionKindMaster {
			return r.URL
		}
	}
	return ""
}

// ThumbnailURL returns the thumbnail rendition URL, or empty if none.
func (c *ClipJob) ThumbnailURL() string {
	for _, r := range c.Renditions {
		if r.Kind == RenditionKindThumbnail {
			return r.URL
		}
	}
	return ""
}

// Rendition kinds.
const (
	RenditionKindMaster    = "master"
	RenditionKindThumbnail = "thumbnail"
	RenditionKindPlatform  = "platform"
)
