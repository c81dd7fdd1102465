// Package publisher fans a rendered clip out to destination platforms with
// per-destination isolation, bounded concurrency, retry with backoff and
// idempotent external side effects.
package publisher

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Error classification codes.
const (
	CodeRejected            = "content_rejected"
	CodeAuthFailed          = "auth_failed"
	CodeRateLimited         = "rate_limited"
	CodeUpstreamError       = "upstream_error"
	CodeNetwork             = "network_error"
	CodeTimeout             = "timeout"
	CodeDeadlineExceeded    = "deadline_exceeded"
	CodeUnsupportedPlatform = "unsupported_platform"
	CodeAttemptsExhausted   = "attempts_exhausted"
)

// Error is a classified publish failure. Permanent errors are surfaced
// immediately with no retry; transient errors are retried up to the
// configured attempt limit.
type Error struct {
	Code      string
	Message   string
	Permanent bool
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// PostRequest is the payload handed to a platform publisher. The idempotency
// key (clipID+platform) prevents duplicate external posts on retry.
type PostRequest struct {
	ClipID         uuid.UUID `json:"clip_id"`
	Platform       string    `json:"platform"`
	IdempotencyKey string    `json:"idempotency_key"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Hashtags       []string  `json:"hashtags"`
	VideoURL       string    `json:"video_url"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
}

// PostResult identifies the created external post.
type PostResult struct {
	PostID  string `json:"post_id"`
	PostURL string `json:"post_url"`
}

// PlatformPublisher publishes one clip payload to a single destination
// platform. Implementations must be safe for concurrent use. Test doubles
// are injected through the registry; production logic never simulates
// outcomes.
type PlatformPublisher interface {
	Publish(ctx context.Context, req PostRequest) (*PostResult, error)
}
