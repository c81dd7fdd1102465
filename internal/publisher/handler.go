package publisher

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/models"
	"github.com/hypecast/backend/internal/optimizer"
	"github.com/hypecast/backend/pkg/response"
)

// ClipGetter loads clip jobs for publish requests.
type ClipGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ClipJob, error)
}

// Handler exposes the publish endpoint.
type Handler struct {
	dispatcher *Dispatcher
	clips      ClipGetter
	cfg        *config.Config
	logger     *zap.Logger
}

// NewHandler creates a publish handler.
func NewHandler(dispatcher *Dispatcher, clips ClipGetter, cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dispatcher: dispatcher, clips: clips, cfg: cfg, logger: logger}
}

// PlatformRequest is one destination in a publish request.
type PlatformRequest struct {
	Name          string     `json:"name"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Hashtags      []string   `json:"hashtags"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
}

// PublishRequest is the body of POST /clips/:id/publish.
type PublishRequest struct {
	Platforms    []PlatformRequest `json:"platforms"`
	VideoURL     string            `json:"videoUrl"`
	ThumbnailURL string            `json:"thumbnailUrl"`
}

// Publish handles POST /clips/:id/publish. Partial failure is a normal
// outcome: the response enumerates every requested platform with its final
// status and the call itself succeeds.
func (h *Handler) Publish(c *gin.Context) {
	clipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid clip id")
		return
	}
	var body PublishRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(body.Platforms) == 0 {
		response.BadRequest(c, "at least one platform required")
		return
	}

	clip, err := h.clips.GetByID(c.Request.Context(), clipID)
	if err != nil {
		h.logger.Error("load clip", zap.Error(err), zap.String("clip_id", clipID.String()))
		response.Internal(c, "failed to load clip")
		return
	}
	if clip == nil {
		response.NotFound(c, "clip not found")
		return
	}
	if clip.Status == models.ClipStatusFailed {
		// Renderer failure is terminal for the clip and blocks its fan-out.
		response.Conflict(c, "clip render failed; cannot publish")
		return
	}
	if clip.Status != models.ClipStatusRendered {
		response.Conflict(c, "clip not rendered yet")
		return
	}

	targets := make([]Target, 0, len(body.Platforms))
	for _, p := range body.Platforms {
		targets = append(targets, h.target(clip, body, p))
	}

	report := h.dispatcher.Publish(c.Request.Context(), clip, targets)
	response.OK(c, report)
}

// target builds the dispatch target for one platform, applying the content
// optimizer when a profile is configured.
func (h *Handler) target(clip *models.ClipJob, body PublishRequest, p PlatformRequest) Target {
	base := optimizer.Content{
		Title:       firstNonEmpty(p.Title, clip.Title),
		Description: firstNonEmpty(p.Description, clip.Description),
		Hashtags:    p.Hashtags,
	}
	if len(base.Hashtags) == 0 {
		base.Hashtags = clip.Hashtags
	}
	content := base
	if profile, ok := h.cfg.Profile(p.Name); ok {
		content = optimizer.Optimize(base, profile, clip.Hashtags)
	}

	videoURL := firstNonEmpty(body.VideoURL, platformRenditionURL(clip, p.Name), clip.MasterURL(), clip.SourceRef)
	thumbURL := firstNonEmpty(body.ThumbnailURL, clip.ThumbnailURL())

	return Target{
		Platform:     p.Name,
		Title:        content.Title,
		Description:  content.Description,
		Hashtags:     content.Hashtags,
		VideoURL:     videoURL,
		ThumbnailURL: thumbURL,
		ScheduledFor: p.ScheduledTime,
	}
}

// Tasks handles GET /clips/:id/publish-tasks for dashboards polling task state.
func (h *Handler) Tasks(tasks *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		clipID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid clip id")
			return
		}
		list, err := tasks.ListByClip(c.Request.Context(), clipID)
		if err != nil {
			response.Internal(c, "failed to list tasks")
			return
		}
		response.OK(c, list)
	}
}

func platformRenditionURL(clip *models.ClipJob, platform string) string {
	for _, r := range clip.Renditions {
		if r.Kind == models.RenditionKindPlatform && r.Platform == platform {
			return r.URL
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
