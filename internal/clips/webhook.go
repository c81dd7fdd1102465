package clips

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hypecast/backend/internal/metrics"
	"github.com/hypecast/backend/internal/models"
	"github.com/hypecast/backend/internal/realtime"
	"github.com/hypecast/backend/pkg/queue"
	"github.com/hypecast/backend/pkg/response"
)

// EventBroadcaster pushes clip status changes to the session's dashboards.
type EventBroadcaster interface {
	BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{})
}

// RenditionResult is one rendered output in the webhook payload.
type RenditionResult struct {
	Kind     string  `json:"kind" binding:"required"`
	Platform string  `json:"platform"`
	Format   string  `json:"format"`
	URL      string  `json:"url" binding:"required"`
	Duration float64 `json:"duration"`
}

// RenderCompletePayload is the renderer's callback body.
type RenderCompletePayload struct {
	ClipID        string            `json:"clip_id" binding:"required"`
	Status        string            `json:"status" binding:"required"`
	FailureReason string            `json:"failure_reason"`
	Renditions    []RenditionResult `json:"renditions"`
}

// WebhookHandler processes render-complete callbacks from the renderer.
type WebhookHandler struct {
	repo    *Repository
	queue   *queue.Queue
	hub     EventBroadcaster
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewWebhookHandler creates the render-complete webhook handler. queue may be
// nil; renditions then keep their renderer URLs instead of being mirrored.
func NewWebhookHandler(repo *Repository, q *queue.Queue, hub EventBroadcaster, m *metrics.Metrics, logger *zap.Logger) *WebhookHandler {
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{repo: repo, queue: q, hub: hub, metrics: m, logger: logger}
}

// RenderComplete handles POST /webhooks/render-complete.
func (h *WebhookHandler) RenderComplete(c *gin.Context) {
	var payload RenderCompletePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	clipID, err := uuid.Parse(payload.ClipID)
	if err != nil {
		response.BadRequest(c, "invalid clip id")
		return
	}

	ctx := c.Request.Context()
	job, err := h.repo.GetByID(ctx, clipID)
	if err != nil {
		h.logger.Error("load clip for webhook", zap.String("clip_id", clipID.String()), zap.Error(err))
		response.Internal(c, "failed to load clip")
		return
	}
	if job == nil {
		response.NotFound(c, "clip not found")
		return
	}

	switch payload.Status {
	case models.ClipStatusFailed:
		if err := h.repo.UpdateStatus(ctx, clipID, models.ClipStatusFailed, payload.FailureReason); err != nil {
			h.logger.Error("mark clip failed", zap.String("clip_id", clipID.String()), zap.Error(err))
			response.Internal(c, "failed to update clip")
			return
		}
		h.metrics.ClipsRendered.WithLabelValues("failed").Inc()
		h.logger.Warn("clip render failed",
			zap.String("clip_id", clipID.String()),
			zap.String("reason", payload.FailureReason),
		)

	case models.ClipStatusRendered:
		renditions := make([]models.Rendition, 0, len(payload.Renditions))
		for _, r := range payload.Renditions {
			renditions = append(renditions, models.Rendition{
				ID:       uuid.New(),
				ClipID:   clipID,
				Platform: r.Platform,
				Kind:     r.Kind,
				Format:   r.Format,
				URL:      r.URL,
				Duration: r.Duration,
			})
		}
		if err := h.repo.ReplaceRenditions(ctx, clipID, renditions); err != nil {
			h.logger.Error("store renditions", zap.String("clip_id", clipID.String()), zap.Error(err))
			response.Internal(c, "failed to store renditions")
			return
		}
		if err := h.repo.UpdateStatus(ctx, clipID, models.ClipStatusRendered, ""); err != nil {
			h.logger.Error("mark clip rendered", zap.String("clip_id", clipID.String()), zap.Error(err))
			response.Internal(c, "failed to update clip")
			return
		}
		h.metrics.ClipsRendered.WithLabelValues("rendered").Inc()

		if h.queue != nil {
			for _, r := range renditions {
				err := h.queue.EnqueueRenditionFetch(ctx, queue.RenditionFetchPayload{
					ClipID:      clipID,
					SessionID:   job.SessionID,
					RenditionID: r.ID,
					Kind:        r.Kind,
					Platform:    r.Platform,
					SourceURL:   r.URL,
				})
				if err != nil {
					// Mirroring is best effort; the renderer URL stays usable.
					h.logger.Warn("enqueue rendition fetch",
						zap.String("rendition_id", r.ID.String()), zap.Error(err))
				}
			}
		}
		h.logger.Info("clip rendered",
			zap.String("clip_id", clipID.String()),
			zap.Int("renditions", len(renditions)),
		)

	default:
		response.BadRequest(c, "unknown status: "+payload.Status)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastToSessionAndPublish(job.SessionID, realtime.EventClipStatus, gin.H{
			"clip_id": clipID,
			"status":  payload.Status,
			"reason":  payload.FailureReason,
		})
	}
	response.OK(c, gin.H{"clipId": clipID})
}
