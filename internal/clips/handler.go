package clips

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/models"
	"github.com/hypecast/backend/internal/optimizer"
	"github.com/hypecast/backend/pkg/response"
	"github.com/hypecast/backend/pkg/storage"
)

// Handler serves clip endpoints.
type Handler struct {
	service *Service
	repo    *Repository
	storage *storage.S3
	cfg     *config.Config
	logger  *zap.Logger
}

// NewHandler creates a clip handler. storage may be nil when S3 is not
// configured; download URLs then fall back to renderer URLs.
func NewHandler(service *Service, repo *Repository, s3 *storage.S3, cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, repo: repo, storage: s3, cfg: cfg, logger: logger}
}

// CreateRequest is the POST /clips body.
type CreateRequest struct {
	SessionID   string    `json:"sessionId" binding:"required"`
	MomentID    string    `json:"momentId"`
	VideoURL    string    `json:"videoUrl" binding:"required"`
	StartTime   time.Time `json:"startTime" binding:"required"`
	EndTime     time.Time `json:"endTime" binding:"required"`
	Platforms   []string  `json:"platforms" binding:"required,min=1"`
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	Hashtags    []string  `json:"hashtags"`
}

// Create handles POST /clips.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var momentID uuid.UUID
	if req.MomentID != "" {
		momentID, err = uuid.Parse(req.MomentID)
		if err != nil {
			response.BadRequest(c, "invalid moment id")
			return
		}
	}
	if !req.EndTime.After(req.StartTime) {
		response.BadRequest(c, "endTime must be after startTime")
		return
	}
	for _, p := range req.Platforms {
		if _, ok := h.cfg.Profile(p); !ok {
			response.BadRequest(c, "unknown platform: "+p)
			return
		}
	}

	job, err := h.service.RequestClip(c.Request.Context(), Request{
		MomentID:    momentID,
		SessionID:   sessionID,
		SourceURL:   req.VideoURL,
		Start:       req.StartTime,
		End:         req.EndTime,
		Title:       req.Title,
		Description: req.Description,
		Hashtags:    req.Hashtags,
		Platforms:   req.Platforms,
	})
	if err != nil {
		if job != nil {
			// Job exists but the renderer rejected the submit.
			response.ServiceUnavailable(c, "renderer unavailable")
			return
		}
		h.logger.Error("create clip", zap.Error(err))
		response.Internal(c, "failed to create clip")
		return
	}
	response.Created(c, gin.H{
		"clipId": job.ID,
		"status": job.Status,
	})
}

// OptimizedVersion is one platform variant in the clip detail response.
type OptimizedVersion struct {
	Platform    string   `json:"platform"`
	Format      string   `json:"format"`
	URL         string   `json:"url"`
	Duration    float64  `json:"duration,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
}

// Get handles GET /clips/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid clip id")
		return
	}
	job, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get clip", zap.String("clip_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load clip")
		return
	}
	if job == nil {
		response.NotFound(c, "clip not found")
		return
	}

	body := gin.H{
		"clipId":    job.ID,
		"sessionId": job.SessionID,
		"status":    job.Status,
		"createdAt": job.CreatedAt,
	}
	if job.FailureReason != "" {
		body["failureReason"] = job.FailureReason
	}
	if url := h.renditionURL(c, job, models.RenditionKindMaster); url != "" {
		body["downloadUrl"] = url
	}
	if url := h.renditionURL(c, job, models.RenditionKindThumbnail); url != "" {
		body["thumbnail"] = url
	}
	body["optimizedVersions"] = h.optimizedVersions(c, job)
	response.OK(c, body)
}

// optimizedVersions pairs each platform rendition with its content variant.
func (h *Handler) optimizedVersions(c *gin.Context, job *models.ClipJob) []OptimizedVersion {
	out := make([]OptimizedVersion, 0, len(job.Renditions))
	base := optimizer.Content{Title: job.Title, Description: job.Description, Hashtags: job.Hashtags}
	for _, r := range job.Renditions {
		if r.Kind != models.RenditionKindPlatform {
			continue
		}
		content := base
		if profile, ok := h.cfg.Profile(r.Platform); ok {
			content = optimizer.Optimize(base, profile, nil)
		}
		out = append(out, OptimizedVersion{
			Platform:    r.Platform,
			Format:      r.Format,
			URL:         h.assetURL(c, r),
			Duration:    r.Duration,
			Title:       content.Title,
			Description: content.Description,
			Hashtags:    content.Hashtags,
		})
	}
	return out
}

func (h *Handler) renditionURL(c *gin.Context, job *models.ClipJob, kind string) string {
	for _, r := range job.Renditions {
		if r.Kind == kind {
			return h.assetURL(c, r)
		}
	}
	return ""
}

// assetURL prefers a presigned S3 URL once the asset is mirrored.
func (h *Handler) assetURL(c *gin.Context, r models.Rendition) string {
	if h.storage == nil || r.S3Key == "" {
		return r.URL
	}
	bucket := h.storage.ClipsBucket()
	if r.Kind == models.RenditionKindThumbnail {
		bucket = h.storage.ThumbnailsBucket()
	}
	url, err := h.storage.GeneratePresignedDownloadURL(c.Request.Context(), bucket, r.S3Key, h.storage.PresignExpire())
	if err != nil {
		h.logger.Warn("presign failed, falling back to stored url",
			zap.String("key", r.S3Key), zap.Error(err))
		return r.URL
	}
	return url
}
