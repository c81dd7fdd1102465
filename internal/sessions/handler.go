package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hypecast/backend/internal/models"
	"github.com/hypecast/backend/internal/realtime"
	"github.com/hypecast/backend/internal/signals"
	"github.com/hypecast/backend/pkg/response"
)

// ClipLister lists clip IDs for a session, for scheduled-publish cancellation
// on session end.
type ClipLister interface {
	ListIDsBySession(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error)
}

// ScheduleCanceller cancels pending scheduled publishes for a clip.
type ScheduleCanceller interface {
	CancelClip(ctx context.Context, clipID uuid.UUID) (int, error)
}

// Handler serves session endpoints including signal ingestion.
type Handler struct {
	repo      *Repository
	registry  *Registry
	clips     ClipLister
	scheduler ScheduleCanceller
	hub       Broadcaster
	logger    *zap.Logger
}

// NewHandler creates a session handler. clips and scheduler may be nil in
// tests; session end then skips scheduled-publish cancellation.
func NewHandler(repo *Repository, registry *Registry, clips ClipLister, scheduler ScheduleCanceller, hub Broadcaster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, registry: registry, clips: clips, scheduler: scheduler, hub: hub, logger: logger}
}

// CreateRequest is the POST /sessions body.
type CreateRequest struct {
	Title     string `json:"title" binding:"required"`
	SourceURL string `json:"sourceUrl" binding:"required,url"`
}

// Create handles POST /sessions. The ingest key is returned exactly once;
// only its bcrypt hash is stored.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	key, err := newIngestKey()
	if err != nil {
		h.logger.Error("generate ingest key", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash ingest key", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}

	session := &models.StreamSession{
		ID:            uuid.New(),
		Title:         req.Title,
		SourceURL:     req.SourceURL,
		IngestKeyHash: string(hash),
		StartedAt:     time.Now(),
	}
	if err := h.repo.Create(c.Request.Context(), session); err != nil {
		h.logger.Error("create session", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}
	h.registry.Start(session)

	response.Created(c, gin.H{
		"session":   session,
		"ingestKey": key,
	})
}

// List handles GET /sessions.
func (h *Handler) List(c *gin.Context) {
	sessions, err := h.repo.List(c.Request.Context(), 50)
	if err != nil {
		h.logger.Error("list sessions", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, sessions)
}

// Get handles GET /sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	session, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get session", zap.Error(err))
		response.Internal(c, "failed to load session")
		return
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, session)
}

// SignalRequest is the POST /sessions/:id/signals body, one tick of metrics.
type SignalRequest struct {
	Timestamp time.Time           `json:"timestamp" binding:"required"`
	Chat      models.ChatSignal   `json:"chat"`
	Audio     models.AudioSignal  `json:"audio"`
	Visual    models.VisualSignal `json:"visual"`
	Viewer    models.ViewerSignal `json:"viewer"`
}

// IngestSignals handles POST /sessions/:id/signals, authenticated by the
// session's ingest key in the X-Ingest-Key header.
func (h *Handler) IngestSignals(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pipeline := h.registry.Get(id)
	if pipeline == nil {
		// Registry miss: either unknown or already ended.
		session, err := h.repo.GetByID(c.Request.Context(), id)
		if err != nil {
			h.logger.Error("get session", zap.Error(err))
			response.Internal(c, "failed to load session")
			return
		}
		if session == nil {
			response.NotFound(c, "session not found")
			return
		}
		if !session.Active() {
			response.Conflict(c, "session has ended")
			return
		}
		// Active in the DB but not registered locally (e.g. after restart).
		pipeline = h.registry.Start(session)
	}

	key := c.GetHeader("X-Ingest-Key")
	if key == "" {
		response.Unauthorized(c, "ingest key required")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(pipeline.Session().IngestKeyHash), []byte(key)) != nil {
		response.Unauthorized(c, "invalid ingest key")
		return
	}

	sample := models.SignalSample{
		SessionID: id,
		Timestamp: req.Timestamp,
		Chat:      req.Chat,
		Audio:     req.Audio,
		Visual:    req.Visual,
		Viewer:    req.Viewer,
	}
	score, err := pipeline.Ingest(c.Request.Context(), sample)
	if err != nil {
		var verr *signals.ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(c, verr.Error())
			return
		}
		if errors.Is(err, signals.ErrStaleSample) {
			response.Conflict(c, err.Error())
			return
		}
		h.logger.Error("ingest sample", zap.String("session_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to ingest sample")
		return
	}
	response.OK(c, gin.H{"score": score})
}

// End handles POST /sessions/:id/end: stops the pipeline, persists final
// stats and cancels still-pending scheduled publishes for the session's clips.
func (h *Handler) End(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	ctx := c.Request.Context()
	session, err := h.repo.GetByID(ctx, id)
	if err != nil {
		h.logger.Error("get session", zap.Error(err))
		response.Internal(c, "failed to load session")
		return
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return
	}
	if !session.Active() {
		response.Conflict(c, "session already ended")
		return
	}

	peak, moments := session.PeakViewers, session.MomentCount
	if p := h.registry.Stop(id); p != nil {
		peak, moments = p.Stats()
	}
	endedAt := time.Now()
	if err := h.repo.End(ctx, id, endedAt, peak, moments); err != nil {
		h.logger.Error("end session", zap.Error(err))
		response.Internal(c, "failed to end session")
		return
	}

	cancelled := 0
	if h.clips != nil && h.scheduler != nil {
		clipIDs, err := h.clips.ListIDsBySession(ctx, id)
		if err != nil {
			h.logger.Warn("list session clips for cancellation", zap.Error(err))
		}
		for _, clipID := range clipIDs {
			n, err := h.scheduler.CancelClip(ctx, clipID)
			if err != nil {
				h.logger.Warn("cancel scheduled publishes",
					zap.String("clip_id", clipID.String()), zap.Error(err))
				continue
			}
			cancelled += n
		}
	}

	if h.hub != nil {
		h.hub.BroadcastToSessionAndPublish(id, realtime.EventSessionEnded, gin.H{
			"session_id":   id,
			"ended_at":     endedAt,
			"peak_viewers": peak,
			"moment_count": moments,
		})
	}
	h.logger.Info("session ended",
		zap.String("session_id", id.String()),
		zap.Int("peak_viewers", peak),
		zap.Int("moment_count", moments),
		zap.Int("cancelled_scheduled", cancelled),
	)
	response.OK(c, gin.H{
		"sessionId":          id,
		"endedAt":            endedAt,
		"peakViewers":        peak,
		"momentCount":        moments,
		"cancelledScheduled": cancelled,
	})
}

// newIngestKey returns a 48-char hex key.
func newIngestKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
