package clips

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/metrics"
	"github.com/hypecast/backend/internal/models"
)

// Request holds everything needed to create a clip job. MomentID is zero for
// manually requested clips.
type Request struct {
	MomentID    uuid.UUID
	SessionID   uuid.UUID
	SourceURL   string
	Start       time.Time
	End         time.Time
	Title       string
	Description string
	Hashtags    []string
	Platforms   []string
}

// Service creates clip jobs and submits them to the renderer.
type Service struct {
	repo     *Repository
	renderer Renderer
	cfg      *config.Config
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService creates a clip service.
func NewService(repo *Repository, renderer Renderer, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Service {
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, renderer: renderer, cfg: cfg, metrics: m, logger: logger}
}

// RequestClip creates a clip job and submits the render. A moment yields at
// most one clip job: a repeat request for the same moment returns the
// existing job.
func (s *Service) RequestClip(ctx context.Context, req Request) (*models.ClipJob, error) {
	if req.MomentID != uuid.Nil {
		existing, err := s.repo.GetByMoment(ctx, req.MomentID)
		if err != nil {
			return nil, fmt.Errorf("lookup moment clip: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	job := &models.ClipJob{
		ID:          uuid.New(),
		MomentID:    req.MomentID,
		SessionID:   req.SessionID,
		SourceRef:   req.SourceURL,
		WindowStart: req.Start,
		WindowEnd:   req.End,
		Status:      models.ClipStatusRequested,
		Title:       req.Title,
		Description: req.Description,
		Hashtags:    req.Hashtags,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create clip job: %w", err)
	}
	s.metrics.ClipsRequested.Inc()

	ack, err := s.renderer.Render(ctx, RenderRequest{
		ClipID:    job.ID,
		VideoURL:  req.SourceURL,
		StartTime: req.Start,
		EndTime:   req.End,
		Formats:   s.formats(req.Platforms),
	})
	if err != nil {
		s.logger.Error("render submit failed",
			zap.String("clip_id", job.ID.String()),
			zap.Error(err),
		)
		if uerr := s.repo.UpdateStatus(ctx, job.ID, models.ClipStatusFailed, "render submit: "+err.Error()); uerr != nil {
			s.logger.Error("mark clip failed", zap.String("clip_id", job.ID.String()), zap.Error(uerr))
		}
		job.Status = models.ClipStatusFailed
		return job, fmt.Errorf("submit render: %w", err)
	}

	s.logger.Info("clip render requested",
		zap.String("clip_id", job.ID.String()),
		zap.String("session_id", req.SessionID.String()),
		zap.String("renderer_status", ack.Status),
	)
	return job, nil
}

// FromMoment creates the clip job for a detected moment using the suggested
// content and all configured platforms.
func (s *Service) FromMoment(ctx context.Context, session *models.StreamSession, m *models.DetectedMoment, suggestion models.SuggestedClip) (*models.ClipJob, error) {
	platforms := make([]string, 0, len(s.cfg.Platforms))
	for _, p := range s.cfg.Platforms {
		platforms = append(platforms, p.Name)
	}
	return s.RequestClip(ctx, Request{
		MomentID:    m.ID,
		SessionID:   session.ID,
		SourceURL:   session.SourceURL,
		Start:       m.ClipWindow.Start,
		End:         m.ClipWindow.End,
		Title:       suggestion.Title,
		Description: suggestion.Description,
		Hashtags:    suggestion.Hashtags,
		Platforms:   platforms,
	})
}

// formats maps platform names to renderer target formats, skipping unknown
// names. Duplicate aspect ratios are collapsed; the renderer cuts one file
// per distinct shape and the platform mapping is restored on the webhook.
func (s *Service) formats(platforms []string) []TargetFormat {
	var out []TargetFormat
	for _, name := range platforms {
		profile, ok := s.cfg.Profile(name)
		if !ok {
			s.logger.Warn("skipping unknown platform in render request", zap.String("platform", name))
			continue
		}
		out = append(out, TargetFormat{Platform: profile.Name, AspectRatio: profile.AspectRatio})
	}
	return out
}
