package sessions

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/metrics"
	"github.com/hypecast/backend/internal/models"
)

// Registry holds running pipelines per session (thread-safe).
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline

	cfg      config.DetectionConfig
	hub      Broadcaster
	onMoment MomentSink
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewRegistry creates a pipeline registry.
func NewRegistry(cfg config.DetectionConfig, hub Broadcaster, onMoment MomentSink, m *metrics.Metrics, logger *zap.Logger) *Registry {
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		pipelines: make(map[string]*Pipeline),
		cfg:       cfg,
		hub:       hub,
		onMoment:  onMoment,
		metrics:   m,
		logger:    logger,
	}
}

// Start creates and registers the pipeline for a session if not already
// running, and returns it.
func (reg *Registry) Start(session *models.StreamSession) *Pipeline {
	key := session.ID.String()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if p := reg.pipelines[key]; p != nil {
		return p
	}
	p := NewPipeline(session, reg.cfg, reg.hub, reg.onMoment, reg.metrics, reg.logger)
	reg.pipelines[key] = p
	reg.metrics.ActivePipelines.Inc()
	reg.logger.Info("pipeline started", zap.String("session_id", key))
	return p
}

// Get returns the running pipeline for a session, or nil.
func (reg *Registry) Get(sessionID uuid.UUID) *Pipeline {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.pipelines[sessionID.String()]
}

// Stop removes the pipeline for a session and returns it so the caller can
// persist its final stats. Returns nil if none was running.
func (reg *Registry) Stop(sessionID uuid.UUID) *Pipeline {
	key := sessionID.String()
	reg.mu.Lock()
	p := reg.pipelines[key]
	delete(reg.pipelines, key)
	reg.mu.Unlock()
	if p != nil {
		reg.metrics.ActivePipelines.Dec()
		reg.logger.Info("pipeline stopped", zap.String("session_id", key))
	}
	return p
}

// Count returns the number of running pipelines.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.pipelines)
}
