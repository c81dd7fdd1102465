// Package sessions manages live stream sessions and the per-session detection
// pipeline that turns signal samples into clip jobs.
package sessions

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/detector"
	"github.com/hypecast/backend/internal/metrics"
	"github.com/hypecast/backend/internal/models"
	"github.com/hypecast/backend/internal/optimizer"
	"github.com/hypecast/backend/internal/realtime"
	"github.com/hypecast/backend/internal/signals"
)

// Broadcaster pushes session events to dashboards across instances.
type Broadcaster interface {
	BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{})
}

// MomentSink receives each detected moment together with its suggested clip
// content. Wired to the clip service in main.
type MomentSink func(ctx context.Context, session *models.StreamSession, m *models.DetectedMoment, suggestion models.SuggestedClip)

// Pipeline owns the aggregator/detector pair for one active session. Ingest
// serializes concurrent pushes so window and detector state stay consistent.
type Pipeline struct {
	session  *models.StreamSession
	agg      *signals.Aggregator
	det      *detector.Detector
	hub      Broadcaster
	onMoment MomentSink
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu          sync.Mutex
	peakViewers int
	momentCount int
}

// NewPipeline creates the pipeline for a session.
func NewPipeline(session *models.StreamSession, cfg config.DetectionConfig, hub Broadcaster, onMoment MomentSink, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		session:     session,
		agg:         signals.NewAggregator(cfg),
		det:         detector.New(cfg),
		hub:         hub,
		onMoment:    onMoment,
		metrics:     m,
		logger:      logger,
		peakViewers: session.PeakViewers,
		momentCount: session.MomentCount,
	}
}

// TickEvent is the per-sample payload pushed to dashboards.
type TickEvent struct {
	Score models.CompositeScore `json:"score"`
	State detector.State        `json:"state"`
}

// MomentEvent is the hype_moment_detected payload.
type MomentEvent struct {
	Moment        *models.DetectedMoment `json:"moment"`
	SuggestedClip models.SuggestedClip   `json:"suggested_clip"`
}

// Ingest scores one signal sample. A rejected sample leaves all pipeline state
// unchanged. On an emitted moment the sink runs asynchronously so slow clip
// creation never blocks ingestion.
func (p *Pipeline) Ingest(ctx context.Context, sample models.SignalSample) (models.CompositeScore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	score, err := p.agg.Add(sample)
	if err != nil {
		p.metrics.SamplesIngested.WithLabelValues("rejected").Inc()
		return models.CompositeScore{}, err
	}
	p.metrics.SamplesIngested.WithLabelValues("accepted").Inc()

	if sample.Viewer.Current > p.peakViewers {
		p.peakViewers = sample.Viewer.Current
	}

	if p.hub != nil {
		p.hub.BroadcastToSessionAndPublish(p.session.ID, realtime.EventTick, TickEvent{
			Score: score,
			State: p.det.State(sample.Timestamp),
		})
	}

	if moment := p.det.Observe(sample, score); moment != nil {
		p.momentCount++
		p.metrics.MomentsDetected.Inc()

		// Prefer window keywords over the single-sample ones so the
		// suggestion reflects the whole build-up.
		if kws := p.agg.WindowKeywords(); len(kws) > 0 {
			moment.Keywords = kws
		}
		suggestion := optimizer.SuggestClip(moment)

		p.logger.Info("hype moment detected",
			zap.String("session_id", p.session.ID.String()),
			zap.String("moment_id", moment.ID.String()),
			zap.Float64("intensity", moment.Intensity),
			zap.Float64("confidence", moment.Confidence),
		)
		if p.hub != nil {
			p.hub.BroadcastToSessionAndPublish(p.session.ID, realtime.EventHypeMoment, MomentEvent{
				Moment:        moment,
				SuggestedClip: suggestion,
			})
		}
		if p.onMoment != nil {
			session := p.session
			go p.onMoment(context.WithoutCancel(ctx), session, moment, suggestion)
		}
	}

	return score, nil
}

// Session returns the session this pipeline serves.
func (p *Pipeline) Session() *models.StreamSession {
	return p.session
}

// Stats returns peak viewers and moment count for session-end persistence.
func (p *Pipeline) Stats() (peakViewers, momentCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peakViewers, p.momentCount
}
