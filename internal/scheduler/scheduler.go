// Package scheduler holds deferred publish tasks until due time, then
// resubmits each one to the immediate-dispatch path exactly once.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hypecast/backend/internal/metrics"
	"github.com/hypecast/backend/internal/publisher"
)

// Entry is one deferred publish task keyed by due time.
type Entry struct {
	ClipID   uuid.UUID             `json:"clip_id"`
	Platform string                `json:"platform"`
	Due      time.Time             `json:"due"`
	Request  publisher.PostRequest `json:"request"`
}

// Store persists scheduler entries. Claim must be atomic per entry so that an
// entry is dispatched exactly once even with multiple scheduler instances.
type Store interface {
	Add(ctx context.Context, e Entry) error
	Claim(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	CancelClip(ctx context.Context, clipID uuid.UUID) (int, error)
}

// DispatchFunc resubmits a due task to the publisher's immediate path.
type DispatchFunc func(ctx context.Context, req publisher.PostRequest)

// Scheduler polls the store and dispatches due entries.
type Scheduler struct {
	store    Store
	dispatch DispatchFunc
	poll     time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler. Call Start to begin polling.
func New(store Store, dispatch DispatchFunc, poll time.Duration, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	if poll <= 0 {
		poll = time.Second
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:    store,
		dispatch: dispatch,
		poll:     poll,
		metrics:  m,
		logger:   logger,
	}
}

// Schedule adds a deferred task. Implements publisher.SchedulerHandoff.
func (s *Scheduler) Schedule(ctx context.Context, due time.Time, req publisher.PostRequest) error {
	return s.store.Add(ctx, Entry{
		ClipID:   req.ClipID,
		Platform: req.Platform,
		Due:      due,
		Request:  req,
	})
}

// CancelClip removes all still-pending entries for a clip. Already-terminal
// publish results are never altered.
func (s *Scheduler) CancelClip(ctx context.Context, clipID uuid.UUID) (int, error) {
	return s.store.CancelClip(ctx, clipID)
}

// Start begins the polling loop. Call Stop to release resources. The
// scheduler may be started again after Stop; each run gets a fresh done
// channel so restarts never touch an already-closed one.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.run(ctx, done)
	s.logger.Info("publish scheduler started", zap.Duration("poll", s.poll))
}

// Stop stops the polling loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	<-s.done
	s.logger.Info("publish scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := s.store.Claim(ctx, time.Now(), 64)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("claim due entries", zap.Error(err))
				}
				continue
			}
			for _, e := range entries {
				s.metrics.ScheduledFired.Inc()
				s.logger.Info("dispatching scheduled publish",
					zap.String("clip_id", e.ClipID.String()),
					zap.String("platform", e.Platform),
				)
				go s.dispatch(ctx, e.Request)
			}
		}
	}
}
