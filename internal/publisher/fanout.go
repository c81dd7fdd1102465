package publisher

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/metrics"
	"github.com/hypecast/backend/internal/models"
)

// Target is one destination in a clip's fan-out: platform, optimized content
// and an optional deferred publication time.
type Target struct {
	Platform     string
	Title        string
	Description  string
	Hashtags     []string
	VideoURL     string
	ThumbnailURL string
	ScheduledFor *time.Time
}

// TaskStore persists publish tasks. One row per (clipID, platform); retries
// mutate attempt/status on the same row, never create duplicates.
type TaskStore interface {
	CreateOrGet(ctx context.Context, task *models.PublishTask) (*models.PublishTask, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, attempt int) error
	MarkSuccess(ctx context.Context, id uuid.UUID, attempt int, postID, postURL string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempt int, code string) error
	MarkScheduled(ctx context.Context, id uuid.UUID, due time.Time) error
}

// SchedulerHandoff receives deferred tasks for later resubmission to the
// immediate-dispatch path.
type SchedulerHandoff interface {
	Schedule(ctx context.Context, due time.Time, req PostRequest) error
}

// Dispatcher runs the concurrent per-platform fan-out. The worker-limit
// semaphore is the only resource shared across clips and sessions; it is safe
// for concurrent task submission.
type Dispatcher struct {
	registry *Registry
	tasks    TaskStore
	sched    SchedulerHandoff
	cfg      config.PublishConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
	sem      chan struct{}
	now      func() time.Time
}

// NewDispatcher creates a fan-out dispatcher. sched may be nil when deferred
// publication is not wired (scheduled targets then fail as unsupported).
func NewDispatcher(registry *Registry, tasks TaskStore, sched SchedulerHandoff, cfg config.PublishConfig, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	limit := cfg.WorkerLimit
	if limit <= 0 {
		limit = 1
	}
	return &Dispatcher{
		registry: registry,
		tasks:    tasks,
		sched:    sched,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		sem:      make(chan struct{}, limit),
		now:      time.Now,
	}
}

// Publish fans the clip out to all targets and returns once every task is
// terminal or handed to the scheduler. The report enumerates every requested
// platform exactly once; a slow or failing platform never blocks the others.
func (d *Dispatcher) Publish(ctx context.Context, clip *models.ClipJob, targets []Target) *models.PublishReport {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.ClipDeadlineSeconds)*time.Second)
	defer cancel()

	results := make([]models.PlatformResult, len(targets))
	var wg sync.WaitGroup
	for i, tgt := range targets {
		if tgt.ScheduledFor != nil && tgt.ScheduledFor.After(d.now()) {
			results[i] = d.deferTarget(ctx, clip, tgt)
			continue
		}
		wg.Add(1)
		go func(i int, tgt Target) {
			defer wg.Done()
			results[i] = d.dispatch(ctx, postRequest(clip.ID, tgt))
		}(i, tgt)
	}
	wg.Wait()

	for _, r := range results {
		d.metrics.PublishOutcomes.WithLabelValues(r.Platform, r.Status).Inc()
	}
	return &models.PublishReport{ClipID: clip.ID, Results: results}
}

// DispatchDue runs the immediate-dispatch path for a task resubmitted by the
// scheduler.
func (d *Dispatcher) DispatchDue(ctx context.Context, req PostRequest) models.PlatformResult {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.ClipDeadlineSeconds)*time.Second)
	defer cancel()
	result := d.dispatch(ctx, req)
	d.metrics.PublishOutcomes.WithLabelValues(result.Platform, result.Status).Inc()
	return result
}

func postRequest(clipID uuid.UUID, tgt Target) PostRequest {
	return PostRequest{
		ClipID:         clipID,
		Platform:       tgt.Platform,
		IdempotencyKey: clipID.String() + ":" + tgt.Platform,
		Title:          tgt.Title,
		Description:    tgt.Description,
		Hashtags:       tgt.Hashtags,
		VideoURL:       tgt.VideoURL,
		ThumbnailURL:   tgt.ThumbnailURL,
	}
}

// deferTarget records the task as scheduled and hands it to the scheduler.
func (d *Dispatcher) deferTarget(ctx context.Context, clip *models.ClipJob, tgt Target) models.PlatformResult {
	if d.sched == nil {
		return models.PlatformResult{Platform: tgt.Platform, Status: models.PublishStatusFailed, Error: CodeUnsupportedPlatform}
	}
	task, err := d.tasks.CreateOrGet(ctx, newTask(clip.ID, tgt, models.PublishStatusScheduled))
	if err != nil {
		d.logger.Error("create scheduled task", zap.Error(err), zap.String("platform", tgt.Platform))
		return models.PlatformResult{Platform: tgt.Platform, Status: models.PublishStatusFailed, Error: CodeUpstreamError}
	}
	if task.Terminal() {
		return resultFromTask(task)
	}
	due := *tgt.ScheduledFor
	if err := d.tasks.MarkScheduled(ctx, task.ID, due); err != nil {
		d.logger.Error("mark scheduled", zap.Error(err), zap.String("task_id", task.ID.String()))
		return models.PlatformResult{Platform: tgt.Platform, Status: models.PublishStatusFailed, Error: CodeUpstreamError}
	}
	if err := d.sched.Schedule(ctx, due, postRequest(clip.ID, tgt)); err != nil {
		d.logger.Error("scheduler handoff", zap.Error(err), zap.String("task_id", task.ID.String()))
		return models.PlatformResult{Platform: tgt.Platform, Status: models.PublishStatusFailed, Error: CodeUpstreamError}
	}
	return models.PlatformResult{Platform: tgt.Platform, Status: models.PublishStatusScheduled, ScheduledFor: &due}
}

// dispatch publishes one task with bounded concurrency, retry with
// exponential backoff and idempotent short-circuit on prior terminal state.
func (d *Dispatcher) dispatch(ctx context.Context, req PostRequest) models.PlatformResult {
	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		return models.PlatformResult{Platform: req.Platform, Status: models.PublishStatusFailed, Error: CodeDeadlineExceeded}
	}

	task, err := d.tasks.CreateOrGet(ctx, newTaskFromRequest(req))
	if err != nil {
		d.logger.Error("create publish task", zap.Error(err), zap.String("platform", req.Platform))
		return models.PlatformResult{Platform: req.Platform, Status: models.PublishStatusFailed, Error: CodeUpstreamError}
	}
	// Terminal state is checked before any retry fires: a prior success is
	// returned as-is so the external post is never duplicated.
	if task.Terminal() {
		return resultFromTask(task)
	}

	pub, ok := d.registry.Get(req.Platform)
	if !ok {
		return d.fail(ctx, task, 0, CodeUnsupportedPlatform)
	}

	var lastCode string
	for attempt := task.Attempt + 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := d.tasks.MarkProcessing(ctx, task.ID, attempt); err != nil {
			d.logger.Warn("mark processing", zap.Error(err), zap.String("task_id", task.ID.String()))
		}
		d.metrics.PublishAttempts.WithLabelValues(req.Platform).Inc()

		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.AttemptTimeoutSeconds)*time.Second)
		res, err := pub.Publish(attemptCtx, req)
		cancel()

		if err == nil {
			if markErr := d.tasks.MarkSuccess(recordCtx(ctx), task.ID, attempt, res.PostID, res.PostURL); markErr != nil {
				d.logger.Error("mark success", zap.Error(markErr), zap.String("task_id", task.ID.String()))
			}
			return models.PlatformResult{
				Platform: req.Platform,
				Status:   models.PublishStatusSuccess,
				PostID:   res.PostID,
				PostURL:  res.PostURL,
				Attempts: attempt,
			}
		}

		perr := classify(err)
		if perr.Permanent {
			return d.fail(ctx, task, attempt, perr.Code)
		}
		lastCode = perr.Code
		d.logger.Warn("publish attempt failed",
			zap.String("platform", req.Platform),
			zap.String("clip_id", req.ClipID.String()),
			zap.Int("attempt", attempt),
			zap.String("code", perr.Code),
		)
		if attempt == d.cfg.MaxAttempts {
			break
		}
		if !d.backoff(ctx, attempt) {
			return d.fail(ctx, task, attempt, CodeDeadlineExceeded)
		}
	}
	if lastCode == "" {
		lastCode = CodeAttemptsExhausted
	}
	return d.fail(ctx, task, d.cfg.MaxAttempts, lastCode)
}

func (d *Dispatcher) fail(ctx context.Context, task *models.PublishTask, attempt int, code string) models.PlatformResult {
	if err := d.tasks.MarkFailed(recordCtx(ctx), task.ID, attempt, code); err != nil {
		d.logger.Error("mark failed", zap.Error(err), zap.String("task_id", task.ID.String()))
	}
	return models.PlatformResult{
		Platform: task.Platform,
		Status:   models.PublishStatusFailed,
		Error:    code,
		Attempts: attempt,
	}
}

// backoff sleeps for the attempt's exponential delay. Returns false when the
// context expired first.
func (d *Dispatcher) backoff(ctx context.Context, attempt int) bool {
	delay := float64(d.cfg.BackoffBaseMS) * math.Pow(d.cfg.BackoffFactor, float64(attempt-1))
	if ceil := float64(d.cfg.BackoffCapMS); delay > ceil {
		delay = ceil
	}
	timer := time.NewTimer(time.Duration(delay) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// recordCtx detaches the context from the dispatch deadline so terminal
// states are persisted even when the per-clip deadline just expired.
func recordCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func classify(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeTimeout, Message: err.Error(), Permanent: false}
	}
	return &Error{Code: CodeNetwork, Message: err.Error(), Permanent: false}
}

func newTask(clipID uuid.UUID, tgt Target, status string) *models.PublishTask {
	return &models.PublishTask{
		ID:           uuid.New(),
		ClipID:       clipID,
		Platform:     tgt.Platform,
		Title:        tgt.Title,
		Description:  tgt.Description,
		Hashtags:     tgt.Hashtags,
		Status:       status,
		ScheduledFor: tgt.ScheduledFor,
	}
}

func newTaskFromRequest(req PostRequest) *models.PublishTask {
	return &models.PublishTask{
		ID:          uuid.New(),
		ClipID:      req.ClipID,
		Platform:    req.Platform,
		Title:       req.Title,
		Description: req.Description,
		Hashtags:    req.Hashtags,
		Status:      models.PublishStatusQueued,
	}
}

func resultFromTask(t *models.PublishTask) models.PlatformResult {
	return models.PlatformResult{
		Platform:     t.Platform,
		Status:       t.Status,
		PostID:       t.PostID,
		PostURL:      t.PostURL,
		Error:        t.ErrorCode,
		ScheduledFor: t.ScheduledFor,
		Attempts:     t.Attempt,
	}
}
