// Package worker mirrors rendered clip assets from the renderer's URLs into
// S3 so downloads survive renderer retention limits.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hypecast/backend/internal/clips"
	"github.com/hypecast/backend/internal/models"
	"github.com/hypecast/backend/pkg/queue"
	"github.com/hypecast/backend/pkg/storage"
)

// RenditionProcessor processes rendition fetch jobs: download from the
// renderer URL, stream to S3, update the rendition row.
type RenditionProcessor struct {
	clipRepo *clips.Repository
	s3       *storage.S3
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewRenditionProcessor creates a rendition fetch processor.
func NewRenditionProcessor(clipRepo *clips.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *RenditionProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenditionProcessor{clipRepo: clipRepo, s3: s3, queue: q, logger: logger}
}

// Process executes one rendition fetch job.
func (p *RenditionProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRenditionFetch {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RenditionFetchPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	// Download from renderer (streaming)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	bucket := p.s3.ClipsBucket()
	var key string
	switch payload.Kind {
	case models.RenditionKindThumbnail:
		bucket = p.s3.ThumbnailsBucket()
		key = storage.ThumbnailKey(payload.SessionID.String(), payload.ClipID.String())
		if contentType == "" {
			contentType = "image/jpeg"
		}
	case models.RenditionKindPlatform:
		key = storage.ClipKey(payload.SessionID.String(), payload.ClipID.String(), payload.Platform+".mp4")
		if contentType == "" {
			contentType = "video/mp4"
		}
	default:
		key = storage.ClipKey(payload.SessionID.String(), payload.ClipID.String(), "master.mp4")
		if contentType == "" {
			contentType = "video/mp4"
		}
	}

	// Stream upload to S3 (no full buffer)
	s3URL, err := p.s3.Upload(ctx, bucket, key, contentType, resp.Body, resp.ContentLength)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.clipRepo.UpdateRenditionStorage(ctx, payload.RenditionID, s3URL, key); err != nil {
		p.logger.Error("update rendition storage failed", zap.Error(err), zap.String("rendition_id", payload.RenditionID.String()))
		return fmt.Errorf("update db: %w", err)
	}

	p.logger.Info("rendition mirrored to S3",
		zap.String("clip_id", payload.ClipID.String()),
		zap.String("kind", payload.Kind),
		zap.String("s3_key", key),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *RenditionProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("rendition worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
