// Package clips owns clip jobs: render requests to the external renderer,
// job persistence and the render-complete webhook.
package clips

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TargetFormat asks the renderer for one platform-shaped rendition.
type TargetFormat struct {
	Platform    string `json:"platform"`
	AspectRatio string `json:"aspect_ratio"`
}

// RenderRequest is the contract with the external clip renderer.
type RenderRequest struct {
	ClipID    uuid.UUID      `json:"clip_id"`
	VideoURL  string         `json:"video_url"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Formats   []TargetFormat `json:"formats"`
}

// RenderAck is the renderer's immediate response; the rendered/failed
// transition arrives later on the render-complete webhook.
type RenderAck struct {
	ClipID uuid.UUID `json:"clip_id"`
	Status string    `json:"status"`
}

// Renderer is the external collaborator that cuts clips. Render returns
// immediately with status=requested; results arrive asynchronously.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*RenderAck, error)
}

// HTTPRenderer calls the renderer service over HTTP.
type HTTPRenderer struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPRenderer creates a renderer client.
func NewHTTPRenderer(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPRenderer{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Render submits the render job.
func (r *HTTPRenderer) Render(ctx context.Context, req RenderRequest) (*RenderAck, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("renderer request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("renderer status %d", resp.StatusCode)
	}

	var ack RenderAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("decode render ack: %w", err)
	}
	return &ack, nil
}
