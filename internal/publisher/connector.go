package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ConnectorClient talks to the platform connector service, which owns the
// per-platform API credentials. One connector endpoint per platform under
// <base>/<platform>/posts.
type ConnectorClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewConnectorClient creates a connector client with a per-request timeout.
func NewConnectorClient(baseURL string, timeout time.Duration, logger *zap.Logger) *ConnectorClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectorClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ForPlatform returns the PlatformPublisher bound to one platform endpoint.
func (c *ConnectorClient) ForPlatform(platform string) PlatformPublisher {
	return &platformConnector{client: c, platform: platform}
}

type platformConnector struct {
	client   *ConnectorClient
	platform string
}

type connectorError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Publish posts the clip to the platform connector. The idempotency key is
// sent as a header so the connector can dedupe repeated attempts.
func (p *platformConnector) Publish(ctx context.Context, req PostRequest) (*PostResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Code: CodeRejected, Message: err.Error(), Permanent: true}
	}

	url := fmt.Sprintf("%s/%s/posts", p.client.baseURL, p.platform)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: CodeNetwork, Message: err.Error(), Permanent: false}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := p.client.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Code: CodeTimeout, Message: err.Error(), Permanent: false}
		}
		return nil, &Error{Code: CodeNetwork, Message: err.Error(), Permanent: false}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var result PostResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, &Error{Code: CodeUpstreamError, Message: "malformed connector response", Permanent: false}
		}
		return &result, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Code: CodeRateLimited, Message: "connector rate limited", Permanent: false}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Code: CodeAuthFailed, Message: readError(resp.Body), Permanent: true}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &Error{Code: CodeRejected, Message: readError(resp.Body), Permanent: true}
	default:
		return nil, &Error{Code: CodeUpstreamError, Message: fmt.Sprintf("connector status %d", resp.StatusCode), Permanent: false}
	}
}

func readError(r io.Reader) string {
	var ce connectorError
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&ce); err != nil || ce.Message == "" {
		return "connector rejected request"
	}
	return ce.Message
}
