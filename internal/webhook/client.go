package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
	perrors "github.com/kevin07696/billing-pipeline/pkg/errors"
	pkghttp "github.com/kevin07696/billing-pipeline/pkg/http"
	"github.com/kevin07696/billing-pipeline/pkg/resilience"
)

// TokenIssuer mints the optional inter-service bearer token attached as
// Authorization: Bearer <token> on outbound requests. Satisfied by
// internal/interservice.TokenIssuer; kept as an interface here so the
// webhook package doesn't import interservice directly.
type TokenIssuer interface {
	Mint(now time.Time) (string, error)
}

// Client implements the webhook delivery client (C8): canonicalize, sign,
// POST with bounded retries and exponential backoff.
type Client struct {
	httpClient *http.Client
	signer     *Signer
	tokens     TokenIssuer
	baseURL    string
	appName    string
	appVersion string
	maxRetries int
	backoff    resilience.BackoffStrategy
	timeouts   *resilience.TimeoutConfig
	logger     ports.Logger
}

// NewClient builds a webhook client for one base URL. maxRetries is R from
// §4.8: the client makes up to maxRetries+1 total attempts. tokens may be
// nil when no inter-service bearer token is configured.
func NewClient(baseURL string, signer *Signer, tokens TokenIssuer, appName, appVersion string, maxRetries int, attemptTimeout time.Duration, logger ports.Logger) *Client {
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	return &Client{
		httpClient: pkghttp.NewHTTPClient(pkghttp.WebhookClientConfig(), attemptTimeout),
		signer:     signer,
		tokens:     tokens,
		baseURL:    baseURL,
		appName:    appName,
		appVersion: appVersion,
		maxRetries: maxRetries,
		backoff:    resilience.WebhookBackoff(),
		timeouts:   &resilience.TimeoutConfig{SingleRetry: attemptTimeout},
		logger:     logger,
	}
}

// Post signs and delivers payload to endpoint, retrying on 5xx/transport
// failure with the configured exponential backoff (attempt 0 -> ~1s) up to
// maxRetries additional attempts. A 4xx response is never retried. eventID,
// when non-empty, is attached as X-Webhook-Event-ID.
func (c *Client) Post(ctx context.Context, endpoint string, payload interface{}, eventID string) (map[string]interface{}, error) {
	body, err := Canonicalize(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}

	url := c.baseURL + endpoint
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff.NextDelay(attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, retryable, err := c.attempt(ctx, url, body, eventID)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if c.logger != nil {
			c.logger.Warn("webhook delivery attempt failed, retrying",
				ports.String("url", url), ports.Int("attempt", attempt), ports.Err(err))
		}
	}
	return nil, fmt.Errorf("webhook delivery exhausted %d retries: %w", c.maxRetries, lastErr)
}

// attempt makes a single HTTP round trip. The bool return reports whether
// the caller should retry on this error (true for 5xx/transport, false for
// 4xx and payload errors).
func (c *Client) attempt(ctx context.Context, url string, body []byte, eventID string) (map[string]interface{}, bool, error) {
	attemptCtx, cancel := c.timeouts.RetryAttemptContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}

	now := time.Now().UTC()
	sigHeader, tsHeader := c.signer.SignNow(body, now)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s", c.appName, c.appVersion))
	req.Header.Set("X-Webhook-Signature", sigHeader)
	req.Header.Set("X-Webhook-Timestamp", tsHeader)
	if eventID != "" {
		req.Header.Set("X-Webhook-Event-ID", eventID)
	}
	if c.tokens != nil {
		token, err := c.tokens.Mint(now)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
		} else if c.logger != nil {
			c.logger.Warn("service token mint failed, sending unauthenticated request", ports.Err(err))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, perrors.NewRetryableError("webhook post", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, false, fmt.Errorf("webhook rejected with status %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 500 {
		return nil, true, perrors.NewRetryableError("webhook post", fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed map[string]interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			// Unparseable 2xx/3xx body: still a success, just opaque.
			return map[string]interface{}{"status": "ok"}, false, nil
		}
	} else {
		parsed = map[string]interface{}{"status": "ok"}
	}
	return parsed, false, nil
}
