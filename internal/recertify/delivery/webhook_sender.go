package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	webhookSchemaVersion  = "1"
	webhookUserAgent      = "recertify-server/v1"
)

// WebhookEnvelope is the JSON body POSTed to the webhook endpoint.
type WebhookEnvelope struct {
	Type          string             `json:"type"`
	SchemaVersion string             `json:"schema_version"`
	Timestamp     string             `json:"timestamp"`
	Data          types.Notification `json:"data"`
}

type WebhookConfig struct {
	URL       string
	AuthToken string
	Timeout   time.Duration

	// RatePerMinute paces outgoing requests.  0 disables pacing.
	RatePerMinute int
}

// WebhookSender POSTs each notification to an HTTP endpoint, typically a
// mail relay or chat bridge.  Any non-2xx status is a delivery failure.
type WebhookSender struct {
	client    *http.Client
	url       string
	authToken string
	limiter   *rate.Limiter
}

func NewWebhookSender(cfg WebhookConfig) *WebhookSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	s := &WebhookSender{
		client:    &http.Client{Timeout: timeout},
		url:       cfg.URL,
		authToken: cfg.AuthToken,
	}
	if cfg.RatePerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), max(1, cfg.RatePerMinute/10))
	}
	return s
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, n types.Notification) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("webhook rate limit: %w", err)
		}
	}

	body, err := json.Marshal(WebhookEnvelope{
		Type:          "recertification.reminder",
		SchemaVersion: webhookSchemaVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Data:          n,
	})
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook post: unexpected status %d", resp.StatusCode)
	}
	return nil
}
