package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cardamage/internal/config"
	"cardamage/internal/security"
)

// Client posts notifications to the analysis workflow.
type Client struct {
	url           string
	token         string
	signingSecret string
	tokenTTL      time.Duration
	httpClient    *http.Client
}

func NewClient(cfg config.WebhookConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:           cfg.URL,
		token:         cfg.Token,
		signingSecret: cfg.SigningSecret,
		tokenTTL:      cfg.TokenTTL,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.url != ""
}

func (c *Client) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.bearer(n.AssessmentID)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}

// bearer prefers a per-call JWT when a signing secret is configured.
func (c *Client) bearer(assessmentID string) (string, error) {
	if c.signingSecret == "" {
		return c.token, nil
	}
	ttl := c.tokenTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	token, err := security.GenerateWebhookToken(c.signingSecret, assessmentID, ttl)
	if err != nil {
		return "", fmt.Errorf("webhook token: %w", err)
	}
	return token, nil
}
