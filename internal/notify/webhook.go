package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yairfalse/ilmarinen/internal/clients"
)

// Webhook payload formats
const (
	FormatJSON  = "json"
	FormatSlack = "slack"
)

// WebhookPayload is the generic JSON body
type WebhookPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
}

// WebhookConfig configures a webhook sink
type WebhookConfig struct {
	URL        string
	Format     string
	Timeout    time.Duration
	MaxRetries int
	Source     string
}

// WebhookNotifier POSTs notifications to an HTTP endpoint
type WebhookNotifier struct {
	url     string
	format  string
	source  string
	client  *clients.RetryClient
	breaker *clients.CircuitBreaker
	now     func() time.Time
}

// NewWebhookNotifier creates a webhook sink using a client from pool
func NewWebhookNotifier(cfg WebhookConfig, pool *clients.HTTPClientPool) *WebhookNotifier {
	if pool == nil {
		pool = clients.NewHTTPClientPool(cfg.Timeout)
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.Source == "" {
		cfg.Source = "ilmarinen"
	}
	return &WebhookNotifier{
		url:     cfg.URL,
		format:  strings.ToLower(cfg.Format),
		source:  cfg.Source,
		client:  clients.NewRetryClient(pool.GetClient("webhook"), cfg.MaxRetries),
		breaker: clients.NewCircuitBreaker(5, time.Minute),
		now:     time.Now,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, subject, body string) error {
	if n.url == "" {
		return nil
	}

	data, err := n.payload(subject, body)
	if err != nil {
		return wrapSinkError("webhook", fmt.Errorf("failed to marshal payload: %w", err))
	}

	err = n.breaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(ctx, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return wrapSinkError("webhook", err)
	}
	return nil
}

func (n *WebhookNotifier) payload(subject, body string) ([]byte, error) {
	if n.format == FormatSlack {
		return json.Marshal(map[string]interface{}{
			"text": subject,
			"attachments": []map[string]interface{}{
				{
					"color": slackColor(subject),
					"text":  fmt.Sprintf("```\n%s\n```", body),
				},
			},
		})
	}
	return json.Marshal(WebhookPayload{
		Timestamp: n.now().UTC(),
		Source:    n.source,
		Subject:   subject,
		Message:   body,
	})
}

// slackColor picks the attachment color from the status in the subject
func slackColor(subject string) string {
	switch {
	case strings.Contains(subject, "Failed"), strings.Contains(subject, "Unavailable"), strings.Contains(subject, "Exhausted"):
		return "danger"
	case strings.Contains(subject, "Healed"):
		return "good"
	default:
		return "warning"
	}
}
