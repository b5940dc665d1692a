package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookSender posts alerts to a Slack, Discord or generic JSON webhook.
type WebhookSender struct {
	url    string
	typ    string
	client *http.Client
}

// NewWebhookSender builds a sender for url. An empty typ is detected from
// the URL host.
func NewWebhookSender(url, typ string, timeout time.Duration) *WebhookSender {
	if typ == "" {
		typ = detectWebhookType(url)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		url:    url,
		typ:    strings.ToLower(typ),
		client: &http.Client{Timeout: timeout},
	}
}

func detectWebhookType(url string) string {
	switch {
	case strings.Contains(url, "slack.com"):
		return "slack"
	case strings.Contains(url, "discord.com"):
		return "discord"
	default:
		return "generic"
	}
}

func (w *WebhookSender) Name() string { return "webhook:" + w.typ }

func (w *WebhookSender) Send(ctx context.Context, alert Alert) error {
	var payload []byte
	var err error

	switch w.typ {
	case "slack":
		payload, err = buildSlackPayload(alert)
	case "discord":
		payload, err = buildDiscordPayload(alert)
	default:
		payload, err = buildGenericPayload(alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildSlackPayload(alert Alert) ([]byte, error) {
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf(":x: Resource unavailable: %s", alert.Resource),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Failures:*\n%d", alert.Failures)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Error:*\n%s", alert.Error),
				},
			},
		},
	}
	return json.Marshal(payload)
}

func buildDiscordPayload(alert Alert) ([]byte, error) {
	color := 16776960 // yellow
	if alert.Failures > 1 {
		color = 16711680 // red
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Resource unavailable: %s", alert.Resource),
				"description": alert.Error,
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Failures", "value": fmt.Sprintf("%d", alert.Failures), "inline": true},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}
	return json.Marshal(payload)
}

func buildGenericPayload(alert Alert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type": "resource_unavailable",
		"resource":   alert.Resource,
		"error":      alert.Error,
		"failures":   alert.Failures,
		"timestamp":  alert.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(payload)
}
