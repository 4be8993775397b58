package collector

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/formversation/voiceform/pkg/utils"
)

// WebhookCollector forwards submissions to an external webhook (n8n,
// Zapier, Make, or anything that accepts a JSON POST).
type WebhookCollector struct {
	url    string
	client *utils.HTTPClient
}

// NewWebhookCollector creates a collector posting to the given URL
func NewWebhookCollector(url string) *WebhookCollector {
	return &WebhookCollector{
		url:    url,
		client: utils.NewHTTPClient(),
	}
}

// Submit posts the answers to the webhook
func (c *WebhookCollector) Submit(ctx context.Context, formID string, answers map[string]string) (string, error) {
	submissionID := uuid.New().String()

	resp, err := c.client.Do(ctx, &utils.HTTPRequest{
		URL:    c.url,
		Method: http.MethodPost,
		Body: map[string]interface{}{
			"submission_id": submissionID,
			"form_id":       formID,
			"answers":       answers,
		},
	})
	if err != nil {
		return "", fmt.Errorf("webhook delivery failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return submissionID, nil
}
