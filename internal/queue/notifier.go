package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zombar/guardian/internal/apperr"
	"github.com/zombar/guardian/internal/models"
)

// WebhookNotifier POSTs safety alerts as JSON to a fixed URL
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// alertMessage omits detected issue text, which may quote user content
type alertMessage struct {
	EventID           string    `json:"event_id"`
	UserID            string    `json:"user_id"`
	EventType         string    `json:"event_type"`
	RiskLevel         string    `json:"risk_level"`
	ImmediateAction   bool      `json:"immediate_action"`
	EmergencyResponse bool      `json:"emergency_response"`
	IssueCount        int       `json:"issue_count"`
	ActionItems       []string  `json:"action_items"`
	ContentType       string    `json:"content_type"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewWebhookNotifier creates a notifier. httpClient may be nil.
func NewWebhookNotifier(url string, httpClient *http.Client) *WebhookNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, httpClient: httpClient}
}

// Notify sends the event. 4xx responses are not retried.
func (n *WebhookNotifier) Notify(ctx context.Context, event *models.CriticalSafetyEvent) error {
	body, err := json.Marshal(alertMessage{
		EventID:           event.ID,
		UserID:            event.UserID,
		EventType:         event.EventType,
		RiskLevel:         event.RiskLevel,
		ImmediateAction:   event.ImmediateAction,
		EmergencyResponse: event.EmergencyResponse,
		IssueCount:        len(event.DetectedIssues),
		ActionItems:       event.ActionItems,
		ContentType:       event.ContentType,
		CreatedAt:         event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return apperr.New(apperr.Validation, fmt.Errorf("failed to create alert request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return apperr.New(apperr.ExternalAPI, fmt.Errorf("failed to send alert: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return apperr.Newf(apperr.Validation, "alert webhook rejected event with status %d", resp.StatusCode)
	default:
		return apperr.Newf(apperr.ExternalAPI, "alert webhook returned status %d", resp.StatusCode)
	}
}
