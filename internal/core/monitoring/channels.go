package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/adpulse-ops/adpulse-backend-go/internal/config"
	"github.com/adpulse-ops/adpulse-backend-go/internal/websocket"
)

// LogNotifier writes events to the structured log. Always on; it doubles as
// the audit trail when no external channel is configured.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(_ context.Context, event *Event) error {
	n.logger.WithFields(logrus.Fields{
		"event":       event.Type,
		"issue_id":    event.Issue.IssueID,
		"customer_id": event.Issue.CustomerID,
		"campaign_id": event.Issue.CampaignID,
		"issue_type":  event.Issue.IssueType,
		"severity":    event.Issue.Severity,
		"detail":      event.Detail,
	}).Info("Monitoring alert")
	return nil
}

// WebhookNotifier POSTs events to a configured endpoint.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	client := resty.New().
		SetTimeout(config.Duration(cfg.Timeout, 5*time.Second)).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotifier{client: client, url: cfg.URL}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Send(ctx context.Context, event *Event) error {
	payload := map[string]interface{}{
		"event":     event.Type,
		"issue":     event.Issue,
		"detail":    event.Detail,
		"timestamp": event.Created,
	}

	resp, err := n.client.R().SetContext(ctx).SetBody(payload).Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %d", resp.StatusCode())
	}
	return nil
}

// WebSocketNotifier pushes events to dashboard clients watching the
// issue's account.
type WebSocketNotifier struct {
	hub *websocket.Hub
}

func NewWebSocketNotifier(hub *websocket.Hub) *WebSocketNotifier {
	return &WebSocketNotifier{hub: hub}
}

func (n *WebSocketNotifier) Name() string { return "websocket" }

func (n *WebSocketNotifier) Send(_ context.Context, event *Event) error {
	n.hub.BroadcastToAccount(event.Issue.CustomerID, websocket.Message{
		Type: messageType(event.Type),
		Data: map[string]interface{}{
			"issue":  event.Issue,
			"detail": event.Detail,
		},
	})
	return nil
}

func messageType(eventType EventType) string {
	switch eventType {
	case EventIssueDetected:
		return websocket.MessageTypeIssueDetected
	case EventIssueEscalated:
		return websocket.MessageTypeIssueEscalated
	case EventAutoResolution:
		return websocket.MessageTypeAutoResolution
	case EventTestAlert:
		return websocket.MessageTypeTestAlert
	default:
		return string(eventType)
	}
}
