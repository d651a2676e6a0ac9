package websocket

import (
	"encoding/json"
	"time"
)

// Message types pushed to dashboard clients
const (
	MessageTypeIssueDetected  = "issue_detected"
	MessageTypeIssueEscalated = "issue_escalated"
	MessageTypeIssueResolved  = "issue_resolved"
	MessageTypeAutoResolution = "auto_resolution"
	MessageTypeTestAlert      = "test_alert"
	MessageTypeSessionStatus  = "session_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}
