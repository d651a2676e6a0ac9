package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Severity classifies how urgent an issue is. Values are totally ordered,
// Rank gives the ordering.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRanks = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the position of s in the severity order (info=0 .. critical=4).
// Unknown severities rank below info.
func (s Severity) Rank() int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return -1
}

// Escalate returns the next severity level up. Critical stays critical.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityInfo:
		return SeverityLow
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh, SeverityCritical:
		return SeverityCritical
	default:
		return s
	}
}

// Valid reports whether s is a known severity value.
func (s Severity) Valid() bool {
	_, ok := severityRanks[s]
	return ok
}

// IssueType is the category a monitoring rule detects.
type IssueType string

const (
	IssueTypeOverspend   IssueType = "overspend"
	IssueTypeUnderspend  IssueType = "underspend"
	IssueTypeDisapproval IssueType = "disapproval"
	IssueTypeQualityDrop IssueType = "quality_drop"
)

// IssueStatus tracks an issue through its lifecycle.
type IssueStatus string

const (
	IssueStatusActive   IssueStatus = "active"
	IssueStatusResolved IssueStatus = "resolved"
	IssueStatusIgnored  IssueStatus = "ignored"
)

// StringList stores an ordered list of strings as a JSON column.
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

// MonitoringRule is a versioned detection rule evaluated against campaign
// snapshots. Condition and ThresholdExpr are expressions over snapshot
// fields; Metric names the snapshot field the confidence score is derived
// from.
type MonitoringRule struct {
	RuleID          string    `json:"rule_id" db:"rule_id"`
	Name            string    `json:"name" db:"name"`
	Description     string    `json:"description" db:"description"`
	IssueType       IssueType `json:"issue_type" db:"issue_type"`
	Severity        Severity  `json:"severity" db:"severity"`
	Metric          string    `json:"metric" db:"metric"`
	Condition       string    `json:"condition" db:"condition"`
	ThresholdExpr   string    `json:"threshold_expr" db:"threshold_expr"`
	AutoResolve     bool      `json:"auto_resolve" db:"auto_resolve"`
	Enabled         bool      `json:"enabled" db:"enabled"`
	CooldownMinutes int       `json:"cooldown_minutes" db:"cooldown_minutes"`
	Version         int64     `json:"version" db:"version"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Cooldown returns the rule cooldown as a duration.
func (r *MonitoringRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Issue is a tracked problem detected on a campaign. At most one active
// issue exists per (campaign_id, issue_type); the version column supports
// compare-and-swap writes.
type Issue struct {
	IssueID                  string       `json:"issue_id" db:"issue_id"`
	CustomerID               string       `json:"customer_id" db:"customer_id"`
	CampaignID               string       `json:"campaign_id" db:"campaign_id"`
	RuleID                   string       `json:"rule_id" db:"rule_id"`
	IssueType                IssueType    `json:"issue_type" db:"issue_type"`
	Severity                 Severity     `json:"severity" db:"severity"`
	ConfidenceScore          float64      `json:"confidence_score" db:"confidence_score"`
	Title                    string       `json:"title" db:"title"`
	Description              string       `json:"description" db:"description"`
	DetectedAt               time.Time    `json:"detected_at" db:"detected_at"`
	Status                   IssueStatus  `json:"status" db:"status"`
	ResolutionNotes          string       `json:"resolution_notes,omitempty" db:"resolution_notes"`
	ResolvedAt               sql.NullTime `json:"-" db:"resolved_at"`
	AutoResolutionAttempted  bool         `json:"auto_resolution_attempted" db:"auto_resolution_attempted"`
	AutoResolutionSucceeded  sql.NullBool `json:"-" db:"auto_resolution_succeeded"`
	RecommendedActions       StringList   `json:"recommended_actions" db:"recommended_actions"`
	ImpactAssessment         string       `json:"impact_assessment" db:"impact_assessment"`
	Version                  int64        `json:"-" db:"version"`
}

// MarshalJSON flattens nullable columns into the documented wire shape.
func (i *Issue) MarshalJSON() ([]byte, error) {
	type alias Issue
	out := struct {
		*alias
		ResolvedAt              *time.Time `json:"resolved_at,omitempty"`
		AutoResolutionSucceeded *bool      `json:"auto_resolution_succeeded,omitempty"`
	}{alias: (*alias)(i)}

	if i.ResolvedAt.Valid {
		t := i.ResolvedAt.Time
		out.ResolvedAt = &t
	}
	if i.AutoResolutionSucceeded.Valid {
		b := i.AutoResolutionSucceeded.Bool
		out.AutoResolutionSucceeded = &b
	}
	return json.Marshal(out)
}

// Key identifies the issue slot this issue occupies.
func (i *Issue) Key() string {
	return i.CustomerID + "/" + i.CampaignID + "/" + string(i.IssueType)
}

// MonitoringSession tracks per-account monitoring state. One session per
// customer; the scheduler only drives enabled sessions.
type MonitoringSession struct {
	CustomerID         string       `json:"customer_id" db:"customer_id"`
	Enabled            bool         `json:"enabled" db:"enabled"`
	StartedAt          time.Time    `json:"started_at" db:"started_at"`
	LastCycleAt        sql.NullTime `json:"-" db:"last_cycle_at"`
	CampaignsMonitored int          `json:"campaigns_monitored" db:"campaigns_monitored"`
}

// MarshalJSON flattens the nullable last_cycle_at column.
func (s *MonitoringSession) MarshalJSON() ([]byte, error) {
	type alias MonitoringSession
	out := struct {
		*alias
		LastCycleAt *time.Time `json:"last_cycle_at,omitempty"`
	}{alias: (*alias)(s)}

	if s.LastCycleAt.Valid {
		t := s.LastCycleAt.Time
		out.LastCycleAt = &t
	}
	return json.Marshal(out)
}

// NotificationRecord is an audit entry for a dispatched (or dropped)
// notification.
type NotificationRecord struct {
	ID         string    `json:"id" db:"id"`
	CustomerID string    `json:"customer_id" db:"customer_id"`
	IssueID    string    `json:"issue_id" db:"issue_id"`
	Event      string    `json:"event" db:"event"`
	Channel    string    `json:"channel" db:"channel"`
	Status     string    `json:"status" db:"status"`
	Attempts   int       `json:"attempts" db:"attempts"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IssueTrend is one day of issue activity for the dashboard.
type IssueTrend struct {
	Day      string `json:"date" db:"day"`
	Detected int    `json:"issues_detected" db:"detected"`
	Resolved int    `json:"issues_resolved" db:"resolved"`
	Critical int    `json:"critical_issues" db:"critical"`
}
