package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
)

// ErrStaleWrite is returned by compare-and-swap updates when the stored
// version no longer matches the caller's copy.
var ErrStaleWrite = errors.New("stale write: version mismatch")

// RuleRepository defines monitoring rule data access methods
type RuleRepository interface {
	Create(ctx context.Context, rule *models.MonitoringRule) error
	GetByID(ctx context.Context, ruleID string) (*models.MonitoringRule, error)
	GetAll(ctx context.Context) ([]*models.MonitoringRule, error)
	GetEnabled(ctx context.Context) ([]*models.MonitoringRule, error)
	SetEnabled(ctx context.Context, ruleID string, enabled bool) error
}

// IssueRepository defines issue data access methods. Update is a
// compare-and-swap on the version column and returns ErrStaleWrite when the
// row changed underneath the caller.
type IssueRepository interface {
	Create(ctx context.Context, issue *models.Issue) error
	GetByID(ctx context.Context, issueID string) (*models.Issue, error)
	GetActiveByKey(ctx context.Context, customerID, campaignID string, issueType models.IssueType) (*models.Issue, error)
	GetLatestByKey(ctx context.Context, customerID, campaignID string, issueType models.IssueType) (*models.Issue, error)
	GetActiveByCustomer(ctx context.Context, customerID string) ([]*models.Issue, error)
	Update(ctx context.Context, issue *models.Issue) error
	CountActiveBySeverity(ctx context.Context, customerID string) (map[models.Severity]int, error)
	DailyTrends(ctx context.Context, customerID string, days int) ([]*models.IssueTrend, error)
}

// SessionRepository defines monitoring session data access methods
type SessionRepository interface {
	Upsert(ctx context.Context, session *models.MonitoringSession) error
	Get(ctx context.Context, customerID string) (*models.MonitoringSession, error)
	GetEnabled(ctx context.Context) ([]*models.MonitoringSession, error)
	SetEnabled(ctx context.Context, customerID string, enabled bool) error
	DisableAll(ctx context.Context) error
	RecordCycle(ctx context.Context, customerID string, at time.Time, campaigns int) error
}

// NotificationRepository defines notification audit log access methods
type NotificationRepository interface {
	Record(ctx context.Context, record *models.NotificationRecord) error
	GetRecent(ctx context.Context, customerID string, limit int) ([]*models.NotificationRecord, error)
}
