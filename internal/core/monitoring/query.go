package monitoring

import (
	"context"
	"database/sql"
	"errors"

	"github.com/adpulse-ops/adpulse-backend-go/internal/config"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
	pkgerrors "github.com/adpulse-ops/adpulse-backend-go/pkg/errors"
)

// AccountStatus is the monitoring status view for one account.
type AccountStatus struct {
	CustomerID       string                    `json:"customer_id"`
	Monitoring       bool                      `json:"monitoring_enabled"`
	Session          *models.MonitoringSession `json:"session,omitempty"`
	ActiveIssues     int                       `json:"active_issues"`
	IssuesBySeverity map[models.Severity]int   `json:"issues_by_severity"`
	HealthScore      int                       `json:"monitoring_health_score"`
}

// Dashboard aggregates the account's monitoring state for the UI.
type Dashboard struct {
	CustomerID          string                       `json:"customer_id"`
	HealthScore         int                          `json:"monitoring_health_score"`
	ActiveIssues        []*models.Issue              `json:"active_issues"`
	IssuesBySeverity    map[models.Severity]int      `json:"issues_by_severity"`
	RecentTrends        []*models.IssueTrend         `json:"recent_trends"`
	RecentNotifications []*models.NotificationRecord `json:"recent_notifications"`
}

// QueryService serves read-only monitoring views.
type QueryService struct {
	repos   *database.Repositories
	weights config.Weights
}

// NewQueryService creates the monitoring read side.
func NewQueryService(repos *database.Repositories, weights config.Weights) *QueryService {
	return &QueryService{repos: repos, weights: weights}
}

// HealthScore computes 100 minus weighted active-issue penalties, floored
// at zero.
func (q *QueryService) HealthScore(counts map[models.Severity]int) int {
	score := 100 -
		counts[models.SeverityCritical]*q.weights.Critical -
		counts[models.SeverityHigh]*q.weights.High -
		counts[models.SeverityMedium]*q.weights.Medium -
		counts[models.SeverityLow]*q.weights.Low
	if score < 0 {
		return 0
	}
	return score
}

// Status returns the monitoring status for an account. Accounts that were
// never started report as not monitored rather than erroring.
func (q *QueryService) Status(ctx context.Context, customerID string) (*AccountStatus, error) {
	status := &AccountStatus{CustomerID: customerID}

	session, err := q.repos.Session.Get(ctx, customerID)
	switch {
	case err == nil:
		status.Session = session
		status.Monitoring = session.Enabled
	case errors.Is(err, sql.ErrNoRows):
		// Never monitored
	default:
		return nil, err
	}

	counts, err := q.repos.Issue.CountActiveBySeverity(ctx, customerID)
	if err != nil {
		return nil, err
	}
	status.IssuesBySeverity = counts
	for _, n := range counts {
		status.ActiveIssues += n
	}
	status.HealthScore = q.HealthScore(counts)
	return status, nil
}

// Issues returns an account's active issues, most severe first, oldest
// first within a severity.
func (q *QueryService) Issues(ctx context.Context, customerID string) ([]*models.Issue, error) {
	return q.repos.Issue.GetActiveByCustomer(ctx, customerID)
}

// GetDashboard assembles the full dashboard view for an account.
func (q *QueryService) GetDashboard(ctx context.Context, customerID string) (*Dashboard, error) {
	issues, err := q.repos.Issue.GetActiveByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	counts, err := q.repos.Issue.CountActiveBySeverity(ctx, customerID)
	if err != nil {
		return nil, err
	}
	trends, err := q.repos.Issue.DailyTrends(ctx, customerID, 7)
	if err != nil {
		return nil, err
	}
	notifications, err := q.repos.Notification.GetRecent(ctx, customerID, 20)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		CustomerID:          customerID,
		HealthScore:         q.HealthScore(counts),
		ActiveIssues:        issues,
		IssuesBySeverity:    counts,
		RecentTrends:        trends,
		RecentNotifications: notifications,
	}, nil
}

// Rules returns every monitoring rule, enabled or not.
func (q *QueryService) Rules(ctx context.Context) ([]*models.MonitoringRule, error) {
	return q.repos.Rule.GetAll(ctx)
}

// ToggleRule flips a rule's enabled flag and returns the updated rule.
func (q *QueryService) ToggleRule(ctx context.Context, ruleID string) (*models.MonitoringRule, error) {
	rule, err := q.repos.Rule.GetByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}

	if err := q.repos.Rule.SetEnabled(ctx, ruleID, !rule.Enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}

	return q.repos.Rule.GetByID(ctx, ruleID)
}
