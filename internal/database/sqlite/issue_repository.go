package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/repositories"
)

// IssueRepository implements repositories.IssueRepository
type IssueRepository struct {
	db *sqlx.DB
}

// NewIssueRepository creates a new IssueRepository
func NewIssueRepository(db *sqlx.DB) repositories.IssueRepository {
	return &IssueRepository{db: db}
}

const issueColumns = `issue_id, customer_id, campaign_id, rule_id, issue_type,
	severity, confidence_score, title, description, detected_at, status,
	resolution_notes, resolved_at, auto_resolution_attempted,
	auto_resolution_succeeded, recommended_actions, impact_assessment, version`

// Create inserts a new issue. The partial unique index on active
// (campaign_id, issue_type) rows backs the one-active-issue invariant.
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	if issue.Version == 0 {
		issue.Version = 1
	}
	query := `
		INSERT INTO issues (` + issueColumns + `)
		VALUES (:issue_id, :customer_id, :campaign_id, :rule_id, :issue_type,
			:severity, :confidence_score, :title, :description, :detected_at,
			:status, :resolution_notes, :resolved_at,
			:auto_resolution_attempted, :auto_resolution_succeeded,
			:recommended_actions, :impact_assessment, :version)
	`
	if _, err := r.db.NamedExecContext(ctx, query, issue); err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	return nil
}

// GetByID retrieves an issue by its identifier
func (r *IssueRepository) GetByID(ctx context.Context, issueID string) (*models.Issue, error) {
	issue := &models.Issue{}
	query := `SELECT ` + issueColumns + ` FROM issues WHERE issue_id = ?`
	if err := r.db.GetContext(ctx, issue, query, issueID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("issue %s: %w", issueID, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

// GetActiveByKey retrieves the single active issue for a campaign/type pair
func (r *IssueRepository) GetActiveByKey(ctx context.Context, customerID, campaignID string, issueType models.IssueType) (*models.Issue, error) {
	issue := &models.Issue{}
	query := `
		SELECT ` + issueColumns + ` FROM issues
		WHERE customer_id = ? AND campaign_id = ? AND issue_type = ? AND status = 'active'
	`
	if err := r.db.GetContext(ctx, issue, query, customerID, campaignID, issueType); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get active issue: %w", err)
	}
	return issue, nil
}

// GetLatestByKey retrieves the most recently detected issue for a
// campaign/type pair regardless of status. Used for cooldown checks.
func (r *IssueRepository) GetLatestByKey(ctx context.Context, customerID, campaignID string, issueType models.IssueType) (*models.Issue, error) {
	issue := &models.Issue{}
	query := `
		SELECT ` + issueColumns + ` FROM issues
		WHERE customer_id = ? AND campaign_id = ? AND issue_type = ?
		ORDER BY detected_at DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, issue, query, customerID, campaignID, issueType); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get latest issue: %w", err)
	}
	return issue, nil
}

// GetActiveByCustomer retrieves all active issues for an account, highest
// severity first, oldest detection first within a severity.
func (r *IssueRepository) GetActiveByCustomer(ctx context.Context, customerID string) ([]*models.Issue, error) {
	var issues []*models.Issue
	query := `
		SELECT ` + issueColumns + ` FROM issues
		WHERE customer_id = ? AND status = 'active'
		ORDER BY CASE severity
			WHEN 'critical' THEN 4
			WHEN 'high' THEN 3
			WHEN 'medium' THEN 2
			WHEN 'low' THEN 1
			ELSE 0
		END DESC, detected_at ASC
	`
	if err := r.db.SelectContext(ctx, &issues, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to query active issues: %w", err)
	}
	return issues, nil
}

// Update writes an issue back using compare-and-swap on the version column.
// Returns repositories.ErrStaleWrite when the row changed underneath the
// caller; the issue's version is bumped on success.
func (r *IssueRepository) Update(ctx context.Context, issue *models.Issue) error {
	query := `
		UPDATE issues SET
			severity = :severity,
			confidence_score = :confidence_score,
			title = :title,
			description = :description,
			detected_at = :detected_at,
			status = :status,
			resolution_notes = :resolution_notes,
			resolved_at = :resolved_at,
			auto_resolution_attempted = :auto_resolution_attempted,
			auto_resolution_succeeded = :auto_resolution_succeeded,
			recommended_actions = :recommended_actions,
			impact_assessment = :impact_assessment,
			version = :version + 1
		WHERE issue_id = :issue_id AND version = :version
	`
	result, err := r.db.NamedExecContext(ctx, query, issue)
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return repositories.ErrStaleWrite
	}
	issue.Version++
	return nil
}

// CountActiveBySeverity returns active issue counts grouped by severity
func (r *IssueRepository) CountActiveBySeverity(ctx context.Context, customerID string) (map[models.Severity]int, error) {
	rows := []struct {
		Severity models.Severity `db:"severity"`
		Count    int             `db:"count"`
	}{}
	query := `
		SELECT severity, COUNT(*) AS count FROM issues
		WHERE customer_id = ? AND status = 'active'
		GROUP BY severity
	`
	if err := r.db.SelectContext(ctx, &rows, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to count issues: %w", err)
	}

	counts := make(map[models.Severity]int, len(rows))
	for _, row := range rows {
		counts[row.Severity] = row.Count
	}
	return counts, nil
}

// DailyTrends returns per-day detected/resolved/critical counts for the
// trailing window, oldest day first. Days with no activity are included.
func (r *IssueRepository) DailyTrends(ctx context.Context, customerID string, days int) ([]*models.IssueTrend, error) {
	since := time.Now().UTC().AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)

	// Day bucketing happens here rather than in SQL so it does not depend
	// on the timestamp format the driver stores.
	rows := []struct {
		DetectedAt time.Time       `db:"detected_at"`
		ResolvedAt sql.NullTime    `db:"resolved_at"`
		Severity   models.Severity `db:"severity"`
	}{}
	query := `
		SELECT detected_at, resolved_at, severity FROM issues
		WHERE customer_id = ? AND (detected_at >= ? OR resolved_at >= ?)
	`
	if err := r.db.SelectContext(ctx, &rows, query, customerID, since, since); err != nil {
		return nil, fmt.Errorf("failed to query issue trend: %w", err)
	}

	byDay := make(map[string]*models.IssueTrend, days)
	trends := make([]*models.IssueTrend, 0, days)
	for d := 0; d < days; d++ {
		day := since.AddDate(0, 0, d).Format("2006-01-02")
		trend := &models.IssueTrend{Day: day}
		byDay[day] = trend
		trends = append(trends, trend)
	}
	for _, row := range rows {
		if trend, ok := byDay[row.DetectedAt.UTC().Format("2006-01-02")]; ok {
			trend.Detected++
			if row.Severity == models.SeverityCritical {
				trend.Critical++
			}
		}
		if row.ResolvedAt.Valid {
			if trend, ok := byDay[row.ResolvedAt.Time.UTC().Format("2006-01-02")]; ok {
				trend.Resolved++
			}
		}
	}
	return trends, nil
}
