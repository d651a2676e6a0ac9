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

// RuleRepository implements repositories.RuleRepository
type RuleRepository struct {
	db *sqlx.DB
}

// NewRuleRepository creates a new RuleRepository
func NewRuleRepository(db *sqlx.DB) repositories.RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `rule_id, name, description, issue_type, severity, metric,
	condition, threshold_expr, auto_resolve, enabled, cooldown_minutes,
	version, created_at, updated_at`

// Create inserts a new monitoring rule
func (r *RuleRepository) Create(ctx context.Context, rule *models.MonitoringRule) error {
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	if rule.Version == 0 {
		rule.Version = 1
	}

	query := `
		INSERT INTO monitoring_rules (` + ruleColumns + `)
		VALUES (:rule_id, :name, :description, :issue_type, :severity, :metric,
			:condition, :threshold_expr, :auto_resolve, :enabled,
			:cooldown_minutes, :version, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// GetByID retrieves a rule by its identifier
func (r *RuleRepository) GetByID(ctx context.Context, ruleID string) (*models.MonitoringRule, error) {
	rule := &models.MonitoringRule{}
	query := `SELECT ` + ruleColumns + ` FROM monitoring_rules WHERE rule_id = ?`
	if err := r.db.GetContext(ctx, rule, query, ruleID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("rule %s: %w", ruleID, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// GetAll retrieves every rule ordered by name
func (r *RuleRepository) GetAll(ctx context.Context) ([]*models.MonitoringRule, error) {
	var rules []*models.MonitoringRule
	query := `SELECT ` + ruleColumns + ` FROM monitoring_rules ORDER BY name`
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	return rules, nil
}

// GetEnabled retrieves enabled rules only; the scheduler takes this as the
// immutable rule set for one evaluation cycle.
func (r *RuleRepository) GetEnabled(ctx context.Context) ([]*models.MonitoringRule, error) {
	var rules []*models.MonitoringRule
	query := `SELECT ` + ruleColumns + ` FROM monitoring_rules WHERE enabled = 1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to query enabled rules: %w", err)
	}
	return rules, nil
}

// SetEnabled flips a rule's enabled flag. Other rule fields are immutable
// through this path.
func (r *RuleRepository) SetEnabled(ctx context.Context, ruleID string, enabled bool) error {
	query := `
		UPDATE monitoring_rules
		SET enabled = ?, version = version + 1, updated_at = ?
		WHERE rule_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, enabled, time.Now().UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("failed to toggle rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check toggle result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, sql.ErrNoRows)
	}
	return nil
}
