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

// SessionRepository implements repositories.SessionRepository
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *sqlx.DB) repositories.SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert creates or re-enables a monitoring session
func (r *SessionRepository) Upsert(ctx context.Context, session *models.MonitoringSession) error {
	query := `
		INSERT INTO monitoring_sessions (customer_id, enabled, started_at, last_cycle_at, campaigns_monitored)
		VALUES (:customer_id, :enabled, :started_at, :last_cycle_at, :campaigns_monitored)
		ON CONFLICT(customer_id) DO UPDATE SET
			enabled = excluded.enabled,
			started_at = excluded.started_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// Get retrieves the session for an account
func (r *SessionRepository) Get(ctx context.Context, customerID string) (*models.MonitoringSession, error) {
	session := &models.MonitoringSession{}
	query := `
		SELECT customer_id, enabled, started_at, last_cycle_at, campaigns_monitored
		FROM monitoring_sessions
		WHERE customer_id = ?
	`
	if err := r.db.GetContext(ctx, session, query, customerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetEnabled retrieves all enabled sessions; used to resume monitoring on
// startup.
func (r *SessionRepository) GetEnabled(ctx context.Context) ([]*models.MonitoringSession, error) {
	var sessions []*models.MonitoringSession
	query := `
		SELECT customer_id, enabled, started_at, last_cycle_at, campaigns_monitored
		FROM monitoring_sessions
		WHERE enabled = 1
	`
	if err := r.db.SelectContext(ctx, &sessions, query); err != nil {
		return nil, fmt.Errorf("failed to query enabled sessions: %w", err)
	}
	return sessions, nil
}

// SetEnabled flips a session's enabled flag
func (r *SessionRepository) SetEnabled(ctx context.Context, customerID string, enabled bool) error {
	query := `UPDATE monitoring_sessions SET enabled = ? WHERE customer_id = ?`
	result, err := r.db.ExecContext(ctx, query, enabled, customerID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check session update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", customerID, sql.ErrNoRows)
	}
	return nil
}

// DisableAll disables every session
func (r *SessionRepository) DisableAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE monitoring_sessions SET enabled = 0`); err != nil {
		return fmt.Errorf("failed to disable sessions: %w", err)
	}
	return nil
}

// RecordCycle stamps a completed evaluation cycle on the session
func (r *SessionRepository) RecordCycle(ctx context.Context, customerID string, at time.Time, campaigns int) error {
	query := `
		UPDATE monitoring_sessions
		SET last_cycle_at = ?, campaigns_monitored = ?
		WHERE customer_id = ?
	`
	if _, err := r.db.ExecContext(ctx, query, at, campaigns, customerID); err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}
	return nil
}
