package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/repositories"
)

// NotificationRepository implements repositories.NotificationRepository
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *sqlx.DB) repositories.NotificationRepository {
	return &NotificationRepository{db: db}
}

// Record appends a notification audit entry
func (r *NotificationRepository) Record(ctx context.Context, record *models.NotificationRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO notification_log (id, customer_id, issue_id, event, channel, status, attempts, created_at)
		VALUES (:id, :customer_id, :issue_id, :event, :channel, :status, :attempts, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// GetRecent retrieves the latest notification entries for an account
func (r *NotificationRepository) GetRecent(ctx context.Context, customerID string, limit int) ([]*models.NotificationRecord, error) {
	var records []*models.NotificationRecord
	query := `
		SELECT id, customer_id, issue_id, event, channel, status, attempts, created_at
		FROM notification_log
		WHERE customer_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	if err := r.db.SelectContext(ctx, &records, query, customerID, limit); err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	return records, nil
}
