package database

import (
	"github.com/jmoiron/sqlx"

	"github.com/adpulse-ops/adpulse-backend-go/internal/database/repositories"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/sqlite"
)

// Repositories holds all repository instances
type Repositories struct {
	Rule         repositories.RuleRepository
	Issue        repositories.IssueRepository
	Session      repositories.SessionRepository
	Notification repositories.NotificationRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Rule:         sqlite.NewRuleRepository(db),
		Issue:        sqlite.NewIssueRepository(db),
		Session:      sqlite.NewSessionRepository(db),
		Notification: sqlite.NewNotificationRepository(db),
	}
}
