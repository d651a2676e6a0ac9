package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/adpulse-ops/adpulse-backend-go/internal/config"
	"github.com/adpulse-ops/adpulse-backend-go/internal/core/monitoring"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database"
	"github.com/adpulse-ops/adpulse-backend-go/internal/websocket"
)

// Handlers aggregates HTTP handler dependencies
type Handlers struct {
	cfg       *config.Config
	repos     *database.Repositories
	log       *logrus.Logger
	wsHub     *websocket.Hub
	query     *monitoring.QueryService
	lifecycle *monitoring.LifecycleManager
	scheduler *monitoring.Scheduler
}

// New creates the handler set
func New(
	cfg *config.Config,
	repos *database.Repositories,
	log *logrus.Logger,
	wsHub *websocket.Hub,
	query *monitoring.QueryService,
	lifecycle *monitoring.LifecycleManager,
	scheduler *monitoring.Scheduler,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		repos:     repos,
		log:       log,
		wsHub:     wsHub,
		query:     query,
		lifecycle: lifecycle,
		scheduler: scheduler,
	}
}
