package monitoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/adpulse-ops/adpulse-backend-go/internal/adapters/ads"
	"github.com/adpulse-ops/adpulse-backend-go/internal/config"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/repositories"
	"github.com/adpulse-ops/adpulse-backend-go/internal/websocket"
	pkgerrors "github.com/adpulse-ops/adpulse-backend-go/pkg/errors"
)

// Scheduler runs the evaluation cycle for every monitored account on a
// fixed interval. Cycles for one account never overlap; distinct accounts
// run independently.
type Scheduler struct {
	cfg        config.MonitoringConfig
	ads        ads.Client
	rules      repositories.RuleRepository
	sessions   repositories.SessionRepository
	engine     *Engine
	lifecycle  *LifecycleManager
	resolver   *Resolver
	dispatcher *Dispatcher
	hub        *websocket.Hub
	logger     *logrus.Logger

	cron *cron.Cron

	mu       sync.Mutex
	entries  map[string]cron.EntryID
	inFlight map[string]bool
}

// NewScheduler wires the per-account evaluation scheduler.
func NewScheduler(
	cfg config.MonitoringConfig,
	adsClient ads.Client,
	rules repositories.RuleRepository,
	sessions repositories.SessionRepository,
	engine *Engine,
	lifecycle *LifecycleManager,
	resolver *Resolver,
	dispatcher *Dispatcher,
	hub *websocket.Hub,
	logger *logrus.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		ads:        adsClient,
		rules:      rules,
		sessions:   sessions,
		engine:     engine,
		lifecycle:  lifecycle,
		resolver:   resolver,
		dispatcher: dispatcher,
		hub:        hub,
		logger:     logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		)),
		entries:  make(map[string]cron.EntryID),
		inFlight: make(map[string]bool),
	}
}

// Run starts the cron loop.
func (s *Scheduler) Run() {
	s.cron.Start()
}

// Resume re-arms monitoring for every session that was enabled when the
// process last stopped. Called once at boot.
func (s *Scheduler) Resume(ctx context.Context) error {
	sessions, err := s.sessions.GetEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load enabled sessions: %w", err)
	}

	for _, session := range sessions {
		if err := s.schedule(session.CustomerID); err != nil {
			s.logger.WithError(err).WithField("customer_id", session.CustomerID).Error("Failed to resume monitoring session")
			continue
		}
		s.logger.WithField("customer_id", session.CustomerID).Info("Monitoring session resumed")
	}
	return nil
}

// Start enables monitoring for an account, persists the session, and runs
// the first cycle immediately. Starting an already-running account is
// idempotent.
func (s *Scheduler) Start(ctx context.Context, customerID string) (*models.MonitoringSession, error) {
	session := &models.MonitoringSession{
		CustomerID: customerID,
		Enabled:    true,
		StartedAt:  time.Now().UTC(),
	}
	// A re-start of a running session keeps its original start time
	if existing, err := s.sessions.Get(ctx, customerID); err == nil && existing.Enabled {
		session.StartedAt = existing.StartedAt
	}
	if err := s.sessions.Upsert(ctx, session); err != nil {
		return nil, err
	}

	if err := s.schedule(customerID); err != nil {
		return nil, err
	}

	go s.runCycle(customerID)

	s.logger.WithField("customer_id", customerID).Info("Monitoring started")
	s.broadcastStatus(customerID, "started")
	return session, nil
}

// Stop disables monitoring for an account. Stopping an account that is not
// monitored returns ErrNotFound.
func (s *Scheduler) Stop(ctx context.Context, customerID string) error {
	s.mu.Lock()
	entryID, ok := s.entries[customerID]
	if ok {
		s.cron.Remove(entryID)
		delete(s.entries, customerID)
	}
	s.mu.Unlock()

	err := s.sessions.SetEnabled(ctx, customerID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if !ok {
				return pkgerrors.ErrNotFound
			}
			return nil
		}
		return err
	}
	if !ok {
		// Session row existed but nothing was scheduled; treat the
		// disable as the whole operation
		s.logger.WithField("customer_id", customerID).Warn("Stopped session that had no scheduled cycle")
	}

	s.logger.WithField("customer_id", customerID).Info("Monitoring stopped")
	s.broadcastStatus(customerID, "stopped")
	return nil
}

// StopAllSessions disables every monitored account and removes its
// scheduled cycle.
func (s *Scheduler) StopAllSessions(ctx context.Context) error {
	s.mu.Lock()
	for customerID, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, customerID)
	}
	s.mu.Unlock()

	if err := s.sessions.DisableAll(ctx); err != nil {
		return err
	}
	s.logger.Info("All monitoring sessions stopped")
	return nil
}

// StopAll halts the cron loop and waits for in-flight cycles. Sessions keep
// their enabled flag so Resume picks them back up after restart.
func (s *Scheduler) StopAll() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Monitoring scheduler stopped")
}

// Running reports whether an account currently has a scheduled cycle.
func (s *Scheduler) Running(customerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[customerID]
	return ok
}

func (s *Scheduler) schedule(customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[customerID]; ok {
		return nil
	}

	interval := config.Duration(s.cfg.EvaluationInterval, 5*time.Minute)
	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.runCycle(customerID)
	})
	if err != nil {
		return fmt.Errorf("schedule cycle for %s: %w", customerID, err)
	}
	s.entries[customerID] = entryID
	return nil
}

// runCycle executes one full evaluation cycle for an account: fetch
// snapshots, evaluate rules, reconcile issues, attempt auto-resolution,
// and dispatch notifications. At most one cycle runs per account; the
// cron chain only covers scheduled invocations, so the immediate cycle
// fired by Start goes through the same guard.
func (s *Scheduler) runCycle(customerID string) {
	s.mu.Lock()
	if s.inFlight[customerID] {
		s.mu.Unlock()
		s.logger.WithField("customer_id", customerID).Debug("Cycle already in flight, skipping")
		return
	}
	s.inFlight[customerID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, customerID)
		s.mu.Unlock()
	}()

	ctx := context.Background()
	started := time.Now()

	session, err := s.sessions.Get(ctx, customerID)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("No session for scheduled cycle")
		return
	}
	if !session.Enabled {
		return
	}

	rules, err := s.rules.GetEnabled(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Error("Failed to load rules, skipping cycle")
		return
	}
	ruleIndex := make(map[string]*models.MonitoringRule, len(rules))
	for _, rule := range rules {
		ruleIndex[rule.RuleID] = rule
	}

	snapshots := s.fetchSnapshots(ctx, customerID)

	var candidates []*IssueCandidate
	for _, snapshot := range snapshots {
		candidates = append(candidates, s.engine.Evaluate(snapshot, rules)...)
	}

	result := s.lifecycle.Reconcile(ctx, candidates)

	for _, issue := range append(result.Created, result.Reopened...) {
		s.dispatcher.Dispatch(EventIssueDetected, issue, "")
		s.autoResolve(ctx, issue, ruleIndex[issue.RuleID])
	}
	for _, issue := range result.Escalated {
		s.dispatcher.Dispatch(EventIssueEscalated, issue, "severity raised by rule evaluation")
	}

	if err := s.sessions.RecordCycle(ctx, customerID, time.Now().UTC(), len(snapshots)); err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("Failed to record cycle")
	}
	cyclesTotal.WithLabelValues(customerID).Inc()

	s.logger.WithFields(logrus.Fields{
		"customer_id": customerID,
		"campaigns":   len(snapshots),
		"created":     len(result.Created),
		"reopened":    len(result.Reopened),
		"escalated":   len(result.Escalated),
		"refreshed":   len(result.Refreshed),
		"suppressed":  result.Suppressed,
		"duration":    time.Since(started).String(),
	}).Info("Evaluation cycle completed")
}

// fetchSnapshots pulls metric snapshots for every campaign with bounded
// concurrency. A campaign whose fetch fails after retries is skipped for
// this cycle.
func (s *Scheduler) fetchSnapshots(ctx context.Context, customerID string) []*ads.MetricSnapshot {
	campaigns, err := s.ads.ListCampaigns(ctx, customerID)
	if err != nil {
		fetchFailuresTotal.Inc()
		s.logger.WithError(err).WithField("customer_id", customerID).Error("Failed to list campaigns")
		return nil
	}

	concurrency := s.cfg.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	timeout := config.Duration(s.cfg.FetchTimeout, 5*time.Second)

	var mu sync.Mutex
	snapshots := make([]*ads.MetricSnapshot, 0, len(campaigns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, campaign := range campaigns {
		campaign := campaign
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			snapshot, err := s.ads.FetchSnapshot(fctx, customerID, campaign.ID)
			if err != nil {
				fetchFailuresTotal.Inc()
				s.logger.WithError(err).WithFields(logrus.Fields{
					"customer_id": customerID,
					"campaign_id": campaign.ID,
				}).Warn("Snapshot fetch failed, skipping campaign this cycle")
				return nil
			}
			if snapshot.CampaignName == "" {
				snapshot.CampaignName = campaign.Name
			}

			mu.Lock()
			snapshots = append(snapshots, snapshot)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return snapshots
}

func (s *Scheduler) autoResolve(ctx context.Context, issue *models.Issue, rule *models.MonitoringRule) {
	outcome, err := s.resolver.Attempt(ctx, issue, rule)
	if err != nil {
		s.logger.WithError(err).WithField("issue_id", issue.IssueID).Error("Auto-resolution attempt errored")
		return
	}
	if !outcome.Attempted {
		return
	}

	detail := "remediation succeeded"
	if !outcome.Succeeded {
		detail = "remediation failed"
		if outcome.Detail != "" {
			detail = fmt.Sprintf("remediation failed: %s", outcome.Detail)
		}
	}
	s.dispatcher.Dispatch(EventAutoResolution, outcome.Issue, detail)
	if outcome.Escalated {
		s.dispatcher.Dispatch(EventIssueEscalated, outcome.Issue, "escalated after failed auto-resolution")
	}
}

// TriggerTestAlert pushes a synthesized alert through the notification
// pipeline without touching the issue store.
func (s *Scheduler) TriggerTestAlert(customerID, campaignID string) *models.Issue {
	if campaignID == "" {
		campaignID = "test-campaign"
	}
	issue := &models.Issue{
		IssueID:          "test-" + fmt.Sprintf("%d", time.Now().UnixNano()),
		CustomerID:       customerID,
		CampaignID:       campaignID,
		IssueType:        models.IssueType("test"),
		Severity:         models.SeverityInfo,
		ConfidenceScore:  1,
		Title:            "Test alert",
		Description:      "Synthesized alert for verifying notification delivery",
		DetectedAt:       time.Now().UTC(),
		Status:           models.IssueStatusActive,
		ImpactAssessment: "none, test only",
	}
	s.dispatcher.Dispatch(EventTestAlert, issue, "test alert requested")
	return issue
}

func (s *Scheduler) broadcastStatus(customerID, status string) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToAccount(customerID, websocket.Message{
		Type: websocket.MessageTypeSessionStatus,
		Data: map[string]interface{}{
			"customer_id": customerID,
			"status":      status,
		},
	})
}
