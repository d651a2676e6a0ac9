package monitoring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/repositories"
	pkgerrors "github.com/adpulse-ops/adpulse-backend-go/pkg/errors"
)

// LifecycleManager owns every issue state transition. Updates for a given
// (customer, campaign, issue_type) key are linearized through a per-key
// mutex; store writes are compare-and-swap so a racing writer loses cleanly
// and retries against fresh state.
type LifecycleManager struct {
	issues repositories.IssueRepository
	logger *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// now is swappable for tests
	now func() time.Time
}

// ReconcileResult summarizes one cycle's worth of lifecycle transitions.
type ReconcileResult struct {
	Created    []*models.Issue
	Refreshed  []*models.Issue
	Reopened   []*models.Issue
	Escalated  []*models.Issue
	Suppressed int
}

// NewLifecycleManager creates an issue lifecycle manager.
func NewLifecycleManager(issues repositories.IssueRepository, logger *logrus.Logger) *LifecycleManager {
	return &LifecycleManager{
		issues: issues,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
		now:    time.Now,
	}
}

// keyLock returns the mutex serializing writers for one issue key.
func (m *LifecycleManager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// Reconcile applies a cycle's candidates to the issue store in the order
// they were produced. A failure on one candidate is logged and does not
// abort the rest.
func (m *LifecycleManager) Reconcile(ctx context.Context, candidates []*IssueCandidate) *ReconcileResult {
	result := &ReconcileResult{}

	for _, candidate := range candidates {
		if err := m.apply(ctx, candidate, result); err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"campaign_id": candidate.CampaignID,
				"issue_type":  candidate.IssueType,
			}).Error("Failed to reconcile issue candidate")
		}
	}

	return result
}

func (m *LifecycleManager) apply(ctx context.Context, candidate *IssueCandidate, result *ReconcileResult) error {
	lock := m.keyLock(candidate.Key())
	lock.Lock()
	defer lock.Unlock()

	active, err := m.issues.GetActiveByKey(ctx, candidate.CustomerID, candidate.CampaignID, candidate.IssueType)
	switch {
	case err == nil:
		return m.refresh(ctx, active, candidate, result)
	case errors.Is(err, sql.ErrNoRows):
		return m.admit(ctx, candidate, result)
	default:
		return err
	}
}

// refresh updates an existing active issue in place. Identity and
// detected_at are preserved; a higher-severity candidate raises severity,
// which counts as an escalation.
func (m *LifecycleManager) refresh(ctx context.Context, issue *models.Issue, candidate *IssueCandidate, result *ReconcileResult) error {
	escalated := candidate.Severity.Rank() > issue.Severity.Rank()

	err := m.updateWithRetry(ctx, issue, func(i *models.Issue) {
		i.ConfidenceScore = candidate.ConfidenceScore
		i.RecommendedActions = candidate.RecommendedActions
		i.ImpactAssessment = candidate.ImpactAssessment
		if candidate.Severity.Rank() > i.Severity.Rank() {
			i.Severity = candidate.Severity
		}
	})
	if err != nil {
		return err
	}

	if escalated {
		result.Escalated = append(result.Escalated, issue)
	} else {
		result.Refreshed = append(result.Refreshed, issue)
	}
	return nil
}

// admit handles a candidate with no active issue: reopen a prior issue if
// its cooldown has elapsed, suppress it if not, otherwise create a new one.
func (m *LifecycleManager) admit(ctx context.Context, candidate *IssueCandidate, result *ReconcileResult) error {
	latest, err := m.issues.GetLatestByKey(ctx, candidate.CustomerID, candidate.CampaignID, candidate.IssueType)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if latest != nil && latest.Status != models.IssueStatusActive && latest.ResolvedAt.Valid {
		elapsed := m.now().Sub(latest.ResolvedAt.Time)
		if elapsed < candidate.Rule.Cooldown() {
			// Inside cooldown: suppress to avoid alert flapping
			candidatesSuppressedTotal.Inc()
			result.Suppressed++
			m.logger.WithFields(logrus.Fields{
				"campaign_id": candidate.CampaignID,
				"issue_type":  candidate.IssueType,
				"elapsed":     elapsed,
			}).Debug("Candidate suppressed by cooldown")
			return nil
		}
		return m.reopen(ctx, latest, candidate, result)
	}

	return m.create(ctx, candidate, result)
}

func (m *LifecycleManager) create(ctx context.Context, candidate *IssueCandidate, result *ReconcileResult) error {
	issue := &models.Issue{
		IssueID:            uuid.New().String(),
		CustomerID:         candidate.CustomerID,
		CampaignID:         candidate.CampaignID,
		RuleID:             candidate.Rule.RuleID,
		IssueType:          candidate.IssueType,
		Severity:           candidate.Severity,
		ConfidenceScore:    candidate.ConfidenceScore,
		Title:              candidate.Title,
		Description:        candidate.Description,
		DetectedAt:         candidate.DetectedAt,
		Status:             models.IssueStatusActive,
		RecommendedActions: candidate.RecommendedActions,
		ImpactAssessment:   candidate.ImpactAssessment,
	}

	if err := m.issues.Create(ctx, issue); err != nil {
		return err
	}

	result.Created = append(result.Created, issue)
	m.logger.WithFields(logrus.Fields{
		"issue_id":    issue.IssueID,
		"campaign_id": issue.CampaignID,
		"issue_type":  issue.IssueType,
		"severity":    issue.Severity,
	}).Info("Issue detected")
	return nil
}

func (m *LifecycleManager) reopen(ctx context.Context, issue *models.Issue, candidate *IssueCandidate, result *ReconcileResult) error {
	err := m.updateWithRetry(ctx, issue, func(i *models.Issue) {
		i.Status = models.IssueStatusActive
		i.Severity = candidate.Severity
		i.ConfidenceScore = candidate.ConfidenceScore
		i.Title = candidate.Title
		i.Description = candidate.Description
		i.DetectedAt = candidate.DetectedAt
		i.ResolutionNotes = ""
		i.ResolvedAt = sql.NullTime{}
		i.AutoResolutionAttempted = false
		i.AutoResolutionSucceeded = sql.NullBool{}
		i.RecommendedActions = candidate.RecommendedActions
		i.ImpactAssessment = candidate.ImpactAssessment
	})
	if err != nil {
		return err
	}

	result.Reopened = append(result.Reopened, issue)
	m.logger.WithFields(logrus.Fields{
		"issue_id":    issue.IssueID,
		"campaign_id": issue.CampaignID,
		"issue_type":  issue.IssueType,
	}).Info("Issue reopened after cooldown")
	return nil
}

// Resolve transitions an active issue to resolved. Returns ErrNotFound when
// the issue does not exist or is not active.
func (m *LifecycleManager) Resolve(ctx context.Context, issueID, notes string) (*models.Issue, error) {
	return m.close(ctx, issueID, models.IssueStatusResolved, notes)
}

// Ignore transitions an active issue to ignored. Never invoked
// automatically.
func (m *LifecycleManager) Ignore(ctx context.Context, issueID, reason string) (*models.Issue, error) {
	return m.close(ctx, issueID, models.IssueStatusIgnored, reason)
}

func (m *LifecycleManager) close(ctx context.Context, issueID string, status models.IssueStatus, notes string) (*models.Issue, error) {
	issue, err := m.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}

	lock := m.keyLock(issue.Key())
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock; a concurrent writer may have moved it
	issue, err = m.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	if issue.Status != models.IssueStatusActive {
		return nil, pkgerrors.ErrNotFound
	}

	err = m.updateWithRetry(ctx, issue, func(i *models.Issue) {
		i.Status = status
		i.ResolutionNotes = notes
		i.ResolvedAt = sql.NullTime{Time: m.now().UTC(), Valid: true}
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"issue_id": issue.IssueID,
		"status":   status,
	}).Info("Issue closed")
	return issue, nil
}

// ClaimAutoResolution marks the one-shot auto-resolution attempt flag.
// Returns false when the issue is not active or an attempt was already
// recorded, making re-invocation a no-op until the issue reopens.
func (m *LifecycleManager) ClaimAutoResolution(ctx context.Context, issueID string) (*models.Issue, bool, error) {
	issue, err := m.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, pkgerrors.ErrNotFound
		}
		return nil, false, err
	}

	lock := m.keyLock(issue.Key())
	lock.Lock()
	defer lock.Unlock()

	issue, err = m.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, false, err
	}
	if issue.Status != models.IssueStatusActive || issue.AutoResolutionAttempted {
		return issue, false, nil
	}

	err = m.updateWithRetry(ctx, issue, func(i *models.Issue) {
		i.AutoResolutionAttempted = true
	})
	if err != nil {
		return nil, false, err
	}
	return issue, true, nil
}

// CompleteAutoResolution records a remediation outcome. Success resolves
// the issue; failure keeps it active, marks the attempt failed, and
// escalates severity when the failure was a real remediation error rather
// than a missing action.
func (m *LifecycleManager) CompleteAutoResolution(ctx context.Context, issueID string, succeeded, escalate bool) (*models.Issue, error) {
	issue, err := m.issues.GetByID(ctx, issueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}

	lock := m.keyLock(issue.Key())
	lock.Lock()
	defer lock.Unlock()

	issue, err = m.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, err
	}

	err = m.updateWithRetry(ctx, issue, func(i *models.Issue) {
		i.AutoResolutionSucceeded = sql.NullBool{Bool: succeeded, Valid: true}
		if succeeded {
			i.Status = models.IssueStatusResolved
			i.ResolutionNotes = "auto-resolved"
			i.ResolvedAt = sql.NullTime{Time: m.now().UTC(), Valid: true}
			return
		}
		if escalate {
			i.Severity = i.Severity.Escalate()
		}
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// updateWithRetry writes an issue with compare-and-swap semantics. On a
// stale write the current row is reloaded, the mutation re-applied, and the
// write retried once; a second failure surfaces as Conflict.
func (m *LifecycleManager) updateWithRetry(ctx context.Context, issue *models.Issue, mutate func(*models.Issue)) error {
	mutate(issue)
	err := m.issues.Update(ctx, issue)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrStaleWrite) {
		return err
	}

	fresh, err := m.issues.GetByID(ctx, issue.IssueID)
	if err != nil {
		return fmt.Errorf("reload after stale write: %w", err)
	}
	mutate(fresh)
	if err := m.issues.Update(ctx, fresh); err != nil {
		if errors.Is(err, repositories.ErrStaleWrite) {
			return pkgerrors.ErrConflict
		}
		return err
	}
	*issue = *fresh
	return nil
}
