package monitoring

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/adpulse-ops/adpulse-backend-go/internal/adapters/optimizer"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
)

// ResolutionOutcome is the result of one auto-resolution attempt.
type ResolutionOutcome struct {
	Issue     *models.Issue
	Attempted bool
	Succeeded bool
	Escalated bool
	Detail    string
}

// Resolver drives one-shot auto-resolution of issues whose rule opts in.
type Resolver struct {
	remediator optimizer.Remediator
	lifecycle  *LifecycleManager
	logger     *logrus.Logger
}

// NewResolver creates an auto-resolver.
func NewResolver(remediator optimizer.Remediator, lifecycle *LifecycleManager, logger *logrus.Logger) *Resolver {
	return &Resolver{
		remediator: remediator,
		lifecycle:  lifecycle,
		logger:     logger,
	}
}

// Attempt runs auto-resolution for an issue. The attempt flag is claimed
// before any remediation call, so a crash mid-flight still counts the
// attempt as used. Remediation runs detached from the caller's cancellation
// so an in-flight action is never abandoned half-applied.
func (r *Resolver) Attempt(ctx context.Context, issue *models.Issue, rule *models.MonitoringRule) (*ResolutionOutcome, error) {
	outcome := &ResolutionOutcome{Issue: issue}

	if rule == nil || !rule.AutoResolve {
		return outcome, nil
	}

	claimed, ok, err := r.lifecycle.ClaimAutoResolution(ctx, issue.IssueID)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.logger.WithField("issue_id", issue.IssueID).Debug("Auto-resolution already attempted or issue not active")
		return outcome, nil
	}
	outcome.Attempted = true
	outcome.Issue = claimed

	if !r.remediator.CanRemediate(claimed.IssueType) {
		autoResolutionsTotal.WithLabelValues("unavailable").Inc()
		outcome.Detail = "no remediation action for issue type"
		updated, err := r.lifecycle.CompleteAutoResolution(ctx, claimed.IssueID, false, false)
		if err != nil {
			return nil, err
		}
		outcome.Issue = updated
		return outcome, nil
	}

	remErr := r.remediator.Remediate(context.WithoutCancel(ctx), claimed)
	if remErr == nil {
		autoResolutionsTotal.WithLabelValues("succeeded").Inc()
		updated, err := r.lifecycle.CompleteAutoResolution(ctx, claimed.IssueID, true, false)
		if err != nil {
			return nil, err
		}
		outcome.Succeeded = true
		outcome.Issue = updated
		r.logger.WithFields(logrus.Fields{
			"issue_id":    claimed.IssueID,
			"campaign_id": claimed.CampaignID,
		}).Info("Issue auto-resolved")
		return outcome, nil
	}

	if errors.Is(remErr, optimizer.ErrActionUnavailable) {
		autoResolutionsTotal.WithLabelValues("unavailable").Inc()
		outcome.Detail = remErr.Error()
		updated, err := r.lifecycle.CompleteAutoResolution(ctx, claimed.IssueID, false, false)
		if err != nil {
			return nil, err
		}
		outcome.Issue = updated
		return outcome, nil
	}

	autoResolutionsTotal.WithLabelValues("failed").Inc()
	outcome.Detail = remErr.Error()
	before := claimed.Severity
	updated, err := r.lifecycle.CompleteAutoResolution(ctx, claimed.IssueID, false, true)
	if err != nil {
		return nil, err
	}
	outcome.Issue = updated
	outcome.Escalated = updated.Severity.Rank() > before.Rank()
	r.logger.WithError(remErr).WithFields(logrus.Fields{
		"issue_id": claimed.IssueID,
		"severity": updated.Severity,
	}).Warn("Auto-resolution failed")
	return outcome, nil
}
