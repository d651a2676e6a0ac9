package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/adpulse-ops/adpulse-backend-go/internal/config"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
)

// ErrActionUnavailable indicates no remediation action is registered for an
// issue type. Callers treat this as a configuration gap, not a performance
// event.
var ErrActionUnavailable = errors.New("no remediation action for issue type")

// Remediator applies an automated fix for an issue. What the fix actually
// does (pause campaign, adjust bids, resubmit ads) is the optimization
// collaborator's decision, not this engine's.
type Remediator interface {
	Remediate(ctx context.Context, issue *models.Issue) error
	CanRemediate(issueType models.IssueType) bool
}

// HTTPClient implements Remediator against the external optimization service.
type HTTPClient struct {
	rest    *resty.Client
	actions map[models.IssueType]string
	logger  *logrus.Logger
}

// NewHTTPClient creates an optimizer client. The action map routes issue
// types to remediation endpoints; unmapped types fail closed.
func NewHTTPClient(cfg config.OptimizerConfig, logger *logrus.Logger) *HTTPClient {
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(config.Duration(cfg.Timeout, 10*time.Second))
	if cfg.APIKey != "" {
		rest.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &HTTPClient{
		rest:   rest,
		logger: logger,
		actions: map[models.IssueType]string{
			models.IssueTypeOverspend:   "/actions/cap-spend",
			models.IssueTypeUnderspend:  "/actions/boost-delivery",
			models.IssueTypeQualityDrop: "/actions/refresh-creatives",
		},
	}
}

// CanRemediate reports whether an action is registered for the issue type
func (c *HTTPClient) CanRemediate(issueType models.IssueType) bool {
	_, ok := c.actions[issueType]
	return ok
}

// Remediate invokes the optimization collaborator's action for the issue
func (c *HTTPClient) Remediate(ctx context.Context, issue *models.Issue) error {
	endpoint, ok := c.actions[issue.IssueType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrActionUnavailable, issue.IssueType)
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"customer_id": issue.CustomerID,
			"campaign_id": issue.CampaignID,
			"issue_id":    issue.IssueID,
			"issue_type":  issue.IssueType,
			"severity":    issue.Severity,
		}).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("remediation call failed for %s: %w", issue.IssueID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("remediation rejected for %s: status %d", issue.IssueID, resp.StatusCode())
	}

	c.logger.WithFields(logrus.Fields{
		"issue_id":   issue.IssueID,
		"issue_type": issue.IssueType,
		"endpoint":   endpoint,
	}).Info("Remediation action applied")
	return nil
}
