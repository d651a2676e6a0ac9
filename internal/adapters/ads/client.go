package ads

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/adpulse-ops/adpulse-backend-go/internal/config"
)

// Campaign identifies one monitored campaign on the ads platform.
type Campaign struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// MetricSnapshot is a point-in-time read of a campaign's performance and
// spend metrics. Fields feed rule condition expressions by name.
type MetricSnapshot struct {
	CustomerID   string             `json:"customer_id"`
	CampaignID   string             `json:"campaign_id"`
	CampaignName string             `json:"campaign_name"`
	Fields       map[string]float64 `json:"fields"`
	CapturedAt   time.Time          `json:"captured_at"`
}

// Field returns a metric value and whether the snapshot carries it.
func (s *MetricSnapshot) Field(name string) (float64, bool) {
	v, ok := s.Fields[name]
	return v, ok
}

// Client reads campaign telemetry from the external ads platform.
type Client interface {
	ListCampaigns(ctx context.Context, customerID string) ([]*Campaign, error)
	FetchSnapshot(ctx context.Context, customerID, campaignID string) (*MetricSnapshot, error)
}

// HTTPClient implements Client against the ads platform REST API.
type HTTPClient struct {
	rest   *resty.Client
	logger *logrus.Logger
}

// NewHTTPClient creates an ads platform client with per-call timeout and
// bounded retry with backoff for transient failures.
func NewHTTPClient(cfg config.AdsPlatformConfig, logger *logrus.Logger) *HTTPClient {
	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(config.Duration(cfg.Timeout, 5*time.Second)).
		SetRetryCount(cfg.RetryAttempts).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if cfg.APIKey != "" {
		rest.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &HTTPClient{rest: rest, logger: logger}
}

// ListCampaigns returns the campaigns monitored for an account
func (c *HTTPClient) ListCampaigns(ctx context.Context, customerID string) ([]*Campaign, error) {
	var campaigns []*Campaign
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&campaigns).
		Get(fmt.Sprintf("/customers/%s/campaigns", customerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns for %s: %w", customerID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to list campaigns for %s: status %d", customerID, resp.StatusCode())
	}
	return campaigns, nil
}

// FetchSnapshot returns a point-in-time metric reading for a campaign
func (c *HTTPClient) FetchSnapshot(ctx context.Context, customerID, campaignID string) (*MetricSnapshot, error) {
	snapshot := &MetricSnapshot{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(snapshot).
		Get(fmt.Sprintf("/customers/%s/campaigns/%s/metrics", customerID, campaignID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot for %s/%s: %w", customerID, campaignID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch snapshot for %s/%s: status %d", customerID, campaignID, resp.StatusCode())
	}

	snapshot.CustomerID = customerID
	snapshot.CampaignID = campaignID
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = time.Now().UTC()
	}
	return snapshot, nil
}
