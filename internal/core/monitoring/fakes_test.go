package monitoring

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adpulse-ops/adpulse-backend-go/internal/adapters/ads"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/repositories"
)

var errDeliveryFailed = errors.New("delivery failed")

// fakeIssueRepo is an in-memory IssueRepository with real compare-and-swap
// semantics.
type fakeIssueRepo struct {
	mu     sync.Mutex
	issues map[string]*models.Issue

	// forceStale makes the next n Update calls fail with ErrStaleWrite
	forceStale int
}

func newFakeIssueRepo() *fakeIssueRepo {
	return &fakeIssueRepo{issues: make(map[string]*models.Issue)}
}

func (r *fakeIssueRepo) Create(_ context.Context, issue *models.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *issue
	r.issues[issue.IssueID] = &copied
	return nil
}

func (r *fakeIssueRepo) GetByID(_ context.Context, issueID string) (*models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue, ok := r.issues[issueID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *issue
	return &copied, nil
}

func (r *fakeIssueRepo) GetActiveByKey(_ context.Context, customerID, campaignID string, issueType models.IssueType) (*models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, issue := range r.issues {
		if issue.CustomerID == customerID && issue.CampaignID == campaignID &&
			issue.IssueType == issueType && issue.Status == models.IssueStatusActive {
			copied := *issue
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeIssueRepo) GetLatestByKey(_ context.Context, customerID, campaignID string, issueType models.IssueType) (*models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Issue
	for _, issue := range r.issues {
		if issue.CustomerID != customerID || issue.CampaignID != campaignID || issue.IssueType != issueType {
			continue
		}
		if latest == nil || issue.DetectedAt.After(latest.DetectedAt) {
			latest = issue
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeIssueRepo) GetActiveByCustomer(_ context.Context, customerID string) ([]*models.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Issue
	for _, issue := range r.issues {
		if issue.CustomerID == customerID && issue.Status == models.IssueStatusActive {
			copied := *issue
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		return out[i].DetectedAt.Before(out[j].DetectedAt)
	})
	return out, nil
}

func (r *fakeIssueRepo) Update(_ context.Context, issue *models.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceStale > 0 {
		r.forceStale--
		return repositories.ErrStaleWrite
	}
	stored, ok := r.issues[issue.IssueID]
	if !ok || stored.Version != issue.Version {
		return repositories.ErrStaleWrite
	}
	copied := *issue
	copied.Version++
	r.issues[issue.IssueID] = &copied
	issue.Version++
	return nil
}

func (r *fakeIssueRepo) CountActiveBySeverity(_ context.Context, customerID string) (map[models.Severity]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[models.Severity]int)
	for _, issue := range r.issues {
		if issue.CustomerID == customerID && issue.Status == models.IssueStatusActive {
			counts[issue.Severity]++
		}
	}
	return counts, nil
}

func (r *fakeIssueRepo) DailyTrends(_ context.Context, _ string, days int) ([]*models.IssueTrend, error) {
	out := make([]*models.IssueTrend, days)
	for i := range out {
		out[i] = &models.IssueTrend{Day: time.Now().AddDate(0, 0, i-days+1).Format("2006-01-02")}
	}
	return out, nil
}

// fakeRemediator scripts remediation outcomes per issue type.
type fakeRemediator struct {
	mu        sync.Mutex
	canFix    map[models.IssueType]bool
	err       error
	callCount int
}

func (f *fakeRemediator) Remediate(_ context.Context, _ *models.Issue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	return f.err
}

func (f *fakeRemediator) CanRemediate(issueType models.IssueType) bool {
	if f.canFix == nil {
		return true
	}
	return f.canFix[issueType]
}

func (f *fakeRemediator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

// fakeNotificationRepo records audit entries in memory.
type fakeNotificationRepo struct {
	mu      sync.Mutex
	records []*models.NotificationRecord
}

func (r *fakeNotificationRepo) Record(_ context.Context, record *models.NotificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeNotificationRepo) GetRecent(_ context.Context, customerID string, limit int) ([]*models.NotificationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.NotificationRecord
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		if r.records[i].CustomerID == customerID {
			out = append(out, r.records[i])
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) all() []*models.NotificationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.NotificationRecord, len(r.records))
	copy(out, r.records)
	return out
}

// fakeChannel records delivered events and can fail a scripted number of
// times before succeeding.
type fakeChannel struct {
	mu       sync.Mutex
	name     string
	events   []*Event
	failures int
}

func (c *fakeChannel) Name() string {
	if c.name == "" {
		return "fake"
	}
	return c.name
}

func (c *fakeChannel) Send(_ context.Context, event *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 {
		c.failures--
		return errDeliveryFailed
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeChannel) delivered() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Event, len(c.events))
	copy(out, c.events)
	return out
}

// fakeSessionRepo is an in-memory SessionRepository.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.MonitoringSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*models.MonitoringSession)}
}

func (r *fakeSessionRepo) Upsert(_ context.Context, session *models.MonitoringSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.CustomerID] = &copied
	return nil
}

func (r *fakeSessionRepo) Get(_ context.Context, customerID string) (*models.MonitoringSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[customerID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) GetEnabled(_ context.Context) ([]*models.MonitoringSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.MonitoringSession
	for _, session := range r.sessions {
		if session.Enabled {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) SetEnabled(_ context.Context, customerID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[customerID]
	if !ok {
		return sql.ErrNoRows
	}
	session.Enabled = enabled
	return nil
}

func (r *fakeSessionRepo) DisableAll(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		session.Enabled = false
	}
	return nil
}

func (r *fakeSessionRepo) RecordCycle(_ context.Context, customerID string, at time.Time, campaigns int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[customerID]
	if !ok {
		return sql.ErrNoRows
	}
	session.LastCycleAt = sql.NullTime{Time: at, Valid: true}
	session.CampaignsMonitored = campaigns
	return nil
}

// fakeRuleRepo serves a fixed rule set.
type fakeRuleRepo struct {
	rules []*models.MonitoringRule
}

func (r *fakeRuleRepo) Create(_ context.Context, rule *models.MonitoringRule) error {
	r.rules = append(r.rules, rule)
	return nil
}

func (r *fakeRuleRepo) GetByID(_ context.Context, ruleID string) (*models.MonitoringRule, error) {
	for _, rule := range r.rules {
		if rule.RuleID == ruleID {
			copied := *rule
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeRuleRepo) GetAll(_ context.Context) ([]*models.MonitoringRule, error) {
	return r.rules, nil
}

func (r *fakeRuleRepo) GetEnabled(_ context.Context) ([]*models.MonitoringRule, error) {
	var out []*models.MonitoringRule
	for _, rule := range r.rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *fakeRuleRepo) SetEnabled(_ context.Context, ruleID string, enabled bool) error {
	for _, rule := range r.rules {
		if rule.RuleID == ruleID {
			rule.Enabled = enabled
			rule.Version++
			return nil
		}
	}
	return sql.ErrNoRows
}

// fakeAdsClient serves scripted campaigns and snapshots.
type fakeAdsClient struct {
	campaigns []*ads.Campaign
	snapshots map[string]*ads.MetricSnapshot
	listErr   error
	fetchErr  map[string]error

	listCalls int32

	// listStarted receives once per ListCampaigns entry; listGate, when
	// set, blocks the call until closed
	listStarted chan struct{}
	listGate    chan struct{}
}

func (c *fakeAdsClient) ListCampaigns(_ context.Context, _ string) ([]*ads.Campaign, error) {
	atomic.AddInt32(&c.listCalls, 1)
	if c.listStarted != nil {
		select {
		case c.listStarted <- struct{}{}:
		default:
		}
	}
	if c.listGate != nil {
		<-c.listGate
	}
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.campaigns, nil
}

func (c *fakeAdsClient) FetchSnapshot(_ context.Context, customerID, campaignID string) (*ads.MetricSnapshot, error) {
	if err := c.fetchErr[campaignID]; err != nil {
		return nil, err
	}
	snapshot, ok := c.snapshots[campaignID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	snapshot.CustomerID = customerID
	snapshot.CampaignID = campaignID
	return snapshot, nil
}
