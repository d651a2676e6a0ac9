package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/adpulse-ops/adpulse-backend-go/internal/adapters/ads"
	"github.com/adpulse-ops/adpulse-backend-go/internal/api"
	"github.com/adpulse-ops/adpulse-backend-go/internal/api/handlers"
	"github.com/adpulse-ops/adpulse-backend-go/internal/config"
	"github.com/adpulse-ops/adpulse-backend-go/internal/core/monitoring"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
	"github.com/adpulse-ops/adpulse-backend-go/internal/websocket"
)

const testSchema = `
CREATE TABLE monitoring_rules (
    rule_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    issue_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    metric TEXT NOT NULL,
    condition TEXT NOT NULL,
    threshold_expr TEXT NOT NULL,
    auto_resolve BOOLEAN NOT NULL DEFAULT FALSE,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    cooldown_minutes INTEGER NOT NULL DEFAULT 60,
    version INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE issues (
    issue_id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    campaign_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    issue_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    confidence_score REAL NOT NULL DEFAULT 0,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    detected_at DATETIME NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    resolution_notes TEXT NOT NULL DEFAULT '',
    resolved_at DATETIME,
    auto_resolution_attempted BOOLEAN NOT NULL DEFAULT FALSE,
    auto_resolution_succeeded BOOLEAN,
    recommended_actions TEXT NOT NULL DEFAULT '[]',
    impact_assessment TEXT NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX idx_issues_active_key
    ON issues (customer_id, campaign_id, issue_type)
    WHERE status = 'active';

CREATE TABLE monitoring_sessions (
    customer_id TEXT PRIMARY KEY,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    started_at DATETIME NOT NULL,
    last_cycle_at DATETIME,
    campaigns_monitored INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE notification_log (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    issue_id TEXT NOT NULL,
    event TEXT NOT NULL,
    channel TEXT NOT NULL,
    status TEXT NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

type emptyAdsClient struct{}

func (emptyAdsClient) ListCampaigns(context.Context, string) ([]*ads.Campaign, error) {
	return nil, nil
}

func (emptyAdsClient) FetchSnapshot(context.Context, string, string) (*ads.MetricSnapshot, error) {
	return nil, nil
}

type noopRemediator struct{}

func (noopRemediator) Remediate(context.Context, *models.Issue) error { return nil }
func (noopRemediator) CanRemediate(models.IssueType) bool             { return true }

type apiFixture struct {
	router    http.Handler
	repos     *database.Repositories
	lifecycle *monitoring.LifecycleManager
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Mode = "production"
	cfg.Monitoring.EvaluationInterval = "5m"
	cfg.Monitoring.HealthWeights = config.Weights{Critical: 10, High: 5, Medium: 2, Low: 1}
	cfg.Notifications.DedupWindow = "15m"
	cfg.Notifications.QueueSize = 16
	cfg.Notifications.MaxAttempts = 1
	cfg.Notifications.RetryBaseWait = "1ms"

	repos := database.NewRepositories(db)
	hub := websocket.NewHub(log)
	go hub.Run()

	engine := monitoring.NewEngine(log)
	lifecycle := monitoring.NewLifecycleManager(repos.Issue, log)
	resolver := monitoring.NewResolver(noopRemediator{}, lifecycle, log)
	dispatcher := monitoring.NewDispatcher(cfg.Notifications, []monitoring.Notifier{monitoring.NewLogNotifier(log)}, repos.Notification, log)
	dispatcher.Start()
	t.Cleanup(dispatcher.Stop)

	query := monitoring.NewQueryService(repos, cfg.Monitoring.HealthWeights)
	scheduler := monitoring.NewScheduler(
		cfg.Monitoring, emptyAdsClient{}, repos.Rule, repos.Session,
		engine, lifecycle, resolver, dispatcher, hub, log,
	)

	h := handlers.New(cfg, repos, log, hub, query, lifecycle, scheduler)
	return &apiFixture{
		router:    api.NewRouter(cfg, h, hub, log),
		repos:     repos,
		lifecycle: lifecycle,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) seedIssue(t *testing.T, issueID string) {
	t.Helper()
	require.NoError(t, f.repos.Issue.Create(context.Background(), &models.Issue{
		IssueID:    issueID,
		CustomerID: "cust-1",
		CampaignID: "camp-1",
		RuleID:     "overspend-high",
		IssueType:  models.IssueTypeOverspend,
		Severity:   models.SeverityHigh,
		Title:      "Overspending detected",
		DetectedAt: time.Now().UTC(),
		Status:     models.IssueStatusActive,
	}))
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartAndStatusRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/monitoring/start/cust-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/monitoring/status/cust-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Monitoring  bool `json:"monitoring_enabled"`
			HealthScore int  `json:"monitoring_health_score"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Monitoring)
	assert.Equal(t, 100, resp.Data.HealthScore)
}

func TestStatusForUnknownAccount(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/monitoring/status/cust-unknown", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Monitoring  bool `json:"monitoring_enabled"`
			HealthScore int  `json:"monitoring_health_score"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Monitoring)
	assert.Equal(t, 100, resp.Data.HealthScore)
}

func TestStopUnknownAccountIs404(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/monitoring/stop/cust-unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStopAllDisablesEverySession(t *testing.T) {
	f := newAPIFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/monitoring/start/cust-1", nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/monitoring/start/cust-2", nil).Code)

	rec := f.do(t, http.MethodPost, "/monitoring/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, customerID := range []string{"cust-1", "cust-2"} {
		rec = f.do(t, http.MethodGet, "/monitoring/status/"+customerID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data struct {
				Monitoring bool `json:"monitoring_enabled"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Data.Monitoring)
	}
}

func TestResolveIssueRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	f.seedIssue(t, "i-1")

	rec := f.do(t, http.MethodPost, "/monitoring/issues/i-1/resolve", map[string]string{"resolution_notes": "budget fixed"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data models.Issue `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.IssueStatusResolved, resp.Data.Status)
	assert.Equal(t, "budget fixed", resp.Data.ResolutionNotes)

	// Resolving again is a 404, the issue is no longer active
	rec = f.do(t, http.MethodPost, "/monitoring/issues/i-1/resolve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIgnoreIssueRoundTrip(t *testing.T) {
	f := newAPIFixture(t)
	f.seedIssue(t, "i-1")

	rec := f.do(t, http.MethodPost, "/monitoring/issues/i-1/ignore", map[string]string{"reason": "seasonal spike"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data models.Issue `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.IssueStatusIgnored, resp.Data.Status)
}

func TestResolveMissingIssueIs404(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/monitoring/issues/no-such/resolve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetIssuesReturnsActiveOnly(t *testing.T) {
	f := newAPIFixture(t)
	f.seedIssue(t, "i-1")

	rec := f.do(t, http.MethodGet, "/monitoring/issues/cust-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []models.Issue `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
}

func TestRuleToggleRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	require.NoError(t, f.repos.Rule.Create(context.Background(), &models.MonitoringRule{
		RuleID:        "overspend-high",
		Name:          "Overspending detected",
		IssueType:     models.IssueTypeOverspend,
		Severity:      models.SeverityHigh,
		Metric:        "spend",
		Condition:     "spend > daily_budget * 1.2",
		ThresholdExpr: "daily_budget * 1.2",
		Enabled:       true,
		Version:       1,
	}))

	rec := f.do(t, http.MethodGet, "/monitoring/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/monitoring/rules/overspend-high/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data models.MonitoringRule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Enabled)

	rec = f.do(t, http.MethodPost, "/monitoring/rules/no-such/toggle", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestAlertRequiresCustomerID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/monitoring/test-alert", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/monitoring/test-alert", map[string]string{"customer_id": "cust-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDashboardEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedIssue(t, "i-1")

	rec := f.do(t, http.MethodGet, "/monitoring/dashboard/cust-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			HealthScore  int            `json:"monitoring_health_score"`
			ActiveIssues []models.Issue `json:"active_issues"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 95, resp.Data.HealthScore)
	assert.Len(t, resp.Data.ActiveIssues, 1)
}
