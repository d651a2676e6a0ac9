package monitoring

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse-ops/adpulse-backend-go/internal/adapters/ads"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func overspendRule() *models.MonitoringRule {
	return &models.MonitoringRule{
		RuleID:          "overspend-high",
		Name:            "Overspending detected",
		IssueType:       models.IssueTypeOverspend,
		Severity:        models.SeverityHigh,
		Metric:          "spend",
		Condition:       "spend > daily_budget * 1.2",
		ThresholdExpr:   "daily_budget * 1.2",
		Enabled:         true,
		CooldownMinutes: 60,
		Version:         1,
	}
}

func snapshot(fields map[string]float64) *ads.MetricSnapshot {
	return &ads.MetricSnapshot{
		CustomerID:   "cust-1",
		CampaignID:   "camp-1",
		CampaignName: "Spring Sale",
		Fields:       fields,
		CapturedAt:   time.Now().UTC(),
	}
}

func TestEngineConfidenceScore(t *testing.T) {
	engine := NewEngine(testLogger())

	// spend 150 against threshold 120 deviates by 25%
	candidates := engine.Evaluate(snapshot(map[string]float64{
		"spend":        150,
		"daily_budget": 100,
	}), []*models.MonitoringRule{overspendRule()})

	require.Len(t, candidates, 1)
	assert.InDelta(t, 0.25, candidates[0].ConfidenceScore, 0.0001)
	assert.Equal(t, models.IssueTypeOverspend, candidates[0].IssueType)
	assert.Equal(t, models.SeverityHigh, candidates[0].Severity)
	assert.Equal(t, "cust-1", candidates[0].CustomerID)
	assert.NotEmpty(t, candidates[0].RecommendedActions)
}

func TestEngineConfidenceClamped(t *testing.T) {
	engine := NewEngine(testLogger())

	// spend 300 against threshold 120 deviates by 150%, clamped to 1
	candidates := engine.Evaluate(snapshot(map[string]float64{
		"spend":        300,
		"daily_budget": 100,
	}), []*models.MonitoringRule{overspendRule()})

	require.Len(t, candidates, 1)
	assert.Equal(t, 1.0, candidates[0].ConfidenceScore)
}

func TestEngineNoMatchNoCandidate(t *testing.T) {
	engine := NewEngine(testLogger())

	candidates := engine.Evaluate(snapshot(map[string]float64{
		"spend":        100,
		"daily_budget": 100,
	}), []*models.MonitoringRule{overspendRule()})

	assert.Empty(t, candidates)
}

func TestEngineDisabledRuleSkipped(t *testing.T) {
	engine := NewEngine(testLogger())

	rule := overspendRule()
	rule.Enabled = false

	candidates := engine.Evaluate(snapshot(map[string]float64{
		"spend":        150,
		"daily_budget": 100,
	}), []*models.MonitoringRule{rule})

	assert.Empty(t, candidates)
}

func TestEngineMalformedRuleDoesNotAbortCycle(t *testing.T) {
	engine := NewEngine(testLogger())

	broken := overspendRule()
	broken.RuleID = "broken"
	broken.Condition = "spend >>> nonsense ((("

	candidates := engine.Evaluate(snapshot(map[string]float64{
		"spend":        150,
		"daily_budget": 100,
	}), []*models.MonitoringRule{broken, overspendRule()})

	require.Len(t, candidates, 1)
	assert.Equal(t, "overspend-high", candidates[0].Rule.RuleID)
}

func TestEngineMissingMetricSkipsRule(t *testing.T) {
	engine := NewEngine(testLogger())

	candidates := engine.Evaluate(snapshot(map[string]float64{
		"daily_budget": 100,
	}), []*models.MonitoringRule{overspendRule()})

	assert.Empty(t, candidates)
}

func TestEngineTieBreakHighestSeverityWins(t *testing.T) {
	engine := NewEngine(testLogger())

	high := overspendRule()
	critical := overspendRule()
	critical.RuleID = "overspend-critical"
	critical.Severity = models.SeverityCritical
	critical.Condition = "spend > daily_budget * 1.5"
	critical.ThresholdExpr = "daily_budget * 1.5"

	candidates := engine.Evaluate(snapshot(map[string]float64{
		"spend":        200,
		"daily_budget": 100,
	}), []*models.MonitoringRule{high, critical})

	require.Len(t, candidates, 1)
	assert.Equal(t, models.SeverityCritical, candidates[0].Severity)
	assert.Equal(t, "overspend-critical", candidates[0].Rule.RuleID)
}

func TestEngineTieBreakConfidenceOnEqualSeverity(t *testing.T) {
	engine := NewEngine(testLogger())

	loose := overspendRule()
	tight := overspendRule()
	tight.RuleID = "overspend-tight"
	tight.Condition = "spend > daily_budget * 1.1"
	tight.ThresholdExpr = "daily_budget * 1.1"

	// spend 150: deviation 25% against 120, ~36% against 110
	candidates := engine.Evaluate(snapshot(map[string]float64{
		"spend":        150,
		"daily_budget": 100,
	}), []*models.MonitoringRule{loose, tight})

	require.Len(t, candidates, 1)
	assert.Equal(t, "overspend-tight", candidates[0].Rule.RuleID)
}

func TestEngineDistinctIssueTypesBothSurvive(t *testing.T) {
	engine := NewEngine(testLogger())

	quality := &models.MonitoringRule{
		RuleID:        "quality-drop",
		IssueType:     models.IssueTypeQualityDrop,
		Severity:      models.SeverityMedium,
		Metric:        "quality_score",
		Condition:     "quality_score < 4",
		ThresholdExpr: "4",
		Enabled:       true,
		Version:       1,
	}

	candidates := engine.Evaluate(snapshot(map[string]float64{
		"spend":         150,
		"daily_budget":  100,
		"quality_score": 3,
	}), []*models.MonitoringRule{overspendRule(), quality})

	assert.Len(t, candidates, 2)
}

func TestDefaultConfidenceZeroThreshold(t *testing.T) {
	assert.Equal(t, 0.0, DefaultConfidence(0, 0))
	assert.Equal(t, 1.0, DefaultConfidence(5, 0))
}

func TestEngineCustomConfidenceFunc(t *testing.T) {
	engine := NewEngine(testLogger())
	engine.SetConfidenceFunc(func(value, threshold float64) float64 {
		return 0.5
	})

	candidates := engine.Evaluate(snapshot(map[string]float64{
		"spend":        150,
		"daily_budget": 100,
	}), []*models.MonitoringRule{overspendRule()})

	require.Len(t, candidates, 1)
	assert.Equal(t, 0.5, candidates[0].ConfidenceScore)
}
