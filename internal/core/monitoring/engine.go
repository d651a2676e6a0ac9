package monitoring

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/sirupsen/logrus"

	"github.com/adpulse-ops/adpulse-backend-go/internal/adapters/ads"
	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
)

// ConfidenceFunc scores how far a metric deviated past its threshold,
// normalized to [0,1].
type ConfidenceFunc func(value, threshold float64) float64

// DefaultConfidence implements min(1, |value-threshold|/threshold).
func DefaultConfidence(value, threshold float64) float64 {
	if threshold == 0 {
		if value == 0 {
			return 0
		}
		return 1
	}
	return math.Min(1, math.Abs(value-threshold)/math.Abs(threshold))
}

// Engine evaluates campaign snapshots against monitoring rules. Evaluation
// is a pure function of its inputs; the only internal state is a cache of
// compiled condition programs.
type Engine struct {
	logger     *logrus.Logger
	confidence ConfidenceFunc

	mu       sync.Mutex
	programs map[string]*compiledRule
}

type compiledRule struct {
	condition *vm.Program
	threshold *vm.Program
}

// NewEngine creates a rule engine with the default confidence formula.
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{
		logger:     logger,
		confidence: DefaultConfidence,
		programs:   make(map[string]*compiledRule),
	}
}

// SetConfidenceFunc overrides the confidence formula.
func (e *Engine) SetConfidenceFunc(fn ConfidenceFunc) {
	if fn != nil {
		e.confidence = fn
	}
}

// Evaluate runs every enabled rule against a snapshot and returns the
// surviving candidates. Rules that fail to compile or evaluate are logged
// and skipped; one bad rule never aborts the cycle. When several rules of
// the same issue type fire, only the highest-severity candidate survives,
// ties broken by confidence.
func (e *Engine) Evaluate(snapshot *ads.MetricSnapshot, rules []*models.MonitoringRule) []*IssueCandidate {
	if snapshot == nil || len(rules) == 0 {
		return nil
	}

	env := evalEnv(snapshot)
	byType := make(map[models.IssueType]*IssueCandidate)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		candidate, err := e.evaluateRule(snapshot, rule, env)
		if err != nil {
			ruleEvalErrorsTotal.Inc()
			e.logger.WithError(err).WithFields(logrus.Fields{
				"rule_id":     rule.RuleID,
				"campaign_id": snapshot.CampaignID,
			}).Warn("Rule evaluation failed, skipping rule")
			continue
		}
		if candidate == nil {
			continue
		}

		existing, ok := byType[candidate.IssueType]
		if !ok || betterCandidate(candidate, existing) {
			byType[candidate.IssueType] = candidate
		}
	}

	candidates := make([]*IssueCandidate, 0, len(byType))
	for _, candidate := range byType {
		candidates = append(candidates, candidate)
	}
	return candidates
}

// evaluateRule returns a candidate when the rule's condition matches, nil
// when it does not, and an error when the rule cannot be evaluated.
func (e *Engine) evaluateRule(snapshot *ads.MetricSnapshot, rule *models.MonitoringRule, env map[string]interface{}) (*IssueCandidate, error) {
	programs, err := e.compile(rule)
	if err != nil {
		return nil, err
	}

	matched, err := expr.Run(programs.condition, env)
	if err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	fired, ok := matched.(bool)
	if !ok {
		return nil, fmt.Errorf("condition %q is not boolean", rule.Condition)
	}
	if !fired {
		return nil, nil
	}

	value, ok := snapshot.Field(rule.Metric)
	if !ok {
		return nil, fmt.Errorf("snapshot missing metric %q", rule.Metric)
	}

	thresholdOut, err := expr.Run(programs.threshold, env)
	if err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	threshold, err := toFloat(thresholdOut)
	if err != nil {
		return nil, fmt.Errorf("threshold %q: %w", rule.ThresholdExpr, err)
	}

	confidence := clamp01(e.confidence(value, threshold))

	return &IssueCandidate{
		CustomerID:         snapshot.CustomerID,
		CampaignID:         snapshot.CampaignID,
		Rule:               rule,
		IssueType:          rule.IssueType,
		Severity:           rule.Severity,
		ConfidenceScore:    confidence,
		Title:              fmt.Sprintf("%s: %s", rule.Name, campaignLabel(snapshot)),
		Description:        rule.Description,
		RecommendedActions: recommendedActions(rule.IssueType),
		ImpactAssessment: fmt.Sprintf("%s at %.2f against threshold %.2f (deviation %.0f%%)",
			rule.Metric, value, threshold, confidence*100),
		DetectedAt: time.Now().UTC(),
	}, nil
}

// compile returns cached programs for a rule, compiling on first use or
// after the rule version changes.
func (e *Engine) compile(rule *models.MonitoringRule) (*compiledRule, error) {
	key := fmt.Sprintf("%s@%d", rule.RuleID, rule.Version)

	e.mu.Lock()
	defer e.mu.Unlock()

	if programs, ok := e.programs[key]; ok {
		return programs, nil
	}

	condition, err := expr.Compile(rule.Condition, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", rule.Condition, err)
	}
	threshold, err := expr.Compile(rule.ThresholdExpr)
	if err != nil {
		return nil, fmt.Errorf("compile threshold %q: %w", rule.ThresholdExpr, err)
	}

	programs := &compiledRule{condition: condition, threshold: threshold}
	e.programs[key] = programs
	return programs, nil
}

func evalEnv(snapshot *ads.MetricSnapshot) map[string]interface{} {
	env := make(map[string]interface{}, len(snapshot.Fields)+2)
	for name, value := range snapshot.Fields {
		env[name] = value
	}
	env["campaign_id"] = snapshot.CampaignID
	env["customer_id"] = snapshot.CustomerID
	return env
}

// betterCandidate reports whether a should replace b in the tie-break.
func betterCandidate(a, b *IssueCandidate) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() > b.Severity.Rank()
	}
	return a.ConfidenceScore > b.ConfidenceScore
}

func campaignLabel(snapshot *ads.MetricSnapshot) string {
	if snapshot.CampaignName != "" {
		return snapshot.CampaignName
	}
	return snapshot.CampaignID
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
