package monitoring

import (
	"time"

	"github.com/adpulse-ops/adpulse-backend-go/internal/database/models"
)

// IssueCandidate is a provisional issue produced by the rule engine for one
// evaluation cycle. Candidates are consumed by the lifecycle manager and
// discarded; they never outlive the cycle that produced them.
type IssueCandidate struct {
	CustomerID         string
	CampaignID         string
	Rule               *models.MonitoringRule
	IssueType          models.IssueType
	Severity           models.Severity
	ConfidenceScore    float64
	Title              string
	Description        string
	RecommendedActions models.StringList
	ImpactAssessment   string
	DetectedAt         time.Time
}

// Key identifies the issue slot this candidate targets.
func (c *IssueCandidate) Key() string {
	return c.CustomerID + "/" + c.CampaignID + "/" + string(c.IssueType)
}

// recommendedActions returns the operator guidance attached to new issues of
// a given type, most impactful first.
func recommendedActions(issueType models.IssueType) models.StringList {
	switch issueType {
	case models.IssueTypeOverspend:
		return models.StringList{
			"Review daily budget and bid strategy",
			"Pause low-performing ad groups",
			"Enable automated spend caps",
		}
	case models.IssueTypeUnderspend:
		return models.StringList{
			"Raise bids on high-intent keywords",
			"Broaden audience targeting",
			"Check for disapproved or limited ads",
		}
	case models.IssueTypeDisapproval:
		return models.StringList{
			"Review platform policy feedback",
			"Fix or replace disapproved creatives",
			"Resubmit ads for review",
		}
	case models.IssueTypeQualityDrop:
		return models.StringList{
			"Tighten keyword-to-ad relevance",
			"Improve landing page experience",
			"Refresh ad copy",
		}
	default:
		return models.StringList{"Review campaign configuration"}
	}
}
