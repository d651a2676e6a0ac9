package handlers

import (
	"github.com/gin-gonic/gin"

	pkgerrors "github.com/adpulse-ops/adpulse-backend-go/pkg/errors"
	"github.com/adpulse-ops/adpulse-backend-go/pkg/utils"

	"github.com/adpulse-ops/adpulse-backend-go/internal/websocket"
)

// StartMonitoring begins scheduled evaluation for an account
func (h *Handlers) StartMonitoring(c *gin.Context) {
	customerID := c.Param("customerId")

	session, err := h.scheduler.Start(c.Request.Context(), customerID)
	if err != nil {
		h.log.WithError(err).WithField("customer_id", customerID).Error("Failed to start monitoring")
		utils.SendError(c, pkgerrors.GetStatusCode(err), "Failed to start monitoring")
		return
	}

	utils.SendSuccess(c, gin.H{
		"customer_id": customerID,
		"monitoring":  "started",
		"session":     session,
	})
}

// StopMonitoring halts scheduled evaluation for an account
func (h *Handlers) StopMonitoring(c *gin.Context) {
	customerID := c.Param("customerId")

	if err := h.scheduler.Stop(c.Request.Context(), customerID); err != nil {
		if pkgerrors.IsNotFound(err) {
			utils.SendError(c, 404, "No monitoring session for account")
			return
		}
		h.log.WithError(err).WithField("customer_id", customerID).Error("Failed to stop monitoring")
		utils.SendError(c, pkgerrors.GetStatusCode(err), "Failed to stop monitoring")
		return
	}

	utils.SendSuccess(c, gin.H{
		"customer_id": customerID,
		"monitoring":  "stopped",
	})
}

// GetStatus returns the monitoring status view for an account
func (h *Handlers) GetStatus(c *gin.Context) {
	customerID := c.Param("customerId")

	status, err := h.query.Status(c.Request.Context(), customerID)
	if err != nil {
		h.log.WithError(err).WithField("customer_id", customerID).Error("Failed to load monitoring status")
		utils.SendError(c, pkgerrors.GetStatusCode(err), "Failed to load monitoring status")
		return
	}

	utils.SendSuccess(c, status)
}

// GetIssues returns active issues for an account, most severe first
func (h *Handlers) GetIssues(c *gin.Context) {
	customerID := c.Param("customerId")

	issues, err := h.query.Issues(c.Request.Context(), customerID)
	if err != nil {
		h.log.WithError(err).WithField("customer_id", customerID).Error("Failed to load issues")
		utils.SendError(c, pkgerrors.GetStatusCode(err), "Failed to load issues")
		return
	}

	utils.SendSuccessWithMeta(c, issues, gin.H{"count": len(issues)})
}

// GetDashboard returns the aggregated dashboard view for an account
func (h *Handlers) GetDashboard(c *gin.Context) {
	customerID := c.Param("customerId")

	dashboard, err := h.query.GetDashboard(c.Request.Context(), customerID)
	if err != nil {
		h.log.WithError(err).WithField("customer_id", customerID).Error("Failed to build dashboard")
		utils.SendError(c, pkgerrors.GetStatusCode(err), "Failed to build dashboard")
		return
	}

	utils.SendSuccess(c, dashboard)
}

type resolveRequest struct {
	ResolutionNotes string `json:"resolution_notes"`
}

// ResolveIssue marks an active issue resolved with operator notes
func (h *Handlers) ResolveIssue(c *gin.Context) {
	issueID := c.Param("issueId")

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.SendError(c, 400, "Invalid request body")
		return
	}

	issue, err := h.lifecycle.Resolve(c.Request.Context(), issueID, req.ResolutionNotes)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			utils.SendError(c, 404, "No active issue with that ID")
			return
		}
		if pkgerrors.IsConflict(err) {
			utils.SendError(c, 409, "Issue was modified concurrently, retry")
			return
		}
		h.log.WithError(err).WithField("issue_id", issueID).Error("Failed to resolve issue")
		utils.SendError(c, pkgerrors.GetStatusCode(err), "Failed to resolve issue")
		return
	}

	h.notifyResolved(issue.CustomerID, issue.IssueID, "resolved")
	utils.SendSuccess(c, issue)
}

type ignoreRequest struct {
	Reason string `json:"reason"`
}

// IgnoreIssue marks an active issue ignored
func (h *Handlers) IgnoreIssue(c *gin.Context) {
	issueID := c.Param("issueId")

	var req ignoreRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		utils.SendError(c, 400, "Invalid request body")
		return
	}

	issue, err := h.lifecycle.Ignore(c.Request.Context(), issueID, req.Reason)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			utils.SendError(c, 404, "No active issue with that ID")
			return
		}
		if pkgerrors.IsConflict(err) {
			utils.SendError(c, 409, "Issue was modified concurrently, retry")
			return
		}
		h.log.WithError(err).WithField("issue_id", issueID).Error("Failed to ignore issue")
		utils.SendError(c, pkgerrors.GetStatusCode(err), "Failed to ignore issue")
		return
	}

	h.notifyResolved(issue.CustomerID, issue.IssueID, "ignored")
	utils.SendSuccess(c, issue)
}

// GetRules returns every monitoring rule
func (h *Handlers) GetRules(c *gin.Context) {
	rules, err := h.query.Rules(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to load rules")
		utils.SendError(c, pkgerrors.GetStatusCode(err), "Failed to load rules")
		return
	}

	utils.SendSuccessWithMeta(c, rules, gin.H{"count": len(rules)})
}

// ToggleRule flips a rule's enabled flag
func (h *Handlers) ToggleRule(c *gin.Context) {
	ruleID := c.Param("ruleId")

	rule, err := h.query.ToggleRule(c.Request.Context(), ruleID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			utils.SendError(c, 404, "No rule with that ID")
			return
		}
		h.log.WithError(err).WithField("rule_id", ruleID).Error("Failed to toggle rule")
		utils.SendError(c, pkgerrors.GetStatusCode(err), "Failed to toggle rule")
		return
	}

	utils.SendSuccess(c, rule)
}

type testAlertRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	CampaignID string `json:"campaign_id"`
}

// TestAlert pushes a synthesized alert through the notification pipeline
func (h *Handlers) TestAlert(c *gin.Context) {
	var req testAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, 400, "customer_id is required")
		return
	}

	issue := h.scheduler.TriggerTestAlert(req.CustomerID, req.CampaignID)
	utils.SendSuccess(c, gin.H{
		"customer_id": req.CustomerID,
		"alert":       issue,
	})
}

// StopAllMonitoring halts every monitored account in one call
func (h *Handlers) StopAllMonitoring(c *gin.Context) {
	if err := h.scheduler.StopAllSessions(c.Request.Context()); err != nil {
		h.log.WithError(err).Error("Failed to stop all monitoring sessions")
		utils.SendError(c, pkgerrors.GetStatusCode(err), "Failed to stop monitoring")
		return
	}
	utils.SendSuccess(c, gin.H{"monitoring": "stopped"})
}

// notifyResolved pushes an issue_resolved event to dashboard watchers.
// Operator closes skip the dispatcher's dedup window on purpose.
func (h *Handlers) notifyResolved(customerID, issueID, how string) {
	if h.wsHub == nil {
		return
	}
	h.wsHub.BroadcastToAccount(customerID, websocket.Message{
		Type: websocket.MessageTypeIssueResolved,
		Data: map[string]interface{}{
			"issue_id": issueID,
			"how":      how,
		},
	})
}
