package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/settings"
)

// jiraWebhookPayload is the subset of Jira's issue-updated event the
// webhook cares about.
type jiraWebhookPayload struct {
	WebhookEvent string `json:"webhookEvent"`
	Issue        struct {
		Key    string `json:"key"`
		Fields struct {
			Status struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"fields"`
	} `json:"issue"`
}

// JiraWebhook handles POST /webhooks/jira. Moving a tracked issue into
// the configured approve or reject status drives the matching decision
// on the pending request or deployment. Events for untracked issues or
// other statuses are acknowledged and ignored.
func (s *Server) JiraWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	secret, err := s.settings.Value(ctx, settings.KeyJiraWebhookSecret)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if secret != "" {
		presented := c.Query("secret")
		if presented == "" {
			presented = c.GetHeader("X-Webhook-Secret")
		}
		if subtle.ConstantTimeCompare([]byte(secret), []byte(presented)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "AUTH_FAILED",
				"message": "invalid webhook secret",
			})
			return
		}
	}

	var payload jiraWebhookPayload
	if !bindJSON(c, &payload) {
		return
	}
	issueKey := payload.Issue.Key
	status := payload.Issue.Fields.Status.Name
	if issueKey == "" || status == "" {
		c.JSON(http.StatusOK, gin.H{"handled": false})
		return
	}

	approveStatus, _ := s.settings.Value(ctx, settings.KeyJiraApproveStatus)
	rejectStatus, _ := s.settings.Value(ctx, settings.KeyJiraRejectStatus)

	var approve bool
	switch {
	case strings.EqualFold(status, approveStatus):
		approve = true
	case strings.EqualFold(status, rejectStatus):
		approve = false
	default:
		c.JSON(http.StatusOK, gin.H{"handled": false})
		return
	}

	handled := s.decideByIssueKey(c, issueKey, approve)
	c.JSON(http.StatusOK, gin.H{"handled": handled})
}

// decideByIssueKey applies the webhook decision to whichever pending
// record tracks the issue. Guard failures (already decided records) are
// logged, not surfaced: Jira retries webhooks and a duplicate decision
// is not an error.
func (s *Server) decideByIssueKey(c *gin.Context, issueKey string, approve bool) bool {
	ctx := c.Request.Context()
	const reason = "Declined via Jira"

	if req, err := s.store.RequestByIssueKey(ctx, issueKey); err == nil {
		if req.Status != domain.RequestPendingApproval {
			return false
		}
		var opErr error
		if approve {
			_, opErr = s.engine.ApproveRequest(ctx, req.ID)
		} else {
			_, opErr = s.engine.RejectRequest(ctx, req.ID, reason)
		}
		if opErr != nil {
			logger.Warn("Webhook decision not applied",
				zap.String("issue_key", issueKey),
				zap.Error(opErr),
			)
			return false
		}
		return true
	}

	if dep, err := s.store.DeploymentByIssueKey(ctx, issueKey); err == nil {
		if dep.Status != domain.DeploymentPendingApproval {
			return false
		}
		var opErr error
		if approve {
			_, opErr = s.engine.ApproveDeployment(ctx, dep.ID)
		} else {
			_, opErr = s.engine.RejectDeployment(ctx, dep.ID, reason)
		}
		if opErr != nil {
			logger.Warn("Webhook decision not applied",
				zap.String("issue_key", issueKey),
				zap.Error(opErr),
			)
			return false
		}
		return true
	}

	return false
}
