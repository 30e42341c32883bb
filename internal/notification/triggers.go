package notification

import (
	"context"
	"fmt"

	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/mailer"
	"provinator.io/provinator/internal/settings"
)

func (n *Notifier) baseURL(ctx context.Context) string {
	base, _ := n.settings.Value(ctx, settings.KeyAppBaseURL)
	return base
}

func (n *Notifier) requestMail(kind string, req *domain.VMRequest) {
	r := *req
	n.email(kind, r.RequesterEmail, func(ctx context.Context) (string, string, error) {
		return mailer.RenderRequestMail(kind, &r, n.baseURL(ctx))
	})
}

// RequestReceived fires after a request is submitted.
func (n *Notifier) RequestReceived(req *domain.VMRequest) {
	n.requestMail("received", req)
}

// RequestApproved fires after a request is approved. The Jira issue is
// moved to the configured approval status.
func (n *Notifier) RequestApproved(req *domain.VMRequest) {
	n.transition(req.JiraIssueKey, settings.KeyJiraApproveStatus)
	n.comment(req.JiraIssueKey, fmt.Sprintf("Request approved, provisioning of %s queued.", req.VMName))
}

// RequestRejected fires after a request is rejected: the issue is
// declined, the requester is emailed and the reserved IP is returned.
func (n *Notifier) RequestRejected(req *domain.VMRequest) {
	n.transition(req.JiraIssueKey, settings.KeyJiraRejectStatus)
	n.comment(req.JiraIssueKey, fmt.Sprintf("Request for %s rejected.", req.VMName))
	n.requestMail("rejected", req)
	n.releaseIP(req.IPAMAddressID)
}

// RequestCompleted fires after a VM finishes provisioning.
func (n *Notifier) RequestCompleted(req *domain.VMRequest) {
	n.comment(req.JiraIssueKey, fmt.Sprintf(
		"VM %s provisioned on %s (vmid %s).", req.VMName, req.HypervisorHost, req.HypervisorVMID))
	n.requestMail("ready", req)
}

// RequestFailed fires after provisioning fails.
func (n *Notifier) RequestFailed(req *domain.VMRequest) {
	n.comment(req.JiraIssueKey, fmt.Sprintf(
		"Provisioning of %s failed: %s", req.VMName, req.ErrorMessage))
	n.requestMail("failed", req)
}

// DeploymentApproved fires after a deployment is approved.
func (n *Notifier) DeploymentApproved(dep *domain.Deployment) {
	n.transition(dep.JiraIssueKey, settings.KeyJiraApproveStatus)
	n.comment(dep.JiraIssueKey, fmt.Sprintf(
		"Deployment %s approved, provisioning of %d VMs queued.", dep.Name, len(dep.Requests)))
}

// DeploymentRejected fires after a deployment is rejected. Member IP
// reservations are returned.
func (n *Notifier) DeploymentRejected(dep *domain.Deployment) {
	n.transition(dep.JiraIssueKey, settings.KeyJiraRejectStatus)
	n.comment(dep.JiraIssueKey, fmt.Sprintf("Deployment %s rejected.", dep.Name))
	for i := range dep.Requests {
		n.releaseIP(dep.Requests[i].IPAMAddressID)
	}
}

// DeploymentFinished fires after a provisioning run over all members,
// whatever the outcome. summary carries the aggregate result line.
func (n *Notifier) DeploymentFinished(dep *domain.Deployment, summary string) {
	n.comment(dep.JiraIssueKey, fmt.Sprintf("Deployment %s: %s", dep.Name, summary))
}
