package ticket

import (
	"fmt"
	"strings"

	"provinator.io/provinator/internal/domain"
)

// RequestSummary builds the issue summary line for a single VM request.
func RequestSummary(req *domain.VMRequest) string {
	return fmt.Sprintf("VM request: %s (%s)", req.VMName, req.SizeKey)
}

// RequestDescription renders the issue body for a single VM request
// using Jira wiki markup.
func RequestDescription(req *domain.VMRequest, baseURL string) string {
	var b strings.Builder
	b.WriteString("h3. VM Provisioning Request\n\n")
	fmt.Fprintf(&b, "||Field||Value||\n")
	fmt.Fprintf(&b, "|Requester|%s <%s>|\n", req.RequesterName, req.RequesterEmail)
	fmt.Fprintf(&b, "|VM name|%s|\n", req.VMName)
	fmt.Fprintf(&b, "|Template|%s|\n", req.TemplateKey)
	fmt.Fprintf(&b, "|Size|%s (%d vCPU, %d MB RAM, %d GB disk)|\n",
		req.SizeKey, req.CPUCores, req.RAMMB, req.DiskGB)
	if req.IPAddress != "" {
		fmt.Fprintf(&b, "|IP address|%s|\n", req.IPAddress)
	}
	if baseURL != "" {
		fmt.Fprintf(&b, "\nReview: %s/requests/%d\n", strings.TrimRight(baseURL, "/"), req.ID)
	}
	return b.String()
}

// DeploymentSummary builds the issue summary line for a deployment.
func DeploymentSummary(dep *domain.Deployment) string {
	return fmt.Sprintf("Deployment request: %s (%d VMs)", dep.Name, len(dep.Requests))
}

// DeploymentDescription renders the issue body for a multi-VM deployment.
func DeploymentDescription(dep *domain.Deployment, baseURL string) string {
	var b strings.Builder
	b.WriteString("h3. Deployment Provisioning Request\n\n")
	fmt.Fprintf(&b, "Requester: %s <%s>\n\n", dep.RequesterName, dep.RequesterEmail)
	fmt.Fprintf(&b, "||VM||Template||Size||\n")
	for i := range dep.Requests {
		r := &dep.Requests[i]
		fmt.Fprintf(&b, "|%s|%s|%s|\n", r.VMName, r.TemplateKey, r.SizeKey)
	}
	if baseURL != "" {
		fmt.Fprintf(&b, "\nReview: %s/deployments/%d\n", strings.TrimRight(baseURL, "/"), dep.ID)
	}
	return b.String()
}
