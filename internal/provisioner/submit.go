package provisioner

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/settings"
	"provinator.io/provinator/internal/ticket"
)

// RequestInput is a standalone VM request submission.
type RequestInput struct {
	RequesterName  string `json:"requester_name" binding:"required"`
	RequesterEmail string `json:"requester_email" binding:"required,email"`
	VMName         string `json:"vm_name" binding:"required,max=63"`
	TemplateKey    string `json:"template_key" binding:"required"`
	SizeKey        string `json:"size_key" binding:"required"`
	EnvironmentID  *int64 `json:"environment_id,omitempty"`
}

// DeploymentVMInput is one member of a deployment submission.
type DeploymentVMInput struct {
	VMName      string `json:"vm_name" binding:"required,max=63"`
	TemplateKey string `json:"template_key" binding:"required"`
	SizeKey     string `json:"size_key" binding:"required"`
}

// DeploymentInput is a multi-VM deployment submission.
type DeploymentInput struct {
	Name           string              `json:"name" binding:"required,max=255"`
	RequesterName  string              `json:"requester_name" binding:"required"`
	RequesterEmail string              `json:"requester_email" binding:"required,email"`
	EnvironmentID  *int64              `json:"environment_id,omitempty"`
	VMs            []DeploymentVMInput `json:"vms" binding:"required,min=1,dive"`
}

// buildRequest validates one VM against the catalogs and produces the
// pending record. Template resolution runs here so an unknown key fails
// at submission, not after approval.
func (e *Engine) buildRequest(ctx context.Context, in RequestInput) (*domain.VMRequest, error) {
	size, err := e.Size(in.SizeKey)
	if err != nil {
		return nil, err
	}
	if _, err := e.resolver.Resolve(ctx, in.TemplateKey, in.EnvironmentID); err != nil {
		return nil, err
	}

	return &domain.VMRequest{
		Reference:      uuid.New(),
		RequesterName:  in.RequesterName,
		RequesterEmail: in.RequesterEmail,
		VMName:         in.VMName,
		TemplateKey:    in.TemplateKey,
		SizeKey:        size.Key,
		CPUCores:       size.CPUCores,
		RAMMB:          size.RAMMB,
		DiskGB:         size.DiskGB,
		EnvironmentID:  in.EnvironmentID,
		Status:         domain.RequestPendingApproval,
	}, nil
}

// allocateIP reserves an address for the request when IPAM is enabled.
// Allocation failure fails the submission; a half-created request with a
// silently missing IP is worse than a retryable error.
func (e *Engine) allocateIP(ctx context.Context, req *domain.VMRequest) error {
	if e.ipam == nil || !e.ipam.Enabled(ctx) {
		return nil
	}
	subnetID, err := e.ipam.SubnetID(ctx)
	if err != nil {
		return err
	}
	addr, err := e.ipam.AllocateFirstFree(ctx, subnetID)
	if err != nil {
		return fmt.Errorf("allocate IP for %s: %w", req.VMName, err)
	}
	req.IPAddress = addr.IP
	req.IPAMAddressID = &addr.ID

	if err := e.ipam.UpdateAddress(ctx, addr.ID, req.VMName, "Provisioned by Provinator"); err != nil {
		logger.Warn("IPAM hostname update failed",
			zap.String("vm_name", req.VMName),
			zap.Error(err),
		)
	}
	return nil
}

// SubmitRequest validates, persists and announces a standalone request.
// Jira issue creation is best-effort: the request survives a Jira outage.
func (e *Engine) SubmitRequest(ctx context.Context, in RequestInput) (*domain.VMRequest, error) {
	req, err := e.buildRequest(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := e.allocateIP(ctx, req); err != nil {
		return nil, err
	}
	if err := e.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	if e.tickets != nil && e.tickets.Enabled(ctx) {
		baseURL, _ := e.settings.Value(ctx, settings.KeyAppBaseURL)
		issue, err := e.tickets.CreateIssue(ctx,
			ticket.RequestSummary(req), ticket.RequestDescription(req, baseURL))
		if err != nil {
			logger.Warn("Jira issue creation failed",
				zap.Int64("request_id", req.ID),
				zap.Error(err),
			)
		} else {
			req.JiraIssueKey = issue.Key
			if err := e.store.SaveRequest(ctx, req); err != nil {
				return nil, err
			}
		}
	}

	logger.Info("VM request submitted",
		zap.Int64("request_id", req.ID),
		zap.String("vm_name", req.VMName),
		zap.String("size", req.SizeKey),
	)
	e.events.RequestReceived(req)
	return req, nil
}

// SubmitDeployment validates and persists a deployment with its members.
// All members are validated before anything is written so a bad entry
// cannot leave a partial batch behind.
func (e *Engine) SubmitDeployment(ctx context.Context, in DeploymentInput) (*domain.Deployment, error) {
	members := make([]domain.VMRequest, 0, len(in.VMs))
	for _, vm := range in.VMs {
		req, err := e.buildRequest(ctx, RequestInput{
			RequesterName:  in.RequesterName,
			RequesterEmail: in.RequesterEmail,
			VMName:         vm.VMName,
			TemplateKey:    vm.TemplateKey,
			SizeKey:        vm.SizeKey,
			EnvironmentID:  in.EnvironmentID,
		})
		if err != nil {
			return nil, fmt.Errorf("vm %s: %w", vm.VMName, err)
		}
		members = append(members, *req)
	}
	for i := range members {
		if err := e.allocateIP(ctx, &members[i]); err != nil {
			return nil, err
		}
	}

	dep := &domain.Deployment{
		Reference:      uuid.New(),
		Name:           in.Name,
		RequesterName:  in.RequesterName,
		RequesterEmail: in.RequesterEmail,
		EnvironmentID:  in.EnvironmentID,
		Status:         domain.DeploymentPendingApproval,
		Requests:       members,
	}
	if err := e.store.CreateDeployment(ctx, dep); err != nil {
		return nil, err
	}

	if e.tickets != nil && e.tickets.Enabled(ctx) {
		baseURL, _ := e.settings.Value(ctx, settings.KeyAppBaseURL)
		issue, err := e.tickets.CreateIssue(ctx,
			ticket.DeploymentSummary(dep), ticket.DeploymentDescription(dep, baseURL))
		if err != nil {
			logger.Warn("Jira issue creation failed",
				zap.Int64("deployment_id", dep.ID),
				zap.Error(err),
			)
		} else {
			dep.JiraIssueKey = issue.Key
			if err := e.store.SaveDeployment(ctx, dep); err != nil {
				return nil, err
			}
		}
	}

	logger.Info("Deployment submitted",
		zap.Int64("deployment_id", dep.ID),
		zap.String("name", dep.Name),
		zap.Int("vm_count", len(dep.Requests)),
	)
	return dep, nil
}
