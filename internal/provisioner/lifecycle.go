package provisioner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"provinator.io/provinator/internal/domain"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
)

// standaloneOnly rejects lifecycle operations on deployment members;
// those are driven through the parent deployment.
func (e *Engine) standaloneOnly(ctx context.Context, id int64) error {
	req, err := e.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if req.DeploymentID != nil {
		return apperrors.New(apperrors.CodeValidationFailed,
			"request belongs to a deployment; operate on the deployment instead", 422)
	}
	return nil
}

// ApproveRequest moves a pending request to approved and queues the
// provisioning run.
func (e *Engine) ApproveRequest(ctx context.Context, id int64) (*domain.VMRequest, error) {
	if err := e.standaloneOnly(ctx, id); err != nil {
		return nil, err
	}
	now := time.Now()
	req, err := e.store.TransitionRequest(ctx, id,
		[]domain.RequestStatus{domain.RequestPendingApproval},
		domain.RequestApproved,
		func(r *domain.VMRequest) { r.ApprovedAt = &now })
	if err != nil {
		return nil, err
	}

	logger.Info("Request approved", zap.Int64("request_id", id))
	e.events.RequestApproved(req)
	if err := e.enqueueRequest(ctx, id); err != nil {
		return nil, err
	}
	return req, nil
}

// RejectRequest moves a pending request to rejected. reason is recorded
// on the row and surfaced to the requester.
func (e *Engine) RejectRequest(ctx context.Context, id int64, reason string) (*domain.VMRequest, error) {
	if err := e.standaloneOnly(ctx, id); err != nil {
		return nil, err
	}
	req, err := e.store.TransitionRequest(ctx, id,
		[]domain.RequestStatus{domain.RequestPendingApproval},
		domain.RequestRejected,
		func(r *domain.VMRequest) { r.ErrorMessage = apperrors.Truncate(reason, 1000) })
	if err != nil {
		return nil, err
	}

	logger.Info("Request rejected", zap.Int64("request_id", id))
	e.events.RequestRejected(req)
	return req, nil
}

// RetryRequest re-enters approved from provisioning_failed, clearing the
// recorded error, and queues a fresh provisioning run. Retry is always an
// explicit operator action.
func (e *Engine) RetryRequest(ctx context.Context, id int64) (*domain.VMRequest, error) {
	if err := e.standaloneOnly(ctx, id); err != nil {
		return nil, err
	}
	req, err := e.store.TransitionRequest(ctx, id,
		[]domain.RequestStatus{domain.RequestProvisioningFailed},
		domain.RequestApproved,
		func(r *domain.VMRequest) { r.ErrorMessage = "" })
	if err != nil {
		return nil, err
	}

	logger.Info("Request retry queued", zap.Int64("request_id", id))
	if err := e.enqueueRequest(ctx, id); err != nil {
		return nil, err
	}
	return req, nil
}

// ApproveDeployment approves the deployment and all pending members,
// then queues one provisioning run over the batch.
func (e *Engine) ApproveDeployment(ctx context.Context, id int64) (*domain.Deployment, error) {
	now := time.Now()
	if _, err := e.store.TransitionDeployment(ctx, id,
		[]domain.DeploymentStatus{domain.DeploymentPendingApproval},
		domain.DeploymentApproved,
		func(d *domain.Deployment) { d.ApprovedAt = &now }); err != nil {
		return nil, err
	}

	dep, err := e.store.GetDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range dep.Requests {
		m := &dep.Requests[i]
		if m.Status != domain.RequestPendingApproval {
			continue
		}
		if _, err := e.store.TransitionRequest(ctx, m.ID,
			[]domain.RequestStatus{domain.RequestPendingApproval},
			domain.RequestApproved,
			func(r *domain.VMRequest) { r.ApprovedAt = &now }); err != nil {
			logger.Warn("Deployment member approval failed",
				zap.Int64("deployment_id", id),
				zap.Int64("request_id", m.ID),
				zap.Error(err),
			)
		}
	}

	logger.Info("Deployment approved",
		zap.Int64("deployment_id", id),
		zap.Int("vm_count", len(dep.Requests)),
	)
	e.events.DeploymentApproved(dep)
	if err := e.enqueueDeployment(ctx, id); err != nil {
		return nil, err
	}
	return e.store.GetDeployment(ctx, id)
}

// RejectDeployment rejects the deployment and all pending members.
func (e *Engine) RejectDeployment(ctx context.Context, id int64, reason string) (*domain.Deployment, error) {
	if _, err := e.store.TransitionDeployment(ctx, id,
		[]domain.DeploymentStatus{domain.DeploymentPendingApproval},
		domain.DeploymentRejected,
		func(d *domain.Deployment) { d.ErrorMessage = apperrors.Truncate(reason, 1000) }); err != nil {
		return nil, err
	}

	dep, err := e.store.GetDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range dep.Requests {
		m := &dep.Requests[i]
		if m.Status != domain.RequestPendingApproval {
			continue
		}
		if _, err := e.store.TransitionRequest(ctx, m.ID,
			[]domain.RequestStatus{domain.RequestPendingApproval},
			domain.RequestRejected,
			func(r *domain.VMRequest) { r.ErrorMessage = apperrors.Truncate(reason, 1000) }); err != nil {
			logger.Warn("Deployment member rejection failed",
				zap.Int64("deployment_id", id),
				zap.Int64("request_id", m.ID),
				zap.Error(err),
			)
		}
	}

	logger.Info("Deployment rejected", zap.Int64("deployment_id", id))
	e.events.DeploymentRejected(dep)
	return e.store.GetDeployment(ctx, id)
}

// RetryDeployment re-enters approved from a failed or partially
// completed state. Only failed members are reset; completed members keep
// their VMs and are skipped by the next run.
func (e *Engine) RetryDeployment(ctx context.Context, id int64) (*domain.Deployment, error) {
	if _, err := e.store.TransitionDeployment(ctx, id,
		[]domain.DeploymentStatus{domain.DeploymentFailed, domain.DeploymentPartiallyCompleted},
		domain.DeploymentApproved,
		func(d *domain.Deployment) { d.ErrorMessage = "" }); err != nil {
		return nil, err
	}

	dep, err := e.store.GetDeployment(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range dep.Requests {
		m := &dep.Requests[i]
		if m.Status != domain.RequestProvisioningFailed {
			continue
		}
		if _, err := e.store.TransitionRequest(ctx, m.ID,
			[]domain.RequestStatus{domain.RequestProvisioningFailed},
			domain.RequestApproved,
			func(r *domain.VMRequest) { r.ErrorMessage = "" }); err != nil {
			logger.Warn("Deployment member retry reset failed",
				zap.Int64("deployment_id", id),
				zap.Int64("request_id", m.ID),
				zap.Error(err),
			)
		}
	}

	logger.Info("Deployment retry queued", zap.Int64("deployment_id", id))
	if err := e.enqueueDeployment(ctx, id); err != nil {
		return nil, err
	}
	return e.store.GetDeployment(ctx, id)
}

func (e *Engine) enqueueRequest(ctx context.Context, id int64) error {
	if e.scheduler == nil {
		return nil
	}
	return e.scheduler.EnqueueRequest(ctx, id)
}

func (e *Engine) enqueueDeployment(ctx context.Context, id int64) error {
	if e.scheduler == nil {
		return nil
	}
	return e.scheduler.EnqueueDeployment(ctx, id)
}
