package provisioner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/hypervisor"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/selector"
	"provinator.io/provinator/internal/settings"
)

// ProvisionRequest runs the pipeline for one standalone request. It is
// the worker entry point; the request must be in approved state.
func (e *Engine) ProvisionRequest(ctx context.Context, id int64) error {
	req, err := e.store.TransitionRequest(ctx, id,
		[]domain.RequestStatus{domain.RequestApproved},
		domain.RequestProvisioning, nil)
	if err != nil {
		return err
	}
	return e.provisionOne(ctx, req)
}

// provisionOne drives a request already in provisioning state to its
// terminal status and fires the matching notification.
func (e *Engine) provisionOne(ctx context.Context, req *domain.VMRequest) error {
	ref, err := e.runPipeline(ctx, req)
	if err != nil {
		msg := apperrors.Truncate(err.Error(), 1000)
		failed, terr := e.store.TransitionRequest(ctx, req.ID,
			[]domain.RequestStatus{domain.RequestProvisioning},
			domain.RequestProvisioningFailed,
			func(r *domain.VMRequest) { r.ErrorMessage = msg })
		if terr != nil {
			logger.Error("Failure transition lost",
				zap.Int64("request_id", req.ID),
				zap.Error(terr),
			)
			return err
		}
		logger.Error("Provisioning failed",
			zap.Int64("request_id", req.ID),
			zap.String("vm_name", req.VMName),
			zap.Error(err),
		)
		e.events.RequestFailed(failed)
		return err
	}

	now := time.Now()
	done, err := e.store.TransitionRequest(ctx, req.ID,
		[]domain.RequestStatus{domain.RequestProvisioning},
		domain.RequestCompleted,
		func(r *domain.VMRequest) {
			r.HypervisorVMID = ref.ID
			r.HypervisorHost = ref.Node
			r.CompletedAt = &now
			r.ErrorMessage = ""
		})
	if err != nil {
		return err
	}

	logger.Info("Provisioning completed",
		zap.Int64("request_id", req.ID),
		zap.String("vm_name", req.VMName),
		zap.String("vm_id", ref.ID),
		zap.String("node", ref.Node),
	)
	e.events.RequestCompleted(done)
	return nil
}

// runPipeline executes the provisioning steps against the hypervisor:
// resolve template, pick a node, clone, resize, configure network when
// applicable and power on. Any step error aborts the run; no step is
// retried and no partial rollback is attempted.
func (e *Engine) runPipeline(ctx context.Context, req *domain.VMRequest) (hypervisor.VMRef, error) {
	var zero hypervisor.VMRef

	env, err := e.environmentFor(ctx, req.EnvironmentID)
	if err != nil {
		return zero, err
	}
	var envID *int64
	if env != nil {
		envID = &env.ID
	}

	driver, err := e.driverFor(ctx, env)
	if err != nil {
		return zero, err
	}
	defer driver.Close(ctx)

	resolved, err := e.resolver.Resolve(ctx, req.TemplateKey, envID)
	if err != nil {
		return zero, err
	}

	targets, err := driver.ListTargets(ctx)
	if err != nil {
		return zero, err
	}
	strategy, err := e.settings.Strategy(ctx)
	if err != nil {
		return zero, err
	}
	target, err := selector.Select(targets, strategy)
	if err != nil {
		return zero, err
	}

	newID, err := driver.AllocateIdentifier(ctx)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotSupported) {
			return zero, err
		}
		newID = ""
	}

	logger.Info("Cloning template",
		zap.Int64("request_id", req.ID),
		zap.String("vm_name", req.VMName),
		zap.String("template", resolved.Key),
		zap.String("target", target.Name),
	)
	pending, err := driver.CloneTemplate(ctx, hypervisor.CloneRequest{
		SourceVMID:  resolved.ProxmoxVMID,
		SourceNode:  resolved.SourceNode,
		TemplateRef: resolved.TemplateRef,
		Name:        req.VMName,
		TargetNode:  target.Name,
		NewID:       newID,
		CPUCores:    req.CPUCores,
		RAMMB:       req.RAMMB,
	})
	if err != nil {
		return zero, err
	}
	ref, err := driver.WaitForCompletion(ctx, pending, hypervisor.DefaultCloneTimeout)
	if err != nil {
		return zero, err
	}

	if err := driver.Resize(ctx, ref, req.CPUCores, req.RAMMB, req.DiskGB); err != nil {
		return zero, err
	}

	if resolved.CloudInit && req.IPAddress != "" {
		gateway, _ := e.settings.Value(ctx, settings.KeyNetworkGateway)
		if err := driver.ConfigureNetwork(ctx, ref, hypervisor.NetworkConfig{
			IPAddress: req.IPAddress,
			Gateway:   gateway,
		}); err != nil {
			return zero, err
		}
	}

	if err := driver.PowerOn(ctx, ref, hypervisor.DefaultPowerOnTimeout); err != nil {
		return zero, err
	}
	return ref, nil
}

// ProvisionDeployment runs the pipeline over all approved members in
// creation order. A member failure is recorded and the run continues;
// the deployment lands in completed, partially_completed or failed. On
// a retry run members already completed are skipped.
func (e *Engine) ProvisionDeployment(ctx context.Context, id int64) error {
	if _, err := e.store.TransitionDeployment(ctx, id,
		[]domain.DeploymentStatus{domain.DeploymentApproved},
		domain.DeploymentProvisioning, nil); err != nil {
		return err
	}

	dep, err := e.store.GetDeployment(ctx, id)
	if err != nil {
		return err
	}

	var completed, failed int
	for i := range dep.Requests {
		m := &dep.Requests[i]
		switch m.Status {
		case domain.RequestCompleted:
			completed++
		case domain.RequestApproved:
			req, err := e.store.TransitionRequest(ctx, m.ID,
				[]domain.RequestStatus{domain.RequestApproved},
				domain.RequestProvisioning, nil)
			if err != nil {
				failed++
				continue
			}
			if err := e.provisionOne(ctx, req); err != nil {
				failed++
			} else {
				completed++
			}
		default:
			// Members stuck outside the approved path count against
			// the batch but are not touched.
			failed++
		}
	}

	total := len(dep.Requests)
	now := time.Now()
	var final domain.DeploymentStatus
	var summary string
	switch {
	case failed == 0:
		final = domain.DeploymentCompleted
		summary = fmt.Sprintf("all %d VMs provisioned", total)
	case completed == 0:
		final = domain.DeploymentFailed
		summary = "All VMs failed to provision"
	default:
		final = domain.DeploymentPartiallyCompleted
		summary = fmt.Sprintf("%d/%d VMs failed", failed, total)
	}

	dep, err = e.store.TransitionDeployment(ctx, id,
		[]domain.DeploymentStatus{domain.DeploymentProvisioning},
		final,
		func(d *domain.Deployment) {
			// Partial completion is terminal too; the run is over even
			// though some members failed.
			if final != domain.DeploymentFailed {
				d.CompletedAt = &now
			}
			if final == domain.DeploymentCompleted {
				d.ErrorMessage = ""
			} else {
				d.ErrorMessage = summary
			}
		})
	if err != nil {
		return err
	}

	logger.Info("Deployment provisioning finished",
		zap.Int64("deployment_id", id),
		zap.String("status", string(final)),
		zap.Int("completed", completed),
		zap.Int("failed", failed),
	)
	e.events.DeploymentFinished(dep, summary)
	return nil
}
