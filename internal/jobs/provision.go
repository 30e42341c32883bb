// Package jobs defines the River job types and workers that run
// provisioning in the background after an approval or retry.
//
// Jobs carry only the record ID; the worker reloads state from the
// database so a stale payload can never override the current status.
// MaxAttempts is 1: hypervisor work is not safely repeatable, recovery
// is the explicit retry operation which enqueues a fresh job.
package jobs

import (
	"context"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/provisioner"
)

// QueueProvisioning is the queue for hypervisor-bound jobs.
const QueueProvisioning = "provisioning"

// RequestProvisionArgs provisions one standalone request.
type RequestProvisionArgs struct {
	RequestID int64 `json:"request_id"`
}

// Kind returns the job kind identifier.
func (RequestProvisionArgs) Kind() string { return "request_provision" }

// InsertOpts deduplicates by args so an approval and a racing retry
// cannot double-provision the same request.
func (RequestProvisionArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueProvisioning,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// DeploymentProvisionArgs provisions a deployment batch.
type DeploymentProvisionArgs struct {
	DeploymentID int64 `json:"deployment_id"`
}

// Kind returns the job kind identifier.
func (DeploymentProvisionArgs) Kind() string { return "deployment_provision" }

// InsertOpts mirrors RequestProvisionArgs.
func (DeploymentProvisionArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueProvisioning,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByArgs:  true,
			ByQueue: true,
		},
	}
}

// RequestProvisionWorker delegates to the engine. Pipeline errors are
// swallowed after the engine records them: the job must not be retried
// by the queue and the failure already lives on the request row.
type RequestProvisionWorker struct {
	river.WorkerDefaults[RequestProvisionArgs]
	engine *provisioner.Engine
}

// NewRequestProvisionWorker creates the worker.
func NewRequestProvisionWorker(engine *provisioner.Engine) *RequestProvisionWorker {
	return &RequestProvisionWorker{engine: engine}
}

// Work runs the provisioning pipeline for the request.
func (w *RequestProvisionWorker) Work(ctx context.Context, job *river.Job[RequestProvisionArgs]) error {
	id := job.Args.RequestID
	logger.Info("Provision job started", zap.Int64("request_id", id))

	if err := w.engine.ProvisionRequest(ctx, id); err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.CodeInvalidTransition {
			// The request moved on (raced retry, manual decision); a
			// duplicate run is not an error.
			logger.Warn("Provision job skipped: request no longer approved",
				zap.Int64("request_id", id),
			)
			return nil
		}
		logger.Error("Provision job failed",
			zap.Int64("request_id", id),
			zap.Error(err),
		)
	}
	return nil
}

// DeploymentProvisionWorker delegates batch runs to the engine.
type DeploymentProvisionWorker struct {
	river.WorkerDefaults[DeploymentProvisionArgs]
	engine *provisioner.Engine
}

// NewDeploymentProvisionWorker creates the worker.
func NewDeploymentProvisionWorker(engine *provisioner.Engine) *DeploymentProvisionWorker {
	return &DeploymentProvisionWorker{engine: engine}
}

// Work runs the provisioning pipeline over the deployment members.
func (w *DeploymentProvisionWorker) Work(ctx context.Context, job *river.Job[DeploymentProvisionArgs]) error {
	id := job.Args.DeploymentID
	logger.Info("Deployment provision job started", zap.Int64("deployment_id", id))

	if err := w.engine.ProvisionDeployment(ctx, id); err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.Code == apperrors.CodeInvalidTransition {
			logger.Warn("Deployment provision job skipped: deployment no longer approved",
				zap.Int64("deployment_id", id),
			)
			return nil
		}
		logger.Error("Deployment provision job failed",
			zap.Int64("deployment_id", id),
			zap.Error(err),
		)
	}
	return nil
}
