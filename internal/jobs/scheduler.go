package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"provinator.io/provinator/internal/pkg/logger"
)

// RiverScheduler enqueues provisioning jobs on the shared River client.
type RiverScheduler struct {
	client *river.Client[pgx.Tx]
}

// NewRiverScheduler creates the scheduler.
func NewRiverScheduler(client *river.Client[pgx.Tx]) *RiverScheduler {
	return &RiverScheduler{client: client}
}

// EnqueueRequest queues a provisioning run for one request.
func (s *RiverScheduler) EnqueueRequest(ctx context.Context, requestID int64) error {
	res, err := s.client.Insert(ctx, RequestProvisionArgs{RequestID: requestID}, nil)
	if err != nil {
		return fmt.Errorf("enqueue request provision job: %w", err)
	}
	logger.Debug("Provision job enqueued",
		zap.Int64("request_id", requestID),
		zap.Int64("job_id", res.Job.ID),
		zap.Bool("unique_skipped", res.UniqueSkippedAsDuplicate),
	)
	return nil
}

// EnqueueDeployment queues a provisioning run for a deployment.
func (s *RiverScheduler) EnqueueDeployment(ctx context.Context, deploymentID int64) error {
	res, err := s.client.Insert(ctx, DeploymentProvisionArgs{DeploymentID: deploymentID}, nil)
	if err != nil {
		return fmt.Errorf("enqueue deployment provision job: %w", err)
	}
	logger.Debug("Deployment provision job enqueued",
		zap.Int64("deployment_id", deploymentID),
		zap.Int64("job_id", res.Job.ID),
		zap.Bool("unique_skipped", res.UniqueSkippedAsDuplicate),
	)
	return nil
}

// RegisterWorkers wires the provisioning workers into a River workers
// registry.
func RegisterWorkers(workers *river.Workers, requestWorker *RequestProvisionWorker, deploymentWorker *DeploymentProvisionWorker) error {
	if err := river.AddWorkerSafely(workers, requestWorker); err != nil {
		return fmt.Errorf("register request provision worker: %w", err)
	}
	if err := river.AddWorkerSafely(workers, deploymentWorker); err != nil {
		return fmt.Errorf("register deployment provision worker: %w", err)
	}
	return nil
}
