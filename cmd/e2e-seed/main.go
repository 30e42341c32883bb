// Package main seeds deterministic fixtures for live end-to-end tests.
//
// This command is test-environment only and is intentionally idempotent:
// fixtures are keyed by fixed Jira issue keys and names, so repeated runs
// leave the database unchanged.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"provinator.io/provinator/internal/config"
	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/infrastructure"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/repository"
)

const (
	envName        = "e2e-proxmox"
	templateKey    = "e2e-ubuntu"
	requestIssue   = "E2E-1"
	deployIssue    = "E2E-2"
	requesterName  = "E2E Robot"
	requesterEmail = "e2e@localhost"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "e2e-seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	repo := repository.New(db.Gorm)

	envID, err := seedEnvironment(ctx, repo)
	if err != nil {
		return fmt.Errorf("seed environment: %w", err)
	}
	if err := seedMapping(ctx, repo, envID); err != nil {
		return fmt.Errorf("seed mapping: %w", err)
	}
	if err := seedPendingRequest(ctx, repo, envID); err != nil {
		return fmt.Errorf("seed request: %w", err)
	}
	if err := seedPendingDeployment(ctx, repo, envID); err != nil {
		return fmt.Errorf("seed deployment: %w", err)
	}

	logger.Info("E2E fixtures seeded")
	return nil
}

func seedEnvironment(ctx context.Context, repo *repository.Repository) (int64, error) {
	envs, err := repo.ListEnvironments(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range envs {
		if e.Name == envName {
			return e.ID, nil
		}
	}

	env := &domain.Environment{
		Name:          envName,
		Type:          domain.EnvTypeProxmox,
		Enabled:       true,
		IsDefault:     true,
		PVEHost:       "pve-e2e.localdomain",
		PVETokenID:    "e2e@pve!seed",
		PVETokenValue: "e2e-token",
	}
	if err := repo.CreateEnvironment(ctx, env); err != nil {
		return 0, err
	}
	logger.Info("Seeded e2e environment", zap.Int64("id", env.ID))
	return env.ID, nil
}

func seedMapping(ctx context.Context, repo *repository.Repository, envID int64) error {
	if _, err := repo.ScopedMapping(ctx, templateKey, envID); err == nil {
		return nil
	} else if !isNotFound(err) {
		return err
	}
	return repo.CreateMapping(ctx, &domain.TemplateMapping{
		Key:           templateKey,
		EnvironmentID: &envID,
		ProxmoxVMID:   9000,
		SourceNode:    "pve-e2e",
		OSFamily:      "linux",
		CloudInit:     true,
		Enabled:       true,
	})
}

func seedPendingRequest(ctx context.Context, repo *repository.Repository, envID int64) error {
	if _, err := repo.RequestByIssueKey(ctx, requestIssue); err == nil {
		return nil
	} else if !isNotFound(err) {
		return err
	}
	return repo.CreateRequest(ctx, &domain.VMRequest{
		Reference:      uuid.New(),
		RequesterName:  requesterName,
		RequesterEmail: requesterEmail,
		VMName:         "e2e-pending",
		TemplateKey:    templateKey,
		SizeKey:        "small",
		CPUCores:       2,
		RAMMB:          4096,
		DiskGB:         40,
		JiraIssueKey:   requestIssue,
		Status:         domain.RequestPendingApproval,
		EnvironmentID:  &envID,
	})
}

func seedPendingDeployment(ctx context.Context, repo *repository.Repository, envID int64) error {
	if _, err := repo.DeploymentByIssueKey(ctx, deployIssue); err == nil {
		return nil
	} else if !isNotFound(err) {
		return err
	}

	dep := &domain.Deployment{
		Reference:      uuid.New(),
		Name:           "e2e-batch",
		RequesterName:  requesterName,
		RequesterEmail: requesterEmail,
		JiraIssueKey:   deployIssue,
		Status:         domain.DeploymentPendingApproval,
		EnvironmentID:  &envID,
	}
	if err := repo.CreateDeployment(ctx, dep); err != nil {
		return err
	}
	for i := 1; i <= 2; i++ {
		req := &domain.VMRequest{
			Reference:      uuid.New(),
			RequesterName:  requesterName,
			RequesterEmail: requesterEmail,
			VMName:         fmt.Sprintf("e2e-batch-%02d", i),
			TemplateKey:    templateKey,
			SizeKey:        "small",
			CPUCores:       2,
			RAMMB:          4096,
			DiskGB:         40,
			Status:         domain.RequestPendingApproval,
			EnvironmentID:  &envID,
			DeploymentID:   &dep.ID,
		}
		if err := repo.CreateRequest(ctx, req); err != nil {
			return err
		}
	}
	logger.Info("Seeded e2e deployment", zap.Int64("id", dep.ID))
	return nil
}

func isNotFound(err error) bool {
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr.HTTPStatus == 404
	}
	return false
}
