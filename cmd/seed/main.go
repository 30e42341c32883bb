// Package main seeds a fresh Provinator database: schema migrations, the
// default environment from the config fallback connection, and template
// mappings lifted from the static catalog. Safe to run repeatedly.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"provinator.io/provinator/internal/config"
	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/infrastructure"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/repository"
	"provinator.io/provinator/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
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

	logger.Info("Starting data seeding...")

	if err := seedDefaultEnvironment(ctx, repo, cfg); err != nil {
		return fmt.Errorf("seed environment: %w", err)
	}
	if err := seedTemplateMappings(ctx, repo, cfg); err != nil {
		return fmt.Errorf("seed template mappings: %w", err)
	}

	logger.Info("Data seeding completed successfully")
	return nil
}

// seedDefaultEnvironment creates a default Proxmox environment from the
// config fallback connection. Skipped when a default already exists or
// no fallback host is configured.
func seedDefaultEnvironment(ctx context.Context, repo *repository.Repository, cfg *config.Config) error {
	if _, err := repo.DefaultEnvironment(ctx); err == nil {
		logger.Info("Default environment already exists, skipping")
		return nil
	} else if !isNotFound(err) {
		return err
	}

	if cfg.Proxmox.Host == "" {
		logger.Info("No Proxmox fallback connection configured, skipping environment seed")
		return nil
	}

	env := &domain.Environment{
		Name:          "default-proxmox",
		Type:          domain.EnvTypeProxmox,
		Enabled:       true,
		IsDefault:     true,
		PVEHost:       cfg.Proxmox.Host,
		PVETokenID:    cfg.Proxmox.TokenID,
		PVETokenValue: cfg.Proxmox.TokenValue,
		PVEVerifySSL:  cfg.Proxmox.VerifySSL,
	}
	if err := env.Validate(); err != nil {
		return err
	}
	if err := repo.CreateEnvironment(ctx, env); err != nil {
		return err
	}
	logger.Info("Seeded default environment",
		zap.String("name", env.Name),
		zap.String("host", env.PVEHost),
	)
	return nil
}

// seedTemplateMappings imports catalog entries as global mappings so the
// admin surface can manage them. Existing keys are left untouched.
func seedTemplateMappings(ctx context.Context, repo *repository.Repository, cfg *config.Config) error {
	catalog, err := config.LoadTemplateCatalog(cfg.App.TemplatesFile)
	if err != nil {
		return err
	}

	var s store.TemplateStore = repo
	for key, tpl := range catalog {
		if _, err := s.GlobalMapping(ctx, key); err == nil {
			logger.Info("Template mapping already exists, skipping", zap.String("key", key))
			continue
		} else if !isNotFound(err) {
			return err
		}

		m := &domain.TemplateMapping{
			Key:         tpl.Key,
			ProxmoxVMID: tpl.ProxmoxVMID,
			SourceNode:  tpl.SourceNode,
			TemplateRef: tpl.TemplateRef,
			OSFamily:    tpl.OSFamily,
			CloudInit:   tpl.CloudInit,
			Enabled:     true,
		}
		if err := s.CreateMapping(ctx, m); err != nil {
			return fmt.Errorf("create mapping %s: %w", key, err)
		}
		logger.Info("Seeded template mapping", zap.String("key", key))
	}
	return nil
}

func isNotFound(err error) bool {
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr.HTTPStatus == 404
	}
	return false
}
