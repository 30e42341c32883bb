// Package app is the composition root: it wires configuration, storage,
// integrations and the HTTP surface into a runnable Application.
package app

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"provinator.io/provinator/internal/api/handlers"
	"provinator.io/provinator/internal/api/middleware"
	"provinator.io/provinator/internal/config"
	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/hypervisor"
	"provinator.io/provinator/internal/infrastructure"
	"provinator.io/provinator/internal/ipam"
	"provinator.io/provinator/internal/jobs"
	"provinator.io/provinator/internal/mailer"
	"provinator.io/provinator/internal/notification"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/worker"
	"provinator.io/provinator/internal/provisioner"
	"provinator.io/provinator/internal/repository"
	"provinator.io/provinator/internal/settings"
	"provinator.io/provinator/internal/template"
	"provinator.io/provinator/internal/ticket"
)

// Application holds the composed dependencies.
type Application struct {
	Config *config.Config
	Router *gin.Engine
	DB     *infrastructure.DatabaseClients
	Pools  *worker.Pools
}

// Bootstrap initializes all dependencies using manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	repo := repository.New(db.Gorm)
	settingsSvc := settings.NewService(repo, cfg)

	sizes, err := config.LoadSizeClasses(cfg.App.SizesFile)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load size catalog: %w", err)
	}
	catalog, err := config.LoadTemplateCatalog(cfg.App.TemplatesFile)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load template catalog: %w", err)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:    cfg.Worker.GeneralPoolSize,
		HypervisorPoolSize: cfg.Worker.HypervisorPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	tickets := ticket.NewService(settingsSvc)
	ipamSvc := ipam.NewService(settingsSvc)
	mail := mailer.NewService(settingsSvc)
	notifier := notification.NewNotifier(tickets, ipamSvc, mail, settingsSvc, pools)

	// The scheduler needs the River client and the River workers need the
	// engine; the deferred indirection breaks the cycle.
	sched := &deferredScheduler{}
	engine := provisioner.NewEngine(
		repo,
		template.NewResolver(repo, catalog),
		settingsSvc,
		driverFactory(settingsSvc),
		sizes,
		provisioner.Options{
			Scheduler: sched,
			Events:    notifier,
			Tickets:   tickets,
			IPAM:      ipamSvc,
		},
	)

	workers := river.NewWorkers()
	if err := jobs.RegisterWorkers(workers,
		jobs.NewRequestProvisionWorker(engine),
		jobs.NewDeploymentProvisionWorker(engine),
	); err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("register workers: %w", err)
	}
	if err := db.InitRiverClient(workers, cfg.River); err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("init river client: %w", err)
	}
	sched.inner = jobs.NewRiverScheduler(db.RiverClient)

	server := handlers.NewServer(handlers.Deps{
		Engine:   engine,
		Store:    repo,
		Settings: settingsSvc,
		Sizes:    sizes,
	})
	auth := middleware.NewAuthenticator(cfg.Auth)

	return &Application{
		Config: cfg,
		Router: newRouter(cfg, server, auth),
		DB:     db,
		Pools:  pools,
	}, nil
}

// driverFactory opens the hypervisor driver for an environment. A nil
// environment means no environment rows exist; the factory then falls
// back to the settings-level Proxmox connection.
func driverFactory(settingsSvc *settings.Service) provisioner.DriverFactory {
	return func(ctx context.Context, env *domain.Environment) (hypervisor.Driver, error) {
		if env != nil {
			return hypervisor.ForEnvironment(env)
		}
		eff, err := settingsSvc.Effective(ctx)
		if err != nil {
			return nil, err
		}
		host := eff["PROXMOX_HOST"]
		if host == "" {
			return nil, apperrors.New(apperrors.CodeEnvironmentNotFound,
				"no environment configured and PROXMOX_HOST is not set", 422)
		}
		verify, _ := strconv.ParseBool(eff["PROXMOX_VERIFY_SSL"])
		return hypervisor.NewProxmox(hypervisor.ProxmoxOptions{
			Host:       host,
			TokenID:    eff["PROXMOX_TOKEN_ID"],
			TokenValue: eff["PROXMOX_TOKEN_VALUE"],
			VerifySSL:  verify,
		}), nil
	}
}

// deferredScheduler delegates once the River client exists.
type deferredScheduler struct {
	inner provisioner.Scheduler
}

func (s *deferredScheduler) EnqueueRequest(ctx context.Context, requestID int64) error {
	if s.inner == nil {
		return fmt.Errorf("scheduler not initialized")
	}
	return s.inner.EnqueueRequest(ctx, requestID)
}

func (s *deferredScheduler) EnqueueDeployment(ctx context.Context, deploymentID int64) error {
	if s.inner == nil {
		return fmt.Errorf("scheduler not initialized")
	}
	return s.inner.EnqueueDeployment(ctx, deploymentID)
}
