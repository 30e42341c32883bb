// Package provisioner implements the request and deployment lifecycle:
// submission, approval decisions, retries and the provisioning pipeline
// that turns an approved request into a running VM.
package provisioner

import (
	"context"
	"fmt"

	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/hypervisor"
	"provinator.io/provinator/internal/ipam"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/settings"
	"provinator.io/provinator/internal/store"
	"provinator.io/provinator/internal/template"
	"provinator.io/provinator/internal/ticket"
)

// Events receives lifecycle notifications. All methods are fire-and-
// forget; implementations must not block.
type Events interface {
	RequestReceived(req *domain.VMRequest)
	RequestApproved(req *domain.VMRequest)
	RequestRejected(req *domain.VMRequest)
	RequestCompleted(req *domain.VMRequest)
	RequestFailed(req *domain.VMRequest)
	DeploymentApproved(dep *domain.Deployment)
	DeploymentRejected(dep *domain.Deployment)
	DeploymentFinished(dep *domain.Deployment, summary string)
}

// NopEvents discards all lifecycle notifications.
type NopEvents struct{}

func (NopEvents) RequestReceived(*domain.VMRequest)             {}
func (NopEvents) RequestApproved(*domain.VMRequest)             {}
func (NopEvents) RequestRejected(*domain.VMRequest)             {}
func (NopEvents) RequestCompleted(*domain.VMRequest)            {}
func (NopEvents) RequestFailed(*domain.VMRequest)               {}
func (NopEvents) DeploymentApproved(*domain.Deployment)         {}
func (NopEvents) DeploymentRejected(*domain.Deployment)         {}
func (NopEvents) DeploymentFinished(*domain.Deployment, string) {}

// Scheduler enqueues background provisioning runs after an approval or
// retry. The River-backed implementation lives in internal/jobs.
type Scheduler interface {
	EnqueueRequest(ctx context.Context, requestID int64) error
	EnqueueDeployment(ctx context.Context, deploymentID int64) error
}

// TicketClient is the Jira surface used at submission time.
type TicketClient interface {
	Enabled(ctx context.Context) bool
	CreateIssue(ctx context.Context, summary, description string) (*ticket.Issue, error)
}

// IPAMClient is the address allocation surface used at submission time.
type IPAMClient interface {
	Enabled(ctx context.Context) bool
	SubnetID(ctx context.Context) (int, error)
	AllocateFirstFree(ctx context.Context, subnetID int) (*ipam.Address, error)
	UpdateAddress(ctx context.Context, id int64, hostname, description string) error
}

// DriverFactory opens a hypervisor driver for an environment. env is nil
// when no environment is configured; the factory then falls back to the
// settings-level Proxmox connection.
type DriverFactory func(ctx context.Context, env *domain.Environment) (hypervisor.Driver, error)

// Engine orchestrates the full lifecycle. All status changes go through
// guarded store transitions so concurrent decisions cannot race.
type Engine struct {
	store     store.Store
	resolver  *template.Resolver
	settings  *settings.Service
	driverFor DriverFactory
	scheduler Scheduler
	events    Events
	tickets   TicketClient
	ipam      IPAMClient
	sizes     map[string]domain.SizeClass
}

// Options carries the optional engine collaborators.
type Options struct {
	Scheduler Scheduler
	Events    Events
	Tickets   TicketClient
	IPAM      IPAMClient
}

// NewEngine builds an Engine. sizes is the loaded size catalog; missing
// optional collaborators degrade to no-ops.
func NewEngine(
	s store.Store,
	resolver *template.Resolver,
	settingsSvc *settings.Service,
	driverFor DriverFactory,
	sizes []domain.SizeClass,
	opts Options,
) *Engine {
	sizeIdx := make(map[string]domain.SizeClass, len(sizes))
	for _, sc := range sizes {
		sizeIdx[sc.Key] = sc
	}
	if opts.Events == nil {
		opts.Events = NopEvents{}
	}
	return &Engine{
		store:     s,
		resolver:  resolver,
		settings:  settingsSvc,
		driverFor: driverFor,
		scheduler: opts.Scheduler,
		events:    opts.Events,
		tickets:   opts.Tickets,
		ipam:      opts.IPAM,
		sizes:     sizeIdx,
	}
}

// Size resolves a size class key from the loaded catalog.
func (e *Engine) Size(key string) (domain.SizeClass, error) {
	sc, ok := e.sizes[key]
	if !ok {
		return domain.SizeClass{}, apperrors.New(apperrors.CodeSizeNotFound,
			fmt.Sprintf("unknown size class: %s", key), 422)
	}
	return sc, nil
}

// environmentFor resolves the environment a request runs against: the
// explicitly bound one, else the default, else nil (settings fallback).
func (e *Engine) environmentFor(ctx context.Context, environmentID *int64) (*domain.Environment, error) {
	if environmentID != nil {
		return e.store.GetEnvironment(ctx, *environmentID)
	}
	env, err := e.store.DefaultEnvironment(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return env, nil
}

// TestEnvironment probes connectivity for an environment and returns the
// reported product version.
func (e *Engine) TestEnvironment(ctx context.Context, env *domain.Environment) (string, error) {
	driver, err := e.driverFor(ctx, env)
	if err != nil {
		return "", err
	}
	defer driver.Close(ctx)
	return driver.Version(ctx)
}

// DiscoverTemplates lists template artifacts on an environment for the
// admin mapping surface.
func (e *Engine) DiscoverTemplates(ctx context.Context, environmentID *int64) ([]hypervisor.TemplateInfo, error) {
	env, err := e.environmentFor(ctx, environmentID)
	if err != nil {
		return nil, err
	}
	driver, err := e.driverFor(ctx, env)
	if err != nil {
		return nil, err
	}
	defer driver.Close(ctx)
	return driver.ListTemplates(ctx)
}

func isNotFound(err error) bool {
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr.HTTPStatus == 404
	}
	return false
}
