// Package store defines the persistence interfaces consumed by the
// provisioning engine and the API layer. The gorm-backed implementation
// lives in internal/repository; Memory backs tests.
package store

import (
	"context"

	"provinator.io/provinator/internal/domain"
)

// RequestFilter narrows request listings.
type RequestFilter struct {
	Status       domain.RequestStatus
	DeploymentID *int64
}

// RequestStore persists VM requests. Transition is the only write allowed
// to change status: it applies the mutation only while the current status
// is in from, otherwise it fails with InvalidTransition.
type RequestStore interface {
	CreateRequest(ctx context.Context, r *domain.VMRequest) error
	GetRequest(ctx context.Context, id int64) (*domain.VMRequest, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]*domain.VMRequest, error)
	RequestByIssueKey(ctx context.Context, issueKey string) (*domain.VMRequest, error)
	SaveRequest(ctx context.Context, r *domain.VMRequest) error
	TransitionRequest(ctx context.Context, id int64, from []domain.RequestStatus,
		to domain.RequestStatus, apply func(*domain.VMRequest)) (*domain.VMRequest, error)
}

// DeploymentStore persists deployments. GetDeployment loads members in
// creation order.
type DeploymentStore interface {
	CreateDeployment(ctx context.Context, d *domain.Deployment) error
	GetDeployment(ctx context.Context, id int64) (*domain.Deployment, error)
	ListDeployments(ctx context.Context) ([]*domain.Deployment, error)
	DeploymentByIssueKey(ctx context.Context, issueKey string) (*domain.Deployment, error)
	SaveDeployment(ctx context.Context, d *domain.Deployment) error
	TransitionDeployment(ctx context.Context, id int64, from []domain.DeploymentStatus,
		to domain.DeploymentStatus, apply func(*domain.Deployment)) (*domain.Deployment, error)
}

// EnvironmentStore persists hypervisor environments.
type EnvironmentStore interface {
	CreateEnvironment(ctx context.Context, e *domain.Environment) error
	GetEnvironment(ctx context.Context, id int64) (*domain.Environment, error)
	ListEnvironments(ctx context.Context) ([]*domain.Environment, error)
	SaveEnvironment(ctx context.Context, e *domain.Environment) error
	DeleteEnvironment(ctx context.Context, id int64) error
	DefaultEnvironment(ctx context.Context) (*domain.Environment, error)
	ClearDefaultEnvironment(ctx context.Context) error
}

// TemplateStore persists template mappings. The lookup methods only
// return enabled mappings so resolution can fall through disabled rows;
// ListMappings returns everything for the admin surface.
type TemplateStore interface {
	CreateMapping(ctx context.Context, m *domain.TemplateMapping) error
	GetMapping(ctx context.Context, id int64) (*domain.TemplateMapping, error)
	ListMappings(ctx context.Context) ([]*domain.TemplateMapping, error)
	SaveMapping(ctx context.Context, m *domain.TemplateMapping) error
	DeleteMapping(ctx context.Context, id int64) error
	ScopedMapping(ctx context.Context, key string, environmentID int64) (*domain.TemplateMapping, error)
	GlobalMapping(ctx context.Context, key string) (*domain.TemplateMapping, error)
}

// SettingStore persists setting overrides.
type SettingStore interface {
	SettingValues(ctx context.Context) (map[string]string, error)
	UpsertSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Store aggregates all persistence concerns.
type Store interface {
	RequestStore
	DeploymentStore
	EnvironmentStore
	TemplateStore
	SettingStore
}
