package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"provinator.io/provinator/internal/domain"
	apperrors "provinator.io/provinator/internal/pkg/errors"
)

// Memory is an in-memory Store used by tests. It honors the same
// transition guard semantics as the gorm implementation.
type Memory struct {
	mu           sync.Mutex
	requests     map[int64]*domain.VMRequest
	deployments  map[int64]*domain.Deployment
	environments map[int64]*domain.Environment
	mappings     map[int64]*domain.TemplateMapping
	settings     map[string]string
	nextID       int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		requests:     make(map[int64]*domain.VMRequest),
		deployments:  make(map[int64]*domain.Deployment),
		environments: make(map[int64]*domain.Environment),
		mappings:     make(map[int64]*domain.TemplateMapping),
		settings:     make(map[string]string),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func copyRequest(r *domain.VMRequest) *domain.VMRequest {
	cp := *r
	return &cp
}

func copyDeployment(d *domain.Deployment) *domain.Deployment {
	cp := *d
	cp.Requests = nil
	return &cp
}

// CreateRequest implements RequestStore.
func (m *Memory) CreateRequest(ctx context.Context, r *domain.VMRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.id()
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.requests[r.ID] = copyRequest(r)
	return nil
}

// GetRequest implements RequestStore.
func (m *Memory) GetRequest(ctx context.Context, id int64) (*domain.VMRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, apperrors.ErrRequestNotFoundf(id)
	}
	return copyRequest(r), nil
}

// ListRequests implements RequestStore, ordered by ID.
func (m *Memory) ListRequests(ctx context.Context, f RequestFilter) ([]*domain.VMRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.VMRequest
	for _, r := range m.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.DeploymentID != nil && (r.DeploymentID == nil || *r.DeploymentID != *f.DeploymentID) {
			continue
		}
		out = append(out, copyRequest(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RequestByIssueKey implements RequestStore.
func (m *Memory) RequestByIssueKey(ctx context.Context, issueKey string) (*domain.VMRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.JiraIssueKey == issueKey {
			return copyRequest(r), nil
		}
	}
	return nil, apperrors.NotFound(apperrors.CodeRequestNotFound, "no request for issue "+issueKey)
}

// SaveRequest implements RequestStore.
func (m *Memory) SaveRequest(ctx context.Context, r *domain.VMRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; !ok {
		return apperrors.ErrRequestNotFoundf(r.ID)
	}
	r.UpdatedAt = time.Now()
	m.requests[r.ID] = copyRequest(r)
	return nil
}

// TransitionRequest implements RequestStore.
func (m *Memory) TransitionRequest(ctx context.Context, id int64, from []domain.RequestStatus,
	to domain.RequestStatus, apply func(*domain.VMRequest)) (*domain.VMRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, apperrors.ErrRequestNotFoundf(id)
	}
	if !slices.Contains(from, r.Status) {
		return nil, apperrors.InvalidTransition(string(r.Status), string(to))
	}
	r.Status = to
	if apply != nil {
		apply(r)
	}
	r.UpdatedAt = time.Now()
	return copyRequest(r), nil
}

// CreateDeployment implements DeploymentStore, creating members too.
func (m *Memory) CreateDeployment(ctx context.Context, d *domain.Deployment) error {
	m.mu.Lock()
	if d.ID == 0 {
		d.ID = m.id()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	m.deployments[d.ID] = copyDeployment(d)
	m.mu.Unlock()

	for i := range d.Requests {
		d.Requests[i].DeploymentID = &d.ID
		if err := m.CreateRequest(ctx, &d.Requests[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetDeployment implements DeploymentStore. Members come back in
// creation (ID) order.
func (m *Memory) GetDeployment(ctx context.Context, id int64) (*domain.Deployment, error) {
	m.mu.Lock()
	d, ok := m.deployments[id]
	if !ok {
		m.mu.Unlock()
		return nil, apperrors.ErrDeploymentNotFoundf(id)
	}
	out := copyDeployment(d)
	m.mu.Unlock()

	members, err := m.ListRequests(ctx, RequestFilter{DeploymentID: &id})
	if err != nil {
		return nil, err
	}
	for _, r := range members {
		out.Requests = append(out.Requests, *r)
	}
	return out, nil
}

// ListDeployments implements DeploymentStore.
func (m *Memory) ListDeployments(ctx context.Context) ([]*domain.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Deployment
	for _, d := range m.deployments {
		out = append(out, copyDeployment(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeploymentByIssueKey implements DeploymentStore.
func (m *Memory) DeploymentByIssueKey(ctx context.Context, issueKey string) (*domain.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deployments {
		if d.JiraIssueKey == issueKey {
			return copyDeployment(d), nil
		}
	}
	return nil, apperrors.NotFound(apperrors.CodeDeploymentNotFound, "no deployment for issue "+issueKey)
}

// SaveDeployment implements DeploymentStore.
func (m *Memory) SaveDeployment(ctx context.Context, d *domain.Deployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deployments[d.ID]; !ok {
		return apperrors.ErrDeploymentNotFoundf(d.ID)
	}
	d.UpdatedAt = time.Now()
	m.deployments[d.ID] = copyDeployment(d)
	return nil
}

// TransitionDeployment implements DeploymentStore.
func (m *Memory) TransitionDeployment(ctx context.Context, id int64, from []domain.DeploymentStatus,
	to domain.DeploymentStatus, apply func(*domain.Deployment)) (*domain.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deployments[id]
	if !ok {
		return nil, apperrors.ErrDeploymentNotFoundf(id)
	}
	if !slices.Contains(from, d.Status) {
		return nil, apperrors.InvalidTransition(string(d.Status), string(to))
	}
	d.Status = to
	if apply != nil {
		apply(d)
	}
	d.UpdatedAt = time.Now()
	return copyDeployment(d), nil
}

// CreateEnvironment implements EnvironmentStore.
func (m *Memory) CreateEnvironment(ctx context.Context, e *domain.Environment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		e.ID = m.id()
	}
	cp := *e
	m.environments[e.ID] = &cp
	return nil
}

// GetEnvironment implements EnvironmentStore.
func (m *Memory) GetEnvironment(ctx context.Context, id int64) (*domain.Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.environments[id]
	if !ok {
		return nil, apperrors.ErrEnvironmentNotFoundf(id)
	}
	cp := *e
	return &cp, nil
}

// ListEnvironments implements EnvironmentStore.
func (m *Memory) ListEnvironments(ctx context.Context) ([]*domain.Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Environment
	for _, e := range m.environments {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveEnvironment implements EnvironmentStore.
func (m *Memory) SaveEnvironment(ctx context.Context, e *domain.Environment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.environments[e.ID]; !ok {
		return apperrors.ErrEnvironmentNotFoundf(e.ID)
	}
	cp := *e
	m.environments[e.ID] = &cp
	return nil
}

// DeleteEnvironment implements EnvironmentStore.
func (m *Memory) DeleteEnvironment(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.environments[id]; !ok {
		return apperrors.ErrEnvironmentNotFoundf(id)
	}
	delete(m.environments, id)
	return nil
}

// DefaultEnvironment implements EnvironmentStore.
func (m *Memory) DefaultEnvironment(ctx context.Context) (*domain.Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.environments {
		if e.IsDefault && e.Enabled {
			cp := *e
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound(apperrors.CodeEnvironmentNotFound, "no default environment")
}

// ClearDefaultEnvironment implements EnvironmentStore.
func (m *Memory) ClearDefaultEnvironment(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.environments {
		e.IsDefault = false
	}
	return nil
}

// CreateMapping implements TemplateStore.
func (m *Memory) CreateMapping(ctx context.Context, tm *domain.TemplateMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tm.ID == 0 {
		tm.ID = m.id()
	}
	cp := *tm
	m.mappings[tm.ID] = &cp
	return nil
}

// GetMapping implements TemplateStore.
func (m *Memory) GetMapping(ctx context.Context, id int64) (*domain.TemplateMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.mappings[id]
	if !ok {
		return nil, apperrors.NotFound("MAPPING_NOT_FOUND", "template mapping not found")
	}
	cp := *tm
	return &cp, nil
}

// ListMappings implements TemplateStore.
func (m *Memory) ListMappings(ctx context.Context) ([]*domain.TemplateMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.TemplateMapping
	for _, tm := range m.mappings {
		cp := *tm
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveMapping implements TemplateStore.
func (m *Memory) SaveMapping(ctx context.Context, tm *domain.TemplateMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mappings[tm.ID]; !ok {
		return apperrors.NotFound("MAPPING_NOT_FOUND", "template mapping not found")
	}
	cp := *tm
	m.mappings[tm.ID] = &cp
	return nil
}

// DeleteMapping implements TemplateStore.
func (m *Memory) DeleteMapping(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mappings[id]; !ok {
		return apperrors.NotFound("MAPPING_NOT_FOUND", "template mapping not found")
	}
	delete(m.mappings, id)
	return nil
}

// ScopedMapping implements TemplateStore (enabled rows only).
func (m *Memory) ScopedMapping(ctx context.Context, key string, environmentID int64) (*domain.TemplateMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tm := range m.mappings {
		if tm.Key == key && tm.Enabled && tm.EnvironmentID != nil && *tm.EnvironmentID == environmentID {
			cp := *tm
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("MAPPING_NOT_FOUND", "no scoped mapping for "+key)
}

// GlobalMapping implements TemplateStore (enabled rows only).
func (m *Memory) GlobalMapping(ctx context.Context, key string) (*domain.TemplateMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tm := range m.mappings {
		if tm.Key == key && tm.Enabled && tm.EnvironmentID == nil {
			cp := *tm
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("MAPPING_NOT_FOUND", "no global mapping for "+key)
}

// SettingValues implements SettingStore.
func (m *Memory) SettingValues(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

// UpsertSetting implements SettingStore.
func (m *Memory) UpsertSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// DeleteSetting implements SettingStore.
func (m *Memory) DeleteSetting(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, key)
	return nil
}
