// Package repository is the gorm-backed implementation of the store
// interfaces. Status transitions run inside a transaction with a row
// lock so concurrent decisions serialize on the guard.
package repository

import (
	"context"
	"errors"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"provinator.io/provinator/internal/domain"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/store"
)

// Repository implements store.Store on a gorm handle.
type Repository struct {
	db *gorm.DB
}

var _ store.Store = (*Repository)(nil)

// New creates the repository.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// --- Requests ---

func (r *Repository) CreateRequest(ctx context.Context, req *domain.VMRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repository) GetRequest(ctx context.Context, id int64) (*domain.VMRequest, error) {
	var req domain.VMRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrRequestNotFoundf(id)
		}
		return nil, err
	}
	return &req, nil
}

func (r *Repository) ListRequests(ctx context.Context, f store.RequestFilter) ([]*domain.VMRequest, error) {
	q := r.db.WithContext(ctx).Order("id")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DeploymentID != nil {
		q = q.Where("deployment_id = ?", *f.DeploymentID)
	}
	var reqs []*domain.VMRequest
	if err := q.Find(&reqs).Error; err != nil {
		return nil, err
	}
	return reqs, nil
}

func (r *Repository) RequestByIssueKey(ctx context.Context, issueKey string) (*domain.VMRequest, error) {
	var req domain.VMRequest
	err := r.db.WithContext(ctx).Where("jira_issue_key = ?", issueKey).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(apperrors.CodeRequestNotFound,
				"no request for issue "+issueKey)
		}
		return nil, err
	}
	return &req, nil
}

func (r *Repository) SaveRequest(ctx context.Context, req *domain.VMRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

func (r *Repository) TransitionRequest(ctx context.Context, id int64, from []domain.RequestStatus,
	to domain.RequestStatus, apply func(*domain.VMRequest)) (*domain.VMRequest, error) {
	var out *domain.VMRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req domain.VMRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrRequestNotFoundf(id)
			}
			return err
		}
		if !slices.Contains(from, req.Status) {
			return apperrors.InvalidTransition(string(req.Status), string(to))
		}
		req.Status = to
		if apply != nil {
			apply(&req)
		}
		if err := tx.Save(&req).Error; err != nil {
			return err
		}
		out = &req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- Deployments ---

func (r *Repository) CreateDeployment(ctx context.Context, d *domain.Deployment) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *Repository) GetDeployment(ctx context.Context, id int64) (*domain.Deployment, error) {
	var dep domain.Deployment
	err := r.db.WithContext(ctx).
		Preload("Requests", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&dep, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrDeploymentNotFoundf(id)
		}
		return nil, err
	}
	return &dep, nil
}

func (r *Repository) ListDeployments(ctx context.Context) ([]*domain.Deployment, error) {
	var deps []*domain.Deployment
	err := r.db.WithContext(ctx).
		Preload("Requests", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("id").Find(&deps).Error
	if err != nil {
		return nil, err
	}
	return deps, nil
}

func (r *Repository) DeploymentByIssueKey(ctx context.Context, issueKey string) (*domain.Deployment, error) {
	var dep domain.Deployment
	err := r.db.WithContext(ctx).Where("jira_issue_key = ?", issueKey).First(&dep).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(apperrors.CodeDeploymentNotFound,
				"no deployment for issue "+issueKey)
		}
		return nil, err
	}
	return r.GetDeployment(ctx, dep.ID)
}

func (r *Repository) SaveDeployment(ctx context.Context, d *domain.Deployment) error {
	return r.db.WithContext(ctx).Omit("Requests").Save(d).Error
}

func (r *Repository) TransitionDeployment(ctx context.Context, id int64, from []domain.DeploymentStatus,
	to domain.DeploymentStatus, apply func(*domain.Deployment)) (*domain.Deployment, error) {
	var out *domain.Deployment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dep domain.Deployment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&dep, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrDeploymentNotFoundf(id)
			}
			return err
		}
		if !slices.Contains(from, dep.Status) {
			return apperrors.InvalidTransition(string(dep.Status), string(to))
		}
		dep.Status = to
		if apply != nil {
			apply(&dep)
		}
		if err := tx.Omit("Requests").Save(&dep).Error; err != nil {
			return err
		}
		out = &dep
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetDeployment(ctx, out.ID)
}

// --- Environments ---

func (r *Repository) CreateEnvironment(ctx context.Context, e *domain.Environment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if e.IsDefault {
			if err := clearDefault(tx); err != nil {
				return err
			}
		}
		return tx.Create(e).Error
	})
}

func (r *Repository) GetEnvironment(ctx context.Context, id int64) (*domain.Environment, error) {
	var env domain.Environment
	if err := r.db.WithContext(ctx).First(&env, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrEnvironmentNotFoundf(id)
		}
		return nil, err
	}
	return &env, nil
}

func (r *Repository) ListEnvironments(ctx context.Context) ([]*domain.Environment, error) {
	var envs []*domain.Environment
	if err := r.db.WithContext(ctx).Order("id").Find(&envs).Error; err != nil {
		return nil, err
	}
	return envs, nil
}

func (r *Repository) SaveEnvironment(ctx context.Context, e *domain.Environment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if e.IsDefault {
			if err := tx.Model(&domain.Environment{}).
				Where("is_default AND id <> ?", e.ID).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(e).Error
	})
}

func (r *Repository) DeleteEnvironment(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&domain.Environment{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrEnvironmentNotFoundf(id)
	}
	return nil
}

func (r *Repository) DefaultEnvironment(ctx context.Context) (*domain.Environment, error) {
	var env domain.Environment
	err := r.db.WithContext(ctx).Where("is_default").First(&env).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(apperrors.CodeEnvironmentNotFound,
				"no default environment configured")
		}
		return nil, err
	}
	return &env, nil
}

func (r *Repository) ClearDefaultEnvironment(ctx context.Context) error {
	return clearDefault(r.db.WithContext(ctx))
}

func clearDefault(tx *gorm.DB) error {
	return tx.Model(&domain.Environment{}).
		Where("is_default").
		Update("is_default", false).Error
}

// --- Template mappings ---

func (r *Repository) CreateMapping(ctx context.Context, m *domain.TemplateMapping) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repository) GetMapping(ctx context.Context, id int64) (*domain.TemplateMapping, error) {
	var m domain.TemplateMapping
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(apperrors.CodeUnknownTemplate, "template mapping not found")
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repository) ListMappings(ctx context.Context) ([]*domain.TemplateMapping, error) {
	var ms []*domain.TemplateMapping
	if err := r.db.WithContext(ctx).Order("key, environment_id NULLS FIRST").Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}

func (r *Repository) SaveMapping(ctx context.Context, m *domain.TemplateMapping) error {
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *Repository) DeleteMapping(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&domain.TemplateMapping{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound(apperrors.CodeUnknownTemplate, "template mapping not found")
	}
	return nil
}

func (r *Repository) ScopedMapping(ctx context.Context, key string, environmentID int64) (*domain.TemplateMapping, error) {
	var m domain.TemplateMapping
	err := r.db.WithContext(ctx).
		Where("key = ? AND environment_id = ? AND enabled", key, environmentID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(apperrors.CodeUnknownTemplate,
				"no environment mapping for "+key)
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repository) GlobalMapping(ctx context.Context, key string) (*domain.TemplateMapping, error) {
	var m domain.TemplateMapping
	err := r.db.WithContext(ctx).
		Where("key = ? AND environment_id IS NULL AND enabled", key).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound(apperrors.CodeUnknownTemplate,
				"no global mapping for "+key)
		}
		return nil, err
	}
	return &m, nil
}

// --- Settings ---

func (r *Repository) SettingValues(ctx context.Context) (map[string]string, error) {
	var rows []domain.Setting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return values, nil
}

func (r *Repository) UpsertSetting(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&domain.Setting{Key: key, Value: value}).Error
}

func (r *Repository) DeleteSetting(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("key = ?", key).Delete(&domain.Setting{}).Error
}
