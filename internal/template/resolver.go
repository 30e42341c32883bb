// Package template resolves logical template keys to concrete hypervisor
// artifacts. Resolution order: environment-scoped mapping, global
// mapping, static catalog. Disabled mappings are invisible to lookups so
// resolution falls through them.
package template

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"provinator.io/provinator/internal/config"
	"provinator.io/provinator/internal/domain"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/store"
)

// Resolved is the hypervisor artifact behind a template key. For Proxmox
// templates ProxmoxVMID/SourceNode are set; for vSphere TemplateRef.
type Resolved struct {
	Key         string
	ProxmoxVMID int
	SourceNode  string
	TemplateRef string
	OSFamily    string
	CloudInit   bool

	// Source records which tier resolved the key: environment, global
	// or catalog.
	Source string
}

// Resolver performs the tiered lookup.
type Resolver struct {
	store   store.TemplateStore
	catalog map[string]config.CatalogTemplate
}

// NewResolver creates a Resolver. catalog may be nil when no static
// catalog file is configured.
func NewResolver(s store.TemplateStore, catalog map[string]config.CatalogTemplate) *Resolver {
	return &Resolver{store: s, catalog: catalog}
}

// Resolve maps key to an artifact, or fails with UnknownTemplate when no
// tier matches. Store errors other than not-found propagate unchanged.
func (r *Resolver) Resolve(ctx context.Context, key string, environmentID *int64) (*Resolved, error) {
	if environmentID != nil {
		m, err := r.store.ScopedMapping(ctx, key, *environmentID)
		if err == nil {
			return fromMapping(m, "environment"), nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	m, err := r.store.GlobalMapping(ctx, key)
	if err == nil {
		return fromMapping(m, "global"), nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	if entry, ok := r.catalog[key]; ok {
		return &Resolved{
			Key:         key,
			ProxmoxVMID: entry.ProxmoxVMID,
			SourceNode:  entry.SourceNode,
			TemplateRef: entry.TemplateRef,
			OSFamily:    entry.OSFamily,
			CloudInit:   entry.CloudInit,
			Source:      "catalog",
		}, nil
	}

	logger.Warn("Template key did not resolve",
		zap.String("key", key),
	)
	return nil, apperrors.UnknownTemplate(key)
}

func fromMapping(m *domain.TemplateMapping, source string) *Resolved {
	return &Resolved{
		Key:         m.Key,
		ProxmoxVMID: m.ProxmoxVMID,
		SourceNode:  m.SourceNode,
		TemplateRef: m.TemplateRef,
		OSFamily:    m.OSFamily,
		CloudInit:   m.CloudInit,
		Source:      source,
	}
}

func isNotFound(err error) bool {
	appErr, ok := apperrors.IsAppError(err)
	if ok {
		return appErr.HTTPStatus == 404
	}
	return errors.Is(err, apperrors.ErrNotFound)
}
