package template

import (
	"errors"
	"testing"

	"provinator.io/provinator/internal/config"
	"provinator.io/provinator/internal/domain"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/store"
)

func init() {
	_ = logger.Init("error", "json")
}

func int64p(v int64) *int64 { return &v }

func TestResolve_EnvironmentScopedWins(t *testing.T) {
	s := store.NewMemory()
	ctx := t.Context()

	envID := int64(7)
	if err := s.CreateMapping(ctx, &domain.TemplateMapping{
		Key: "ubuntu-22", EnvironmentID: &envID, ProxmoxVMID: 9100, SourceNode: "pve2", Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateMapping(ctx, &domain.TemplateMapping{
		Key: "ubuntu-22", ProxmoxVMID: 9000, SourceNode: "pve1", Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(s, map[string]config.CatalogTemplate{
		"ubuntu-22": {Key: "ubuntu-22", ProxmoxVMID: 8000, SourceNode: "pve0"},
	})

	got, err := r.Resolve(ctx, "ubuntu-22", int64p(7))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ProxmoxVMID != 9100 || got.Source != "environment" {
		t.Errorf("Resolve() = %+v, want environment-scoped vmid 9100", got)
	}
}

func TestResolve_GlobalFallback(t *testing.T) {
	s := store.NewMemory()
	ctx := t.Context()

	if err := s.CreateMapping(ctx, &domain.TemplateMapping{
		Key: "ubuntu-22", ProxmoxVMID: 9000, SourceNode: "pve1", Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(s, nil)

	// No scoped mapping for environment 3: the global one applies.
	got, err := r.Resolve(ctx, "ubuntu-22", int64p(3))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ProxmoxVMID != 9000 || got.Source != "global" {
		t.Errorf("Resolve() = %+v, want global vmid 9000", got)
	}
}

func TestResolve_CatalogFallback(t *testing.T) {
	r := NewResolver(store.NewMemory(), map[string]config.CatalogTemplate{
		"win2022": {Key: "win2022", TemplateRef: "templates/win2022-gold", OSFamily: "windows"},
	})

	got, err := r.Resolve(t.Context(), "win2022", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.TemplateRef != "templates/win2022-gold" || got.Source != "catalog" {
		t.Errorf("Resolve() = %+v, want catalog template_ref", got)
	}
}

func TestResolve_DisabledMappingFallsThrough(t *testing.T) {
	s := store.NewMemory()
	ctx := t.Context()

	envID := int64(7)
	if err := s.CreateMapping(ctx, &domain.TemplateMapping{
		Key: "ubuntu-22", EnvironmentID: &envID, ProxmoxVMID: 9100, SourceNode: "pve2", Enabled: false,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateMapping(ctx, &domain.TemplateMapping{
		Key: "ubuntu-22", ProxmoxVMID: 9000, SourceNode: "pve1", Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}

	got, err := NewResolver(s, nil).Resolve(ctx, "ubuntu-22", &envID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Source != "global" {
		t.Errorf("Source = %s, want global (disabled scoped mapping skipped)", got.Source)
	}
}

func TestResolve_UnknownTemplate(t *testing.T) {
	r := NewResolver(store.NewMemory(), nil)

	_, err := r.Resolve(t.Context(), "no-such-key", nil)
	if !errors.Is(err, apperrors.ErrUnknownTemplate) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownTemplate", err)
	}
}
