package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"provinator.io/provinator/internal/domain"
)

// CatalogTemplate is one entry of the static template catalog file. The
// catalog is the last resolution fallback behind the mapping table.
type CatalogTemplate struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	ProxmoxVMID int    `yaml:"proxmox_vmid"`
	SourceNode  string `yaml:"source_node"`
	TemplateRef string `yaml:"template_ref"`
	OSFamily    string `yaml:"os_family"`
	CloudInit   bool   `yaml:"cloud_init"`
}

type sizesFile struct {
	Sizes []domain.SizeClass `yaml:"sizes"`
}

type templatesFile struct {
	Templates []CatalogTemplate `yaml:"templates"`
}

// LoadSizeClasses reads the t-shirt size catalog, ordered by sort_order.
func LoadSizeClasses(path string) ([]domain.SizeClass, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sizes file: %w", err)
	}

	var f sizesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sizes file %s: %w", path, err)
	}

	for i, s := range f.Sizes {
		if s.Key == "" {
			return nil, fmt.Errorf("sizes file %s: entry %d has no key", path, i)
		}
		if s.CPUCores <= 0 || s.RAMMB <= 0 || s.DiskGB <= 0 {
			return nil, fmt.Errorf("sizes file %s: size %q has non-positive resources", path, s.Key)
		}
	}

	sort.SliceStable(f.Sizes, func(i, j int) bool {
		return f.Sizes[i].SortOrder < f.Sizes[j].SortOrder
	})
	return f.Sizes, nil
}

// LoadTemplateCatalog reads the static template catalog keyed by template key.
func LoadTemplateCatalog(path string) (map[string]CatalogTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}

	var f templatesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates file %s: %w", path, err)
	}

	catalog := make(map[string]CatalogTemplate, len(f.Templates))
	for i, t := range f.Templates {
		if t.Key == "" {
			return nil, fmt.Errorf("templates file %s: entry %d has no key", path, i)
		}
		if _, dup := catalog[t.Key]; dup {
			return nil, fmt.Errorf("templates file %s: duplicate key %q", path, t.Key)
		}
		catalog[t.Key] = t
	}
	return catalog, nil
}
