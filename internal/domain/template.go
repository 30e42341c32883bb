package domain

import "time"

// TemplateMapping binds a logical template key to a concrete hypervisor
// artifact. EnvironmentID nil means the mapping is global; an
// environment-scoped mapping shadows the global one.
type TemplateMapping struct {
	ID            int64  `gorm:"primaryKey" json:"id"`
	Key           string `gorm:"size:255;index:idx_template_key_env,unique" json:"key"`
	EnvironmentID *int64 `gorm:"index:idx_template_key_env,unique" json:"environment_id,omitempty"`

	// Proxmox artifact: template VMID plus the node holding it.
	ProxmoxVMID int    `json:"proxmox_vmid,omitempty"`
	SourceNode  string `gorm:"size:255" json:"source_node,omitempty"`

	// vSphere artifact: template inventory path or name.
	TemplateRef string `gorm:"size:512" json:"template_ref,omitempty"`

	OSFamily  string `gorm:"size:32" json:"os_family,omitempty"`
	CloudInit bool   `json:"cloud_init"`
	Enabled   bool   `gorm:"default:true" json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (TemplateMapping) TableName() string { return "template_mappings" }

// SizeClass is a t-shirt size resolved into concrete resources at
// submission. Loaded from the size catalog, not persisted.
type SizeClass struct {
	Key       string `yaml:"key" json:"key"`
	Name      string `yaml:"name" json:"name"`
	CPUCores  int    `yaml:"cpu_cores" json:"cpu_cores"`
	RAMMB     int    `yaml:"ram_mb" json:"ram_mb"`
	DiskGB    int    `yaml:"disk_gb" json:"disk_gb"`
	SortOrder int    `yaml:"sort_order" json:"sort_order"`
}
