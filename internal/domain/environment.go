package domain

import (
	"time"

	"provinator.io/provinator/internal/pkg/errors"
)

// Environment type tags. The driver factory is the only place allowed to
// branch on these.
const (
	EnvTypeProxmox = "proxmox"
	EnvTypeESXi    = "esxi"
	EnvTypeVCenter = "vcenter"
)

// Environment is a connection target: one Proxmox cluster, one standalone
// ESXi host or one vCenter. Exactly one credential set must be present,
// matching the type tag.
type Environment struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"size:255;uniqueIndex" json:"name"`
	Type      string `gorm:"size:16" json:"type"`
	Enabled   bool   `gorm:"default:true" json:"enabled"`
	IsDefault bool   `gorm:"index" json:"is_default"`

	// Proxmox credentials (API token).
	PVEHost       string `gorm:"size:255" json:"pve_host,omitempty"`
	PVETokenID    string `gorm:"size:255" json:"pve_token_id,omitempty"`
	PVETokenValue string `gorm:"size:255" json:"-"`
	PVEVerifySSL  bool   `json:"pve_verify_ssl"`

	// vSphere credentials (ESXi or vCenter).
	VSphereHost       string `gorm:"size:255" json:"vsphere_host,omitempty"`
	VSphereUser       string `gorm:"size:255" json:"vsphere_user,omitempty"`
	VSpherePassword   string `gorm:"size:255" json:"-"`
	VSphereDatacenter string `gorm:"size:255" json:"vsphere_datacenter,omitempty"`
	VSphereDatastore  string `gorm:"size:255" json:"vsphere_datastore,omitempty"`
	VSphereVerifySSL  bool   `json:"vsphere_verify_ssl"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (Environment) TableName() string { return "environments" }

// IsVSphere reports whether the environment speaks the vSphere API.
func (e *Environment) IsVSphere() bool {
	return e.Type == EnvTypeESXi || e.Type == EnvTypeVCenter
}

// Validate enforces the credential invariant: the credential set matching
// the type tag must be complete and the other one absent. vCenter
// additionally requires a datacenter name.
func (e *Environment) Validate() error {
	invalid := func(msg string) error {
		return errors.New(errors.CodeEnvironmentInvalid, msg, 400)
	}

	switch e.Type {
	case EnvTypeProxmox:
		if e.PVEHost == "" || e.PVETokenID == "" || e.PVETokenValue == "" {
			return invalid("proxmox environment requires pve_host, pve_token_id and pve_token_value")
		}
		if e.VSphereHost != "" || e.VSphereUser != "" || e.VSpherePassword != "" {
			return invalid("proxmox environment must not carry vsphere credentials")
		}
	case EnvTypeESXi, EnvTypeVCenter:
		if e.VSphereHost == "" || e.VSphereUser == "" || e.VSpherePassword == "" {
			return invalid(e.Type + " environment requires vsphere_host, vsphere_user and vsphere_password")
		}
		if e.PVEHost != "" || e.PVETokenID != "" || e.PVETokenValue != "" {
			return invalid(e.Type + " environment must not carry proxmox credentials")
		}
		if e.Type == EnvTypeVCenter && e.VSphereDatacenter == "" {
			return invalid("vcenter environment requires vsphere_datacenter")
		}
	default:
		return invalid("unknown environment type: " + e.Type)
	}
	return nil
}
