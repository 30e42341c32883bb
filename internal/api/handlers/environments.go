package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"provinator.io/provinator/internal/domain"
)

// environmentBody is the create/update payload for an environment.
type environmentBody struct {
	Name      string `json:"name" binding:"required,max=255"`
	Type      string `json:"type" binding:"required,oneof=proxmox esxi vcenter"`
	Enabled   *bool  `json:"enabled"`
	IsDefault bool   `json:"is_default"`

	PVEHost       string `json:"pve_host"`
	PVETokenID    string `json:"pve_token_id"`
	PVETokenValue string `json:"pve_token_value"`
	PVEVerifySSL  bool   `json:"pve_verify_ssl"`

	VSphereHost       string `json:"vsphere_host"`
	VSphereUser       string `json:"vsphere_user"`
	VSpherePassword   string `json:"vsphere_password"`
	VSphereDatacenter string `json:"vsphere_datacenter"`
	VSphereDatastore  string `json:"vsphere_datastore"`
	VSphereVerifySSL  bool   `json:"vsphere_verify_ssl"`
}

func (b *environmentBody) apply(env *domain.Environment) {
	env.Name = b.Name
	env.Type = b.Type
	env.Enabled = b.Enabled == nil || *b.Enabled
	env.IsDefault = b.IsDefault
	env.PVEHost = b.PVEHost
	env.PVETokenID = b.PVETokenID
	env.PVEVerifySSL = b.PVEVerifySSL
	env.VSphereHost = b.VSphereHost
	env.VSphereUser = b.VSphereUser
	env.VSphereDatacenter = b.VSphereDatacenter
	env.VSphereDatastore = b.VSphereDatastore
	env.VSphereVerifySSL = b.VSphereVerifySSL

	// Secrets are write-only: an empty value keeps the stored one.
	if b.PVETokenValue != "" {
		env.PVETokenValue = b.PVETokenValue
	}
	if b.VSpherePassword != "" {
		env.VSpherePassword = b.VSpherePassword
	}
}

// CreateEnvironment handles POST /admin/environments.
func (s *Server) CreateEnvironment(c *gin.Context) {
	var body environmentBody
	if !bindJSON(c, &body) {
		return
	}
	env := &domain.Environment{}
	body.apply(env)
	if err := env.Validate(); err != nil {
		_ = c.Error(err)
		return
	}
	if err := s.store.CreateEnvironment(c.Request.Context(), env); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, env)
}

// ListEnvironments handles GET /admin/environments.
func (s *Server) ListEnvironments(c *gin.Context) {
	envs, err := s.store.ListEnvironments(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"environments": envs, "count": len(envs)})
}

// GetEnvironment handles GET /admin/environments/:id.
func (s *Server) GetEnvironment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	env, err := s.store.GetEnvironment(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, env)
}

// UpdateEnvironment handles PUT /admin/environments/:id.
func (s *Server) UpdateEnvironment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body environmentBody
	if !bindJSON(c, &body) {
		return
	}
	env, err := s.store.GetEnvironment(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	body.apply(env)
	if err := env.Validate(); err != nil {
		_ = c.Error(err)
		return
	}
	if err := s.store.SaveEnvironment(c.Request.Context(), env); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, env)
}

// DeleteEnvironment handles DELETE /admin/environments/:id.
func (s *Server) DeleteEnvironment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteEnvironment(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TestEnvironment handles POST /admin/environments/:id/test. It probes
// the hypervisor and reports the product version.
func (s *Server) TestEnvironment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	env, err := s.store.GetEnvironment(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	version, err := s.engine.TestEnvironment(c.Request.Context(), env)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reachable": true, "version": version})
}
