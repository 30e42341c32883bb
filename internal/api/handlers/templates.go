package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"provinator.io/provinator/internal/domain"
)

// mappingBody is the create/update payload for a template mapping.
type mappingBody struct {
	Key           string `json:"key" binding:"required,max=255"`
	EnvironmentID *int64 `json:"environment_id"`
	ProxmoxVMID   int    `json:"proxmox_vmid"`
	SourceNode    string `json:"source_node"`
	TemplateRef   string `json:"template_ref"`
	OSFamily      string `json:"os_family"`
	CloudInit     bool   `json:"cloud_init"`
	Enabled       *bool  `json:"enabled"`
}

func (b *mappingBody) apply(m *domain.TemplateMapping) {
	m.Key = b.Key
	m.EnvironmentID = b.EnvironmentID
	m.ProxmoxVMID = b.ProxmoxVMID
	m.SourceNode = b.SourceNode
	m.TemplateRef = b.TemplateRef
	m.OSFamily = b.OSFamily
	m.CloudInit = b.CloudInit
	m.Enabled = b.Enabled == nil || *b.Enabled
}

// CreateMapping handles POST /admin/templates.
func (s *Server) CreateMapping(c *gin.Context) {
	var body mappingBody
	if !bindJSON(c, &body) {
		return
	}
	m := &domain.TemplateMapping{}
	body.apply(m)
	if err := s.store.CreateMapping(c.Request.Context(), m); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ListMappings handles GET /admin/templates.
func (s *Server) ListMappings(c *gin.Context) {
	ms, err := s.store.ListMappings(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": ms, "count": len(ms)})
}

// UpdateMapping handles PUT /admin/templates/:id.
func (s *Server) UpdateMapping(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body mappingBody
	if !bindJSON(c, &body) {
		return
	}
	m, err := s.store.GetMapping(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	body.apply(m)
	if err := s.store.SaveMapping(c.Request.Context(), m); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteMapping handles DELETE /admin/templates/:id.
func (s *Server) DeleteMapping(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteMapping(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DiscoverTemplates handles GET /admin/templates/discover. It lists the
// template artifacts present on the environment's hypervisor.
func (s *Server) DiscoverTemplates(c *gin.Context) {
	var envID *int64
	if raw := c.Query("environment_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			_ = c.Error(err)
			return
		}
		envID = &id
	}
	templates, err := s.engine.DiscoverTemplates(c.Request.Context(), envID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates, "count": len(templates)})
}
