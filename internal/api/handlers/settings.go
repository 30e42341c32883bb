package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListSizes handles GET /sizes: the t-shirt size catalog.
func (s *Server) ListSizes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sizes": s.sizes, "count": len(s.sizes)})
}

// ListSettings handles GET /admin/settings. Secret values are masked.
func (s *Server) ListSettings(c *gin.Context) {
	entries, err := s.settings.Describe(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": entries})
}

type settingBody struct {
	Value string `json:"value" binding:"max=1024"`
}

// UpdateSetting handles PUT /admin/settings/:key.
func (s *Server) UpdateSetting(c *gin.Context) {
	var body settingBody
	if !bindJSON(c, &body) {
		return
	}
	key := c.Param("key")
	if err := s.settings.Set(c.Request.Context(), key, body.Value); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "updated": true})
}

// DeleteSetting handles DELETE /admin/settings/:key, reverting the key
// to its config default.
func (s *Server) DeleteSetting(c *gin.Context) {
	key := c.Param("key")
	if err := s.settings.Unset(c.Request.Context(), key); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
