package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"provinator.io/provinator/internal/provisioner"
)

// CreateDeployment handles POST /deployments.
func (s *Server) CreateDeployment(c *gin.Context) {
	var in provisioner.DeploymentInput
	if !bindJSON(c, &in) {
		return
	}
	dep, err := s.engine.SubmitDeployment(c.Request.Context(), in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, dep)
}

// ListDeployments handles GET /deployments.
func (s *Server) ListDeployments(c *gin.Context) {
	deps, err := s.store.ListDeployments(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployments": deps, "count": len(deps)})
}

// GetDeployment handles GET /deployments/:id.
func (s *Server) GetDeployment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	dep, err := s.store.GetDeployment(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

// ApproveDeployment handles POST /deployments/:id/approve.
func (s *Server) ApproveDeployment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	dep, err := s.engine.ApproveDeployment(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

// RejectDeployment handles POST /deployments/:id/reject.
func (s *Server) RejectDeployment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body decisionBody
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}
	dep, err := s.engine.RejectDeployment(c.Request.Context(), id, body.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

// RetryDeployment handles POST /deployments/:id/retry.
func (s *Server) RetryDeployment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	dep, err := s.engine.RetryDeployment(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dep)
}
