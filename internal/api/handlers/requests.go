package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/provisioner"
	"provinator.io/provinator/internal/store"
)

// decisionBody is the optional body for reject operations.
type decisionBody struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// CreateRequest handles POST /requests.
func (s *Server) CreateRequest(c *gin.Context) {
	var in provisioner.RequestInput
	if !bindJSON(c, &in) {
		return
	}
	req, err := s.engine.SubmitRequest(c.Request.Context(), in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// ListRequests handles GET /requests with an optional status filter.
func (s *Server) ListRequests(c *gin.Context) {
	f := store.RequestFilter{Status: domain.RequestStatus(c.Query("status"))}
	reqs, err := s.store.ListRequests(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs, "count": len(reqs)})
}

// GetRequest handles GET /requests/:id.
func (s *Server) GetRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	req, err := s.store.GetRequest(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ApproveRequest handles POST /requests/:id/approve.
func (s *Server) ApproveRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	req, err := s.engine.ApproveRequest(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RejectRequest handles POST /requests/:id/reject.
func (s *Server) RejectRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body decisionBody
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}
	req, err := s.engine.RejectRequest(c.Request.Context(), id, body.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RetryRequest handles POST /requests/:id/retry.
func (s *Server) RetryRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	req, err := s.engine.RetryRequest(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, req)
}
