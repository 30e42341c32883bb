// Package handlers implements the HTTP handlers of the Provinator API.
//
// Handlers bind and validate input, delegate to the engine or store and
// push errors onto the gin context; the ErrorHandler middleware shapes
// the error response.
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"provinator.io/provinator/internal/domain"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/provisioner"
	"provinator.io/provinator/internal/settings"
	"provinator.io/provinator/internal/store"
)

// Server carries the handler dependencies.
type Server struct {
	engine   *provisioner.Engine
	store    store.Store
	settings *settings.Service
	sizes    []domain.SizeClass
}

// Deps holds all dependencies for creating a Server. Manual DI, no
// injection framework.
type Deps struct {
	Engine   *provisioner.Engine
	Store    store.Store
	Settings *settings.Service
	Sizes    []domain.SizeClass
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	return &Server{
		engine:   deps.Engine,
		store:    deps.Store,
		settings: deps.Settings,
		sizes:    deps.Sizes,
	}
}

// pathID parses the numeric :id path parameter.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "invalid id"))
		return 0, false
	}
	return id, true
}

// bindJSON binds the request body, converting gin binding failures into
// a structured validation error.
func bindJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		_ = c.Error(apperrors.Wrap(err, apperrors.CodeValidationFailed,
			"invalid request body", 400))
		return false
	}
	return true
}
