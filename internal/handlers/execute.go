// Package handlers exposes the execution engine over HTTP.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/language"
	"github.com/codedeck/runner/internal/models"
	"github.com/codedeck/runner/internal/sandbox"
	"github.com/codedeck/runner/internal/services"
	"github.com/codedeck/runner/internal/validation"
)

// ExecuteHandler handles code execution and interactive continuation.
type ExecuteHandler struct {
	engine *services.Engine
	cfg    *config.Config
	limits validation.Limits
}

// NewExecuteHandler creates a new ExecuteHandler instance.
func NewExecuteHandler(engine *services.Engine, cfg *config.Config) *ExecuteHandler {
	return &ExecuteHandler{engine: engine, cfg: cfg, limits: validation.DefaultLimits()}
}

// Execute runs a submission.
// POST /api/execute
func (h *ExecuteHandler) Execute(c *gin.Context) {
	var req models.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateRequest(&req, h.limits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Execute(c.Request.Context(), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Continue supplies one round of stdin to a waiting session.
// POST /api/continue
func (h *ExecuteHandler) Continue(c *gin.Context) {
	var req models.ContinueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Continue(c.Request.Context(), &req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// renderError maps engine errors onto HTTP statuses. Infrastructure
// failures carry an operator hint that stays hidden in production.
func (h *ExecuteHandler) renderError(c *gin.Context, err error) {
	var infra *sandbox.InfraError
	switch {
	case errors.As(err, &infra):
		body := gin.H{"error": infra.Reason}
		if infra.Hint != "" && !h.cfg.IsProduction() {
			body["hint"] = infra.Hint
		}
		c.JSON(http.StatusServiceUnavailable, body)
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, language.ErrUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
