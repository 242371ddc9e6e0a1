package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codedeck/runner/internal/metrics"
	"github.com/codedeck/runner/internal/services"
	"github.com/codedeck/runner/internal/version"
)

// SystemHandler serves the operator view: host resources, sandbox runtime
// reachability and live session pressure.
type SystemHandler struct {
	sessions *services.SessionManager
}

// NewSystemHandler creates a new SystemHandler instance.
func NewSystemHandler(sessions *services.SessionManager) *SystemHandler {
	return &SystemHandler{sessions: sessions}
}

// Status returns the system status.
// GET /api/system
func (h *SystemHandler) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, gin.H{
		"host":          metrics.GetHostSnapshot(ctx),
		"sandbox":       metrics.GetSandboxRuntimeStatus(ctx),
		"live_sessions": h.sessions.Count(),
		"version":       version.Version,
	})
}
