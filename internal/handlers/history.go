package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codedeck/runner/internal/services"
)

// HistoryHandler exposes recorded runs per project.
type HistoryHandler struct {
	history *services.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler instance.
func NewHistoryHandler(history *services.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// ListRuns returns the project's run history, newest first.
// GET /api/projects/:id/runs
func (h *HistoryHandler) ListRuns(c *gin.Context) {
	projectID := c.Param("id")

	entries, err := h.history.ListByProject(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": entries})
}
