package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codedeck/runner/internal/services"
)

// AssistHandler relays error-explanation requests to the configured
// collaborator.
type AssistHandler struct {
	assist *services.AssistService
}

// NewAssistHandler creates a new AssistHandler instance.
func NewAssistHandler(assist *services.AssistService) *AssistHandler {
	return &AssistHandler{assist: assist}
}

// Explain forwards the question and relays the answer untouched.
// POST /api/assist/explain
func (h *AssistHandler) Explain(c *gin.Context) {
	if !h.assist.Enabled() {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "assist collaborator not configured"})
		return
	}

	var req services.ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.assist.Explain(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
