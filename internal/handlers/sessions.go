package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codedeck/runner/internal/services"
)

// SessionHandler exposes the live interactive sessions.
type SessionHandler struct {
	sessions *services.SessionManager
}

// NewSessionHandler creates a new SessionHandler instance.
func NewSessionHandler(sessions *services.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List returns every parked session.
// GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.sessions.List()})
}

// Delete tears a session down, killing its process.
// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.sessions.Get(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	h.sessions.Remove(id)
	c.JSON(http.StatusOK, gin.H{"message": "session terminated"})
}
