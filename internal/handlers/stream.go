package handlers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/codedeck/runner/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Add proper origin validation
	},
}

// StreamEvent is one message pushed over the execution stream.
type StreamEvent struct {
	Type string `json:"type"` // stdout, stderr, complete
	Data string `json:"data"`
}

// StreamHandler pushes live execution output over WebSocket.
type StreamHandler struct {
	engine *services.Engine
}

// NewStreamHandler creates a new StreamHandler instance.
func NewStreamHandler(engine *services.Engine) *StreamHandler {
	return &StreamHandler{engine: engine}
}

// Stream subscribes the connection to an execution's output. The caller
// supplies the execution identifier it sent (or will send) with the
// execute request.
// GET /api/executions/:id/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	id := c.Param("id")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Stream] Failed to upgrade to WebSocket: %v", err)
		return
	}
	defer func() { _ = ws.Close() }()

	ch := h.engine.Subscribe(id)
	defer h.engine.Unsubscribe(id, ch)

	// Reader goroutine: its only job is noticing the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev := parseStreamEvent(msg)
			_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := ws.WriteJSON(ev); err != nil {
				return
			}
			if ev.Type == "complete" {
				return
			}
		case <-closed:
			return
		}
	}
}

func parseStreamEvent(msg string) StreamEvent {
	for _, typ := range []string{"stdout", "stderr", "complete"} {
		if strings.HasPrefix(msg, typ+":") {
			return StreamEvent{Type: typ, Data: strings.TrimPrefix(msg, typ+":")}
		}
	}
	return StreamEvent{Type: "stdout", Data: msg}
}
