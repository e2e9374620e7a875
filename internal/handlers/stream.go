package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"whisperd/internal/broadcast"
)

// pingInterval keeps idle progress connections alive between events.
const pingInterval = 60 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler serves live progress subscriptions.
type StreamHandler struct {
	hub *broadcast.Hub
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub *broadcast.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Progress streams a job's events over a websocket until the client goes
// away. Delivery failures close this observer only; they never reach the
// worker or other observers.
// GET /ws/jobs/:id
func (h *StreamHandler) Progress(c echo.Context) error {
	jobID := c.Param("id")

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	obs := h.hub.Attach(jobID)
	defer h.hub.Detach(jobID, obs)

	// Reader drains control frames and detects the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case msg, ok := <-obs.Events():
			if !ok {
				return nil
			}
			if err := ws.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}
		}
	}
}
