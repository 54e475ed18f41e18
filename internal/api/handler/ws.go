package handler

import (
	"campuscare/backend/internal/chathub"
	"campuscare/backend/internal/models"
	"campuscare/backend/internal/realtime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Походження перевіряють CORS middleware та токен
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket оновлює автентифікований запит до WebSocket.
// Клієнт отримує події кімнат, до яких приєднався, та свої сповіщення.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	a := actor(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade вже відповів на запит
		h.Log.Warn("Websocket upgrade failed", "user_id", a.ID, "error", err)
		return
	}

	opts := h.Realtime
	opts.Logger = h.Log.With("user_id", a.ID)
	opts.Metrics = h.Metrics
	notifications := realtime.NewSubscriber(realtime.NewRedisSource(h.Storage), models.NotificationChannel(a.ID), opts)

	client := chathub.NewWebSocketClient(h.Hub, conn, a, notifications)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	client.Run()
}
