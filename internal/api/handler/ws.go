package handler

import (
	"net/http"

	"pinchat/backend/internal/chathub"
	"pinchat/backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: config.HandshakeTimeout,
	// Origin checks belong to the edge proxy; tokens are verified here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades an authenticated request to the live channel.
// The connection's identity is the token subject; payload user IDs are
// checked against it by the hub.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID := CurrentUserID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.Log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, userID, h.SendBuffer)
	if !h.Hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	client.Run()
}
