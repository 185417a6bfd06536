package chathub

import (
	"sync"

	"pinchat/backend/internal/config"
	"pinchat/backend/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketClient implements Client on top of a gorilla/websocket connection.
type WebSocketClient struct {
	UserID string
	ConnID string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan protocol.Outbound
	Log    *zap.Logger

	closeOnce sync.Once
}

// NewWebSocketClient wraps an upgraded connection for the authenticated user.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, userID string, buffer int) *WebSocketClient {
	if buffer <= 0 {
		buffer = config.DefaultSendBuffer
	}
	connID := uuid.New().String()
	return &WebSocketClient{
		UserID: userID,
		ConnID: connID,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan protocol.Outbound, buffer),
		Log:    hub.Log.With(zap.String("user_id", userID), zap.String("conn_id", connID)),
	}
}

func (c *WebSocketClient) GetUserID() string                        { return c.UserID }
func (c *WebSocketClient) GetConnID() string                        { return c.ConnID }
func (c *WebSocketClient) GetSendChannel() chan<- protocol.Outbound { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, which makes writePump send a close frame.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}
