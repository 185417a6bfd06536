package chathub

import (
	"errors"
	"time"

	"pinchat/backend/internal/config"
	"pinchat/backend/internal/protocol"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// readPump decodes frames into inbound events and hands them to the hub.
// When the connection dies the client is unregistered, which runs the same
// release path as an explicit leave.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxInboundFrame)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Log.Info("connection lost", zap.Error(err))
			}
			return
		}

		ev, err := protocol.DecodeInbound(raw)
		if err != nil {
			level := c.Log.Warn
			if errors.Is(err, protocol.ErrUnknownEvent) {
				level = c.Log.Debug
			}
			level("dropping inbound frame", zap.Error(err))
			continue
		}

		c.Hub.Dispatch(c, ev)
	}
}

// writePump writes one text frame per outbound event and keeps the
// connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				// Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			frame, err := protocol.Encode(ev)
			if err != nil {
				c.Log.Error("encode outbound event", zap.String("event", string(ev.Kind())), zap.Error(err))
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
