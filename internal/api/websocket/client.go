package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth message after the upgrade
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

// Client represents a WebSocket client connection
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	logger      *zap.Logger
	userID      int64
	permissions []types.Permission
	registered  bool
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// readPump reads the auth handshake, then keeps the connection alive by
// reading until the peer goes away. Clients only join the hub once
// authenticated.
func (c *Client) readPump() {
	defer func() {
		if !c.registered {
			close(c.send)
			return
		}
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	var hello clientMessage
	if err := c.conn.ReadJSON(&hello); err != nil {
		c.logger.Warn("WebSocket auth message not received",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		return
	}
	if hello.Type != MessageTypeAuth {
		c.sendMessage(NewMessage(MessageTypeAuthFailed, AuthFailedData{Reason: "first message must be authentication"}))
		return
	}
	if hello.Token == "" {
		c.sendMessage(NewMessage(MessageTypeAuthFailed, AuthFailedData{Reason: "missing token in auth message"}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), authWait)
	sess, err := c.hub.auth.Resolve(ctx, hello.Token)
	cancel()
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		c.sendMessage(NewMessage(MessageTypeAuthFailed, AuthFailedData{Reason: "invalid or expired token"}))
		return
	}

	c.userID = sess.User.ID
	c.permissions = sess.Permissions
	c.sendMessage(NewMessage(MessageTypeAuthSuccess, AuthSuccessData{UserID: c.userID, Permissions: c.permissions}))

	select {
	case c.hub.register <- c:
		c.registered = true
	case <-c.hub.done:
		return
	}
	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.remoteAddr()),
		zap.Int64("user_id", c.userID))

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			return
		}
		// Nothing beyond the handshake is defined for clients.
	}
}

// sendMessage queues a message for this client only. It is used before
// the client is registered, so the channel is still owned by readPump.
func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump handles writing messages to the WebSocket connection. It owns
// closing the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request. checkOrigin may be nil to accept every
// origin.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, checkOrigin func(*http.Request) bool) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	go client.writePump()
	go client.readPump()
}
