package chathub

import (
	"carchat/backend/internal/config"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketClient implements Client over a gorilla websocket connection.
type WebSocketClient struct {
	ID             string
	AuthorizedUser string
	Conn           *websocket.Conn
	Hub            *Hub
	Send           chan []byte
	Logger         zerolog.Logger

	closeOnce sync.Once
}

// NewWebSocketClient wraps conn. authorizedUser may be empty.
func NewWebSocketClient(id, authorizedUser string, conn *websocket.Conn, hub *Hub, buffer int, logger zerolog.Logger) *WebSocketClient {
	if buffer <= 0 {
		buffer = config.SendBufferSize
	}
	return &WebSocketClient{
		ID:             id,
		AuthorizedUser: authorizedUser,
		Conn:           conn,
		Hub:            hub,
		Send:           make(chan []byte, buffer),
		Logger:         logger.With().Str("client_id", id).Logger(),
	}
}

func (c *WebSocketClient) GetID() string                 { return c.ID }
func (c *WebSocketClient) GetAuthorizedUserID() string   { return c.AuthorizedUser }
func (c *WebSocketClient) GetSendChannel() chan<- []byte { return c.Send }

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes Send, which makes writePump send a close frame and exit.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// readPump forwards every text frame to the hub until the connection fails.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Logger.Error().Err(err).Msg("read failed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.Logger.Debug().Int("message_type", messageType).Msg("non-text frame, dropping")
			continue
		}
		c.Hub.Dispatch(c, message)
	}
}

// writePump drains Send to the connection, one frame per envelope, and keeps the
// connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Logger.Error().Err(err).Msg("write failed")
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
