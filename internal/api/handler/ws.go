package handler

import (
	"carchat/backend/internal/chathub"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The chat is served to arbitrary embedding pages.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket authenticates the request, upgrades it and attaches the new
// transport to the hub.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	authorized, err := h.authorize(c)
	if err != nil {
		h.Logger.Warn().Err(err).Str("remote", c.ClientIP()).Msg("rejected connection")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(uuid.NewString(), authorized, conn, h.Hub, h.SendBuffer, h.Logger)
	if !h.Hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	client.Run()
}
