// Package handler exposes the hub over HTTP: a single route that authenticates the
// caller and upgrades the request to a websocket transport.
package handler

import (
	"carchat/backend/internal/auth"
	"carchat/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler holds what the websocket route needs.
type Handler struct {
	Hub *chathub.Hub
	// Verifier checks connection tokens. When nil any caller may connect and
	// log in as any user.
	Verifier   *auth.Verifier
	SendBuffer int
	Logger     zerolog.Logger
}

func NewHandler(hub *chathub.Hub, verifier *auth.Verifier, sendBuffer int, logger zerolog.Logger) *Handler {
	return &Handler{
		Hub:        hub,
		Verifier:   verifier,
		SendBuffer: sendBuffer,
		Logger:     logger.With().Str("component", "handler").Logger(),
	}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter, path string) {
	r.GET(path, h.ServeWebSocket)
}
