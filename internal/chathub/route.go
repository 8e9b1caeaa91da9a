package chathub

import (
	"carchat/backend/internal/config"
	"carchat/backend/internal/models"
	"context"
)

// handleInbound applies the per-transport state machine: only Login is accepted
// before authentication, and message envelopes must be sent as the bound user.
func (h *Hub) handleInbound(in Inbound) {
	userID, ok := h.conns[in.Client]
	if !ok {
		h.logger.Debug().Str("client_id", in.Client.GetID()).Msg("frame from unregistered client, dropping")
		return
	}

	env, err := models.DecodeEnvelope(in.Raw)
	if err != nil {
		h.logger.Warn().Err(err).Str("client_id", in.Client.GetID()).Msg("malformed envelope, dropping")
		return
	}

	if env.Type == models.TypeLogin {
		h.login(in.Client, env.Identity())
		return
	}

	if userID == "" {
		h.logger.Debug().Str("client_id", in.Client.GetID()).Str("type", string(env.Type)).
			Msg("envelope before login, dropping")
		return
	}
	if env.SenderID != userID {
		h.logger.Warn().Str("client_id", in.Client.GetID()).Str("user_id", userID.String()).
			Str("sender_id", env.SenderID.String()).Msg("sender mismatch, dropping")
		return
	}

	switch env.Type {
	case models.TypePublicMessage:
		h.broadcastLocal(userID, in.Raw)
		h.publishToBridge(in.Raw)
	case models.TypePrivateMessage:
		if target, ok := h.sessions[env.ReceiverID]; ok {
			h.deliver(target, in.Raw)
			return
		}
		if !h.publishToBridge(in.Raw) {
			h.logger.Debug().Str("receiver_id", env.ReceiverID.String()).Msg("recipient not connected, dropping")
		}
	}
}

// login binds the transport to id, replacing whatever transport held id before.
// The superseded transport stays open but is demoted to unauthenticated, so it
// neither receives nor sends until it logs in again.
func (h *Hub) login(c Client, id models.Identity) {
	if authorized := c.GetAuthorizedUserID(); authorized != "" && authorized != id.UserID.String() {
		h.logger.Warn().Str("client_id", c.GetID()).Str("authorized", authorized).
			Str("user_id", id.UserID.String()).Msg("login for foreign identity, dropping")
		return
	}

	h.mu.Lock()
	if prev := h.conns[c]; prev != "" && prev != id.UserID && h.sessions[prev] == c {
		delete(h.sessions, prev)
	}
	old, replaced := h.sessions[id.UserID]
	replaced = replaced && old != c
	if replaced {
		h.conns[old] = ""
	}
	h.sessions[id.UserID] = c
	h.conns[c] = id.UserID
	h.mu.Unlock()

	event := h.logger.Info().Str("client_id", c.GetID()).Str("user_id", id.UserID.String()).
		Str("nickname", id.Nickname)
	if replaced {
		event = event.Str("superseded", old.GetID())
	}
	event.Msg("user logged in")
}

// handleRelayed routes a frame that another hub instance received. The session
// table is per instance, so a user logged in on two instances receives a relayed
// private message on both.
func (h *Hub) handleRelayed(raw []byte) {
	env, err := models.DecodeEnvelope(raw)
	if err != nil {
		h.logger.Warn().Err(err).Msg("malformed relayed envelope, dropping")
		return
	}

	switch env.Type {
	case models.TypePublicMessage:
		h.broadcastLocal(env.SenderID, raw)
	case models.TypePrivateMessage:
		if target, ok := h.sessions[env.ReceiverID]; ok {
			h.deliver(target, raw)
		}
	}
}

// broadcastLocal sends raw to every session except the sender's own.
func (h *Hub) broadcastLocal(sender models.UserID, raw []byte) {
	for userID, c := range h.sessions {
		if userID == sender {
			continue
		}
		h.deliver(c, raw)
	}
}

// deliver enqueues raw without blocking. When the recipient's queue is full the
// new frame is dropped.
func (h *Hub) deliver(c Client, raw []byte) {
	select {
	case c.GetSendChannel() <- raw:
	default:
		h.logger.Warn().Str("client_id", c.GetID()).Msg("send buffer full, dropping")
	}
}

func (h *Hub) publishToBridge(raw []byte) bool {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), config.BridgePublishTimeout)
	defer cancel()
	if err := b.Publish(ctx, raw); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
		return false
	}
	return true
}
