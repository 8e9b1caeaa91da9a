package chathub

import (
	"carchat/backend/internal/config"
	"carchat/backend/internal/models"
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Bridge relays frames to hub instances running in other processes.
type Bridge interface {
	Publish(ctx context.Context, raw []byte) error
	Available() bool
}

// Hub tracks which transport currently speaks for each user and routes envelopes
// between them. All mutations happen on the Run goroutine; mu only lets the query
// methods read a consistent view.
type Hub struct {
	// sessions is the session table: at most one transport per user id.
	sessions map[models.UserID]Client
	// conns holds every registered transport and the user it logged in as ("" until Login).
	conns map[Client]models.UserID

	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan Inbound
	RelayCh      chan []byte

	bridge Bridge
	mu     sync.RWMutex
	logger zerolog.Logger
	done   chan struct{}
	once   sync.Once
}

// NewHub creates a hub. Call Run in a goroutine.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions:     make(map[models.UserID]Client),
		conns:        make(map[Client]models.UserID),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan Inbound, config.SendBufferSize),
		RelayCh:      make(chan []byte, config.SendBufferSize),
		logger:       logger.With().Str("component", "chathub").Logger(),
		done:         make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance bridge. Call before Run.
func (h *Hub) SetBridge(b Bridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// Run is the hub event loop.
func (h *Hub) Run() {
	h.logger.Info().Msg("hub started")
	for {
		select {
		case c := <-h.RegisterCh:
			h.addClient(c)
		case c := <-h.UnregisterCh:
			h.removeClient(c)
		case in := <-h.IncomingCh:
			h.handleInbound(in)
		case raw := <-h.RelayCh:
			h.handleRelayed(raw)
		case <-h.done:
			h.shutdown()
			return
		}
	}
}

// Stop ends the event loop and closes every transport.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Register queues c for registration. It returns false once the hub has stopped.
func (h *Hub) Register(c Client) bool {
	select {
	case h.RegisterCh <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister queues c for removal.
func (h *Hub) Unregister(c Client) {
	select {
	case h.UnregisterCh <- c:
	case <-h.done:
	}
}

// Dispatch hands a frame read from c to the event loop.
func (h *Hub) Dispatch(c Client, raw []byte) {
	select {
	case h.IncomingCh <- Inbound{Client: c, Raw: raw}:
	case <-h.done:
	}
}

// Relay hands a frame received from another instance to the event loop.
func (h *Hub) Relay(raw []byte) {
	select {
	case h.RelayCh <- raw:
	case <-h.done:
	}
}

// Lookup returns the transport currently bound to userID.
func (h *Hub) Lookup(userID models.UserID) (Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.sessions[userID]
	return c, ok
}

// SessionCount returns the number of authenticated users.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ClientCount returns the number of attached transports, authenticated or not.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) addClient(c Client) {
	h.mu.Lock()
	h.conns[c] = ""
	h.mu.Unlock()
	h.logger.Info().Str("client_id", c.GetID()).Msg("client registered")
}

func (h *Hub) removeClient(c Client) {
	h.mu.Lock()
	userID, ok := h.conns[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	if userID != "" && h.sessions[userID] == c {
		delete(h.sessions, userID)
	}
	h.mu.Unlock()

	c.Close()
	h.logger.Info().Str("client_id", c.GetID()).Str("user_id", userID.String()).Msg("client unregistered")
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[Client]models.UserID)
	h.sessions = make(map[models.UserID]Client)
	h.mu.Unlock()

	for c := range conns {
		c.Close()
	}
	h.logger.Info().Int("clients", len(conns)).Msg("hub stopped")
}
