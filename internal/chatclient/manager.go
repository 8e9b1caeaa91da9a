// Package chatclient keeps a single logical connection to the chat hub alive,
// remembers the logged-in identity across reconnects, and fans inbound envelopes
// out to local listeners.
package chatclient

import (
	"carchat/backend/internal/config"
	"carchat/backend/internal/history"
	"carchat/backend/internal/models"
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var ErrEmptyIdentity = errors.New("user id and nickname are required")

// Options configures a Manager.
type Options struct {
	// URL is the hub address, e.g. ws://localhost:3005/ws.
	URL string
	// Header is sent with every handshake (typically Authorization).
	Header http.Header
	// ReconnectDelay is the fixed wait between a close and the next dial.
	ReconnectDelay time.Duration
	// ReconnectJitter adds a uniform random wait in [0, ReconnectJitter).
	ReconnectJitter time.Duration
	// PongWait is how long the transport may stay silent before it is treated as
	// dead. The hub pings more often than this.
	PongWait time.Duration

	Dialer  Dialer
	History *history.Cache
	Logger  zerolog.Logger

	// OnStateChange is called for every transition while the Manager's lock is
	// held. It must not call back into the Manager.
	OnStateChange func(prev, next State)

	// Now stamps outbound messages; defaults to time.Now.
	Now func() time.Time
}

// Manager owns the connection to the hub. It is safe for concurrent use.
type Manager struct {
	opts      Options
	listeners *Registry
	logger    zerolog.Logger

	// mu guards everything below and serializes writes to conn.
	mu       sync.Mutex
	state    State
	conn     Conn
	identity models.Identity
	dialSeq  uint64
	retry    *time.Timer
	retrySeq uint64
}

// NewManager returns a disconnected Manager. Call Connect to start it.
func NewManager(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = config.DefaultReconnectDelay
	}
	if opts.PongWait <= 0 {
		opts.PongWait = config.PongWait
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebSocketDialer()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		opts:      opts,
		listeners: NewRegistry(),
		logger:    opts.Logger.With().Str("component", "chatclient").Logger(),
		state:     Disconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the identity bound to the session, or the zero value.
func (m *Manager) Identity() models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Connect opens a transport to the hub unless one is already open or opening.
// It returns immediately; the dial runs in the background.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectLocked()
}

func (m *Manager) connectLocked() {
	if m.state == Connected || m.state == Connecting {
		return
	}
	m.stopRetryLocked()
	m.setState(Connecting)
	m.dialSeq++
	go m.dial(m.dialSeq)
}

func (m *Manager) dial(seq uint64) {
	m.logger.Debug().Str("url", m.opts.URL).Msg("dialing hub")
	conn, err := m.opts.Dialer.Dial(context.Background(), m.opts.URL, m.opts.Header)

	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.dialSeq || m.state != Connecting {
		// Left, or superseded by a newer Connect, while dialing.
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.logger.Error().Err(err).Str("url", m.opts.URL).Msg("connect failed")
		m.scheduleReconnectLocked()
		return
	}

	m.conn = conn
	m.armKeepalive(conn)
	m.setState(Connected)
	m.logger.Info().Str("url", m.opts.URL).Msg("connected to hub")

	if m.identity.Valid() {
		m.writeLocked(models.NewLogin(m.identity))
	}
	go m.readLoop(conn)
}

// armKeepalive sets the read deadline and answers hub pings, extending the
// deadline on each one. A hub that goes silent makes the next read time out.
func (m *Manager) armKeepalive(conn Conn) {
	conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(config.WriteWait))
		var netErr net.Error
		if errors.Is(err, websocket.ErrCloseSent) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil
		}
		return err
	})
}

// readLoop decodes frames until the transport fails. A malformed frame is
// logged and skipped without closing the connection.
func (m *Manager) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))
		env, err := models.DecodeEnvelope(data)
		if err != nil {
			m.logger.Warn().Err(err).Msg("malformed envelope, dropping")
			continue
		}
		m.listeners.Notify(env)
	}
}

func (m *Manager) handleClose(conn Conn, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != conn {
		// Closed by LeaveChat, or already replaced.
		return
	}
	m.conn = nil
	conn.Close()

	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		m.logger.Warn().Dur("pong_wait", m.opts.PongWait).Msg("hub went silent")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		m.logger.Error().Err(err).Msg("connection error")
	}
	m.logger.Info().Msg("connection closed")
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked moves to Reconnecting and arms the retry timer unless
// one is already pending.
func (m *Manager) scheduleReconnectLocked() {
	m.setState(Reconnecting)
	if m.retry != nil {
		return
	}

	delay := m.opts.ReconnectDelay
	if m.opts.ReconnectJitter > 0 {
		delay += rand.N(m.opts.ReconnectJitter)
	}
	m.retrySeq++
	seq := m.retrySeq
	m.retry = time.AfterFunc(delay, func() { m.retryConnect(seq) })
	m.logger.Info().Dur("delay", delay).Msg("reconnect scheduled")
}

func (m *Manager) retryConnect(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq != m.retrySeq || m.retry == nil {
		return
	}
	m.retry = nil
	if m.state != Reconnecting {
		return
	}
	m.connectLocked()
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// JoinChat binds the session to (userID, nickname). The Login is sent now when
// connected, otherwise on the next successful connection.
func (m *Manager) JoinChat(userID models.UserID, nickname string) error {
	id := models.Identity{UserID: userID, Nickname: nickname}
	if !id.Valid() {
		return ErrEmptyIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.identity = id
	if m.state == Connected && m.conn != nil {
		m.writeLocked(models.NewLogin(id))
	}
	return nil
}

// LeaveChat closes the transport, clears the identity and stops reconnecting.
// Only a later Connect starts the connection again.
func (m *Manager) LeaveChat() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.identity = models.Identity{}
	m.stopRetryLocked()
	m.dialSeq++

	if conn := m.conn; conn != nil {
		m.conn = nil
		conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"))
		conn.Close()
	}
	if m.state != Disconnected {
		m.setState(Disconnected)
	}
	m.logger.Info().Msg("left chat")
}

// SendPublicMessage sends content to every other logged-in user. It returns the
// envelope for local display, or false when nothing was transmitted because
// there is no identity, no open connection, or the write failed.
func (m *Manager) SendPublicMessage(content string) (models.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.canSendLocked() {
		return models.Envelope{}, false
	}
	env := models.NewPublicMessage(m.identity, content, m.opts.Now())
	if err := m.writeLocked(env); err != nil {
		return models.Envelope{}, false
	}
	return env, true
}

// SendPrivateMessage sends content to receiverID only, with the same
// preconditions as SendPublicMessage plus a non-empty receiver.
func (m *Manager) SendPrivateMessage(receiverID models.UserID, content string) (models.Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if receiverID == "" || !m.canSendLocked() {
		return models.Envelope{}, false
	}
	env := models.NewPrivateMessage(m.identity, receiverID, content, m.opts.Now())
	if err := m.writeLocked(env); err != nil {
		return models.Envelope{}, false
	}
	return env, true
}

func (m *Manager) canSendLocked() bool {
	return m.identity.Valid() && m.state == Connected && m.conn != nil
}

// writeLocked sends env on the current transport. A failed write closes the
// transport so the read loop drives the reconnect.
func (m *Manager) writeLocked(env models.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		m.logger.Error().Err(err).Str("type", string(env.Type)).Msg("refusing to send invalid envelope")
		return err
	}
	m.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Error().Err(err).Str("type", string(env.Type)).Msg("write failed")
		m.conn.Close()
		return err
	}
	m.logger.Debug().Str("type", string(env.Type)).Msg("envelope sent")
	return nil
}

// AddListener registers fn for every subsequently decoded inbound envelope and
// returns a function that removes it.
func (m *Manager) AddListener(fn Listener) (unsubscribe func()) {
	return m.listeners.Add(fn)
}

// ChatHistory returns the locally cached history, independent of the connection.
func (m *Manager) ChatHistory(ctx context.Context) ([]models.Envelope, error) {
	if m.opts.History == nil {
		return []models.Envelope{}, nil
	}
	return m.opts.History.Load(ctx)
}

func (m *Manager) setState(next State) {
	prev := m.state
	if prev == next {
		return
	}
	if !CanTransition(prev, next) {
		m.logger.Error().Stringer("from", prev).Stringer("to", next).Msg("illegal state transition")
	}
	m.state = next
	m.logger.Debug().Stringer("from", prev).Stringer("to", next).Msg("state changed")
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(prev, next)
	}
}
