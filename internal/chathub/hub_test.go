package chathub_test

import (
	"carchat/backend/internal/chathub"
	"carchat/backend/internal/config"
	"carchat/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

func newTestHub(t *testing.T) *chathub.Hub {
	t.Helper()
	h := chathub.NewHub(zerolog.Nop())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func frame(t *testing.T, env models.Envelope) []byte {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func identity(id string) models.Identity {
	return models.Identity{UserID: models.UserID(id), Nickname: "user" + id}
}

// loggedIn registers a mock client and logs it in as userID.
func loggedIn(t *testing.T, h *chathub.Hub, userID string) *MockClient {
	t.Helper()
	c := newMockClient("conn-" + userID + "-" + uuid.NewString())
	require.True(t, h.Register(c))
	h.Dispatch(c, frame(t, models.NewLogin(identity(userID))))
	require.Eventually(t, func() bool {
		got, ok := h.Lookup(models.UserID(userID))
		return ok && got == c
	}, waitFor, 5*time.Millisecond)
	return c
}

// flush waits until every frame dispatched so far has been processed.
func flush(t *testing.T, h *chathub.Hub) {
	t.Helper()
	probeID := "probe-" + uuid.NewString()
	probe := loggedIn(t, h, probeID)
	h.Unregister(probe)
	require.Eventually(t, func() bool {
		_, ok := h.Lookup(models.UserID(probeID))
		return !ok
	}, waitFor, 5*time.Millisecond)
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := newTestHub(t)
	c := newMockClient("conn-1")

	require.True(t, h.Register(c))
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, h.SessionCount(), "registration alone does not authenticate")

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, waitFor, 5*time.Millisecond)
	assert.True(t, c.IsClosed())
}

func TestHub_LoginBindsAndCloseEvicts(t *testing.T) {
	h := newTestHub(t)

	a := loggedIn(t, h, "1")
	assert.Equal(t, 1, h.SessionCount())

	h.Unregister(a)
	require.Eventually(t, func() bool { return h.SessionCount() == 0 }, waitFor, 5*time.Millisecond)
}

func TestHub_PrivateMessageRouting(t *testing.T) {
	h := newTestHub(t)
	a := loggedIn(t, h, "1")
	b := loggedIn(t, h, "2")
	c := loggedIn(t, h, "3")

	raw := frame(t, models.NewPrivateMessage(identity("1"), "2", "hello B", time.Now()))
	h.Dispatch(a, raw)
	flush(t, h)

	got := b.Drain()
	require.Len(t, got, 1, "recipient receives exactly one frame")
	assert.Equal(t, raw, got[0], "frames are forwarded verbatim")

	env, err := models.DecodeEnvelope(got[0])
	require.NoError(t, err)
	assert.Equal(t, models.UserID("1"), env.SenderID)

	assert.Empty(t, c.Drain(), "third party receives nothing")
	assert.Empty(t, a.Drain(), "sender receives nothing")
}

func TestHub_PrivateMessageToAbsentUserIsDropped(t *testing.T) {
	h := newTestHub(t)
	a := loggedIn(t, h, "1")
	b := loggedIn(t, h, "2")

	h.Dispatch(a, frame(t, models.NewPrivateMessage(identity("1"), "99", "anyone?", time.Now())))
	flush(t, h)

	assert.Empty(t, a.Drain())
	assert.Empty(t, b.Drain())
}

func TestHub_PublicMessageBroadcast(t *testing.T) {
	h := newTestHub(t)
	a := loggedIn(t, h, "1")
	b := loggedIn(t, h, "2")
	c := loggedIn(t, h, "3")
	anonymous := newMockClient("anon")
	require.True(t, h.Register(anonymous))

	raw := frame(t, models.NewPublicMessage(identity("1"), "hello all", time.Now()))
	h.Dispatch(a, raw)
	flush(t, h)

	assert.Equal(t, [][]byte{raw}, b.Drain())
	assert.Equal(t, [][]byte{raw}, c.Drain())
	assert.Empty(t, a.Drain(), "sender does not receive its own echo")
	assert.Empty(t, anonymous.Drain(), "clients that never logged in receive nothing")
}

func TestHub_DropsMessagesBeforeLogin(t *testing.T) {
	h := newTestHub(t)
	b := loggedIn(t, h, "2")
	anonymous := newMockClient("anon")
	require.True(t, h.Register(anonymous))

	h.Dispatch(anonymous, frame(t, models.NewPrivateMessage(identity("1"), "2", "sneaky", time.Now())))
	h.Dispatch(anonymous, frame(t, models.NewPublicMessage(identity("1"), "sneaky", time.Now())))
	flush(t, h)

	assert.Empty(t, b.Drain())
}

func TestHub_DropsSpoofedSender(t *testing.T) {
	h := newTestHub(t)
	a := loggedIn(t, h, "1")
	b := loggedIn(t, h, "2")

	h.Dispatch(a, frame(t, models.NewPrivateMessage(identity("3"), "2", "not me", time.Now())))
	flush(t, h)

	assert.Empty(t, b.Drain())
}

func TestHub_DropsMalformedFrames(t *testing.T) {
	h := newTestHub(t)
	a := loggedIn(t, h, "1")
	b := loggedIn(t, h, "2")

	h.Dispatch(a, []byte("{garbage"))
	h.Dispatch(a, []byte(`{"type":"typing","senderId":"1"}`))
	raw := frame(t, models.NewPublicMessage(identity("1"), "still alive", time.Now()))
	h.Dispatch(a, raw)
	flush(t, h)

	assert.Equal(t, [][]byte{raw}, b.Drain(), "a bad frame does not affect later ones")
}

func TestHub_NewLoginReplacesPriorTransport(t *testing.T) {
	h := newTestHub(t)
	sender := loggedIn(t, h, "1")
	first := loggedIn(t, h, "2")
	second := loggedIn(t, h, "2")

	assert.Equal(t, 2, h.SessionCount(), "one entry per user id")

	raw := frame(t, models.NewPrivateMessage(identity("1"), "2", "which one?", time.Now()))
	h.Dispatch(sender, raw)
	flush(t, h)

	assert.Equal(t, [][]byte{raw}, second.Drain())
	assert.Empty(t, first.Drain(), "superseded transport gets no duplicate delivery")

	// The superseded transport is demoted, so its messages are dropped.
	h.Dispatch(first, frame(t, models.NewPrivateMessage(identity("2"), "1", "ghost", time.Now())))
	flush(t, h)
	assert.Empty(t, sender.Drain())

	// Closing the superseded transport must not evict the live mapping.
	h.Unregister(first)
	require.Eventually(t, func() bool { return first.IsClosed() }, waitFor, 5*time.Millisecond)
	got, ok := h.Lookup("2")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestHub_ReloginWithNewIdentity(t *testing.T) {
	h := newTestHub(t)
	c := loggedIn(t, h, "1")

	h.Dispatch(c, frame(t, models.NewLogin(identity("5"))))
	require.Eventually(t, func() bool {
		_, ok := h.Lookup("5")
		return ok
	}, waitFor, 5*time.Millisecond)

	_, ok := h.Lookup("1")
	assert.False(t, ok, "the old identity is released")
	assert.Equal(t, 1, h.SessionCount())
}

func TestHub_AuthorizedUserRestrictsLogin(t *testing.T) {
	h := newTestHub(t)
	c := newMockClient("conn-auth")
	c.authorized = "7"
	require.True(t, h.Register(c))

	h.Dispatch(c, frame(t, models.NewLogin(identity("8"))))
	h.Dispatch(c, frame(t, models.NewLogin(identity("7"))))
	require.Eventually(t, func() bool {
		_, ok := h.Lookup("7")
		return ok
	}, waitFor, 5*time.Millisecond)

	_, ok := h.Lookup("8")
	assert.False(t, ok)
}

func TestHub_FullBufferDropsNewFrames(t *testing.T) {
	h := newTestHub(t)
	a := loggedIn(t, h, "1")

	slow := newMockClientWithBuffer("slow", 1)
	require.True(t, h.Register(slow))
	h.Dispatch(slow, frame(t, models.NewLogin(identity("2"))))

	first := frame(t, models.NewPublicMessage(identity("1"), "first", time.Now()))
	second := frame(t, models.NewPublicMessage(identity("1"), "second", time.Now()))
	h.Dispatch(a, first)
	h.Dispatch(a, second)
	flush(t, h)

	assert.Equal(t, [][]byte{first}, slow.Drain(), "oldest frame kept, newest dropped")
}

func TestHub_RelayedFrames(t *testing.T) {
	h := newTestHub(t)
	a := loggedIn(t, h, "1")
	b := loggedIn(t, h, "2")

	public := frame(t, models.NewPublicMessage(identity("1"), "from another node", time.Now()))
	private := frame(t, models.NewPrivateMessage(identity("9"), "2", "psst", time.Now()))
	h.Relay(public)
	h.Relay(private)
	h.Relay([]byte("junk"))

	require.Eventually(t, func() bool { return len(b.RecvChannel) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, [][]byte{public, private}, b.Drain())
	assert.Empty(t, a.Drain(), "relayed public messages skip the sender's user id")
}

func TestHub_PublishesToBridge(t *testing.T) {
	h := chathub.NewHub(zerolog.Nop())
	bridge := new(MockBridge)
	h.SetBridge(bridge)
	go h.Run()
	t.Cleanup(h.Stop)

	public := frame(t, models.NewPublicMessage(identity("1"), "everyone", time.Now()))
	remote := frame(t, models.NewPrivateMessage(identity("1"), "42", "elsewhere", time.Now()))
	bridge.On("Available").Return(true)
	bounded := mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= config.BridgePublishTimeout
	})
	bridge.On("Publish", bounded, public).Return(nil).Once()
	bridge.On("Publish", bounded, remote).Return(errors.New("redis down")).Once()

	a := loggedIn(t, h, "1")
	b := loggedIn(t, h, "2")
	local := frame(t, models.NewPrivateMessage(identity("1"), "2", "nearby", time.Now()))

	h.Dispatch(a, public)
	h.Dispatch(a, remote)
	h.Dispatch(a, local)
	flush(t, h)

	bridge.AssertExpectations(t)
	bridge.AssertNotCalled(t, "Publish", mock.Anything, local)
	assert.Equal(t, [][]byte{public, local}, b.Drain())
}

func TestHub_StopClosesClients(t *testing.T) {
	h := chathub.NewHub(zerolog.Nop())
	go h.Run()
	c := newMockClient("conn-1")
	require.True(t, h.Register(c))

	h.Stop()

	require.Eventually(t, c.IsClosed, waitFor, 5*time.Millisecond)
	assert.False(t, h.Register(newMockClient("late")))
}

// stallingBridge blocks every publish until the caller's context gives up.
type stallingBridge struct {
	errs chan error
}

func (b *stallingBridge) Available() bool { return true }

func (b *stallingBridge) Publish(ctx context.Context, _ []byte) error {
	<-ctx.Done()
	b.errs <- ctx.Err()
	return ctx.Err()
}

func TestHub_StalledBridgeDoesNotWedgeRouting(t *testing.T) {
	h := chathub.NewHub(zerolog.Nop())
	bridge := &stallingBridge{errs: make(chan error, 1)}
	h.SetBridge(bridge)
	go h.Run()
	t.Cleanup(h.Stop)

	a := loggedIn(t, h, "1")
	b := loggedIn(t, h, "2")
	local := frame(t, models.NewPrivateMessage(identity("1"), "2", "after the stall", time.Now()))

	h.Dispatch(a, frame(t, models.NewPrivateMessage(identity("1"), "42", "remote", time.Now())))
	h.Dispatch(a, local)

	require.Eventually(t, func() bool { return len(b.RecvChannel) == 1 }, config.BridgePublishTimeout+waitFor, 5*time.Millisecond)
	assert.Equal(t, [][]byte{local}, b.Drain())
	assert.ErrorIs(t, <-bridge.errs, context.DeadlineExceeded)
}
