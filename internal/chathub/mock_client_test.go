package chathub_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockClient is a test double for the chathub.Client interface. Frames the hub
// delivers land in RecvChannel.
type MockClient struct {
	id          string
	authorized  string
	RecvChannel chan []byte

	mu     sync.Mutex
	closed bool
}

func newMockClient(id string) *MockClient {
	return newMockClientWithBuffer(id, 16)
}

func newMockClientWithBuffer(id string, buffer int) *MockClient {
	return &MockClient{
		id:          id,
		RecvChannel: make(chan []byte, buffer),
	}
}

func (c *MockClient) GetID() string                 { return c.id }
func (c *MockClient) GetAuthorizedUserID() string   { return c.authorized }
func (c *MockClient) GetSendChannel() chan<- []byte { return c.RecvChannel }
func (c *MockClient) Run()                          {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Drain returns every frame currently queued for the client.
func (c *MockClient) Drain() [][]byte {
	var frames [][]byte
	for {
		select {
		case f := <-c.RecvChannel:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

// MockBridge records frames the hub publishes to other instances.
type MockBridge struct {
	mock.Mock
}

func (b *MockBridge) Publish(ctx context.Context, raw []byte) error {
	args := b.Called(ctx, raw)
	return args.Error(0)
}

func (b *MockBridge) Available() bool {
	args := b.Called()
	return args.Bool(0)
}
