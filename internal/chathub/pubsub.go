package chathub

import (
	"carchat/backend/internal/config"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// relayFrame wraps a chat frame with the instance that published it, so an
// instance can skip its own messages when they come back from Redis.
type relayFrame struct {
	InstanceID string          `json:"instance_id"`
	Payload    json.RawMessage `json:"payload"`
}

// RelayTarget receives frames published by other instances.
type RelayTarget interface {
	Relay(raw []byte)
}

// RedisBridge relays public messages, and private messages whose recipient is not
// connected locally, between hub instances over a Redis pub/sub channel.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	target     RelayTarget
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a bridge on cfg.Channel that forwards to target.
func NewRedisBridge(cfg config.RedisConfig, target RelayTarget, logger zerolog.Logger) *RedisBridge {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBridge{
		client:     client,
		channel:    cfg.Channel,
		instanceID: uuid.New().String(),
		target:     target,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes and begins relaying.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	sub := b.client.Subscribe(b.ctx, b.channel)
	if _, err := sub.Receive(b.ctx); err != nil {
		sub.Close()
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().Str("instance_id", b.instanceID).Str("channel", b.channel).Msg("redis bridge started")
	return nil
}

// Publish sends raw to the other instances.
func (b *RedisBridge) Publish(ctx context.Context, raw []byte) error {
	data, err := encodeRelayFrame(b.instanceID, raw)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Stop unsubscribes and closes the Redis connection.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Available reports whether the bridge is subscribed.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleRedisMessage(msg.Payload)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *RedisBridge) handleRedisMessage(payload string) {
	frame, err := decodeRelayFrame(payload)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to decode redis message")
		return
	}
	if frame.InstanceID == b.instanceID {
		return
	}
	b.logger.Debug().Str("from_instance", frame.InstanceID).Msg("relaying message from redis")
	b.target.Relay(frame.Payload)
}

func encodeRelayFrame(instanceID string, raw []byte) ([]byte, error) {
	return json.Marshal(relayFrame{InstanceID: instanceID, Payload: json.RawMessage(raw)})
}

func decodeRelayFrame(payload string) (relayFrame, error) {
	var frame relayFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return relayFrame{}, err
	}
	if len(frame.Payload) == 0 {
		return relayFrame{}, fmt.Errorf("relay frame without payload")
	}
	return frame, nil
}
