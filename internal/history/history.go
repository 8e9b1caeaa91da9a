// Package history is the client-local durable log of chat envelopes. The whole log
// lives under a single key as a JSON array and is rewritten on every save.
package history

import (
	"carchat/backend/internal/config"
	"carchat/backend/internal/models"
	"carchat/backend/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Cache reads and writes the history array in a storage.Store.
type Cache struct {
	store  storage.Store
	key    string
	logger zerolog.Logger

	// mu serializes Append's read-modify-write against this instance only.
	mu sync.Mutex
}

// NewCache returns a cache over store using the standard history key.
func NewCache(store storage.Store, logger zerolog.Logger) *Cache {
	return &Cache{
		store:  store,
		key:    config.HistoryKey,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Load returns the stored history. A missing or empty key yields an empty slice.
func (c *Cache) Load(ctx context.Context) ([]models.Envelope, error) {
	data, err := c.store.Get(ctx, c.key)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && len(data) == 0) {
		return []models.Envelope{}, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []models.Envelope
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.key, err)
	}
	if entries == nil {
		entries = []models.Envelope{}
	}
	return entries, nil
}

// Save replaces the stored history with entries.
func (c *Cache) Save(ctx context.Context, entries []models.Envelope) error {
	if entries == nil {
		entries = []models.Envelope{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	return c.store.Set(ctx, c.key, data)
}

// Append re-reads the log, adds env and rewrites the whole array.
func (c *Cache) Append(ctx context.Context, env models.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.Load(ctx)
	if err != nil {
		return err
	}
	return c.Save(ctx, append(entries, env))
}

// Record appends env and logs failures. Its signature matches a client listener.
func (c *Cache) Record(env models.Envelope) {
	if err := c.Append(context.Background(), env); err != nil {
		c.logger.Error().Err(err).Str("type", string(env.Type)).Msg("failed to persist envelope")
	}
}
