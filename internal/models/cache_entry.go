package models

import "time"

// CacheEntry is one key of the client-local durable store when it is backed by
// PostgreSQL. Each key holds a whole JSON document that is replaced on every write.
type CacheEntry struct {
	// Key is the cache key, e.g. "chatHistory".
	Key string `gorm:"primaryKey;type:text"`
	// Value is the raw JSON document stored under Key.
	Value string `gorm:"type:text;not null"`
	// UpdatedAt is maintained by gorm on every Save.
	UpdatedAt time.Time
}
