package storage

import (
	"carchat/backend/internal/models"
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresStore keeps documents in the cache_entries table, one row per key.
type PostgresStore struct {
	DB *gorm.DB
}

// NewPostgresStore wraps an open database. Call Migrate once before use.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

// OpenPostgres opens dsn with gorm and migrates the cache table.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewPostgresStore(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the cache_entries table.
func (s *PostgresStore) Migrate() error {
	if err := s.DB.AutoMigrate(&models.CacheEntry{}); err != nil {
		return fmt.Errorf("migrate cache entries: %w", err)
	}
	return nil
}

// Get returns the document under key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var entry models.CacheEntry
	err := s.DB.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return []byte(entry.Value), nil
}

// Set upserts the row for key, replacing any previous value.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	entry := models.CacheEntry{Key: key, Value: string(value)}
	if err := s.DB.WithContext(ctx).Save(&entry).Error; err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
