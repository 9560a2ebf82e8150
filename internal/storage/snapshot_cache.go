// Package storage provides the Redis-backed snapshot cache for the record
// registry. The ledger remains the source of truth; the cache only lets a
// restarted client show the last good snapshot before its first refresh.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carbon-tracker/internal/models"
)

const snapshotKey = "carbon:records:snapshot"

// SnapshotCacheConfig holds Redis connection configuration
type SnapshotCacheConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// SnapshotCache stores the last good registry snapshot in Redis
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache creates a Redis-backed snapshot cache and verifies the
// connection
func NewSnapshotCache(cfg *SnapshotCacheConfig) (*SnapshotCache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &SnapshotCache{client: client, ttl: ttl}, nil
}

// Store replaces the cached snapshot
func (c *SnapshotCache) Store(ctx context.Context, records []*models.Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.client.Set(ctx, snapshotKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Load returns the cached snapshot, reporting whether one was present
func (c *SnapshotCache) Load(ctx context.Context) ([]*models.Record, bool, error) {
	payload, err := c.client.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var records []*models.Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return records, true, nil
}

// Close releases the Redis connection
func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
