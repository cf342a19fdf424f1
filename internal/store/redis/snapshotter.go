// Package redis persists the graduate collection as a single Redis
// string value.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pump-graduates/internal/domain"
	"pump-graduates/internal/store"
)

// DefaultKey is the Redis key holding the serialized collection.
const DefaultKey = "pump-graduates:snapshot"

// Snapshotter stores the collection as one JSON blob under a fixed key.
type Snapshotter struct {
	client *redis.Client
	key    string
}

// New connects to Redis using a redis:// URL and verifies the
// connection.
func New(ctx context.Context, redisURL, key string) (*Snapshotter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if key == "" {
		key = DefaultKey
	}
	return &Snapshotter{client: client, key: key}, nil
}

// Compile-time interface check.
var _ store.Snapshotter = (*Snapshotter)(nil)

// Save overwrites the blob with the full collection, newest first.
func (s *Snapshotter) Save(ctx context.Context, graduates []*domain.Graduate) error {
	data, err := json.Marshal(graduates)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// Load reads the blob back. A missing key returns an empty collection.
func (s *Snapshotter) Load(ctx context.Context) ([]*domain.Graduate, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var graduates []*domain.Graduate
	if err := json.Unmarshal(data, &graduates); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return graduates, nil
}

// Close releases the Redis connection.
func (s *Snapshotter) Close() error {
	return s.client.Close()
}
