package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisSessionKeyPrefix = "voiceform:session:"

// RedisSessionStore implements the SessionStore interface on Redis.
// Sessions are ephemeral, so expiry is delegated to Redis TTLs and
// DeleteExpired is mostly a no-op kept for interface parity.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisSessionStoreConfig contains configuration for the Redis session store
type RedisSessionStoreConfig struct {
	Addr     string
	Password string
	DB       int

	// TTL is how long a session snapshot lives without updates
	TTL time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store
func NewRedisSessionStore(config RedisSessionStoreConfig) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

// Close releases the Redis connection
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

// SaveSession persists a session snapshot and refreshes its TTL
func (s *RedisSessionStore) SaveSession(rec SessionRecord) error {
	ctx := context.Background()

	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	rec.UpdatedAt = time.Now().Unix()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, redisSessionKeyPrefix+rec.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session snapshot
func (s *RedisSessionStore) GetSession(id string) (SessionRecord, error) {
	ctx := context.Background()

	data, err := s.client.Get(ctx, redisSessionKeyPrefix+id).Result()
	if err == redis.Nil {
		return SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("failed to get session: %w", err)
	}

	var rec SessionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return SessionRecord{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return rec, nil
}

// DeleteSession removes a session snapshot
func (s *RedisSessionStore) DeleteSession(id string) error {
	ctx := context.Background()

	deleted, err := s.client.Del(ctx, redisSessionKeyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if deleted == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteExpired scans for sessions whose own timestamps outlived maxAge.
// Redis TTLs already reap idle sessions; this catches snapshots written
// with a longer TTL than the sweep window.
func (s *RedisSessionStore) DeleteExpired(maxAge time.Duration) (int, error) {
	ctx := context.Background()
	cutoff := time.Now().Add(-maxAge).Unix()

	// SCAN instead of KEYS so the sweep never blocks Redis on a large
	// keyspace.
	removed := 0
	iter := s.client.Scan(ctx, 0, redisSessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var rec SessionRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		if rec.UpdatedAt < cutoff {
			if s.client.Del(ctx, key).Err() == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return removed, nil
}
