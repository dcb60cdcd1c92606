package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces snapshot hashes
const DefaultRedisPrefix = "flagcache:flags:"

// RedisStorage keeps the snapshot in one Redis hash per client ID
type RedisStorage struct {
	db  redis.UniversalClient
	key string
	ttl time.Duration
}

// RedisOption configures a RedisStorage
type RedisOption func(*RedisStorage)

// WithRedisTTL expires the hash ttl after the last write; zero keeps it forever
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStorage) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRedisKey overrides the hash key
func WithRedisKey(key string) RedisOption {
	return func(s *RedisStorage) {
		if key != "" {
			s.key = key
		}
	}
}

// NewRedisStorage wraps an existing client
func NewRedisStorage(db redis.UniversalClient, clientID string, opts ...RedisOption) *RedisStorage {
	s := &RedisStorage{
		db:  db,
		key: DefaultRedisPrefix + clientID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnectRedis parses url, pings the server, and returns a storage bound to it
func ConnectRedis(ctx context.Context, url, clientID string, opts ...RedisOption) (*RedisStorage, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}

	return NewRedisStorage(client, clientID, opts...), nil
}

// Key returns the hash key
func (s *RedisStorage) Key() string {
	return s.key
}

// GetAll implements Storage. Undecodable fields are skipped.
func (s *RedisStorage) GetAll(ctx context.Context) (Snapshot, error) {
	fields, err := s.db.HGetAll(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return make(Snapshot), nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	snapshot := make(Snapshot, len(fields))
	for field, raw := range fields {
		var result domain.FlagResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			continue
		}
		snapshot[field] = result
	}

	return snapshot, nil
}

// SetAll implements Storage; the hash is replaced in one MULTI/EXEC
func (s *RedisStorage) SetAll(ctx context.Context, snapshot Snapshot) error {
	values := make(map[string]interface{}, len(snapshot))
	for k, v := range snapshot {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %q: %w", k, err)
		}
		values[k] = data
	}

	_, err := s.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
			if s.ttl > 0 {
				pipe.Expire(ctx, s.key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return nil
}

// Clear implements Storage
func (s *RedisStorage) Clear(ctx context.Context) error {
	if err := s.db.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (s *RedisStorage) Close() error {
	return s.db.Close()
}
