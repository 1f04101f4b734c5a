package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "edenkit"

// RedisStore provides a Redis-backed implementation of the Store interface.
// Keys are written with SET/GET under a prefix; the ledger log and named lists
// are Redis lists appended with RPUSH and read with LRANGE.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets an expiry on keys written through Set. The ledger log never expires.
// Default is 0 (no expiration).
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys.
// Default is "edenkit".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithPrefix("bookings"),
//	)
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Get returns the value stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	data, err := s.client.Get(ctx, s.valueKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Set stores value under key with the configured TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := s.client.Set(ctx, s.valueKey(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// AppendLedgerEntries pushes records onto the ledger list in a single pipeline.
func (s *RedisStore) AppendLedgerEntries(ctx context.Context, entries ...[]byte) error {
	return s.push(ctx, s.ledgerKey(), entries)
}

// LedgerEntries reads the whole ledger list.
func (s *RedisStore) LedgerEntries(ctx context.Context) ([][]byte, error) {
	return s.lrange(ctx, s.ledgerKey())
}

// Append pushes records onto the named list in a single pipeline.
func (s *RedisStore) Append(ctx context.Context, list string, records ...[]byte) error {
	if list == "" {
		return ErrInvalidKey
	}
	return s.push(ctx, s.listKey(list), records)
}

// List reads the whole named list.
func (s *RedisStore) List(ctx context.Context, list string) ([][]byte, error) {
	if list == "" {
		return nil, ErrInvalidKey
	}
	return s.lrange(ctx, s.listKey(list))
}

func (s *RedisStore) push(ctx context.Context, key string, records [][]byte) error {
	if len(records) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, r := range records {
		pipe.RPush(ctx, key, r)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func (s *RedisStore) lrange(ctx context.Context, key string) ([][]byte, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) valueKey(key string) string {
	return fmt.Sprintf("%s:kv:%s", s.prefix, key)
}

func (s *RedisStore) ledgerKey() string {
	return s.prefix + ":ledger"
}

func (s *RedisStore) listKey(list string) string {
	return fmt.Sprintf("%s:list:%s", s.prefix, list)
}

var _ Store = (*RedisStore)(nil)
