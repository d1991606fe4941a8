package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "retail-voice:session:"

// RedisStore shares counters between replicas through Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// DialRedis parses a redis:// URL, connects and pings.
func DialRedis(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}
	return NewRedisStore(client, ttl), nil
}

func key(id string) string {
	return keyPrefix + id + ":offtopic"
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, ErrInvalidID
	}
	n, err := r.client.Get(ctx, key(id)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("session: redis get: %w", err)
	}
	return n, nil
}

// Add implements Store. INCRBY and EXPIRE run in one MULTI so concurrent
// turns on a session both land.
func (r *RedisStore) Add(ctx context.Context, id string, delta int) (int, error) {
	if id == "" {
		return 0, ErrInvalidID
	}
	k := key(id)
	if delta <= 0 {
		n, err := r.Load(ctx, id)
		if err != nil || n == 0 {
			return n, err
		}
		if err := r.client.Expire(ctx, k, r.ttl).Err(); err != nil {
			return n, fmt.Errorf("session: redis expire: %w", err)
		}
		return n, nil
	}

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, k, int64(delta))
		pipe.Expire(ctx, k, r.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("session: redis incrby: %w", err)
	}
	return int(incr.Val()), nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
