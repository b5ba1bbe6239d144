// Package redisstore is a Redis-backed cache.Store for multi-replica
// deployments where the in-process store would fragment hit rates.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/citypulse/viewport-alert-cache/internal/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithMinIdleConns(n int) Option {
	return func(o *redis.Options) { o.MinIdleConns = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

// envelope carries insertedAt alongside the payload so Get can report
// an age even though Redis owns expiry.
type envelope struct {
	InsertedAt time.Time       `json:"inserted_at"`
	Payload    json.RawMessage `json:"payload"`
}

type Store struct {
	rdb       *redis.Client
	opTimeout time.Duration
}

func New(ctx context.Context, addr string, opTimeout time.Duration, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	if opTimeout <= 0 {
		opTimeout = 250 * time.Millisecond
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb, opTimeout: opTimeout}, nil
}

func (s *Store) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}

func (s *Store) Get(key string) ([]byte, time.Duration, bool, error) {
	ctx, cancel := s.withTimeout()
	defer cancel()

	start := time.Now()
	raw, err := s.rdb.Get(ctx, key).Bytes()
	observability.ObserveCacheOp("get", ignoreNil(err), time.Since(start).Seconds())
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("redis GET %q: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// a stale or foreign value under our key is treated as a miss
		return nil, 0, false, nil
	}
	return env.Payload, time.Since(env.InsertedAt), true, nil
}

func (s *Store) Set(key string, payload []byte, ttl time.Duration) error {
	env := envelope{InsertedAt: time.Now(), Payload: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := s.withTimeout()
	defer cancel()

	start := time.Now()
	err = s.rdb.Set(ctx, key, raw, ttl).Err()
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

// Sweep is a no-op: Redis expires entries itself, and the TTL passed
// to Set already bounds their lifetime.
func (s *Store) Sweep() (int, error) {
	return 0, nil
}

func (s *Store) Purge() (int, error) {
	ctx, cancel := s.withTimeout()
	defer cancel()

	start := time.Now()
	n, err := s.rdb.DBSize(ctx).Result()
	if err == nil {
		err = s.rdb.FlushDB(ctx).Err()
	}
	observability.ObserveCacheOp("purge", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis purge: %w", err)
	}
	return int(n), nil
}

// Del removes specific keys; used by the invalidation consumer.
func (s *Store) Del(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout()
	defer cancel()

	start := time.Now()
	err := s.rdb.Del(ctx, keys...).Err()
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

func ignoreNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
