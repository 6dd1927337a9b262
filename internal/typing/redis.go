package typing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gomodule/redigo/redis"
)

// RedisStore keeps indicators in one Redis hash per conversation, mapping
// user id to the last touch in unix milliseconds. The hash expires after
// ttl without a touch.
type RedisStore struct {
	pool *redis.Pool
	ttl  time.Duration
}

// NewRedisPool creates a connection pool for a redis:// URL.
func NewRedisPool(url string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     10,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, url)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisStore creates a store on pool. Hashes expire after ttl.
func NewRedisStore(pool *redis.Pool, ttl time.Duration) *RedisStore {
	return &RedisStore{pool: pool, ttl: ttl}
}

func key(conversationID string) string {
	return fmt.Sprintf("typing:%s", conversationID)
}

func (s *RedisStore) Touch(ctx context.Context, conversationID, userID string, at time.Time) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	k := key(conversationID)
	conn.Send("MULTI")
	conn.Send("HSET", k, userID, at.UnixMilli())
	conn.Send("PEXPIRE", k, s.ttl.Milliseconds())
	if _, err := redis.DoContext(conn, ctx, "EXEC"); err != nil {
		return fmt.Errorf("failed to touch typing indicator: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, conversationID, userID string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := redis.DoContext(conn, ctx, "HDEL", key(conversationID), userID); err != nil {
		return fmt.Errorf("failed to clear typing indicator: %w", err)
	}
	return nil
}

func (s *RedisStore) Active(ctx context.Context, conversationID string, since time.Time) ([]string, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	k := key(conversationID)
	entries, err := redis.Int64Map(redis.DoContext(conn, ctx, "HGETALL", k))
	if err != nil {
		return nil, fmt.Errorf("failed to read typing indicators: %w", err)
	}

	cutoff := since.UnixMilli()
	var stale []any
	out := make([]string, 0, len(entries))
	for userID, ms := range entries {
		if ms > cutoff {
			out = append(out, userID)
			continue
		}
		stale = append(stale, userID)
	}
	if len(stale) > 0 {
		redis.DoContext(conn, ctx, "HDEL", append([]any{k}, stale...)...)
	}

	sort.Slice(out, func(i, j int) bool {
		if entries[out[i]] == entries[out[j]] {
			return out[i] < out[j]
		}
		return entries[out[i]] < entries[out[j]]
	})
	return out, nil
}

// Ping checks that Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = redis.DoContext(conn, ctx, "PING")
	return err
}

// Close releases the pool.
func (s *RedisStore) Close() error {
	return s.pool.Close()
}
