// Package redisstore wraps the Redis client operations used by the tile store.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/osm-tile-cache/internal/core/observability"
)

var ErrNotFound = errors.New("redisstore: key not found")

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

func WithPassword(pw string) Option {
	return func(o *redis.Options) { o.Password = pw }
}

func WithDB(db int) Option {
	return func(o *redis.Options) { o.DB = db }
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
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
	return &Client{rdb: rdb}, nil
}

// Get returns ErrNotFound for a missing key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
		return nil, ErrNotFound
	}
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return b, nil
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	start := time.Now()
	m, err := c.rdb.HGetAll(ctx, key).Result()
	observability.ObserveCacheOp("hgetall", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %q: %w", key, err)
	}
	return m, nil
}

// SetWithMeta writes a value and its metadata hash in one transaction so readers
// never see a payload with stale metadata.
func (c *Client) SetWithMeta(
	ctx context.Context,
	key string,
	val []byte,
	metaKey string,
	meta map[string]any,
	ttl time.Duration,
) error {
	start := time.Now()
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, val, ttl)
		p.Del(ctx, metaKey)
		p.HSet(ctx, metaKey, meta)
		if ttl > 0 {
			p.Expire(ctx, metaKey, ttl)
		}
		return nil
	})
	observability.ObserveCacheOp("set_meta", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET+HSET %q: %w", key, err)
	}
	return nil
}

// DelEach deletes every group of keys in one pipeline and reports a per-group error.
// Groups are deleted independently so one failure does not hide the others.
func (c *Client) DelEach(ctx context.Context, groups [][]string) ([]error, error) {
	start := time.Now()
	if len(groups) == 0 {
		observability.ObserveCacheOp("del_each", nil, time.Since(start).Seconds())
		return nil, nil
	}
	cmds := make([]*redis.IntCmd, len(groups))
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, g := range groups {
			cmds[i] = p.Del(ctx, g...)
		}
		return nil
	})
	observability.ObserveCacheOp("del_each", err, time.Since(start).Seconds())

	errs := make([]error, len(groups))
	for i, cmd := range cmds {
		if cmd == nil {
			errs[i] = fmt.Errorf("redis DEL %v: not executed", groups[i])
			continue
		}
		if cerr := cmd.Err(); cerr != nil {
			errs[i] = fmt.Errorf("redis DEL %v: %w", groups[i], cerr)
		}
	}
	if err != nil {
		return errs, fmt.Errorf("redis DEL pipeline (%d groups): %w", len(groups), err)
	}
	return errs, nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
