package tilestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache"
	"github.com/mohammed-shakir/osm-tile-cache/internal/cache/keys"
	"github.com/mohammed-shakir/osm-tile-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

type RedisConfig struct {
	Prefix     string
	PublicBase string
	// TTL of zero keeps tiles until they are invalidated.
	TTL       time.Duration
	OpTimeout time.Duration
}

type RedisStore struct {
	cli *redisstore.Client
	cfg RedisConfig
	now func() time.Time
}

var (
	_ cache.TileStore = (*RedisStore)(nil)
	_ cache.Reader    = (*RedisStore)(nil)
)

func NewRedis(cli *redisstore.Client, cfg RedisConfig) *RedisStore {
	return &RedisStore{cli: cli, cfg: cfg, now: time.Now}
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

func (s *RedisStore) Put(ctx context.Context, t mercator.Tile, payload []byte, contentType string) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("put %v: %w", t, mercator.ErrInvalidTile)
	}
	if contentType == "" {
		contentType = cache.DefaultContentType
	}
	obj := keys.TileKey(t)
	meta := map[string]any{
		"content_type": contentType,
		"etag":         ETag(payload),
		"updated_at":   s.now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	err := s.cli.SetWithMeta(ctx, keys.Redis(s.cfg.Prefix, obj), payload, keys.RedisMeta(s.cfg.Prefix, obj), meta, s.cfg.TTL)
	if err != nil {
		return "", fmt.Errorf("tilestore put %s: %w", obj, err)
	}
	return PublicURL(s.cfg.PublicBase, obj), nil
}

func (s *RedisStore) Delete(ctx context.Context, tiles []mercator.Tile) (cache.DeleteResult, error) {
	res := cache.DeleteResult{Failed: map[string]error{}}
	if len(tiles) == 0 {
		return res, nil
	}
	objs := make([]string, len(tiles))
	groups := make([][]string, len(tiles))
	for i, t := range tiles {
		objs[i] = keys.TileKey(t)
		groups[i] = []string{keys.Redis(s.cfg.Prefix, objs[i]), keys.RedisMeta(s.cfg.Prefix, objs[i])}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	errs, err := s.cli.DelEach(ctx, groups)
	for i, obj := range objs {
		var e error
		if i < len(errs) {
			e = errs[i]
		}
		if e == nil && err != nil {
			e = err
		}
		if e != nil {
			res.Failed[obj] = e
			continue
		}
		res.Deleted = append(res.Deleted, obj)
	}
	if len(res.Deleted) == 0 && err != nil {
		return res, fmt.Errorf("tilestore delete %d tiles: %w", len(tiles), err)
	}
	return res, nil
}

func (s *RedisStore) Get(ctx context.Context, t mercator.Tile) (cache.Object, error) {
	obj := keys.TileKey(t)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	b, err := s.cli.Get(ctx, keys.Redis(s.cfg.Prefix, obj))
	if errors.Is(err, redisstore.ErrNotFound) {
		return cache.Object{}, fmt.Errorf("%s: %w", obj, cache.ErrNotFound)
	}
	if err != nil {
		return cache.Object{}, fmt.Errorf("tilestore get %s: %w", obj, err)
	}
	meta, err := s.cli.HGetAll(ctx, keys.RedisMeta(s.cfg.Prefix, obj))
	if err != nil {
		return cache.Object{}, fmt.Errorf("tilestore get meta %s: %w", obj, err)
	}
	ct := strings.TrimSpace(meta["content_type"])
	if ct == "" {
		ct = cache.DefaultContentType
	}
	etag := meta["etag"]
	if etag == "" {
		etag = ETag(b)
	}
	return cache.Object{
		Payload:     b,
		ContentType: ct,
		ETag:        etag,
		URL:         PublicURL(s.cfg.PublicBase, obj),
	}, nil
}
