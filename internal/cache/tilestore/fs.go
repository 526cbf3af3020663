package tilestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache"
	"github.com/mohammed-shakir/osm-tile-cache/internal/cache/keys"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

// FSStore keeps tiles as files under Root using the object key as the relative path,
// so the directory can be served as-is by any static file server.
type FSStore struct {
	Root       string
	PublicBase string
	now        func() time.Time
}

type fsMeta struct {
	ContentType string    `json:"content_type"`
	ETag        string    `json:"etag"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	_ cache.TileStore = (*FSStore)(nil)
	_ cache.Reader    = (*FSStore)(nil)
)

func NewFS(root, publicBase string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("tilestore: fs root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("tilestore: create root: %w", err)
	}
	return &FSStore{Root: root, PublicBase: publicBase, now: time.Now}, nil
}

func (s *FSStore) path(obj string) string {
	return filepath.Join(s.Root, filepath.FromSlash(obj))
}

func (s *FSStore) Put(ctx context.Context, t mercator.Tile, payload []byte, contentType string) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("put %v: %w", t, mercator.ErrInvalidTile)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("tilestore put: %w", err)
	}
	if contentType == "" {
		contentType = cache.DefaultContentType
	}
	obj := keys.TileKey(t)
	p := s.path(obj)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("tilestore put %s: %w", obj, err)
	}
	meta, err := json.Marshal(fsMeta{ContentType: contentType, ETag: ETag(payload), UpdatedAt: s.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("tilestore encode meta %s: %w", obj, err)
	}
	if err := writeAtomic(p+".meta", meta); err != nil {
		return "", fmt.Errorf("tilestore put meta %s: %w", obj, err)
	}
	if err := writeAtomic(p, payload); err != nil {
		return "", fmt.Errorf("tilestore put %s: %w", obj, err)
	}
	return PublicURL(s.PublicBase, obj), nil
}

func (s *FSStore) Delete(ctx context.Context, tiles []mercator.Tile) (cache.DeleteResult, error) {
	res := cache.DeleteResult{Failed: map[string]error{}}
	for _, t := range tiles {
		obj := keys.TileKey(t)
		if err := ctx.Err(); err != nil {
			res.Failed[obj] = err
			continue
		}
		p := s.path(obj)
		err := errors.Join(removeIfExists(p), removeIfExists(p+".meta"))
		if err != nil {
			res.Failed[obj] = err
			continue
		}
		res.Deleted = append(res.Deleted, obj)
	}
	return res, nil
}

func (s *FSStore) Get(_ context.Context, t mercator.Tile) (cache.Object, error) {
	obj := keys.TileKey(t)
	p := s.path(obj)
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return cache.Object{}, fmt.Errorf("%s: %w", obj, cache.ErrNotFound)
	}
	if err != nil {
		return cache.Object{}, fmt.Errorf("tilestore get %s: %w", obj, err)
	}
	m := fsMeta{ContentType: cache.DefaultContentType, ETag: ETag(b)}
	if raw, err := os.ReadFile(p + ".meta"); err == nil {
		_ = json.Unmarshal(raw, &m)
	}
	return cache.Object{Payload: b, ContentType: m.ContentType, ETag: m.ETag, URL: PublicURL(s.PublicBase, obj)}, nil
}

func removeIfExists(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func writeAtomic(p string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, p)
}
