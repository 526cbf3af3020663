package tilestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

func TestFSStore_PutGetDelete(t *testing.T) {
	root := t.TempDir()
	s, err := NewFS(root, "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	tile := mercator.Tile{Z: 17, X: 31391, Y: 46922}

	url, err := s.Put(ctx, tile, []byte("<osm/>"), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "/17/31391/46922.osm" {
		t.Fatalf("url=%s", url)
	}
	b, err := os.ReadFile(filepath.Join(root, "17", "31391", "46922.osm"))
	if err != nil || string(b) != "<osm/>" {
		t.Fatalf("file=%q err=%v", b, err)
	}

	obj, err := s.Get(ctx, tile)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if obj.ContentType != cache.DefaultContentType || obj.ETag != ETag([]byte("<osm/>")) {
		t.Fatalf("object=%+v", obj)
	}

	for range 2 {
		res, err := s.Delete(ctx, []mercator.Tile{tile})
		if err != nil || len(res.Deleted) != 1 || res.Err() != nil {
			t.Fatalf("Delete res=%+v err=%v", res, err)
		}
	}
	if _, err := s.Get(ctx, tile); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("Get after delete err=%v", err)
	}
}

func TestFSStore_NoTempFilesLeft(t *testing.T) {
	root := t.TempDir()
	s, err := NewFS(root, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(context.Background(), mercator.Tile{Z: 1, X: 1, Y: 1}, []byte("x"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "1", "1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries=%v", entries)
	}
}

func TestNewFS_RequiresRoot(t *testing.T) {
	if _, err := NewFS("", ""); err == nil {
		t.Fatal("expected error")
	}
}
