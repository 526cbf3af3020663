package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache"
	"github.com/mohammed-shakir/osm-tile-cache/internal/cache/keys"
	"github.com/mohammed-shakir/osm-tile-cache/internal/invalidation"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

type fakeStore struct {
	mu  sync.Mutex
	del []string
	err error
}

func (f *fakeStore) Put(context.Context, mercator.Tile, []byte, string) (string, error) {
	return "", nil
}

func (f *fakeStore) Delete(_ context.Context, tiles []mercator.Tile) (cache.DeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := cache.DeleteResult{Failed: map[string]error{}}
	if f.err != nil {
		return res, f.err
	}
	for _, t := range tiles {
		k := keys.TileKey(t)
		f.del = append(f.del, k)
		res.Deleted = append(res.Deleted, k)
	}
	return res, nil
}

func (f *fakeStore) deleted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.del)
}

func message(t *testing.T, ev invalidation.Event) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return &sarama.ConsumerMessage{Topic: "t", Partition: 0, Offset: 1, Timestamp: time.Now().UTC(), Value: b}
}

func newRunner(store cache.TileStore) (*Runner, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	cfg := InvalidationConfig{Enabled: true, Driver: DriverKafka, DedupeSize: 128}
	return New(cfg, store, Options{Register: reg}), reg
}

func TestRunner_DeletesAndSkipsReplays(t *testing.T) {
	fs := &fakeStore{}
	r, _ := newRunner(fs)
	ev := invalidation.Event{
		Version: 1, Op: invalidation.OpDelete, Seq: 101, TS: time.Now().UTC(),
		Tiles: []string{"17/1/1.osm", "17/1/2.osm"},
	}
	ctx := context.Background()
	if err := r.handleMessage(ctx, message(t, ev)); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if err := r.handleMessage(ctx, message(t, ev)); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if fs.deleted() != 2 {
		t.Fatalf("deleted=%d want 2", fs.deleted())
	}
	if got := testutil.ToFloat64(r.ms.apply.WithLabelValues("skip_seq")); got != 2 {
		t.Fatalf("skip_seq=%v", got)
	}

	older := ev
	older.Seq = 100
	_ = r.handleMessage(ctx, message(t, older))
	newer := ev
	newer.Seq = 102
	_ = r.handleMessage(ctx, message(t, newer))
	if fs.deleted() != 4 {
		t.Fatalf("deleted=%d want 4", fs.deleted())
	}
}

func TestRunner_DropsInvalidMessages(t *testing.T) {
	fs := &fakeStore{}
	r, _ := newRunner(fs)
	bad := &sarama.ConsumerMessage{Value: []byte("{not json")}
	if err := r.handleMessage(context.Background(), bad); err != nil {
		t.Fatalf("undecodable: %v", err)
	}
	inv := message(t, invalidation.Event{Version: 1, Op: "insert", Seq: 1, TS: time.Now(), Tiles: []string{"1/0/0.osm"}})
	if err := r.handleMessage(context.Background(), inv); err != nil {
		t.Fatalf("invalid: %v", err)
	}
	if got := testutil.ToFloat64(r.ms.msgs.WithLabelValues("invalid")); got != 2 {
		t.Fatalf("invalid=%v", got)
	}
	if fs.deleted() != 0 {
		t.Fatal("invalid event applied")
	}
}

func TestRunner_StoreErrorRedelivers(t *testing.T) {
	fs := &fakeStore{err: errors.New("redis down")}
	r, _ := newRunner(fs)
	ev := invalidation.Event{Version: 1, Op: invalidation.OpRefresh, Seq: 5, TS: time.Now().UTC(), Tiles: []string{"3/1/1.osm"}}
	if err := r.handleMessage(context.Background(), message(t, ev)); err == nil {
		t.Fatal("expected error")
	}
	fs.err = nil
	if err := r.handleMessage(context.Background(), message(t, ev)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if fs.deleted() != 1 {
		t.Fatalf("deleted=%d", fs.deleted())
	}
}

func TestRunner_DisabledIsReady(t *testing.T) {
	r := New(InvalidationConfig{Driver: DriverNone}, &fakeStore{}, Options{})
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ready, _ := r.Readiness(); !ready {
		t.Fatal("disabled runner should report ready")
	}
	r.Stop()
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("INVALIDATION_ENABLED", "true")
	t.Setenv("INVALIDATION_DRIVER", "kafka")
	cfg := FromEnv()
	if !cfg.Active() || len(cfg.Brokers) != 2 || cfg.Topic != "tile-invalidation" || cfg.GroupID != "tile-invalidator" {
		t.Fatalf("cfg=%+v", cfg)
	}
}
