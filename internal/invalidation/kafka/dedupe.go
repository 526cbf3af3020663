package kafka

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seqDedupe remembers the highest replication sequence applied per tile key.
type seqDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newSeqDedupe(size int) *seqDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, int64](size)
	return &seqDedupe{lru: c}
}

// fresh reports whether seq is newer than anything applied for key.
func (d *seqDedupe) fresh(key string, seq int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && seq <= last {
		return false
	}
	return true
}

func (d *seqDedupe) record(key string, seq int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && seq <= last {
		return
	}
	d.lru.Add(key, seq)
}
