package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// versionDedupe remembers the newest version applied per key. Checking and
// recording are separate so a failed apply can be retried.
type versionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newVersionDedupe(size int) *versionDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, int64](size)
	return &versionDedupe{lru: c}
}

// fresh reports whether v is newer than the last recorded version of key.
func (d *versionDedupe) fresh(key string, v int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && v <= last {
		return false
	}
	return true
}

func (d *versionDedupe) record(key string, v int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && v <= last {
		return
	}
	d.lru.Add(key, v)
}
