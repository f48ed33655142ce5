package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"go-plan-pipeline/internal/model"
)

// Entry is a cached oracle outcome. Plans are immutable, so entries are
// shared between requests as-is.
type Entry struct {
	Plan           *model.Plan
	Rationale      string
	DeclaredSchema json.RawMessage
	Warnings       []string
	Attempts       int
	Failures       []string // categories of the failed attempts before acceptance
	Latency        time.Duration
	CreatedAt      time.Time
}

// PlanCache is an append-only, content-addressed store of generated plans.
// Concurrent misses on the same key share one computation.
type PlanCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	group   singleflight.Group
}

// New creates an empty plan cache.
func New() *PlanCache {
	return &PlanCache{entries: make(map[string]Entry)}
}

// Key hashes the given parts into a cache key. Parts are length-prefixed so
// ("ab","c") and ("a","bc") never collide.
func Key(parts ...[]byte) string {
	h := sha256.New()
	var size [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := 0; i < 8; i++ {
			size[i] = byte(n >> (8 * i))
		}
		h.Write(size[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry stored under key.
func (c *PlanCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Put stores e under key unless the key is already present.
func (c *PlanCache) Put(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	c.entries[key] = e
}

// Len returns the number of cached entries.
func (c *PlanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Do returns the cached entry for key or runs fn once for all concurrent
// callers asking for the same key. Successful results are stored; errors are
// not. hit reports whether the entry came from the cache.
func (c *PlanCache) Do(key string, fn func() (Entry, error)) (entry Entry, hit bool, err error) {
	if e, ok := c.Get(key); ok {
		return e, true, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Double-check after winning the flight
		if e, ok := c.Get(key); ok {
			return e, nil
		}
		e, err := fn()
		if err != nil {
			return nil, err
		}
		c.Put(key, e)
		return e, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return v.(Entry), false, nil
}
