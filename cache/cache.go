// Package cache memoizes translation results. A key is filled at most once
// at a time: concurrent requests for the same key wait for the one
// translation in flight and share its result.
package cache

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// Key identifies one translation request. Unit is the identity of the
// source unit and must be comparable, usually a pointer. Contract is the
// fingerprint of the requested target contract.
type Key struct {
	Unit     any
	Contract uint64
}

// Fingerprint hashes the parts of a contract description into a key
// component. Parts are length-prefixed so that ("ab", "c") and ("a", "bc")
// differ.
func Fingerprint(parts ...string) uint64 {
	d := xxhash.New()
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		d.Write(n[:])
		d.WriteString(p)
	}
	return d.Sum64()
}

// Stats reports cache activity.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
	Fills   int64
	Failed  int64
}

// Cache maps keys to translated values. The zero value is not usable; use
// New.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[Key]V
	// ids assigns each unit identity a number so keys can name a
	// singleflight call.
	ids    map[any]uint64
	nextID uint64
	group  singleflight.Group

	hits, misses, fills, failed atomic.Int64
}

// New returns an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: map[Key]V{},
		ids:     map[any]uint64{},
	}
}

// Get returns the value stored under key.
func (c *Cache[V]) Get(key Key) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// GetOrFill returns the value stored under key, calling fill to produce it
// when absent. hit reports whether the value was already present when the
// call started. A failed fill stores nothing, so a later call retries.
func (c *Cache[V]) GetOrFill(key Key, fill func() (V, error)) (v V, hit bool, err error) {
	if v, ok := c.Get(key); ok {
		c.hits.Add(1)
		return v, true, nil
	}
	c.misses.Add(1)
	res, err, _ := c.group.Do(c.flightKey(key), func() (any, error) {
		// A fill that finished between Get and Do already stored its value.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		c.fills.Add(1)
		v, err := fill()
		if err != nil {
			c.failed.Add(1)
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

func (c *Cache[V]) flightKey(key Key) string {
	c.mu.Lock()
	id, ok := c.ids[key.Unit]
	if !ok {
		c.nextID++
		id = c.nextID
		c.ids[key.Unit] = id
	}
	c.mu.Unlock()
	return strconv.FormatUint(id, 36) + "/" + strconv.FormatUint(key.Contract, 36)
}

// Len returns the number of stored entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Fills:   c.fills.Load(),
		Failed:  c.failed.Load(),
	}
}
