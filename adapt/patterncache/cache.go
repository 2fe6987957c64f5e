// Package patterncache remembers classification and routing outcomes per
// input fingerprint so repeated shapes skip re-classification.
//
// The cache is an optimization only. A miss never blocks correctness; it
// forces the caller back through the predictor. Fingerprints are a fast
// non-cryptographic hash of the input prefix, so two inputs that share a
// prefix share an entry. Collisions are accepted.
//
// Concurrency: 16-shard design, each shard a mutex-guarded bounded LRU.
package patterncache

import (
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/joshuapare/zmin/adapt/predictor"
	"github.com/joshuapare/zmin/minify"
)

// PrefixBytes is the number of lead bytes hashed by Fingerprint.
const PrefixBytes = 256

// numShards must be a power of two for fast modulo via bitmask.
const numShards = 16

// throughputAlpha weights new throughput observations.
const throughputAlpha = 0.2

// Entry is what the cache remembers about a fingerprint.
type Entry struct {
	Category           predictor.Category `cbor:"1,keyasint"`
	Confidence         float64            `cbor:"2,keyasint"`
	Strategy           minify.ID          `cbor:"3,keyasint"`
	ObservedThroughput float64            `cbor:"4,keyasint"` // MB/s, EMA
	Uses               uint64             `cbor:"5,keyasint"`
	LastUsed           uint64             `cbor:"6,keyasint"` // logical tick
}

// Config sizes the cache.
type Config struct {
	Capacity int `yaml:"capacity"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config { return Config{Capacity: 4096} }

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Capacity < numShards {
		return errors.New("patterncache: capacity must be at least 16")
	}
	return nil
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

// Fingerprint hashes the first PrefixBytes of b (all of b when shorter).
func Fingerprint(b []byte) uint64 {
	if len(b) > PrefixBytes {
		b = b[:PrefixBytes]
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

type shard struct {
	mu  sync.Mutex
	lru *simplelru.LRU[uint64, Entry]
}

// Cache is safe for concurrent use.
type Cache struct {
	shards [numShards]shard

	tick      atomic.Uint64
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New returns an empty cache. Capacity is split evenly across shards.
func New(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{}
	per := cfg.Capacity / numShards
	for i := range c.shards {
		lru, err := simplelru.NewLRU[uint64, Entry](per, func(uint64, Entry) {
			c.evictions.Add(1)
		})
		if err != nil {
			return nil, err
		}
		c.shards[i].lru = lru
	}
	return c, nil
}

func (c *Cache) shard(fp uint64) *shard {
	// high bits: FNV low bits mix poorly for short keys
	return &c.shards[fp>>60&(numShards-1)]
}

// Lookup returns the entry for fp. A hit increments Uses and refreshes
// LastUsed; hits and misses feed HitRate.
func (c *Cache) Lookup(fp uint64) (Entry, bool) {
	s := c.shard(fp)
	s.mu.Lock()
	e, ok := s.lru.Get(fp)
	if ok {
		e.Uses++
		e.LastUsed = c.tick.Add(1)
		s.lru.Add(fp, e)
	}
	s.mu.Unlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return e, ok
}

// Peek returns the entry for fp without touching counters or recency.
func (c *Cache) Peek(fp uint64) (Entry, bool) {
	s := c.shard(fp)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Peek(fp)
}

// Upsert inserts e for fp, or updates the existing entry in place keeping
// its use count and throughput history. New entries start at one use.
func (c *Cache) Upsert(fp uint64, e Entry) {
	s := c.shard(fp)
	s.mu.Lock()
	defer s.mu.Unlock()

	e.LastUsed = c.tick.Add(1)
	if old, ok := s.lru.Peek(fp); ok {
		e.Uses = max(old.Uses, 1)
		if e.ObservedThroughput == 0 {
			e.ObservedThroughput = old.ObservedThroughput
		}
	} else {
		e.Uses = 1
	}
	s.lru.Add(fp, e)
}

// Observe folds a throughput sample (MB/s) into the entry for fp. It is a
// no-op when fp is not cached.
func (c *Cache) Observe(fp uint64, throughput float64) {
	if throughput <= 0 {
		return
	}
	s := c.shard(fp)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Peek(fp)
	if !ok {
		return
	}
	if e.ObservedThroughput == 0 {
		e.ObservedThroughput = throughput
	} else {
		e.ObservedThroughput += throughputAlpha * (throughput - e.ObservedThroughput)
	}
	s.lru.Add(fp, e)
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *Cache) HitRate() float64 {
	h, m := c.hits.Load(), c.misses.Load()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += s.lru.Len()
		s.mu.Unlock()
	}
	return n
}

// Stats returns the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.Len(),
	}
}

// Entries copies every entry keyed by fingerprint.
func (c *Cache) Entries() map[uint64]Entry {
	out := make(map[uint64]Entry)
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for _, k := range s.lru.Keys() {
			if e, ok := s.lru.Peek(k); ok {
				out[k] = e
			}
		}
		s.mu.Unlock()
	}
	return out
}

// Load inserts entries verbatim, keeping their counters. Entries with an
// invalid strategy or category are skipped. The logical clock advances past
// the largest LastUsed loaded.
func (c *Cache) Load(entries map[uint64]Entry) int {
	loaded := 0
	var maxTick uint64
	for fp, e := range entries {
		if !e.Strategy.Valid() || int(e.Category) >= predictor.NumCategories {
			continue
		}
		s := c.shard(fp)
		s.mu.Lock()
		s.lru.Add(fp, e)
		s.mu.Unlock()
		maxTick = max(maxTick, e.LastUsed)
		loaded++
	}
	for {
		cur := c.tick.Load()
		if cur >= maxTick || c.tick.CompareAndSwap(cur, maxTick) {
			break
		}
	}
	return loaded
}

// Purge drops every entry and resets the counters.
func (c *Cache) Purge() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.lru.Purge()
		s.mu.Unlock()
	}
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}
