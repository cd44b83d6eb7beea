// Package dedupe provides an atomic insert-or-detect registry of string keys.
//
// It backs the uniqueness guarantees that must hold under concurrent writers:
// membership triples in the in-memory ledger and revoked token ids.
package dedupe

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultShardCount = 32
)

// Deduper records keys and reports whether a key was already present.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already present, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Seen reports whether key is present without recording it.
	Seen(ctx context.Context, key string) bool

	// Sweep drops expired keys and returns how many were removed.
	Sweep(ctx context.Context) int

	Size() int64
}

type shard struct {
	mu   sync.Mutex
	keys map[string]time.Time // value is the expiry; zero means never
}

// inMemoryDeduper spreads keys over independently locked shards so unrelated
// keys never contend on the same mutex.
type inMemoryDeduper struct {
	shards     []*shard
	shardCount int
	ttl        time.Duration
	now        func() time.Time
	size       atomic.Int64
}

// NewInMemoryDeduper creates a registry with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		shardCount: defaultShardCount,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.shards = make([]*shard, d.shardCount)
	for i := range d.shards {
		d.shards[i] = &shard{keys: make(map[string]time.Time)}
	}
	return d
}

func (d *inMemoryDeduper) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

func (d *inMemoryDeduper) expired(expiry, now time.Time) bool {
	return !expiry.IsZero() && !now.Before(expiry)
}

// SeenAndRecord atomically checks if key was seen and records it if not.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	s := d.shardFor(key)
	now := d.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.keys[key]; ok {
		if !d.expired(expiry, now) {
			return true
		}
		// expired keys are replaced in place; size is unchanged
		s.keys[key] = d.expiryFrom(now)
		return false
	}
	s.keys[key] = d.expiryFrom(now)
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) expiryFrom(now time.Time) time.Time {
	if d.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(d.ttl)
}

// Seen reports whether key is present and not expired.
func (d *inMemoryDeduper) Seen(_ context.Context, key string) bool {
	s := d.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.keys[key]
	return ok && !d.expired(expiry, d.now())
}

// Sweep drops expired keys shard by shard.
func (d *inMemoryDeduper) Sweep(_ context.Context) int {
	if d.ttl <= 0 {
		return 0
	}
	now := d.now()
	removed := 0
	for _, s := range d.shards {
		s.mu.Lock()
		for key, expiry := range s.keys {
			if d.expired(expiry, now) {
				delete(s.keys, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	d.size.Add(int64(-removed))
	return removed
}

// Size returns the number of recorded keys, including expired ones not yet swept.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
