// Package dedupe provides an atomic insert-or-detect registry of string keys.
package dedupe

import "time"

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithShardCount sets how many independently locked shards hold the keys.
func WithShardCount(n int) Option {
	return func(d *inMemoryDeduper) {
		if n > 0 {
			d.shardCount = n
		}
	}
}

// WithTTL makes keys expire after ttl. Zero or negative keeps keys forever.
func WithTTL(ttl time.Duration) Option {
	return func(d *inMemoryDeduper) {
		d.ttl = ttl
	}
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(d *inMemoryDeduper) {
		if now != nil {
			d.now = now
		}
	}
}
