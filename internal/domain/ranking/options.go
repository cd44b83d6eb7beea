package ranking

import (
	"time"

	"github.com/okian/checkin/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithTTL sets how long a snapshot is served. Zero disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(a *Aggregator) {
		if ttl >= 0 {
			a.ttl = ttl
		}
	}
}

// WithClock sets the clock used for snapshot ages.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
