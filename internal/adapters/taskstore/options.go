package taskstore

import (
	"time"

	"github.com/okian/checkin/pkg/logger"
)

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the time source used for updated_at stamps.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key the store writes.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL sets how long terminal tasks are kept.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// SubmitterOption applies a configuration option to the Submitter.
type SubmitterOption func(*Submitter)

// WithSubmitterLogger sets a custom logger for the submitter.
func WithSubmitterLogger(l logger.Logger) SubmitterOption {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSubmitterClock overrides the time source used for created_at stamps.
func WithSubmitterClock(now func() time.Time) SubmitterOption {
	return func(s *Submitter) {
		if now != nil {
			s.now = now
		}
	}
}
