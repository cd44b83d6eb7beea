package checkin

import (
	"time"

	"github.com/okian/checkin/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRecentLimits sets the default and maximum page size of ListRecent.
func WithRecentLimits(def, limit int) Option {
	return func(s *Service) {
		if def > 0 {
			s.defaultLimit = def
		}
		if limit > 0 {
			s.maxLimit = limit
		}
		if s.defaultLimit > s.maxLimit {
			s.defaultLimit = s.maxLimit
		}
	}
}

// WithClock sets the clock used for the active window and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
