package ledger

import (
	"time"

	"github.com/okian/checkin/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStrict makes a repeat join fail with model.ErrAlreadyMember.
func WithStrict(strict bool) Option {
	return func(s *Service) {
		s.strict = strict
	}
}

// WithClock sets the clock used for the active window check.
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
