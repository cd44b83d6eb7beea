package blob

import "github.com/okian/checkin/pkg/logger"

// Option applies a configuration option to the LocalStore.
type Option func(*LocalStore)

// WithMaxDimension bounds the width and height of stored photos. Zero keeps
// the original size.
func WithMaxDimension(px int) Option {
	return func(s *LocalStore) {
		if px >= 0 {
			s.maxDimension = px
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *LocalStore) {
		if l != nil {
			s.logger = l
		}
	}
}
