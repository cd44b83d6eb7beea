package api

import "github.com/okian/checkin/pkg/logger"

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAuthRequired makes join, upload and team creation require a bearer token.
func WithAuthRequired(required bool) Option {
	return func(s *Server) {
		s.authRequired = required
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithPhotoDir serves stored photos from dir under /photos/.
func WithPhotoDir(dir string) Option {
	return func(s *Server) {
		s.photoDir = dir
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
