package service

import (
	"time"

	"github.com/okian/checkin/internal/adapters/repository"
	"github.com/okian/checkin/internal/adapters/taskstore"
	"github.com/okian/checkin/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source handed to every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStore uses store instead of the backend named by the config.
// The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithTaskStore uses tasks instead of the backend named by the config.
func WithTaskStore(tasks taskstore.Store) Option {
	return func(s *Service) {
		s.tasks = tasks
	}
}
