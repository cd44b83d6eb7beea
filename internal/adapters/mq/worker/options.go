// Package worker runs asynchronous tasks pulled off the queue.
package worker

import (
	"time"

	"github.com/okian/checkin/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithTaskTimeout bounds how long a handler may run.
func WithTaskTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithClock overrides the time source used for claim stamps.
func WithClock(now func() time.Time) Option {
	return func(w *InMemoryWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// WatchdogOption applies a configuration option to the Watchdog.
type WatchdogOption func(*Watchdog)

// WithInterval sets how often the watchdog sweeps.
func WithInterval(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithStaleAfter sets how long a task may stay IN_PROGRESS before it is failed.
func WithStaleAfter(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		if d > 0 {
			w.staleAfter = d
		}
	}
}

// WithRequeueAfter sets how old a PENDING task must be before it is offered again.
func WithRequeueAfter(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		if d > 0 {
			w.requeueAfter = d
		}
	}
}

// WithRetention sets how long finished tasks are kept by stores without
// their own expiry. Zero keeps them forever.
func WithRetention(d time.Duration) WatchdogOption {
	return func(w *Watchdog) {
		if d >= 0 {
			w.retention = d
		}
	}
}

// WithWatchdogClock overrides the watchdog time source.
func WithWatchdogClock(now func() time.Time) WatchdogOption {
	return func(w *Watchdog) {
		if now != nil {
			w.now = now
		}
	}
}

// WithWatchdogLogger sets a custom logger for the watchdog.
func WithWatchdogLogger(l logger.Logger) WatchdogOption {
	return func(w *Watchdog) {
		if l != nil {
			w.logger = l
		}
	}
}
