// Package service wires storage, the task pipeline and the domain services
// into the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/checkin/internal/adapters/blob"
	"github.com/okian/checkin/internal/adapters/mq/queue"
	"github.com/okian/checkin/internal/adapters/mq/worker"
	"github.com/okian/checkin/internal/adapters/repository"
	"github.com/okian/checkin/internal/adapters/repository/postgres"
	"github.com/okian/checkin/internal/adapters/taskstore"
	"github.com/okian/checkin/internal/config"
	"github.com/okian/checkin/internal/domain/auth"
	"github.com/okian/checkin/internal/domain/checkin"
	"github.com/okian/checkin/internal/domain/ledger"
	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/internal/domain/ranking"
	"github.com/okian/checkin/internal/domain/registry"
	"github.com/okian/checkin/pkg/logger"
)

const (
	drainTimeout    = 10 * time.Second
	redisKeyPrefix  = "checkin:"
	shutdownTimeout = 30 * time.Second
)

// ErrNotStarted is returned by Ping before Start or after Stop.
var ErrNotStarted = fmt.Errorf("%w: service not started", model.ErrUnavailable)

// Service implements the API dependencies for the contest backend. Domain
// calls made before Start returns panic.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config
	now func() time.Time

	// Backends
	store       repository.Store
	tasks       taskstore.Store
	redis       *redis.Client
	ownsStore   bool
	revocations *auth.MemoryRevocations

	// Task pipeline
	queue    *queue.InMemoryQueue
	pool     *worker.Pool
	watchdog *worker.Watchdog

	// Domain
	events   *registry.Service
	teams    *ledger.Service
	checkins *checkin.Service
	rankings *ranking.Aggregator
	users    *auth.Service

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service for cfg. A nil cfg means defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects the backends, builds the domain services and starts the
// workers and the watchdog.
func (s *Service) Start(ctx context.Context) error {
	const op = "service.Start"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	cfg := s.cfg

	s.logger.Info(ctx, "starting check-in service...",
		logger.String("storage", cfg.Storage),
		logger.String("task_store", cfg.TaskStore),
	)

	// Background loops outlive the start request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if err := s.openBackends(ctx, runCtx); err != nil {
		cancel()
		s.closeBackends(ctx)
		return fmt.Errorf("%s: %w", op, err)
	}

	var blobs checkin.BlobStore
	if cfg.PhotoDir != "" {
		local, err := blob.NewLocalStore(cfg.PhotoDir, cfg.PhotoBaseURL, blob.WithMaxDimension(cfg.PhotoMaxDimension))
		if err != nil {
			cancel()
			s.closeBackends(ctx)
			return fmt.Errorf("%s: %w", op, err)
		}
		blobs = local
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	submitter := taskstore.NewSubmitter(s.tasks, s.queue, taskstore.WithSubmitterClock(s.now))

	s.rankings = ranking.New(s.store,
		ranking.WithTTL(cfg.RankingTTL),
		ranking.WithClock(s.now),
	)
	s.events = registry.New(submitter, s.tasks, s.store)
	s.teams = ledger.New(s.store, s.rankings,
		ledger.WithStrict(cfg.MembershipStrict),
		ledger.WithClock(s.now),
	)
	s.checkins = checkin.New(s.store, blobs, s.rankings,
		checkin.WithRecentLimits(cfg.RecentDefaultLimit, cfg.RecentMaxLimit),
		checkin.WithClock(s.now),
	)
	s.users = auth.New(s.store, s.revocationList(), []byte(cfg.JWTSecret),
		auth.WithTokenTTL(cfg.TokenTTL),
		auth.WithBcryptCost(cfg.BcryptCost),
		auth.WithClock(s.now),
	)

	s.pool = worker.NewPool(cfg.WorkerCount, s.queue, s.tasks,
		worker.Handlers{model.TaskCreateEvent: s.events.Provision},
		worker.WithTaskTimeout(cfg.TaskTimeout),
		worker.WithClock(s.now),
	)
	s.pool.Start(runCtx)

	s.watchdog = worker.NewWatchdog(s.tasks, s.queue,
		worker.WithInterval(cfg.WatchdogInterval),
		worker.WithStaleAfter(2*cfg.TaskTimeout),
		worker.WithRequeueAfter(cfg.RequeueAfter),
		worker.WithRetention(cfg.TaskTTL),
		worker.WithWatchdogClock(s.now),
	)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watchdog.Run(runCtx)
	}()

	if s.revocations != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sweepRevocations(runCtx)
		}()
	}

	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "check-in service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_capacity", cfg.QueueSize),
		logger.Bool("photos", blobs != nil),
		logger.Bool("membership_strict", cfg.MembershipStrict),
	)
	return nil
}

// openBackends connects the relational store and the task store unless they
// were injected.
func (s *Service) openBackends(ctx, runCtx context.Context) error {
	cfg := s.cfg

	if s.tasks == nil && cfg.TaskStore == config.TaskStoreRedis {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w: %w", model.ErrUnavailable, err)
		}
	}
	if s.tasks == nil {
		if s.redis != nil {
			s.tasks = taskstore.NewRedisStore(s.redis,
				taskstore.WithKeyPrefix(redisKeyPrefix),
				taskstore.WithTTL(cfg.TaskTTL),
			)
		} else {
			s.tasks = taskstore.NewMemoryStore(taskstore.WithMemoryClock(s.now))
		}
	}

	if s.store == nil {
		s.ownsStore = true
		switch cfg.Storage {
		case config.StoragePostgres:
			pg, err := postgres.Connect(ctx, cfg.PostgresDSN,
				postgres.WithMaxConns(cfg.PostgresMaxConns),
				postgres.WithClock(s.now),
			)
			if err != nil {
				return err
			}
			s.store = pg
		default:
			s.store = repository.NewMemStore(runCtx, repository.WithClock(s.now))
		}
	}
	return nil
}

func (s *Service) revocationList() auth.Revocations {
	if s.redis != nil {
		return auth.NewRedisRevocations(s.redis, redisKeyPrefix)
	}
	s.revocations = auth.NewMemoryRevocations(s.cfg.TokenTTL)
	return s.revocations
}

// sweepRevocations drops expired in-process revocations once per watchdog interval.
func (s *Service) sweepRevocations(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.revocations.Sweep(ctx); n > 0 {
				s.logger.Debug(ctx, "swept revocations", logger.Int("removed", n))
			}
		}
	}
}

func (s *Service) closeBackends(ctx context.Context) {
	if s.store != nil && s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "failed to close store", logger.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error(ctx, "failed to close redis client", logger.Error(err))
		}
		s.redis = nil
	}
}

// Stop drains the queue, stops the workers and closes the backends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping check-in service...")

	drainCtx, cancelDrain := context.WithTimeout(ctx, drainTimeout)
	if err := s.queue.WaitEmpty(drainCtx); err != nil {
		s.logger.Warn(ctx, "queue not drained before shutdown",
			logger.Int("remaining", s.queue.Len(ctx)),
			logger.Error(err),
		)
	}
	cancelDrain()

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, shutdownTimeout)
	defer cancelShutdown()
	if err := s.watchdog.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(ctx, "watchdog shutdown failed", logger.Error(err))
	}
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	_ = s.queue.Close()

	s.cancel()
	s.wg.Wait()
	s.closeBackends(ctx)

	s.started = false
	s.logger.Info(ctx, "check-in service stopped")
}

// Ping reports whether the service and its backends are reachable.
func (s *Service) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return ErrNotStarted
	}
	if err := s.store.Ping(ctx); err != nil {
		return err
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("%w: %w", model.ErrUnavailable, err)
		}
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":    s.started,
		"storage":    s.cfg.Storage,
		"task_store": s.cfg.TaskStore,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["workers"] = s.pool.Size()
	stats["queue_capacity"] = s.cfg.QueueSize
	stats["queue_length"] = s.queue.Len(ctx)
	stats["cached_rankings"] = s.rankings.Len()
	if n, err := s.store.CountEvents(ctx); err == nil {
		stats["events"] = n
	}
	if mem, ok := s.tasks.(*taskstore.MemoryStore); ok {
		stats["tasks"] = mem.Len()
	}
	return stats
}
