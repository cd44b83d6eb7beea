package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHECKIN_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CHECKIN_CONFIG is set
//  3. env (prefix CHECKIN_)
func Load(_ context.Context) (*Config, error) {
	const op = "config.Load"
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrLoadConfig, err)
		}
	}

	// CHECKIN_QUEUE_SIZE -> queue_size; keys are flat so "." never appears.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if c.Addr == "" {
		return invalid("addr must not be empty")
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return invalid("postgres_dsn is required when storage=postgres")
		}
	default:
		return invalid("unknown storage %q", c.Storage)
	}
	switch c.TaskStore {
	case TaskStoreMemory:
	case TaskStoreRedis:
		if c.RedisAddr == "" {
			return invalid("redis_addr is required when task_store=redis")
		}
	default:
		return invalid("unknown task_store %q", c.TaskStore)
	}
	if c.AuthRequired && c.JWTSecret == "" {
		return invalid("jwt_secret is required when auth_required")
	}
	if c.QueueSize <= 0 || c.WorkerCount <= 0 {
		return invalid("queue_size and worker_count must be positive")
	}
	if c.TaskTimeout <= 0 || c.RequeueAfter <= 0 || c.WatchdogInterval <= 0 {
		return invalid("task_timeout, requeue_after and watchdog_interval must be positive")
	}
	if c.RankingTTL < 0 {
		return invalid("ranking_ttl must not be negative")
	}
	if c.RecentDefaultLimit <= 0 || c.RecentMaxLimit < c.RecentDefaultLimit {
		return invalid("recent limits must satisfy 0 < recent_default_limit <= recent_max_limit")
	}
	if c.PhotoMaxDimension <= 0 || c.MaxBodyBytes <= 0 {
		return invalid("photo_max_dimension and max_body_bytes must be positive")
	}
	if c.TokenTTL <= 0 {
		return invalid("token_ttl must be positive")
	}
	return nil
}
