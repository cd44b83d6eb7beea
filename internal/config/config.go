// Package config defines service configuration and its loading.
package config

import (
	"runtime"
	"time"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Task store backends.
const (
	TaskStoreMemory = "memory"
	TaskStoreRedis  = "redis"
)

// DefaultPhotoDir is the photo directory, relative to the working directory.
const DefaultPhotoDir = "./data/photos"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Storage selects the relational backend: memory or postgres.
	Storage          string `koanf:"storage"`
	PostgresDSN      string `koanf:"postgres_dsn"`
	PostgresMaxConns int32  `koanf:"postgres_max_conns"`

	// TaskStore selects where task records live: memory or redis.
	TaskStore     string        `koanf:"task_store"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	TaskTTL       time.Duration `koanf:"task_ttl"`

	// QueueSize bounds the in-memory task queue.
	QueueSize   int `koanf:"queue_size"`
	WorkerCount int `koanf:"worker_count"`
	// TaskTimeout caps a single handler run.
	TaskTimeout time.Duration `koanf:"task_timeout"`
	// RequeueAfter is how long a task may sit PENDING before the watchdog
	// offers it to the queue again.
	RequeueAfter     time.Duration `koanf:"requeue_after"`
	WatchdogInterval time.Duration `koanf:"watchdog_interval"`

	RankingTTL       time.Duration `koanf:"ranking_ttl"`
	MembershipStrict bool          `koanf:"membership_strict"`

	RecentDefaultLimit int `koanf:"recent_default_limit"`
	RecentMaxLimit     int `koanf:"recent_max_limit"`

	// PhotoDir is where photos are written. Empty disables photo uploads.
	PhotoDir          string `koanf:"photo_dir"`
	PhotoBaseURL      string `koanf:"photo_base_url"`
	PhotoMaxDimension int    `koanf:"photo_max_dimension"`
	MaxBodyBytes      int64  `koanf:"max_body_bytes"`

	AuthRequired bool          `koanf:"auth_required"`
	JWTSecret    string        `koanf:"jwt_secret"`
	TokenTTL     time.Duration `koanf:"token_ttl"`
	BcryptCost   int           `koanf:"bcrypt_cost"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "json",
		Addr:               ":9080",
		Storage:            StorageMemory,
		PostgresMaxConns:   16,
		TaskStore:          TaskStoreMemory,
		TaskTTL:            24 * time.Hour,
		QueueSize:          10_000,
		WorkerCount:        runtime.NumCPU() * 2,
		TaskTimeout:        30 * time.Second,
		RequeueAfter:       2 * time.Minute,
		WatchdogInterval:   15 * time.Second,
		RankingTTL:         2 * time.Second,
		RecentDefaultLimit: 20,
		RecentMaxLimit:     100,
		PhotoDir:           DefaultPhotoDir,
		PhotoBaseURL:       "/photos",
		PhotoMaxDimension:  1280,
		MaxBodyBytes:       10 << 20,
		TokenTTL:           24 * time.Hour,
		BcryptCost:         10,
	}
}
