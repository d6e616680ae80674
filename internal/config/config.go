// Package config provides layered configuration for mahavishnu.
// Load order (later sources override earlier): built-in defaults, user
// config (~/.mahavishnu/config.yaml), project config
// (.mahavishnu/config.yaml), environment variables (MAHAVISHNU_*).
package config

import (
	"github.com/mahavishnu/mahavishnu/internal/dlq"
	"github.com/mahavishnu/mahavishnu/internal/ordering"
)

const (
	// Dir is the project configuration directory.
	Dir = ".mahavishnu"

	// FileName is the config file name inside Dir.
	FileName = "config.yaml"

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "MAHAVISHNU_"
)

// Config is the root configuration.
type Config struct {
	DLQ          DLQConfig          `yaml:"dlq"`
	Ordering     OrderingConfig     `yaml:"ordering"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Server       ServerConfig       `yaml:"server"`
	Pools        []PoolConfig       `yaml:"pools"`
	Log          LogConfig          `yaml:"log"`
}

// DLQConfig controls the dead-letter queue.
type DLQConfig struct {
	Enabled               bool   `yaml:"enabled"`
	MaxSize               int    `yaml:"max_size"`
	DefaultRetryPolicy    string `yaml:"default_retry_policy"`
	DefaultMaxRetries     int    `yaml:"default_max_retries"`
	RetryProcessorEnabled bool   `yaml:"retry_processor_enabled"`
	RetryIntervalSeconds  int    `yaml:"retry_interval_seconds"`
	// PersistencePath is the advisory sqlite projection. Empty disables
	// persistence.
	PersistencePath string `yaml:"persistence_path"`
}

// OrderingConfig controls the task ordering engine.
type OrderingConfig struct {
	DefaultStrategy         string `yaml:"default_strategy"`
	UrgentDeadlineDays      int    `yaml:"urgent_deadline_days"`
	ApproachingDeadlineDays int    `yaml:"approaching_deadline_days"`
}

// SubscriptionConfig controls the event bus and gateway sessions.
type SubscriptionConfig struct {
	PingIntervalSeconds   int `yaml:"ping_interval_seconds"`
	DeliveryQueueSize     int `yaml:"delivery_queue_size"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// ServerConfig controls the gateway listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// PoolConfig describes one worker pool spawned at startup.
type PoolConfig struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type"`
	MinWorkers int    `yaml:"min_workers"`
	MaxWorkers int    `yaml:"max_workers"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json, auto
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DLQ: DLQConfig{
			Enabled:               true,
			MaxSize:               dlq.DefaultCapacity,
			DefaultRetryPolicy:    string(dlq.PolicyExponential),
			DefaultMaxRetries:     3,
			RetryProcessorEnabled: true,
			RetryIntervalSeconds:  60,
		},
		Ordering: OrderingConfig{
			DefaultStrategy:         string(ordering.StrategyBalanced),
			UrgentDeadlineDays:      3,
			ApproachingDeadlineDays: 7,
		},
		Subscription: SubscriptionConfig{
			PingIntervalSeconds:   20,
			DeliveryQueueSize:     1024,
			RequestTimeoutSeconds: 5,
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8722",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}
