package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration from defaults, the optional
// user config, the optional project config, and environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, Dir, FileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(cfg, userPath); err != nil {
				return nil, err
			}
		}
	}

	projectPath := filepath.Join(Dir, FileName)
	if _, err := os.Stat(projectPath); err == nil {
		if err := mergeFromFile(cfg, projectPath); err != nil {
			return nil, err
		}
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads configuration from one explicit file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := mergeFromFile(cfg, path); err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFromFile overlays the file's values onto cfg. Keys absent from the
// file keep their current values.
func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from MAHAVISHNU_* environment variables. The
// variable name is the config path upper-cased with dots replaced by
// underscores, e.g. MAHAVISHNU_DLQ_MAX_SIZE for dlq.max_size.
func ApplyEnv(cfg *Config) {
	setBool(&cfg.DLQ.Enabled, "DLQ_ENABLED")
	setInt(&cfg.DLQ.MaxSize, "DLQ_MAX_SIZE")
	setString(&cfg.DLQ.DefaultRetryPolicy, "DLQ_DEFAULT_RETRY_POLICY")
	setInt(&cfg.DLQ.DefaultMaxRetries, "DLQ_DEFAULT_MAX_RETRIES")
	setBool(&cfg.DLQ.RetryProcessorEnabled, "DLQ_RETRY_PROCESSOR_ENABLED")
	setInt(&cfg.DLQ.RetryIntervalSeconds, "DLQ_RETRY_INTERVAL_SECONDS")
	setString(&cfg.DLQ.PersistencePath, "DLQ_PERSISTENCE_PATH")

	setString(&cfg.Ordering.DefaultStrategy, "ORDERING_DEFAULT_STRATEGY")
	setInt(&cfg.Ordering.UrgentDeadlineDays, "ORDERING_URGENT_DEADLINE_DAYS")
	setInt(&cfg.Ordering.ApproachingDeadlineDays, "ORDERING_APPROACHING_DEADLINE_DAYS")

	setInt(&cfg.Subscription.PingIntervalSeconds, "SUBSCRIPTION_PING_INTERVAL_SECONDS")
	setInt(&cfg.Subscription.DeliveryQueueSize, "SUBSCRIPTION_DELIVERY_QUEUE_SIZE")
	setInt(&cfg.Subscription.RequestTimeoutSeconds, "SUBSCRIPTION_REQUEST_TIMEOUT_SECONDS")

	setString(&cfg.Server.ListenAddr, "SERVER_LISTEN_ADDR")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
}

func setString(target *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		*target = v
	}
}

func setInt(target *int, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = n
		}
	}
}

func setBool(target *bool, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*target = b
		}
	}
}
