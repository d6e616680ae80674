package config

import (
	"github.com/mahavishnu/mahavishnu/internal/dlq"
	"github.com/mahavishnu/mahavishnu/internal/errors"
	"github.com/mahavishnu/mahavishnu/internal/ordering"
)

// Range bounds enforced at validation time.
const (
	MinDLQSize = 100
	MaxDLQSize = 100000

	MinRetryInterval = 10
	MaxRetryInterval = 3600
)

// Validate checks every configured value against its allowed range.
// Out-of-range values are errors, not clamps: a config the operator wrote
// down wrong should fail loudly at startup.
func (c *Config) Validate() error {
	if c.DLQ.MaxSize < MinDLQSize || c.DLQ.MaxSize > MaxDLQSize {
		return errors.Newf(errors.CodeConfigInvalid,
			"dlq.max_size %d out of range [%d, %d]", c.DLQ.MaxSize, MinDLQSize, MaxDLQSize)
	}
	if !dlq.IsValidPolicy(dlq.RetryPolicy(c.DLQ.DefaultRetryPolicy)) {
		return errors.Newf(errors.CodeConfigInvalid,
			"dlq.default_retry_policy %q is not one of never, linear, exponential, immediate",
			c.DLQ.DefaultRetryPolicy)
	}
	if c.DLQ.DefaultMaxRetries < 0 || c.DLQ.DefaultMaxRetries > dlq.MaxRetriesCeiling {
		return errors.Newf(errors.CodeConfigInvalid,
			"dlq.default_max_retries %d out of range [0, %d]",
			c.DLQ.DefaultMaxRetries, dlq.MaxRetriesCeiling)
	}
	if c.DLQ.RetryIntervalSeconds < MinRetryInterval || c.DLQ.RetryIntervalSeconds > MaxRetryInterval {
		return errors.Newf(errors.CodeConfigInvalid,
			"dlq.retry_interval_seconds %d out of range [%d, %d]",
			c.DLQ.RetryIntervalSeconds, MinRetryInterval, MaxRetryInterval)
	}

	if !ordering.IsValidStrategy(ordering.Strategy(c.Ordering.DefaultStrategy)) {
		return errors.Newf(errors.CodeConfigInvalid,
			"ordering.default_strategy %q is not a known strategy", c.Ordering.DefaultStrategy)
	}
	if c.Ordering.UrgentDeadlineDays <= 0 {
		return errors.Newf(errors.CodeConfigInvalid,
			"ordering.urgent_deadline_days must be positive, got %d", c.Ordering.UrgentDeadlineDays)
	}
	if c.Ordering.ApproachingDeadlineDays < c.Ordering.UrgentDeadlineDays {
		return errors.Newf(errors.CodeConfigInvalid,
			"ordering.approaching_deadline_days %d must be >= urgent_deadline_days %d",
			c.Ordering.ApproachingDeadlineDays, c.Ordering.UrgentDeadlineDays)
	}

	if c.Subscription.PingIntervalSeconds <= 0 {
		return errors.Newf(errors.CodeConfigInvalid,
			"subscription.ping_interval_seconds must be positive, got %d",
			c.Subscription.PingIntervalSeconds)
	}
	if c.Subscription.DeliveryQueueSize < 2 {
		return errors.Newf(errors.CodeConfigInvalid,
			"subscription.delivery_queue_size must be at least 2, got %d",
			c.Subscription.DeliveryQueueSize)
	}
	if c.Subscription.RequestTimeoutSeconds <= 0 {
		return errors.Newf(errors.CodeConfigInvalid,
			"subscription.request_timeout_seconds must be positive, got %d",
			c.Subscription.RequestTimeoutSeconds)
	}

	seen := make(map[string]bool)
	for _, p := range c.Pools {
		if p.ID == "" {
			return errors.New(errors.CodeConfigInvalid, "pool entry missing id")
		}
		if seen[p.ID] {
			return errors.Newf(errors.CodeConfigInvalid, "duplicate pool id %q", p.ID)
		}
		seen[p.ID] = true
		if p.MinWorkers < 0 || p.MaxWorkers < p.MinWorkers {
			return errors.Newf(errors.CodeConfigInvalid,
				"pool %q worker bounds [%d, %d] are invalid", p.ID, p.MinWorkers, p.MaxWorkers)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.CodeConfigInvalid, "log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json", "auto":
	default:
		return errors.Newf(errors.CodeConfigInvalid, "log.format %q is not one of text, json, auto", c.Log.Format)
	}

	return nil
}
