// Package dlq implements the dead-letter queue: a bounded buffer of
// failed tasks with configurable retry policies and a background retry
// processor.
package dlq

import (
	"time"

	"github.com/mahavishnu/mahavishnu/internal/task"
)

// RetryPolicy names the strategy for computing the next-retry instant.
// Values are the exact strings used on the wire.
type RetryPolicy string

const (
	PolicyNever       RetryPolicy = "never"
	PolicyLinear      RetryPolicy = "linear"
	PolicyExponential RetryPolicy = "exponential"
	PolicyImmediate   RetryPolicy = "immediate"
)

// ValidPolicies returns all valid retry policy values.
func ValidPolicies() []RetryPolicy {
	return []RetryPolicy{PolicyNever, PolicyLinear, PolicyExponential, PolicyImmediate}
}

// IsValidPolicy returns true if the policy is a valid value.
func IsValidPolicy(p RetryPolicy) bool {
	switch p {
	case PolicyNever, PolicyLinear, PolicyExponential, PolicyImmediate:
		return true
	default:
		return false
	}
}

// maxBackoff caps exponential delays.
const maxBackoff = 60 * time.Minute

// Delay returns the wait before retry number n (0-indexed), measured from
// the current instant. The second return is false when the policy never
// retries.
func (p RetryPolicy) Delay(n int) (time.Duration, bool) {
	switch p {
	case PolicyImmediate:
		return 0, true
	case PolicyLinear:
		return time.Duration(5*(n+1)) * time.Minute, true
	case PolicyExponential:
		if n >= 6 { // 2^6 = 64 > 60
			return maxBackoff, true
		}
		d := time.Duration(1<<uint(n)) * time.Minute
		if d > maxBackoff {
			d = maxBackoff
		}
		return d, true
	default:
		return 0, false
	}
}

// ErrorCategory classifies the failure that sent a task to the queue.
type ErrorCategory string

const (
	CategoryTransient  ErrorCategory = "transient"
	CategoryNetwork    ErrorCategory = "network"
	CategoryResource   ErrorCategory = "resource"
	CategoryPermission ErrorCategory = "permission"
	CategoryValidation ErrorCategory = "validation"
	CategoryPermanent  ErrorCategory = "permanent"
)

// IsValidCategory returns true if the category is a valid value.
func IsValidCategory(c ErrorCategory) bool {
	switch c {
	case CategoryTransient, CategoryNetwork, CategoryResource,
		CategoryPermission, CategoryValidation, CategoryPermanent:
		return true
	default:
		return false
	}
}

// Status is a record's position in the queue lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRetrying  Status = "retrying"
	StatusCompleted Status = "completed"
	StatusExhausted Status = "exhausted"
	StatusArchived  Status = "archived"
)

// Record is one failed task awaiting retry, exhaustion, or archival.
type Record struct {
	TaskID        string         `json:"task_id"`
	Payload       *task.Task     `json:"payload"`
	Repos         []string       `json:"repos,omitempty"`
	LastError     string         `json:"last_error"`
	FirstFailedAt time.Time      `json:"first_failed_at"`
	NextRetryAt   *time.Time     `json:"next_retry_at,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	Policy        RetryPolicy    `json:"retry_policy"`
	Category      ErrorCategory  `json:"error_category"`
	Status        Status         `json:"status"`
	TotalAttempts int            `json:"total_attempts"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy safe to hand to callers outside the queue lock.
func (r *Record) Clone() *Record {
	c := *r
	if r.Payload != nil {
		c.Payload = r.Payload.Clone()
	}
	if r.NextRetryAt != nil {
		at := *r.NextRetryAt
		c.NextRetryAt = &at
	}
	if r.Repos != nil {
		c.Repos = append([]string(nil), r.Repos...)
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// scheduleNext computes the record's next-retry instant for retry number
// n from now, or clears it for non-retrying policies.
func (r *Record) scheduleNext(now time.Time, n int) {
	if delay, ok := r.Policy.Delay(n); ok {
		at := now.Add(delay)
		r.NextRetryAt = &at
	} else {
		r.NextRetryAt = nil
	}
}

// Store is the advisory persistence projection. Writes are best-effort:
// the queue logs and ignores failures, and no recovery protocol exists.
type Store interface {
	Save(rec *Record) error
	Delete(taskID string) error
}

// RetryFunc re-executes a failed task. It is invoked synchronously and is
// not cancellable mid-call; long work should carry its own timeouts.
type RetryFunc func(payload *task.Task, repos []string) error
