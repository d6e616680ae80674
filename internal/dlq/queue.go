package dlq

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mahavishnu/mahavishnu/internal/errors"
	"github.com/mahavishnu/mahavishnu/internal/task"
)

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 10000

// MaxRetriesCeiling is the hard upper bound on per-record max retries.
const MaxRetriesCeiling = 10

// Queue is the dead-letter queue. A single mutex guards the buffer;
// persistence and retry callbacks always run outside it.
type Queue struct {
	mu       sync.Mutex
	records  map[string]*Record
	order    []string // insertion order
	capacity int
	counters counters

	store  Store
	logger *slog.Logger
	now    func() time.Time

	proc processor
}

// counters are the lifetime statistics.
type counters struct {
	Enqueued        int `json:"enqueued"`
	RetriedSuccess  int `json:"retried_success"`
	RetriedFailed   int `json:"retried_failed"`
	Exhausted       int `json:"exhausted"`
	ManuallyRetried int `json:"manually_retried"`
	Archived        int `json:"archived"`
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithCapacity bounds the active buffer.
func WithCapacity(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithStore attaches an advisory persistence projection.
func WithStore(s Store) QueueOption {
	return func(q *Queue) { q.store = s }
}

// WithLogger sets the queue's logger.
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a dead-letter queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		records:  make(map[string]*Record),
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.proc.stopped = make(chan struct{})
	close(q.proc.stopped)
	return q
}

// EnqueueRequest carries the parameters for admitting a failed task.
type EnqueueRequest struct {
	TaskID     string
	Payload    *task.Task
	Repos      []string
	Err        string
	Policy     RetryPolicy
	MaxRetries int
	Category   ErrorCategory
	Metadata   map[string]any
}

// Enqueue admits a failed task. It fails with QUEUE_FULL at capacity.
// Re-enqueueing a task already in the buffer refreshes its error and
// bumps total attempts instead of consuming capacity.
func (q *Queue) Enqueue(req EnqueueRequest) (*Record, error) {
	if !IsValidPolicy(req.Policy) {
		return nil, errors.Newf(errors.CodeInvalidStatus, "invalid retry policy %q", req.Policy)
	}
	if !IsValidCategory(req.Category) {
		return nil, errors.Newf(errors.CodeInvalidStatus, "invalid error category %q", req.Category)
	}
	maxRetries := req.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxRetries > MaxRetriesCeiling {
		maxRetries = MaxRetriesCeiling
	}

	now := q.now().UTC()

	q.mu.Lock()
	if existing, ok := q.records[req.TaskID]; ok {
		existing.LastError = req.Err
		existing.TotalAttempts++
		// Exhausted records receive no further scheduling.
		if existing.Status == StatusPending {
			existing.scheduleNext(now, existing.RetryCount)
		}
		snapshot := existing.Clone()
		q.mu.Unlock()
		q.persist(snapshot)
		return snapshot, nil
	}

	if len(q.records) >= q.capacity {
		q.mu.Unlock()
		return nil, errors.ErrQueueFull(q.capacity)
	}

	rec := &Record{
		TaskID:        req.TaskID,
		Payload:       req.Payload,
		Repos:         req.Repos,
		LastError:     req.Err,
		FirstFailedAt: now,
		RetryCount:    0,
		MaxRetries:    maxRetries,
		Policy:        req.Policy,
		Category:      req.Category,
		Status:        StatusPending,
		TotalAttempts: 1,
		Metadata:      req.Metadata,
	}
	rec.scheduleNext(now, 0)
	q.records[req.TaskID] = rec
	q.order = append(q.order, req.TaskID)
	q.counters.Enqueued++
	snapshot := rec.Clone()
	q.mu.Unlock()

	q.persist(snapshot)
	return snapshot, nil
}

// persist writes the record to the advisory store. Best-effort: failures
// are logged and ignored.
func (q *Queue) persist(rec *Record) {
	if q.store == nil {
		return
	}
	if err := q.store.Save(rec); err != nil {
		q.logger.Warn("dlq persistence write failed", "task", rec.TaskID, "error", err)
	}
}

// unpersist deletes the record's projection. Best-effort.
func (q *Queue) unpersist(taskID string) {
	if q.store == nil {
		return
	}
	if err := q.store.Delete(taskID); err != nil {
		q.logger.Warn("dlq persistence delete failed", "task", taskID, "error", err)
	}
}

// Get returns a copy of the record for a task, if present.
func (q *Queue) Get(taskID string) (*Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.records[taskID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// List returns record copies in insertion order, optionally filtered by
// status. A limit of 0 means no limit.
func (q *Queue) List(status Status, limit int) []*Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Record
	for _, id := range q.order {
		rec, ok := q.records[id]
		if !ok {
			continue
		}
		if status != "" && rec.Status != status {
			continue
		}
		out = append(out, rec.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Archive drops the record from the active buffer and marks it archived.
// Returns false when no such record exists.
func (q *Queue) Archive(taskID string) bool {
	q.mu.Lock()
	rec, ok := q.records[taskID]
	if !ok {
		q.mu.Unlock()
		return false
	}
	rec.Status = StatusArchived
	q.removeLocked(taskID)
	q.counters.Archived++
	snapshot := rec.Clone()
	q.mu.Unlock()

	q.persist(snapshot)
	return true
}

// ClearAll empties the active buffer and returns the number of records
// removed.
func (q *Queue) ClearAll() int {
	q.mu.Lock()
	n := len(q.records)
	ids := make([]string, 0, n)
	for id := range q.records {
		ids = append(ids, id)
	}
	q.records = make(map[string]*Record)
	q.order = nil
	q.mu.Unlock()

	for _, id := range ids {
		q.unpersist(id)
	}
	return n
}

// removeLocked drops a record from the buffer. Called with the lock held.
func (q *Queue) removeLocked(taskID string) {
	delete(q.records, taskID)
	for i, id := range q.order {
		if id == taskID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// Retry synchronously invokes the callback for one record, regardless of
// its next-retry instant. On success the record is dropped and counted as
// manually retried; on failure its retry count and schedule advance
// exactly as for a background attempt.
func (q *Queue) Retry(taskID string, fn RetryFunc) error {
	q.mu.Lock()
	rec, ok := q.records[taskID]
	if !ok {
		q.mu.Unlock()
		return errors.Newf(errors.CodeRecordNotFound, "no dead-letter record for task %s", taskID)
	}
	if rec.Status == StatusRetrying {
		q.mu.Unlock()
		return errors.Newf(errors.CodeCallback, "task %s retry already in flight", taskID)
	}
	if rec.Status == StatusExhausted {
		q.mu.Unlock()
		return errors.Newf(errors.CodeRetryExhausted, "task %s has exhausted its retries", taskID)
	}
	rec.Status = StatusRetrying
	payload, repos := rec.Payload, append([]string(nil), rec.Repos...)
	q.mu.Unlock()

	err := fn(payload, repos)

	q.mu.Lock()
	rec, ok = q.records[taskID]
	if !ok {
		q.mu.Unlock()
		return nil
	}
	if err == nil {
		rec.Status = StatusCompleted
		q.removeLocked(taskID)
		q.counters.ManuallyRetried++
		q.mu.Unlock()
		q.unpersist(taskID)
		return nil
	}

	q.recordFailureLocked(rec, err)
	snapshot := rec.Clone()
	q.mu.Unlock()
	q.persist(snapshot)
	return errors.New(errors.CodeCallback, "retry callback failed").WithCause(err)
}

// recordFailureLocked advances a record after a failed attempt: retry
// count and total attempts increment, and the record either exhausts or
// reschedules. Called with the lock held.
func (q *Queue) recordFailureLocked(rec *Record, err error) {
	rec.LastError = err.Error()
	rec.TotalAttempts++
	q.counters.RetriedFailed++
	if rec.RetryCount < rec.MaxRetries {
		rec.RetryCount++
	}

	if rec.RetryCount >= rec.MaxRetries {
		wasExhausted := rec.Status == StatusExhausted
		rec.Status = StatusExhausted
		rec.NextRetryAt = nil
		if !wasExhausted {
			q.counters.Exhausted++
		}
		return
	}
	rec.Status = StatusPending
	rec.scheduleNext(q.now().UTC(), rec.RetryCount)
}

// Size returns the number of active records.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}
