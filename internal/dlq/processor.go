package dlq

import (
	"sync"
	"time"
)

// DefaultCheckInterval is the retry processor's polling period.
const DefaultCheckInterval = 60 * time.Second

// panicBackoff is how long the processor sleeps after an iteration panics.
const panicBackoff = 10 * time.Second

// processor is the background retry loop's control state.
type processor struct {
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	stopped chan struct{}
}

// StartRetryProcessor launches the background retry loop. Idempotent:
// starting a running processor is a no-op.
func (q *Queue) StartRetryProcessor(fn RetryFunc, checkInterval time.Duration) {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}

	q.proc.mu.Lock()
	defer q.proc.mu.Unlock()
	if q.proc.running {
		return
	}
	q.proc.running = true
	q.proc.stop = make(chan struct{})
	q.proc.stopped = make(chan struct{})

	go q.runProcessor(fn, checkInterval, q.proc.stop, q.proc.stopped)
	q.logger.Info("dlq retry processor started", "check_interval", checkInterval)
}

// StopRetryProcessor stops the loop. It cancels only the sleep, then
// waits for any in-flight iteration to complete before returning.
// Idempotent: stopping a stopped processor is a no-op.
func (q *Queue) StopRetryProcessor() {
	q.proc.mu.Lock()
	if !q.proc.running {
		q.proc.mu.Unlock()
		return
	}
	q.proc.running = false
	close(q.proc.stop)
	stopped := q.proc.stopped
	q.proc.mu.Unlock()

	<-stopped
	q.logger.Info("dlq retry processor stopped")
}

// ProcessorRunning reports whether the background loop is active.
func (q *Queue) ProcessorRunning() bool {
	q.proc.mu.Lock()
	defer q.proc.mu.Unlock()
	return q.proc.running
}

// runProcessor is the retry loop. An iteration that panics is logged,
// backed off, and never terminates the loop.
func (q *Queue) runProcessor(fn RetryFunc, interval time.Duration, stop, stopped chan struct{}) {
	defer close(stopped)

	for {
		select {
		case <-stop:
			return
		case <-time.After(interval):
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error("dlq retry iteration panicked", "panic", r)
					select {
					case <-stop:
					case <-time.After(panicBackoff):
					}
				}
			}()
			q.processDue(fn)
		}()
	}
}

// processDue selects due records under the lock, then retries each one
// outside it. The status=retrying gate guarantees a record is never
// dispatched to the callback twice concurrently.
func (q *Queue) processDue(fn RetryFunc) {
	now := q.now().UTC()

	q.mu.Lock()
	var due []*Record
	for _, id := range q.order {
		rec := q.records[id]
		if rec == nil || rec.Status != StatusPending {
			continue
		}
		if rec.RetryCount >= rec.MaxRetries {
			continue
		}
		if rec.NextRetryAt == nil || rec.NextRetryAt.After(now) {
			continue
		}
		rec.Status = StatusRetrying
		due = append(due, rec)
	}
	snapshots := make([]*Record, len(due))
	for i, rec := range due {
		snapshots[i] = rec.Clone()
	}
	q.mu.Unlock()

	for i, rec := range due {
		q.persist(snapshots[i])
		q.retryOne(rec.TaskID, snapshots[i], fn)
	}
}

// retryOne invokes the callback for one selected record and applies the
// outcome. The queue lock is held only for the bookkeeping, never across
// the callback.
func (q *Queue) retryOne(taskID string, snapshot *Record, fn RetryFunc) {
	err := fn(snapshot.Payload, snapshot.Repos)

	q.mu.Lock()
	rec, ok := q.records[taskID]
	if !ok {
		q.mu.Unlock()
		return
	}
	if err == nil {
		rec.Status = StatusCompleted
		q.removeLocked(taskID)
		q.counters.RetriedSuccess++
		q.mu.Unlock()

		q.unpersist(taskID)
		q.logger.Info("dlq retry succeeded", "task", taskID, "attempts", rec.TotalAttempts)
		return
	}

	q.recordFailureLocked(rec, err)
	exhausted := rec.Status == StatusExhausted
	updated := rec.Clone()
	q.mu.Unlock()

	q.persist(updated)
	if exhausted {
		q.logger.Warn("dlq record exhausted", "task", taskID, "retries", updated.RetryCount)
	} else {
		q.logger.Info("dlq retry failed", "task", taskID,
			"retry_count", updated.RetryCount, "next_retry", updated.NextRetryAt)
	}
}
