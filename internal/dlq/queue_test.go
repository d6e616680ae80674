package dlq

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahavishnu/mahavishnu/internal/errors"
	"github.com/mahavishnu/mahavishnu/internal/task"
)

func enqueue(t *testing.T, q *Queue, id string, policy RetryPolicy, maxRetries int) *Record {
	t.Helper()
	rec, err := q.Enqueue(EnqueueRequest{
		TaskID:     id,
		Payload:    task.New("01hgw2bbg0abcdefghjkmnpqrs", "Task "+id),
		Repos:      []string{"core"},
		Err:        "boom",
		Policy:     policy,
		MaxRetries: maxRetries,
		Category:   CategoryTransient,
	})
	require.NoError(t, err)
	return rec
}

func TestPolicyDelays(t *testing.T) {
	tests := []struct {
		policy RetryPolicy
		n      int
		want   time.Duration
		ok     bool
	}{
		{PolicyNever, 0, 0, false},
		{PolicyImmediate, 0, 0, true},
		{PolicyImmediate, 5, 0, true},
		{PolicyLinear, 0, 5 * time.Minute, true},
		{PolicyLinear, 1, 10 * time.Minute, true},
		{PolicyLinear, 3, 20 * time.Minute, true},
		{PolicyExponential, 0, time.Minute, true},
		{PolicyExponential, 1, 2 * time.Minute, true},
		{PolicyExponential, 2, 4 * time.Minute, true},
		{PolicyExponential, 5, 32 * time.Minute, true},
		{PolicyExponential, 6, 60 * time.Minute, true},
		{PolicyExponential, 20, 60 * time.Minute, true},
	}
	for _, tt := range tests {
		d, ok := tt.policy.Delay(tt.n)
		assert.Equal(t, tt.ok, ok, "%s n=%d", tt.policy, tt.n)
		assert.Equal(t, tt.want, d, "%s n=%d", tt.policy, tt.n)
	}
}

func TestExponentialSchedule(t *testing.T) {
	at := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	q := NewQueue(WithClock(func() time.Time { return at }))

	rec := enqueue(t, q, "t1", PolicyExponential, 3)
	require.NotNil(t, rec.NextRetryAt)
	assert.Equal(t, at.Add(time.Minute), *rec.NextRetryAt, "first retry at T+60s")

	fail := func(*task.Task, []string) error { return fmt.Errorf("still broken") }

	require.Error(t, q.Retry("t1", fail))
	rec, _ = q.Get("t1")
	assert.Equal(t, at.Add(2*time.Minute), *rec.NextRetryAt, "second retry at T+120s")
	assert.Equal(t, 1, rec.RetryCount)

	require.Error(t, q.Retry("t1", fail))
	rec, _ = q.Get("t1")
	assert.Equal(t, at.Add(4*time.Minute), *rec.NextRetryAt, "third retry at T+240s")
	assert.Equal(t, 2, rec.RetryCount)

	require.Error(t, q.Retry("t1", fail))
	rec, _ = q.Get("t1")
	assert.Equal(t, StatusExhausted, rec.Status)
	assert.Equal(t, 3, rec.RetryCount)
	assert.Nil(t, rec.NextRetryAt)

	// Exhausted records are never dispatched again.
	err := q.Retry("t1", fail)
	assert.Equal(t, errors.CodeRetryExhausted, errors.CodeOf(err))
	rec, _ = q.Get("t1")
	assert.Equal(t, 3, rec.RetryCount, "retry count never exceeds max")
}

func TestQueueFull(t *testing.T) {
	q := NewQueue(WithCapacity(5))
	for i := 0; i < 5; i++ {
		enqueue(t, q, fmt.Sprintf("t%d", i), PolicyNever, 0)
	}

	_, err := q.Enqueue(EnqueueRequest{
		TaskID:   "t5",
		Err:      "boom",
		Policy:   PolicyNever,
		Category: CategoryTransient,
	})
	assert.Equal(t, errors.CodeQueueFull, errors.CodeOf(err))

	stats := q.Statistics()
	assert.Equal(t, 5, stats.QueueSize)
	assert.Equal(t, 100.0, stats.UtilizationPercent)
}

func TestEnqueueValidation(t *testing.T) {
	q := NewQueue()

	_, err := q.Enqueue(EnqueueRequest{TaskID: "t1", Policy: "sometimes", Category: CategoryTransient})
	assert.Equal(t, errors.CodeInvalidStatus, errors.CodeOf(err))

	_, err = q.Enqueue(EnqueueRequest{TaskID: "t1", Policy: PolicyNever, Category: "oops"})
	assert.Equal(t, errors.CodeInvalidStatus, errors.CodeOf(err))

	// Max retries is clamped to the ceiling.
	rec := enqueue(t, q, "t1", PolicyLinear, 99)
	assert.Equal(t, MaxRetriesCeiling, rec.MaxRetries)
}

func TestReenqueueRefreshesExisting(t *testing.T) {
	q := NewQueue(WithCapacity(1))
	enqueue(t, q, "t1", PolicyLinear, 3)

	rec, err := q.Enqueue(EnqueueRequest{
		TaskID: "t1", Err: "boom again", Policy: PolicyLinear,
		MaxRetries: 3, Category: CategoryTransient,
	})
	require.NoError(t, err, "re-enqueue must not consume capacity")
	assert.Equal(t, 2, rec.TotalAttempts)
	assert.Equal(t, "boom again", rec.LastError)
	assert.Equal(t, 1, q.Size())
}

func TestReenqueueDoesNotRescheduleExhausted(t *testing.T) {
	q := NewQueue()
	enqueue(t, q, "t1", PolicyImmediate, 0)

	fail := func(*task.Task, []string) error { return fmt.Errorf("still broken") }
	require.Error(t, q.Retry("t1", fail))
	rec, _ := q.Get("t1")
	require.Equal(t, StatusExhausted, rec.Status)

	rec, err := q.Enqueue(EnqueueRequest{
		TaskID: "t1", Err: "boom again", Policy: PolicyImmediate,
		Category: CategoryTransient,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, rec.Status)
	assert.Nil(t, rec.NextRetryAt, "exhausted records receive no retry window")
	assert.Equal(t, "boom again", rec.LastError)
}

func TestArchive(t *testing.T) {
	q := NewQueue()
	enqueue(t, q, "t1", PolicyNever, 0)

	assert.True(t, q.Archive("t1"))
	_, ok := q.Get("t1")
	assert.False(t, ok, "archived records leave the active buffer")
	assert.False(t, q.Archive("t1"), "second archive reports absence")
	assert.Equal(t, 1, q.Statistics().Counters.Archived)
}

func TestClearAll(t *testing.T) {
	q := NewQueue()
	enqueue(t, q, "t1", PolicyNever, 0)
	enqueue(t, q, "t2", PolicyNever, 0)

	assert.Equal(t, 2, q.ClearAll())
	assert.Equal(t, 0, q.Size())
	assert.Equal(t, 0, q.ClearAll())
}

func TestList(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 4; i++ {
		enqueue(t, q, fmt.Sprintf("t%d", i), PolicyNever, 0)
	}

	all := q.List("", 0)
	require.Len(t, all, 4)
	// Insertion order preserved.
	assert.Equal(t, "t0", all[0].TaskID)
	assert.Equal(t, "t3", all[3].TaskID)

	limited := q.List(StatusPending, 2)
	assert.Len(t, limited, 2)
	assert.Empty(t, q.List(StatusExhausted, 0))
}

func TestManualRetrySuccess(t *testing.T) {
	q := NewQueue()
	enqueue(t, q, "t1", PolicyLinear, 3)

	var gotRepos []string
	err := q.Retry("t1", func(payload *task.Task, repos []string) error {
		gotRepos = repos
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"core"}, gotRepos)

	_, ok := q.Get("t1")
	assert.False(t, ok)
	stats := q.Statistics()
	assert.Equal(t, 1, stats.Counters.ManuallyRetried)
	assert.Equal(t, 0, stats.Counters.RetriedSuccess)
}

func TestManualRetryMissingRecord(t *testing.T) {
	q := NewQueue()
	err := q.Retry("ghost", func(*task.Task, []string) error { return nil })
	assert.Equal(t, errors.CodeRecordNotFound, errors.CodeOf(err))
}

func TestStatisticsBreakdowns(t *testing.T) {
	q := NewQueue(WithCapacity(10))
	enqueue(t, q, "t1", PolicyExponential, 3)
	enqueue(t, q, "t2", PolicyLinear, 3)
	_, err := q.Enqueue(EnqueueRequest{
		TaskID: "t3", Err: "denied", Policy: PolicyNever,
		Category: CategoryPermission,
	})
	require.NoError(t, err)

	stats := q.Statistics()
	assert.Equal(t, 3, stats.QueueSize)
	assert.Equal(t, 30.0, stats.UtilizationPercent)
	assert.Equal(t, 3, stats.StatusBreakdown[StatusPending])
	assert.Equal(t, 2, stats.ByCategory[CategoryTransient])
	assert.Equal(t, 1, stats.ByCategory[CategoryPermission])
	assert.Equal(t, 1, stats.ByPolicy[PolicyExponential])
	assert.Equal(t, 3, stats.Counters.Enqueued)
	assert.False(t, stats.ProcessorRunning)
}

func TestNeverPolicySchedulesNothing(t *testing.T) {
	q := NewQueue()
	rec := enqueue(t, q, "t1", PolicyNever, 3)
	assert.Nil(t, rec.NextRetryAt)
}

func TestConcurrentEnqueue(t *testing.T) {
	q := NewQueue(WithCapacity(1000))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := q.Enqueue(EnqueueRequest{
					TaskID:   fmt.Sprintf("t-%d-%d", n, j),
					Err:      "boom",
					Policy:   PolicyImmediate,
					Category: CategoryTransient,
				})
				if err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 400, q.Size())
}
