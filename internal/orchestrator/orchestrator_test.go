package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahavishnu/mahavishnu/internal/deps"
	"github.com/mahavishnu/mahavishnu/internal/dlq"
	"github.com/mahavishnu/mahavishnu/internal/events"
	"github.com/mahavishnu/mahavishnu/internal/ordering"
	"github.com/mahavishnu/mahavishnu/internal/pool"
	"github.com/mahavishnu/mahavishnu/internal/task"
)

// recordingExecutor remembers execution order and fails selected tasks.
type recordingExecutor struct {
	mu    sync.Mutex
	order []string
	fail  map[string]int // task-id -> remaining failures
}

func (e *recordingExecutor) Execute(_ context.Context, t *task.Task, _, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.order = append(e.order, t.ID)
	if e.fail[t.ID] > 0 {
		e.fail[t.ID]--
		return fmt.Errorf("simulated failure for %s", t.ID)
	}
	return nil
}

func (e *recordingExecutor) executions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

type harness struct {
	orch     *Orchestrator
	deps     *deps.Manager
	queue    *dlq.Queue
	registry *pool.Registry
	exec     *recordingExecutor
}

func newHarness(t *testing.T, workers int, exec *recordingExecutor) *harness {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	registry := pool.NewRegistry(bus)
	_, err := registry.Register("main", "claude", 0, workers)
	require.NoError(t, err)
	require.NoError(t, registry.SetStatus("main", pool.StatusRunning))
	for i := 0; i < workers; i++ {
		require.NoError(t, registry.AddWorker("main", fmt.Sprintf("w%d", i)))
	}

	depMgr := deps.NewManager(nil)
	queue := dlq.NewQueue()
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond

	if exec == nil {
		exec = &recordingExecutor{}
	}
	orch := New(cfg, depMgr, ordering.NewEngine(), registry, queue, exec)
	return &harness{orch: orch, deps: depMgr, queue: queue, registry: registry, exec: exec}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func submit(t *testing.T, h *harness, title string, dependsOn []string) string {
	t.Helper()
	id, err := h.orch.SubmitTask(task.New("", title), dependsOn)
	require.NoError(t, err)
	return id
}

func TestSubmitAssignsIdentifier(t *testing.T) {
	h := newHarness(t, 1, nil)

	id, err := h.orch.SubmitTask(task.New("", "Build the thing"), nil)
	require.NoError(t, err)
	assert.Len(t, id, 26)

	got, ok := h.orch.Task(id)
	require.True(t, ok)
	assert.Equal(t, "Build the thing", got.Title)
	assert.Equal(t, task.StatusPending, got.Status)
}

func TestSubmitRejectsInvalidTask(t *testing.T) {
	h := newHarness(t, 1, nil)

	_, err := h.orch.SubmitTask(task.New("", "ab"), nil) // title too short
	assert.Error(t, err)
}

func TestDispatchRollbackHidesFailureFromDependents(t *testing.T) {
	h := newHarness(t, 1, nil)

	// Occupy the only worker so the assignment below is rejected.
	require.NoError(t, h.registry.Assign("main", "w0", "occupant"))

	t1 := submit(t, h, "First task", nil)
	_ = submit(t, h, "Second task", []string{t1})

	var mu sync.Mutex
	var seen []deps.EventType
	h.deps.AddHandler(deps.HandlerFunc(func(ev deps.Event) {
		mu.Lock()
		seen = append(seen, ev.Type)
		mu.Unlock()
	}))

	tk, ok := h.orch.Task(t1)
	require.True(t, ok)
	h.orch.dispatch(tk, "main", "w0")

	// The task is back to pending and ready for the next cycle.
	st, _ := h.deps.Status(t1)
	assert.Equal(t, task.StatusPending, st)
	assert.Equal(t, []string{t1}, h.deps.GetReadyTasks())

	// Dependents never observe a failed transition from the rollback.
	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, seen, deps.DependencyFailed)
}

func TestRunsChainToCompletion(t *testing.T) {
	exec := &recordingExecutor{}
	h := newHarness(t, 2, exec)

	t1 := submit(t, h, "First task", nil)
	t2 := submit(t, h, "Second task", []string{t1})
	t3 := submit(t, h, "Third task", []string{t2})

	require.NoError(t, h.orch.Start(context.Background()))
	defer h.orch.Stop()

	waitFor(t, func() bool {
		s, _ := h.deps.Status(t3)
		return s == task.StatusCompleted
	}, "chain never completed")

	// Dependencies dictate execution order.
	assert.Equal(t, []string{t1, t2, t3}, exec.executions())

	snap := h.orch.Snapshot()
	assert.Equal(t, 3, snap.CompletedCount)
	assert.Equal(t, 0, snap.FailedCount)
	assert.Equal(t, 0, snap.DeadLetters)

	// Pool counters moved with the completions.
	ps, err := h.registry.PoolStatus("main")
	require.NoError(t, err)
	assert.Equal(t, 3, ps.TasksCompleted)
}

func TestFailureEntersDeadLetterQueue(t *testing.T) {
	exec := &recordingExecutor{fail: map[string]int{}}
	h := newHarness(t, 1, exec)

	id := submit(t, h, "Doomed task", nil)
	exec.mu.Lock()
	exec.fail[id] = 99
	exec.mu.Unlock()

	require.NoError(t, h.orch.Start(context.Background()))
	defer h.orch.Stop()

	waitFor(t, func() bool { return h.queue.Size() == 1 }, "failure never reached the queue")

	s, _ := h.deps.Status(id)
	assert.Equal(t, task.StatusFailed, s)

	rec, ok := h.queue.Get(id)
	require.True(t, ok)
	assert.Equal(t, dlq.CategoryTransient, rec.Category)
	assert.Equal(t, dlq.PolicyExponential, rec.Policy)
	assert.Contains(t, rec.LastError, "simulated failure")
}

func TestDeadLetterResubmission(t *testing.T) {
	exec := &recordingExecutor{fail: map[string]int{}}
	h := newHarness(t, 1, exec)
	h.orch.config.RetryPolicy = dlq.PolicyImmediate

	id := submit(t, h, "Flaky task", nil)
	exec.mu.Lock()
	exec.fail[id] = 1 // fail once, then succeed
	exec.mu.Unlock()

	require.NoError(t, h.orch.Start(context.Background()))
	defer h.orch.Stop()
	h.queue.StartRetryProcessor(h.orch.Resubmit, 10*time.Millisecond)
	defer h.queue.StopRetryProcessor()

	waitFor(t, func() bool {
		s, _ := h.deps.Status(id)
		return s == task.StatusCompleted
	}, "resubmitted task never completed")

	assert.Equal(t, 0, h.queue.Size(), "successful resubmission drains the queue")
	assert.Equal(t, []string{id, id}, exec.executions())
}

func TestNoWorkersNoDispatch(t *testing.T) {
	exec := &recordingExecutor{}
	h := newHarness(t, 0, exec)

	submit(t, h, "Waiting task", nil)
	require.NoError(t, h.orch.Start(context.Background()))
	defer h.orch.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, exec.executions(), "no idle workers means nothing runs")
	assert.Equal(t, 1, h.orch.Snapshot().ReadyCount)
}

func TestParallelIndependentTasks(t *testing.T) {
	exec := &recordingExecutor{}
	h := newHarness(t, 4, exec)

	ids := make(map[string]bool)
	for i := 0; i < 4; i++ {
		ids[submit(t, h, fmt.Sprintf("Independent %d", i), nil)] = true
	}

	require.NoError(t, h.orch.Start(context.Background()))
	defer h.orch.Stop()

	waitFor(t, func() bool { return h.orch.Snapshot().CompletedCount == 4 }, "batch never completed")

	for _, id := range exec.executions() {
		assert.True(t, ids[id])
	}
}

func TestStopWaitsForInFlight(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	exec := ExecutorFunc(func(context.Context, *task.Task, string, string) error {
		started <- struct{}{}
		<-block
		return nil
	})

	bus := events.NewBus()
	defer bus.Close()
	registry := pool.NewRegistry(bus)
	registry.Register("main", "claude", 0, 1)
	registry.AddWorker("main", "w0")

	depMgr := deps.NewManager(nil)
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	orch := New(cfg, depMgr, ordering.NewEngine(), registry, dlq.NewQueue(), exec)

	_, err := orch.SubmitTask(task.New("", "Slow task"), nil)
	require.NoError(t, err)
	require.NoError(t, orch.Start(context.Background()))

	<-started
	done := make(chan struct{})
	go func() {
		orch.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("stop returned while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop never returned")
	}
}
