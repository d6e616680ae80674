package deps

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahavishnu/mahavishnu/internal/errors"
	"github.com/mahavishnu/mahavishnu/internal/task"
)

// recorder collects events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Accept(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newLinear(t *testing.T) (*Manager, *recorder) {
	t.Helper()
	m := NewManager(nil)
	rec := &recorder{}
	m.AddHandler(rec)
	for _, id := range []string{"t1", "t2", "t3"} {
		m.AddTask(id, nil)
	}
	require.NoError(t, m.AddDependency("t1", "t2", task.EdgeBlocks, nil))
	require.NoError(t, m.AddDependency("t2", "t3", task.EdgeBlocks, nil))
	rec.reset()
	return m, rec
}

func TestLinearDependencySatisfaction(t *testing.T) {
	m, rec := newLinear(t)

	assert.Equal(t, []string{"t1"}, m.GetReadyTasks())

	_, err := m.UpdateTaskStatus("t1", task.StatusInProgress)
	require.NoError(t, err)
	unblocked, err := m.UpdateTaskStatus("t1", task.StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, []string{"t2"}, unblocked)
	assert.Equal(t, []string{"t2"}, m.GetReadyTasks())
	assert.Contains(t, rec.types(), TaskUnblocked)
	assert.Contains(t, rec.types(), AllDependenciesSatisfied)

	_, err = m.UpdateTaskStatus("t2", task.StatusInProgress)
	require.NoError(t, err)
	unblocked, err = m.UpdateTaskStatus("t2", task.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, []string{"t3"}, unblocked)
	assert.Equal(t, []string{"t3"}, m.GetReadyTasks())
}

func TestEventOrderOnCompletion(t *testing.T) {
	m, rec := newLinear(t)

	_, err := m.UpdateTaskStatus("t1", task.StatusInProgress)
	require.NoError(t, err)
	rec.reset()
	_, err = m.UpdateTaskStatus("t1", task.StatusCompleted)
	require.NoError(t, err)

	// Per-call order: DEPENDENCY_SATISFIED -> TASK_UNBLOCKED ->
	// ALL_DEPENDENCIES_SATISFIED, all emitted before the call returns.
	assert.Equal(t, []EventType{
		DependencySatisfied,
		TaskUnblocked,
		AllDependenciesSatisfied,
	}, rec.types())
}

func TestFailedDependencyKeepsBlocking(t *testing.T) {
	m, rec := newLinear(t)

	_, err := m.UpdateTaskStatus("t1", task.StatusInProgress)
	require.NoError(t, err)
	rec.reset()
	unblocked, err := m.UpdateTaskStatus("t1", task.StatusFailed)
	require.NoError(t, err)

	assert.Empty(t, unblocked)
	assert.True(t, m.IsBlocked("t2"))
	assert.Equal(t, []EventType{DependencyFailed}, rec.types())
}

func TestCancelledDependencyUnblocks(t *testing.T) {
	m, rec := newLinear(t)

	rec.reset()
	unblocked, err := m.UpdateTaskStatus("t1", task.StatusCancelled)
	require.NoError(t, err)

	assert.Equal(t, []string{"t2"}, unblocked)
	assert.False(t, m.IsBlocked("t2"))
	assert.Equal(t, []EventType{TaskUnblocked}, rec.types())
}

func TestInvalidTransitions(t *testing.T) {
	m := NewManager(nil)
	m.AddTask("t1", nil)

	_, err := m.UpdateTaskStatus("t1", task.StatusCompleted)
	assert.Equal(t, errors.CodeInvalidStatus, errors.CodeOf(err))

	_, err = m.UpdateTaskStatus("ghost", task.StatusInProgress)
	assert.Equal(t, errors.CodeTaskNotFound, errors.CodeOf(err))

	_, err = m.UpdateTaskStatus("t1", "limbo")
	assert.Equal(t, errors.CodeInvalidStatus, errors.CodeOf(err))

	// Same-status update is a no-op, not an error.
	unblocked, err := m.UpdateTaskStatus("t1", task.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, unblocked)
}

func TestAddDependencyEmitsBlockedEvents(t *testing.T) {
	m := NewManager(nil)
	rec := &recorder{}
	m.AddHandler(rec)
	m.AddTask("t1", nil)
	m.AddTask("t2", nil)

	require.NoError(t, m.AddDependency("t1", "t2", task.EdgeBlocks, nil))

	types := rec.types()
	assert.Equal(t, []EventType{DependencyAdded, TaskBlocked, BlockingTasksChanged}, types)
}

func TestAddDependencyToResolvedSource(t *testing.T) {
	m := NewManager(nil)
	m.AddTask("t1", nil)
	m.AddTask("t2", nil)

	_, err := m.UpdateTaskStatus("t1", task.StatusInProgress)
	require.NoError(t, err)
	_, err = m.UpdateTaskStatus("t1", task.StatusCompleted)
	require.NoError(t, err)

	// Depending on an already-completed task must not block the dependent.
	require.NoError(t, m.AddDependency("t1", "t2", task.EdgeBlocks, nil))
	assert.False(t, m.IsBlocked("t2"))
}

func TestRemoveDependencyUnblocks(t *testing.T) {
	m, rec := newLinear(t)

	assert.True(t, m.RemoveDependency("t1", "t2"))
	assert.False(t, m.RemoveDependency("t1", "t2"))
	assert.False(t, m.IsBlocked("t2"))
	assert.Contains(t, rec.types(), TaskUnblocked)
}

func TestRevertTaskStatusIsSilent(t *testing.T) {
	m, rec := newLinear(t)

	_, err := m.UpdateTaskStatus("t1", task.StatusInProgress)
	require.NoError(t, err)
	rec.reset()

	require.NoError(t, m.RevertTaskStatus("t1", task.StatusPending))

	st, ok := m.Status("t1")
	require.True(t, ok)
	assert.Equal(t, task.StatusPending, st)
	// The task is ready again and no handler saw the round trip; in
	// particular dependents observe no failure.
	assert.Equal(t, []string{"t1"}, m.GetReadyTasks())
	assert.Empty(t, rec.types())

	err = m.RevertTaskStatus("missing", task.StatusPending)
	assert.Equal(t, errors.CodeTaskNotFound, errors.CodeOf(err))
	err = m.RevertTaskStatus("t1", task.Status("bogus"))
	assert.Equal(t, errors.CodeInvalidStatus, errors.CodeOf(err))
}

func TestGetNextAvailableTasks(t *testing.T) {
	m := NewManager(nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		m.AddTask(id, nil)
	}
	// b depends on a; d depends on c; after completing a and c, depth of
	// b and d is 1 while fresh task e sits at depth 0.
	require.NoError(t, m.AddDependency("a", "b", task.EdgeBlocks, nil))
	require.NoError(t, m.AddDependency("c", "d", task.EdgeBlocks, nil))

	assert.Equal(t, []string{"a", "c"}, m.GetNextAvailableTasks(0))

	for _, id := range []string{"a", "c"} {
		_, err := m.UpdateTaskStatus(id, task.StatusInProgress)
		require.NoError(t, err)
		_, err = m.UpdateTaskStatus(id, task.StatusCompleted)
		require.NoError(t, err)
	}
	m.AddTask("e", nil)

	got := m.GetNextAvailableTasks(2)
	assert.Equal(t, []string{"e", "b"}, got, "shallower tasks first, then id order")
}

func TestCanCompleteTask(t *testing.T) {
	m, _ := newLinear(t)

	assert.False(t, m.CanCompleteTask("t1"), "pending tasks cannot complete")

	_, err := m.UpdateTaskStatus("t1", task.StatusInProgress)
	require.NoError(t, err)
	assert.True(t, m.CanCompleteTask("t1"))
	assert.False(t, m.CanCompleteTask("t2"), "blocked tasks cannot complete")
}

func TestHandlerPanicIsolation(t *testing.T) {
	m := NewManager(nil)
	rec := &recorder{}
	m.AddHandler(HandlerFunc(func(Event) { panic("bad handler") }))
	m.AddHandler(rec)

	m.AddTask("t1", nil)
	m.AddTask("t2", nil)
	require.NoError(t, m.AddDependency("t1", "t2", task.EdgeBlocks, nil))

	assert.NotEmpty(t, rec.types(), "panicking handler must not suppress delivery to others")
}

func TestCycleRejectionLeavesManagerIntact(t *testing.T) {
	m, _ := newLinear(t)

	err := m.AddDependency("t3", "t1", task.EdgeBlocks, nil)
	require.Error(t, err)
	assert.Empty(t, m.BlockingTasks("t1"))
	assert.Equal(t, []string{"t1"}, m.GetReadyTasks())
}
