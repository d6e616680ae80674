package deps

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mahavishnu/mahavishnu/internal/errors"
	"github.com/mahavishnu/mahavishnu/internal/graph"
	"github.com/mahavishnu/mahavishnu/internal/task"
)

// Manager layers task status on top of the dependency graph. The graph
// and the status map are co-owned under a single reader-writer lock;
// event emission happens after the lock is released so a slow handler
// cannot stall graph mutation.
type Manager struct {
	mu       sync.RWMutex
	graph    *graph.Graph
	statuses map[string]task.Status

	handlerMu sync.RWMutex
	handlers  []Handler

	logger *slog.Logger
}

// NewManager creates a dependency manager over an empty graph.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		graph:    graph.New(),
		statuses: make(map[string]task.Status),
		logger:   logger,
	}
}

// Graph exposes the underlying graph for read-only queries.
func (m *Manager) Graph() *graph.Graph {
	return m.graph
}

// AddHandler registers a lifecycle event handler.
func (m *Manager) AddHandler(h Handler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *Manager) emit(evs []Event) {
	if len(evs) == 0 {
		return
	}
	m.handlerMu.RLock()
	handlers := append([]Handler(nil), m.handlers...)
	m.handlerMu.RUnlock()
	emit(m.logger, handlers, evs)
}

func event(typ EventType, taskID, depID string) Event {
	return Event{Type: typ, TaskID: taskID, DependencyID: depID, Time: time.Now().UTC()}
}

// AddTask registers a task with status pending. Idempotent on id.
func (m *Manager) AddTask(id string, metadata map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.graph.AddTask(id, metadata)
	if _, ok := m.statuses[id]; !ok {
		m.statuses[id] = task.StatusPending
	}
}

// Status returns the task's current status.
func (m *Manager) Status(id string) (task.Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[id]
	return s, ok
}

// AddDependency asserts that dependent must not run before dependency.
// Cycle rejection is fatal to the call but leaves the graph untouched.
func (m *Manager) AddDependency(dependency, dependent string, typ task.EdgeType, metadata map[string]any) error {
	m.mu.Lock()
	wasBlocked := m.graph.IsBlocked(dependent)
	if err := m.graph.AddEdge(dependency, dependent, typ, metadata); err != nil {
		m.mu.Unlock()
		return err
	}
	// The new edge starts pending unless its source already resolved.
	if st, ok := m.statuses[dependency]; ok && st != task.StatusPending && st != task.StatusInProgress {
		m.graph.SetEdgeStatusFrom(dependency, st)
	}
	nowBlocked := m.graph.IsBlocked(dependent)
	blocking := m.graph.BlockingTasks(dependent)
	m.mu.Unlock()

	evs := []Event{event(DependencyAdded, dependent, dependency)}
	if !wasBlocked && nowBlocked {
		evs = append(evs, event(TaskBlocked, dependent, dependency))
	}
	evs = append(evs, Event{
		Type: BlockingTasksChanged, TaskID: dependent,
		Blocking: blocking, Time: time.Now().UTC(),
	})
	m.emit(evs)
	return nil
}

// RemoveDependency drops the edge and reports whether it existed.
func (m *Manager) RemoveDependency(dependency, dependent string) bool {
	m.mu.Lock()
	wasBlocked := m.graph.IsBlocked(dependent)
	existed := m.graph.RemoveEdge(dependency, dependent)
	nowBlocked := m.graph.IsBlocked(dependent)
	blocking := m.graph.BlockingTasks(dependent)
	m.mu.Unlock()

	if !existed {
		return false
	}

	evs := []Event{event(DependencyRemoved, dependent, dependency)}
	if wasBlocked && !nowBlocked {
		evs = append(evs, event(TaskUnblocked, dependent, dependency))
	}
	evs = append(evs, Event{
		Type: BlockingTasksChanged, TaskID: dependent,
		Blocking: blocking, Time: time.Now().UTC(),
	})
	m.emit(evs)
	return true
}

// RemoveTask detaches the task from the graph and forgets its status.
// Returns the ids of tasks whose edge sets changed.
func (m *Manager) RemoveTask(id string) []string {
	m.mu.Lock()
	affected := m.graph.RemoveTask(id)
	delete(m.statuses, id)
	m.mu.Unlock()
	return affected
}

// UpdateTaskStatus transitions a task and propagates the change to its
// outgoing edges. It returns the set of tasks that went from blocked to
// ready as a result. The full event set for one call is emitted, in
// order, before the call returns.
func (m *Manager) UpdateTaskStatus(id string, next task.Status) ([]string, error) {
	if !task.IsValidStatus(next) {
		return nil, errors.Newf(errors.CodeInvalidStatus, "invalid status %q", next)
	}

	m.mu.Lock()
	current, ok := m.statuses[id]
	if !ok {
		m.mu.Unlock()
		return nil, errors.ErrTaskNotFound(id)
	}
	if current == next {
		m.mu.Unlock()
		return nil, nil
	}
	if !task.CanTransition(current, next) {
		m.mu.Unlock()
		return nil, errors.Newf(errors.CodeInvalidStatus,
			"task %s cannot transition %s -> %s", id, current, next)
	}

	m.statuses[id] = next

	blockedBefore := make(map[string]bool)
	for dep := range m.dependentsLocked(id) {
		blockedBefore[dep] = m.graph.IsBlocked(dep)
	}

	changed := m.graph.SetEdgeStatusFrom(id, next)

	var unblocked []string
	for _, dep := range changed {
		if blockedBefore[dep] && !m.graph.IsBlocked(dep) {
			unblocked = append(unblocked, dep)
		}
	}
	sort.Strings(unblocked)
	m.mu.Unlock()

	var evs []Event
	switch next {
	case task.StatusCompleted:
		for _, dep := range changed {
			evs = append(evs, event(DependencySatisfied, dep, id))
		}
		for _, dep := range unblocked {
			evs = append(evs, event(TaskUnblocked, dep, id))
			evs = append(evs, event(AllDependenciesSatisfied, dep, id))
		}
	case task.StatusFailed:
		for _, dep := range changed {
			evs = append(evs, event(DependencyFailed, dep, id))
		}
	case task.StatusCancelled:
		for _, dep := range unblocked {
			evs = append(evs, event(TaskUnblocked, dep, id))
		}
	}
	m.emit(evs)

	return unblocked, nil
}

// RevertTaskStatus restores a task to a prior status without notifying
// handlers. It serves dispatch rollback: a task optimistically moved to
// in_progress that never actually started goes straight back without
// surfacing a failed transition to its dependents.
func (m *Manager) RevertTaskStatus(id string, prev task.Status) error {
	if !task.IsValidStatus(prev) {
		return errors.Newf(errors.CodeInvalidStatus, "invalid status %q", prev)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.statuses[id]; !ok {
		return errors.ErrTaskNotFound(id)
	}
	m.statuses[id] = prev
	m.graph.SetEdgeStatusFrom(id, prev)
	return nil
}

// dependentsLocked returns the direct dependents of id. Called with the
// lock held.
func (m *Manager) dependentsLocked(id string) map[string]bool {
	deps := make(map[string]bool)
	for _, e := range m.graph.Edges() {
		if e.From == id {
			deps[e.To] = true
		}
	}
	return deps
}

// GetReadyTasks returns pending tasks with no blocking incoming edge,
// sorted by id.
func (m *Manager) GetReadyTasks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ready []string
	for _, id := range m.graph.ReadyTasks() {
		if m.statuses[id] == task.StatusPending {
			ready = append(ready, id)
		}
	}
	return ready
}

// GetNextAvailableTasks returns up to limit ready tasks ordered by
// ascending dependency depth, ties broken by id.
func (m *Manager) GetNextAvailableTasks(limit int) []string {
	ready := m.GetReadyTasks()

	type entry struct {
		id    string
		depth int
	}
	entries := make([]entry, 0, len(ready))
	for _, id := range ready {
		entries = append(entries, entry{id: id, depth: m.graph.DependencyDepth(id)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].depth != entries[j].depth {
			return entries[i].depth < entries[j].depth
		}
		return entries[i].id < entries[j].id
	})

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}

// CanCompleteTask reports whether the task may transition to completed:
// it is in progress and no incoming edge blocks it.
func (m *Manager) CanCompleteTask(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statuses[id] == task.StatusInProgress && !m.graph.IsBlocked(id)
}

// IsBlocked reports whether any incoming edge blocks the task.
func (m *Manager) IsBlocked(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.IsBlocked(id)
}

// BlockingTasks returns the current blockers of the task, sorted.
func (m *Manager) BlockingTasks(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.BlockingTasks(id)
}
