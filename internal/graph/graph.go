// Package graph implements the dependency graph for mahavishnu.
//
// Tasks are vertices; a directed edge (from, to) asserts that `to` must not
// run before `from`. Edges of type blocks or requires participate in cycle
// prevention; all edge types block their dependent while their derived
// status is pending or failed.
package graph

import (
	"sort"
	"sync"
	"time"

	"github.com/mahavishnu/mahavishnu/internal/errors"
	"github.com/mahavishnu/mahavishnu/internal/task"
)

// Edge is a directed dependency from a dependency task to its dependent.
type Edge struct {
	From      string          `json:"from"` // dependency
	To        string          `json:"to"`   // dependent
	Type      task.EdgeType   `json:"type"`
	Status    task.EdgeStatus `json:"status"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// CycleError reports a rejected edge along with a witness path.
type CycleError struct {
	// Path is a task-id sequence t0 -> t1 -> ... -> t0 demonstrating the cycle.
	Path []string
}

func (e *CycleError) Error() string {
	return errors.Newf(errors.CodeCycleDetected,
		"dependency cycle: %v", e.Path).Error()
}

// Is lets callers match against errors.CodeCycleDetected.
func (e *CycleError) Is(target error) bool {
	t, ok := target.(*errors.Error)
	return ok && t.Code == errors.CodeCycleDetected
}

// Graph is a mutable dependency graph. Reads may run concurrently; any
// mutation takes the write lock. The graph owns its node and edge maps
// exclusively; callers interact by task-id only.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]map[string]any // task-id -> metadata
	out   map[string]map[string]*Edge
	in    map[string]map[string]*Edge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]map[string]any),
		out:   make(map[string]map[string]*Edge),
		in:    make(map[string]map[string]*Edge),
	}
}

// AddTask registers a task vertex. Idempotent on id: re-adding an existing
// task keeps its edges and original metadata.
func (g *Graph) AddTask(id string, metadata map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		return
	}
	g.nodes[id] = metadata
	g.out[id] = make(map[string]*Edge)
	g.in[id] = make(map[string]*Edge)
}

// HasTask reports whether the task is registered.
func (g *Graph) HasTask(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// TaskIDs returns all registered task ids, sorted.
func (g *Graph) TaskIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedIDsLocked()
}

func (g *Graph) sortedIDsLocked() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddEdge inserts a dependency edge (from, to). It fails with
// DUPLICATE_EDGE if the pair already exists and with CYCLE_DETECTED when a
// blocking-type edge would close a cycle among blocking edges. On
// rejection the graph is unchanged.
func (g *Graph) AddEdge(from, to string, typ task.EdgeType, metadata map[string]any) error {
	if !task.IsValidEdgeType(typ) {
		return errors.Newf(errors.CodeInvalidTask, "invalid edge type %q", typ)
	}
	if from == to {
		return &CycleError{Path: []string{from, from}}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[from]; !ok {
		return errors.ErrTaskNotFound(from)
	}
	if _, ok := g.nodes[to]; !ok {
		return errors.ErrTaskNotFound(to)
	}
	if _, ok := g.out[from][to]; ok {
		return errors.ErrDuplicateEdge(from, to)
	}

	// The edge is not inserted yet, so a cycle check failure leaves the
	// pre-call state untouched.
	if task.IsBlockingType(typ) {
		if path := g.findPathLocked(to, from); path != nil {
			return &CycleError{Path: append(path, to)}
		}
	}

	e := &Edge{
		From:      from,
		To:        to,
		Type:      typ,
		Status:    task.EdgePending,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	g.out[from][to] = e
	g.in[to][from] = e
	return nil
}

// findPathLocked returns a task-id path from start to goal along outgoing
// blocking edges, or nil when goal is unreachable. Called with a lock held.
func (g *Graph) findPathLocked(start, goal string) []string {
	visited := make(map[string]bool)
	var path []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		if visited[id] {
			return false
		}
		visited[id] = true
		path = append(path, id)
		if id == goal {
			return true
		}
		for _, next := range g.sortedNeighborsLocked(g.out[id], true) {
			if dfs(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if dfs(start) {
		return path
	}
	return nil
}

// sortedNeighborsLocked returns neighbor ids in sorted order for
// deterministic traversal. blockingOnly restricts to blocks/requires edges.
func (g *Graph) sortedNeighborsLocked(edges map[string]*Edge, blockingOnly bool) []string {
	ids := make([]string, 0, len(edges))
	for id, e := range edges {
		if blockingOnly && !task.IsBlockingType(e.Type) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RemoveEdge deletes the (from, to) edge and reports whether it existed.
func (g *Graph) RemoveEdge(from, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.out[from][to]; !ok {
		return false
	}
	delete(g.out[from], to)
	delete(g.in[to], from)
	return true
}

// RemoveTask detaches all incident edges, removes the vertex, and returns
// the sorted set of other task ids whose edge sets changed.
func (g *Graph) RemoveTask(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return nil
	}

	affected := make(map[string]bool)
	for to := range g.out[id] {
		delete(g.in[to], id)
		affected[to] = true
	}
	for from := range g.in[id] {
		delete(g.out[from], id)
		affected[from] = true
	}
	delete(g.nodes, id)
	delete(g.out, id)
	delete(g.in, id)

	ids := make([]string, 0, len(affected))
	for a := range affected {
		ids = append(ids, a)
	}
	sort.Strings(ids)
	return ids
}

// Edge returns a copy of the (from, to) edge.
func (g *Graph) Edge(from, to string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.out[from][to]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Edges returns copies of every edge, ordered by (from, to).
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Edge
	for _, from := range g.sortedIDsLocked() {
		for _, to := range g.sortedNeighborsLocked(g.out[from], false) {
			out = append(out, *g.out[from][to])
		}
	}
	return out
}

// SetEdgeStatusFrom updates every outgoing edge of the source task to the
// status derived from the source's new task status, and returns the sorted
// ids of dependents whose incoming edge changed.
func (g *Graph) SetEdgeStatusFrom(source string, status task.Status) []string {
	derived := task.EdgeStatusFor(status)

	g.mu.Lock()
	defer g.mu.Unlock()

	var changed []string
	for to, e := range g.out[source] {
		if e.Status != derived {
			e.Status = derived
			changed = append(changed, to)
		}
	}
	sort.Strings(changed)
	return changed
}
