package graph

import (
	"container/heap"
	"sort"
)

// IsBlocked reports whether any incoming edge of the task is in a blocking
// state (pending or failed).
func (g *Graph) IsBlocked(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isBlockedLocked(id)
}

func (g *Graph) isBlockedLocked(id string) bool {
	for _, e := range g.in[id] {
		if e.Status.Blocks() {
			return true
		}
	}
	return false
}

// BlockingTasks returns the sorted ids of tasks whose edge into the given
// task is currently blocking it.
func (g *Graph) BlockingTasks(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for from, e := range g.in[id] {
		if e.Status.Blocks() {
			out = append(out, from)
		}
	}
	sort.Strings(out)
	return out
}

// Dependencies returns the sorted ids of the task's direct dependencies,
// regardless of edge status or type.
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.in[id]))
	for from := range g.in[id] {
		out = append(out, from)
	}
	sort.Strings(out)
	return out
}

// ReadyTasks returns the sorted ids of tasks with no blocking incoming edge.
func (g *Graph) ReadyTasks() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, id := range g.sortedIDsLocked() {
		if !g.isBlockedLocked(id) {
			out = append(out, id)
		}
	}
	return out
}

// BlockedTasks returns the sorted ids of tasks with at least one blocking
// incoming edge.
func (g *Graph) BlockedTasks() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, id := range g.sortedIDsLocked() {
		if g.isBlockedLocked(id) {
			out = append(out, id)
		}
	}
	return out
}

// TransitiveDependencies returns every task reachable by walking incoming
// edges from id, sorted. The task itself is excluded.
func (g *Graph) TransitiveDependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachableLocked(id, g.in)
}

// TransitiveDependents returns every task reachable by walking outgoing
// edges from id, sorted. The task itself is excluded.
func (g *Graph) TransitiveDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reachableLocked(id, g.out)
}

func (g *Graph) reachableLocked(id string, adj map[string]map[string]*Edge) []string {
	visited := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range adj[cur] {
			if !visited[next] && next != id {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	out := make([]string, 0, len(visited))
	for v := range visited {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// DependencyDepth returns the length of the longest dependency chain above
// the task: 0 for a task with no dependencies, 1 + max over dependencies
// otherwise. Cycles among non-blocking edges contribute no extra depth.
func (g *Graph) DependencyDepth(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	memo := make(map[string]int)
	onPath := make(map[string]bool)
	return g.depthLocked(id, memo, onPath)
}

func (g *Graph) depthLocked(id string, memo map[string]int, onPath map[string]bool) int {
	if d, ok := memo[id]; ok {
		return d
	}
	if onPath[id] {
		return 0
	}
	onPath[id] = true
	depth := 0
	for from := range g.in[id] {
		if d := g.depthLocked(from, memo, onPath) + 1; d > depth {
			depth = d
		}
	}
	delete(onPath, id)
	memo[id] = depth
	return depth
}

// idHeap is a min-heap of task ids, used to break topological-order ties
// deterministically.
type idHeap []string

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)         { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopologicalOrder returns a task ordering consistent with every edge's
// direction, ties broken by ascending task-id. It fails with a CycleError
// carrying a witness path when any cycle exists.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indeg := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indeg[id] = len(g.in[id])
	}

	ready := &idHeap{}
	heap.Init(ready)
	for id, d := range indeg {
		if d == 0 {
			heap.Push(ready, id)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		order = append(order, id)
		for _, to := range g.sortedNeighborsLocked(g.out[id], false) {
			indeg[to]--
			if indeg[to] == 0 {
				heap.Push(ready, to)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, &CycleError{Path: g.residualCycleLocked(indeg)}
	}
	return order, nil
}

// residualCycleLocked extracts a witness cycle from the nodes Kahn's
// algorithm could not order. Called with a lock held.
func (g *Graph) residualCycleLocked(indeg map[string]int) []string {
	residual := make(map[string]bool)
	start := ""
	for _, id := range g.sortedIDsLocked() {
		if indeg[id] > 0 {
			residual[id] = true
			if start == "" {
				start = id
			}
		}
	}
	if start == "" {
		return nil
	}

	// Every residual node sits on or above a cycle; walk until a repeat.
	seen := make(map[string]int)
	path := []string{}
	cur := start
	for {
		if at, ok := seen[cur]; ok {
			return append(path[at:], cur)
		}
		seen[cur] = len(path)
		path = append(path, cur)
		next := ""
		for _, to := range g.sortedNeighborsLocked(g.out[cur], false) {
			if residual[to] {
				next = to
				break
			}
		}
		if next == "" {
			return path
		}
		cur = next
	}
}
