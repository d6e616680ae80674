package ordering

import (
	"container/heap"
	"time"

	"github.com/mahavishnu/mahavishnu/internal/task"
)

// recHeap is a max-heap of recommendations by composite score, ties broken
// by task-id for determinism.
type recHeap []Recommendation

func (h recHeap) Len() int { return len(h) }
func (h recHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].TaskID < h[j].TaskID
}
func (h recHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *recHeap) Push(x any)   { *h = append(*h, x.(Recommendation)) }
func (h *recHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// orderTopological orders recommendations so every dependency precedes its
// dependents, breaking ties by descending composite score. Tasks caught in
// a dependency cycle are appended in input order.
func orderTopological(recs []Recommendation, in Input) []Recommendation {
	byID := make(map[string]Recommendation, len(recs))
	inputPos := make(map[string]int, len(recs))
	for i, r := range recs {
		byID[r.TaskID] = r
		inputPos[r.TaskID] = i
	}

	// Build in-degree and dependent adjacency restricted to the input set.
	indeg := make(map[string]int, len(recs))
	dependents := make(map[string][]string, len(recs))
	for id := range byID {
		indeg[id] = 0
	}
	for id := range byID {
		for _, dep := range in.Dependencies[id] {
			if _, ok := byID[dep]; ok {
				indeg[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	ready := &recHeap{}
	heap.Init(ready)
	for id, d := range indeg {
		if d == 0 {
			heap.Push(ready, byID[id])
		}
	}

	ordered := make([]Recommendation, 0, len(recs))
	placed := make(map[string]bool, len(recs))
	for ready.Len() > 0 {
		r := heap.Pop(ready).(Recommendation)
		ordered = append(ordered, r)
		placed[r.TaskID] = true
		for _, dep := range dependents[r.TaskID] {
			indeg[dep]--
			if indeg[dep] == 0 {
				heap.Push(ready, byID[dep])
			}
		}
	}

	// Residual tasks sit on a cycle; append them in input order.
	if len(ordered) < len(recs) {
		for _, r := range recs {
			if !placed[r.TaskID] {
				ordered = append(ordered, r)
			}
		}
	}
	return ordered
}

// criticalPath finds the longest-duration dependency chain that reaches a
// sink task, via memoized DFS over the dependent adjacency.
func criticalPath(in Input, byID map[string]*task.Task) ([]string, int) {
	if len(in.Dependencies) == 0 || len(byID) == 0 {
		return nil, 0
	}

	dependents := make(map[string][]string, len(byID))
	for id := range byID {
		for _, dep := range in.Dependencies[id] {
			if _, ok := byID[dep]; ok {
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	durations := make(map[string]time.Duration, len(byID))
	for id, t := range byID {
		d := t.EstimatedDuration()
		if pred, ok := in.Predictions[id]; ok && pred.EstimatedSeconds > 0 {
			d = time.Duration(pred.EstimatedSeconds) * time.Second
		}
		if d <= 0 {
			d = defaultTaskDuration
		}
		durations[id] = d
	}

	type chain struct {
		total time.Duration
		next  string
	}
	memo := make(map[string]chain, len(byID))
	onPath := make(map[string]bool)

	var longest func(id string) chain
	longest = func(id string) chain {
		if c, ok := memo[id]; ok {
			return c
		}
		if onPath[id] {
			// Cycle guard: treat the back edge as a sink.
			return chain{total: durations[id]}
		}
		onPath[id] = true
		best := chain{total: durations[id]}
		for _, dep := range dependents[id] {
			c := longest(dep)
			if durations[id]+c.total > best.total {
				best = chain{total: durations[id] + c.total, next: dep}
			}
		}
		delete(onPath, id)
		memo[id] = best
		return best
	}

	var startID string
	var best chain
	for id := range byID {
		c := longest(id)
		if c.total > best.total || (c.total == best.total && (startID == "" || id < startID)) {
			startID, best = id, c
		}
	}
	if startID == "" {
		return nil, 0
	}

	path := []string{startID}
	for next := memo[startID].next; next != ""; next = memo[next].next {
		path = append(path, next)
	}
	return path, int(best.total.Seconds())
}
