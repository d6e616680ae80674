package graph

import (
	"encoding/json"
	"fmt"
)

// Snapshot is a serializable projection of a graph.
type Snapshot struct {
	Tasks map[string]map[string]any `json:"tasks"`
	Edges []Edge                    `json:"edges"`
}

// Snapshot returns a structural copy of the graph.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{Tasks: make(map[string]map[string]any, len(g.nodes))}
	for id, md := range g.nodes {
		s.Tasks[id] = md
	}
	for _, from := range g.sortedIDsLocked() {
		for _, to := range g.sortedNeighborsLocked(g.out[from], false) {
			s.Edges = append(s.Edges, *g.out[from][to])
		}
	}
	return s
}

// FromSnapshot rebuilds a graph from a snapshot, preserving edge statuses.
// Edges referencing unknown tasks are rejected.
func FromSnapshot(s Snapshot) (*Graph, error) {
	g := New()
	for id, md := range s.Tasks {
		g.AddTask(id, md)
	}
	for _, e := range s.Edges {
		if err := g.AddEdge(e.From, e.To, e.Type, e.Metadata); err != nil {
			return nil, fmt.Errorf("restore edge %s -> %s: %w", e.From, e.To, err)
		}
		g.mu.Lock()
		g.out[e.From][e.To].Status = e.Status
		g.out[e.From][e.To].CreatedAt = e.CreatedAt
		g.mu.Unlock()
	}
	return g, nil
}

// MarshalJSON serializes the graph as its snapshot.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Snapshot())
}

// Equal reports structural equality with another graph: same task set and
// identical edges (endpoints, type, status).
func (g *Graph) Equal(other *Graph) bool {
	a, b := g.Snapshot(), other.Snapshot()
	if len(a.Tasks) != len(b.Tasks) || len(a.Edges) != len(b.Edges) {
		return false
	}
	for id := range a.Tasks {
		if _, ok := b.Tasks[id]; !ok {
			return false
		}
	}
	for i := range a.Edges {
		ea, eb := a.Edges[i], b.Edges[i]
		if ea.From != eb.From || ea.To != eb.To || ea.Type != eb.Type || ea.Status != eb.Status {
			return false
		}
	}
	return true
}
