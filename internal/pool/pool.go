package pool

import (
	"sync"
	"time"

	"github.com/mahavishnu/mahavishnu/internal/errors"
)

// worker is owned exclusively by one pool. The owning pool's mutex guards
// every field.
type worker struct {
	id             string
	status         WorkerStatus
	currentTaskID  string
	tasksCompleted int
	lastTransition time.Time
}

// Pool is a logical grouping of workers. Each pool carries its own mutex;
// worker operations never touch the registry lock.
type Pool struct {
	mu sync.Mutex

	id       string
	poolType string
	status   Status
	minSize  int
	maxSize  int
	target   int

	workers map[string]*worker

	tasksCompleted int
	totalDuration  time.Duration
}

// Snapshot is a point-in-time copy of pool state.
type Snapshot struct {
	PoolID             string               `json:"pool_id"`
	Type               string               `json:"pool_type"`
	Status             Status               `json:"status"`
	MinWorkers         int                  `json:"min_workers"`
	MaxWorkers         int                  `json:"max_workers"`
	TargetWorkers      int                  `json:"target_workers"`
	WorkerCount        int                  `json:"worker_count"`
	WorkersByStatus    map[WorkerStatus]int `json:"workers_by_status"`
	TasksCompleted     int                  `json:"tasks_completed"`
	AvgDurationSeconds float64              `json:"avg_duration_seconds"`
}

// WorkerSnapshot is a point-in-time copy of one worker's state.
type WorkerSnapshot struct {
	WorkerID       string       `json:"worker_id"`
	PoolID         string       `json:"pool_id"`
	Status         WorkerStatus `json:"status"`
	CurrentTaskID  string       `json:"current_task_id,omitempty"`
	TasksCompleted int          `json:"tasks_completed"`
	LastTransition time.Time    `json:"last_transition"`
}

// ID returns the pool's identifier.
func (p *Pool) ID() string {
	return p.id
}

// Snapshot returns the pool's lifecycle state, per-status worker counts,
// and aggregate completion counters.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pool) snapshotLocked() Snapshot {
	snap := Snapshot{
		PoolID:          p.id,
		Type:            p.poolType,
		Status:          p.status,
		MinWorkers:      p.minSize,
		MaxWorkers:      p.maxSize,
		TargetWorkers:   p.target,
		WorkerCount:     len(p.workers),
		WorkersByStatus: make(map[WorkerStatus]int),
		TasksCompleted:  p.tasksCompleted,
	}
	for _, w := range p.workers {
		snap.WorkersByStatus[w.status]++
	}
	if p.tasksCompleted > 0 {
		snap.AvgDurationSeconds = p.totalDuration.Seconds() / float64(p.tasksCompleted)
	}
	return snap
}

// WorkerSnapshot returns a copy of one worker's state.
func (p *Pool) WorkerSnapshot(workerID string) (WorkerSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[workerID]
	if !ok {
		return WorkerSnapshot{}, errors.ErrWorkerNotFound(p.id, workerID)
	}
	return p.workerSnapshotLocked(w), nil
}

func (p *Pool) workerSnapshotLocked(w *worker) WorkerSnapshot {
	return WorkerSnapshot{
		WorkerID:       w.id,
		PoolID:         p.id,
		Status:         w.status,
		CurrentTaskID:  w.currentTaskID,
		TasksCompleted: w.tasksCompleted,
		LastTransition: w.lastTransition,
	}
}

// Workers returns snapshots of every worker in the pool.
func (p *Pool) Workers() []WorkerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snaps := make([]WorkerSnapshot, 0, len(p.workers))
	for _, w := range p.workers {
		snaps = append(snaps, p.workerSnapshotLocked(w))
	}
	return snaps
}

// IdleWorkers returns the ids of workers currently idle.
func (p *Pool) IdleWorkers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for _, w := range p.workers {
		if w.status == WorkerIdle {
			ids = append(ids, w.id)
		}
	}
	return ids
}
