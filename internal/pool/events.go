package pool

// Event payloads published by the registry. Field names are the exact
// keys sent on the wire.

// SpawnData is the payload of pool.spawned.
type SpawnData struct {
	PoolID     string `json:"pool_id"`
	Type       string `json:"pool_type"`
	MinWorkers int    `json:"min_workers"`
	MaxWorkers int    `json:"max_workers"`
}

// ScaleData is the payload of pool.scaled.
type ScaleData struct {
	PoolID        string `json:"pool_id"`
	MinWorkers    int    `json:"min_workers"`
	MaxWorkers    int    `json:"max_workers"`
	Requested     int    `json:"requested"`
	TargetWorkers int    `json:"target_workers"`
	Clamped       bool   `json:"clamped"`
}

// StatusChangeData is the payload of pool.status_changed.
type StatusChangeData struct {
	PoolID   string `json:"pool_id"`
	Previous Status `json:"previous"`
	Current  Status `json:"current"`
}

// CloseData is the payload of pool.closed.
type CloseData struct {
	PoolID         string `json:"pool_id"`
	TasksCompleted int    `json:"tasks_completed"`
}

// WorkerData is the payload of worker.added and worker.removed.
type WorkerData struct {
	PoolID   string       `json:"pool_id"`
	WorkerID string       `json:"worker_id"`
	Status   WorkerStatus `json:"status"`
}

// WorkerStatusData is the payload of worker.status_changed. It carries
// both the previous and the next status.
type WorkerStatusData struct {
	PoolID   string       `json:"pool_id"`
	WorkerID string       `json:"worker_id"`
	Previous WorkerStatus `json:"previous"`
	Current  WorkerStatus `json:"current"`
}

// AssignData is the payload of task.assigned.
type AssignData struct {
	PoolID   string `json:"pool_id"`
	WorkerID string `json:"worker_id"`
	TaskID   string `json:"task_id"`
}

// CompleteData is the payload of task.completed.
type CompleteData struct {
	PoolID          string  `json:"pool_id"`
	WorkerID        string  `json:"worker_id"`
	TaskID          string  `json:"task_id"`
	Success         bool    `json:"success"`
	DurationSeconds float64 `json:"duration_seconds"`
}
