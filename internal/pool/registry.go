package pool

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mahavishnu/mahavishnu/internal/errors"
	"github.com/mahavishnu/mahavishnu/internal/events"
)

// Registry owns every pool and worker record. The registry mutex guards
// only pool creation, deletion, and the worker ownership index; all other
// operations take the owning pool's mutex. Events are published after
// locks are released.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*Pool
	// owner maps worker-id to pool-id. The worker-to-pool relationship is
	// exclusive: re-adding a worker under a different pool destroys the
	// old record.
	owner map[string]string

	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger for the registry.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a pool registry publishing on bus.
func NewRegistry(bus *events.Bus, opts ...RegistryOption) *Registry {
	r := &Registry{
		pools:  make(map[string]*Pool),
		owner:  make(map[string]string),
		bus:    bus,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a pool with the given id, type, and worker bounds.
// The new pool starts in the initializing state.
func (r *Registry) Register(poolID, poolType string, minWorkers, maxWorkers int) (*Pool, error) {
	if minWorkers < 0 {
		minWorkers = 0
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}

	r.mu.Lock()
	if _, exists := r.pools[poolID]; exists {
		r.mu.Unlock()
		return nil, errors.ErrPoolExists(poolID)
	}
	p := &Pool{
		id:       poolID,
		poolType: poolType,
		status:   StatusInitializing,
		minSize:  minWorkers,
		maxSize:  maxWorkers,
		target:   minWorkers,
		workers:  make(map[string]*worker),
	}
	r.pools[poolID] = p
	r.mu.Unlock()

	r.logger.Info("pool registered",
		"pool_id", poolID,
		"pool_type", poolType,
		"min_workers", minWorkers,
		"max_workers", maxWorkers)

	r.bus.Publish(events.NewPoolEvent(events.EventPoolSpawned, poolID, SpawnData{
		PoolID:     poolID,
		Type:       poolType,
		MinWorkers: minWorkers,
		MaxWorkers: maxWorkers,
	}))
	return p, nil
}

// Get returns the pool with the given id.
func (r *Registry) Get(poolID string) (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[poolID]
	if !ok {
		return nil, errors.ErrPoolNotFound(poolID)
	}
	return p, nil
}

// List returns snapshots of every registered pool.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.Unlock()

	snaps := make([]Snapshot, 0, len(pools))
	for _, p := range pools {
		snaps = append(snaps, p.Snapshot())
	}
	return snaps
}

// SetStatus transitions a pool's lifecycle state and publishes
// pool.status_changed. A no-op transition publishes nothing.
func (r *Registry) SetStatus(poolID string, status Status) error {
	if !status.IsValid() {
		return errors.Newf(errors.CodeInvalidStatus, "invalid pool status %q", status)
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	prev := p.status
	if prev == status {
		p.mu.Unlock()
		return nil
	}
	p.status = status
	p.mu.Unlock()

	r.bus.Publish(events.NewPoolEvent(events.EventPoolStatusChanged, poolID, StatusChangeData{
		PoolID:   poolID,
		Previous: prev,
		Current:  status,
	}))
	return nil
}

// Scale updates a pool's worker bounds and its target worker count.
// Requests outside [min, max] are clamped and logged, not rejected.
func (r *Registry) Scale(poolID string, minWorkers, maxWorkers, target int) error {
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}
	if minWorkers < 0 {
		minWorkers = 0
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}

	requested := target
	clamped := false
	if target < minWorkers {
		target = minWorkers
		clamped = true
	}
	if target > maxWorkers {
		target = maxWorkers
		clamped = true
	}

	p.mu.Lock()
	if !p.status.AcceptsWorkers() {
		p.mu.Unlock()
		return errors.ErrPoolClosed(poolID)
	}
	p.minSize = minWorkers
	p.maxSize = maxWorkers
	p.target = target
	p.mu.Unlock()

	if clamped {
		r.logger.Warn("scale request clamped to pool bounds",
			"pool_id", poolID,
			"requested", requested,
			"target", target,
			"min_workers", minWorkers,
			"max_workers", maxWorkers)
	}

	r.bus.Publish(events.NewPoolEvent(events.EventPoolScaled, poolID, ScaleData{
		PoolID:        poolID,
		MinWorkers:    minWorkers,
		MaxWorkers:    maxWorkers,
		Requested:     requested,
		TargetWorkers: target,
		Clamped:       clamped,
	}))
	return nil
}

// Close stops a pool. The pool record remains queryable; there is no
// automatic teardown of its workers, but new workers and assignments are
// rejected from here on.
func (r *Registry) Close(poolID string) error {
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	prev := p.status
	if prev == StatusStopped {
		p.mu.Unlock()
		return nil
	}
	p.status = StatusStopped
	completed := p.tasksCompleted
	p.mu.Unlock()

	r.logger.Info("pool closed", "pool_id", poolID, "tasks_completed", completed)

	r.bus.Publish(events.NewPoolEvent(events.EventPoolStatusChanged, poolID, StatusChangeData{
		PoolID:   poolID,
		Previous: prev,
		Current:  StatusStopped,
	}))
	r.bus.Publish(events.NewPoolEvent(events.EventPoolClosed, poolID, CloseData{
		PoolID:         poolID,
		TasksCompleted: completed,
	}))
	return nil
}

// AddWorker attaches a worker to a pool in the idle state. If the worker
// id is already owned by another pool, the old record is destroyed first.
// Stopped and errored pools reject new workers.
func (r *Registry) AddWorker(poolID, workerID string) error {
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	prevOwner, owned := r.owner[workerID]
	r.mu.Unlock()
	if owned && prevOwner != poolID {
		r.logger.Warn("worker reassigned across pools, destroying old record",
			"worker_id", workerID,
			"previous_pool", prevOwner,
			"pool_id", poolID)
		r.RemoveWorker(prevOwner, workerID)
	}

	now := r.now().UTC()
	p.mu.Lock()
	if !p.status.AcceptsWorkers() {
		p.mu.Unlock()
		return errors.ErrPoolClosed(poolID)
	}
	if _, exists := p.workers[workerID]; exists {
		p.mu.Unlock()
		return nil
	}
	p.workers[workerID] = &worker{
		id:             workerID,
		status:         WorkerIdle,
		lastTransition: now,
	}
	p.mu.Unlock()

	r.mu.Lock()
	r.owner[workerID] = poolID
	r.mu.Unlock()

	r.bus.Publish(events.NewPoolEvent(events.EventWorkerAdded, poolID, WorkerData{
		PoolID:   poolID,
		WorkerID: workerID,
		Status:   WorkerIdle,
	}))
	return nil
}

// RemoveWorker detaches a worker from its pool. Removal is idempotent:
// the boolean reports whether a record was actually removed.
func (r *Registry) RemoveWorker(poolID, workerID string) bool {
	p, err := r.Get(poolID)
	if err != nil {
		return false
	}

	p.mu.Lock()
	w, ok := p.workers[workerID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	delete(p.workers, workerID)
	status := w.status
	p.mu.Unlock()

	r.mu.Lock()
	if r.owner[workerID] == poolID {
		delete(r.owner, workerID)
	}
	r.mu.Unlock()

	r.bus.Publish(events.NewPoolEvent(events.EventWorkerRemoved, poolID, WorkerData{
		PoolID:   poolID,
		WorkerID: workerID,
		Status:   status,
	}))
	return true
}

// UpdateWorkerStatus transitions a worker's status and publishes
// worker.status_changed carrying both previous and next status.
func (r *Registry) UpdateWorkerStatus(poolID, workerID string, status WorkerStatus) error {
	if !status.IsValid() {
		return errors.Newf(errors.CodeInvalidStatus, "invalid worker status %q", status)
	}
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	w, ok := p.workers[workerID]
	if !ok {
		p.mu.Unlock()
		return errors.ErrWorkerNotFound(poolID, workerID)
	}
	prev := w.status
	if prev == status {
		p.mu.Unlock()
		return nil
	}
	w.status = status
	if status != WorkerBusy {
		w.currentTaskID = ""
	}
	w.lastTransition = r.now().UTC()
	p.mu.Unlock()

	r.bus.Publish(events.NewPoolEvent(events.EventWorkerStatusChanged, poolID, WorkerStatusData{
		PoolID:   poolID,
		WorkerID: workerID,
		Previous: prev,
		Current:  status,
	}))
	return nil
}

// Assign hands a task to an idle worker. The worker transitions to busy
// and carries the task id until completion.
func (r *Registry) Assign(poolID, workerID, taskID string) error {
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if !p.status.AcceptsWorkers() {
		p.mu.Unlock()
		return errors.ErrPoolClosed(poolID)
	}
	w, ok := p.workers[workerID]
	if !ok {
		p.mu.Unlock()
		return errors.ErrWorkerNotFound(poolID, workerID)
	}
	if w.status != WorkerIdle {
		p.mu.Unlock()
		return errors.Newf(errors.CodeInvalidStatus,
			"worker %s is %s, not idle", workerID, w.status)
	}
	prev := w.status
	w.status = WorkerBusy
	w.currentTaskID = taskID
	w.lastTransition = r.now().UTC()
	p.mu.Unlock()

	r.bus.Publish(events.NewPoolEvent(events.EventWorkerStatusChanged, poolID, WorkerStatusData{
		PoolID:   poolID,
		WorkerID: workerID,
		Previous: prev,
		Current:  WorkerBusy,
	}))
	r.bus.Publish(events.NewPoolEvent(events.EventTaskAssigned, poolID, AssignData{
		PoolID:   poolID,
		WorkerID: workerID,
		TaskID:   taskID,
	}))
	return nil
}

// Complete records that a worker finished its current task. The worker
// returns to idle, and the pool's aggregate completion counters advance.
func (r *Registry) Complete(poolID, workerID string, success bool, duration time.Duration) error {
	p, err := r.Get(poolID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	w, ok := p.workers[workerID]
	if !ok {
		p.mu.Unlock()
		return errors.ErrWorkerNotFound(poolID, workerID)
	}
	if w.status != WorkerBusy {
		p.mu.Unlock()
		return errors.Newf(errors.CodeInvalidStatus,
			"worker %s is %s, not busy", workerID, w.status)
	}
	taskID := w.currentTaskID
	w.status = WorkerIdle
	w.currentTaskID = ""
	w.tasksCompleted++
	w.lastTransition = r.now().UTC()
	if success {
		p.tasksCompleted++
		p.totalDuration += duration
	}
	p.mu.Unlock()

	r.bus.Publish(events.NewPoolEvent(events.EventTaskCompleted, poolID, CompleteData{
		PoolID:          poolID,
		WorkerID:        workerID,
		TaskID:          taskID,
		Success:         success,
		DurationSeconds: duration.Seconds(),
	}))
	r.bus.Publish(events.NewPoolEvent(events.EventWorkerStatusChanged, poolID, WorkerStatusData{
		PoolID:   poolID,
		WorkerID: workerID,
		Previous: WorkerBusy,
		Current:  WorkerIdle,
	}))
	return nil
}

// PoolStatus returns a snapshot of one pool.
func (r *Registry) PoolStatus(poolID string) (Snapshot, error) {
	p, err := r.Get(poolID)
	if err != nil {
		return Snapshot{}, err
	}
	return p.Snapshot(), nil
}

// WorkerStatus returns a snapshot of one worker.
func (r *Registry) WorkerStatus(poolID, workerID string) (WorkerSnapshot, error) {
	p, err := r.Get(poolID)
	if err != nil {
		return WorkerSnapshot{}, err
	}
	return p.WorkerSnapshot(workerID)
}
