// Package orchestrator runs the control loop that moves tasks from the
// dependency graph through the ordering engine onto worker pools, feeds
// completions back into the graph, and routes failures through the
// dead-letter queue.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mahavishnu/mahavishnu/internal/deps"
	"github.com/mahavishnu/mahavishnu/internal/dlq"
	"github.com/mahavishnu/mahavishnu/internal/errors"
	"github.com/mahavishnu/mahavishnu/internal/ident"
	"github.com/mahavishnu/mahavishnu/internal/ordering"
	"github.com/mahavishnu/mahavishnu/internal/pool"
	"github.com/mahavishnu/mahavishnu/internal/task"
)

// Executor runs one task on one worker. Implementations own their
// internal timeouts; the orchestrator does not cancel a run mid-call.
type Executor interface {
	Execute(ctx context.Context, t *task.Task, poolID, workerID string) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, t *task.Task, poolID, workerID string) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, t *task.Task, poolID, workerID string) error {
	return f(ctx, t, poolID, workerID)
}

// Config holds orchestrator tunables.
type Config struct {
	PollInterval  time.Duration     // dispatch cycle period (default 2s)
	MaxConcurrent int               // maximum in-flight runs (default 8)
	BatchSize     int               // ready tasks pulled per cycle (default 16)
	Strategy      ordering.Strategy // ranking strategy (default balanced)

	// RetryPolicy and MaxRetries apply to records the orchestrator
	// enqueues on failure.
	RetryPolicy dlq.RetryPolicy
	MaxRetries  int
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:  2 * time.Second,
		MaxConcurrent: 8,
		BatchSize:     16,
		Strategy:      ordering.StrategyBalanced,
		RetryPolicy:   dlq.PolicyExponential,
		MaxRetries:    3,
	}
}

// Status is the orchestrator lifecycle state.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
)

// Snapshot is a point-in-time view of orchestration progress.
type Snapshot struct {
	Status         Status `json:"status"`
	TaskCount      int    `json:"task_count"`
	ActiveCount    int    `json:"active_count"`
	ReadyCount     int    `json:"ready_count"`
	CompletedCount int    `json:"completed_count"`
	FailedCount    int    `json:"failed_count"`
	DeadLetters    int    `json:"dead_letters"`
}

// Orchestrator coordinates the dependency manager, ordering engine, pool
// registry, and dead-letter queue.
type Orchestrator struct {
	config   *Config
	deps     *deps.Manager
	engine   *ordering.Engine
	registry *pool.Registry
	queue    *dlq.Queue
	exec     Executor
	idgen    *ident.Generator
	logger   *slog.Logger

	mu        sync.RWMutex
	status    Status
	tasks     map[string]*task.Task
	active    map[string]bool
	completed int
	failed    int

	ctx    context.Context
	cancel context.CancelFunc
	loopWG sync.WaitGroup
	runs   *errgroup.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an orchestrator.
func New(cfg *Config, depMgr *deps.Manager, engine *ordering.Engine, registry *pool.Registry, queue *dlq.Queue, exec Executor, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := &Orchestrator{
		config:   cfg,
		deps:     depMgr,
		engine:   engine,
		registry: registry,
		queue:    queue,
		exec:     exec,
		idgen:    ident.NewGenerator(),
		logger:   slog.Default(),
		status:   StatusStopped,
		tasks:    make(map[string]*task.Task),
		active:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitTask registers a task and its dependencies. A task without an id
// is assigned a fresh one; the (possibly assigned) id is returned.
func (o *Orchestrator) SubmitTask(t *task.Task, dependsOn []string) (string, error) {
	if t.ID == "" {
		id, err := o.idgen.Generate()
		if err != nil {
			return "", err
		}
		t.ID = id
	}
	if errs := t.Validate(); errs.HasErrors() {
		return "", errs
	}

	o.mu.Lock()
	if _, exists := o.tasks[t.ID]; exists {
		o.mu.Unlock()
		return t.ID, nil
	}
	o.tasks[t.ID] = t.Clone()
	o.mu.Unlock()

	o.deps.AddTask(t.ID, nil)
	for _, dep := range dependsOn {
		o.deps.AddTask(dep, nil)
		if err := o.deps.AddDependency(dep, t.ID, task.EdgeBlocks, nil); err != nil {
			if errors.CodeOf(err) == errors.CodeDuplicateEdge {
				continue
			}
			return "", err
		}
	}

	o.logger.Info("task submitted", "task_id", t.ID, "title", t.Title, "depends_on", dependsOn)
	return t.ID, nil
}

// Task returns a copy of the submitted task.
func (o *Orchestrator) Task(id string) (*task.Task, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Start begins orchestration. The retry processor is started alongside
// the dispatch loop so dead letters re-enter the graph when their window
// opens.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.status == StatusRunning {
		o.mu.Unlock()
		return errors.New(errors.CodeInternal, "orchestrator already running")
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.status = StatusRunning
	o.runs = &errgroup.Group{}
	if o.config.MaxConcurrent > 0 {
		o.runs.SetLimit(o.config.MaxConcurrent)
	}
	o.mu.Unlock()

	o.logger.Info("orchestrator started",
		"poll_interval", o.config.PollInterval,
		"max_concurrent", o.config.MaxConcurrent,
		"strategy", o.config.Strategy)

	o.loopWG.Add(1)
	go o.mainLoop()
	return nil
}

// Stop halts dispatch, waits for in-flight runs, and returns. Safe to
// call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.status != StatusRunning {
		o.mu.Unlock()
		return
	}
	o.status = StatusStopped
	cancel := o.cancel
	runs := o.runs
	o.mu.Unlock()

	cancel()
	o.loopWG.Wait()
	_ = runs.Wait()

	o.logger.Info("orchestrator stopped")
}

func (o *Orchestrator) mainLoop() {
	defer o.loopWG.Done()

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.tick()
		}
	}
}

// tick performs one dispatch cycle: pull ready tasks, rank them, and
// hand as many as possible to idle workers.
func (o *Orchestrator) tick() {
	ready := o.deps.GetNextAvailableTasks(o.config.BatchSize)
	if len(ready) == 0 {
		return
	}

	ranked := o.rank(ready)
	for _, id := range ranked {
		o.mu.RLock()
		inFlight := o.active[id]
		t := o.tasks[id]
		o.mu.RUnlock()
		if inFlight || t == nil {
			continue
		}

		poolID, workerID, ok := o.findIdleWorker()
		if !ok {
			return
		}
		o.dispatch(t.Clone(), poolID, workerID)
	}
}

// rank orders the ready set under the configured strategy.
func (o *Orchestrator) rank(ready []string) []string {
	o.mu.RLock()
	tasks := make([]*task.Task, 0, len(ready))
	for _, id := range ready {
		if t, ok := o.tasks[id]; ok {
			tasks = append(tasks, t.Clone())
		}
	}
	o.mu.RUnlock()

	if len(tasks) <= 1 {
		return ready
	}

	depsByID := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		depsByID[t.ID] = o.deps.Graph().Dependencies(t.ID)
	}

	result := o.engine.Order(ordering.Input{
		Tasks:        tasks,
		Dependencies: depsByID,
		Strategy:     o.config.Strategy,
	})
	out := make([]string, 0, len(result.Recommendations))
	for _, rec := range result.Recommendations {
		out = append(out, rec.TaskID)
	}
	return out
}

// findIdleWorker scans running pools for an idle worker.
func (o *Orchestrator) findIdleWorker() (poolID, workerID string, ok bool) {
	for _, snap := range o.registry.List() {
		if !snap.Status.AcceptsWorkers() {
			continue
		}
		p, err := o.registry.Get(snap.PoolID)
		if err != nil {
			continue
		}
		if idle := p.IdleWorkers(); len(idle) > 0 {
			return snap.PoolID, idle[0], true
		}
	}
	return "", "", false
}

// dispatch marks the task in progress, assigns it, and runs it on the
// bounded run group.
func (o *Orchestrator) dispatch(t *task.Task, poolID, workerID string) {
	if _, err := o.deps.UpdateTaskStatus(t.ID, task.StatusInProgress); err != nil {
		o.logger.Error("task transition failed", "task_id", t.ID, "error", err)
		return
	}
	if err := o.registry.Assign(poolID, workerID, t.ID); err != nil {
		o.logger.Error("assignment failed",
			"task_id", t.ID, "pool_id", poolID, "worker_id", workerID, "error", err)
		// Put the task back so the next cycle can retry it elsewhere.
		// The task never started, so the revert skips handler
		// notification; dependents must not observe a failure.
		if rbErr := o.deps.RevertTaskStatus(t.ID, task.StatusPending); rbErr != nil {
			o.logger.Error("rollback failed", "task_id", t.ID, "error", rbErr)
		}
		return
	}

	o.mu.Lock()
	o.active[t.ID] = true
	o.mu.Unlock()

	o.runs.Go(func() error {
		o.run(t, poolID, workerID)
		return nil
	})
}

// run executes one task and feeds the outcome back into the graph, the
// registry, and (on failure) the dead-letter queue.
func (o *Orchestrator) run(t *task.Task, poolID, workerID string) {
	start := time.Now()
	err := o.exec.Execute(o.ctx, t, poolID, workerID)
	duration := time.Since(start)

	defer func() {
		o.mu.Lock()
		delete(o.active, t.ID)
		o.mu.Unlock()
	}()

	if cErr := o.registry.Complete(poolID, workerID, err == nil, duration); cErr != nil {
		o.logger.Warn("worker completion not recorded",
			"task_id", t.ID, "worker_id", workerID, "error", cErr)
	}

	if err == nil {
		if _, uErr := o.deps.UpdateTaskStatus(t.ID, task.StatusCompleted); uErr != nil {
			o.logger.Error("completion transition failed", "task_id", t.ID, "error", uErr)
			return
		}
		o.mu.Lock()
		o.completed++
		o.mu.Unlock()
		o.logger.Info("task completed", "task_id", t.ID, "duration", duration)
		return
	}

	o.logger.Error("task failed", "task_id", t.ID, "error", err)
	if _, uErr := o.deps.UpdateTaskStatus(t.ID, task.StatusFailed); uErr != nil {
		o.logger.Error("failure transition failed", "task_id", t.ID, "error", uErr)
	}
	o.mu.Lock()
	o.failed++
	o.mu.Unlock()

	var repos []string
	if t.Repository != "" {
		repos = []string{t.Repository}
	}
	if _, qErr := o.queue.Enqueue(dlq.EnqueueRequest{
		TaskID:     t.ID,
		Payload:    t,
		Repos:      repos,
		Err:        err.Error(),
		Policy:     o.config.RetryPolicy,
		MaxRetries: o.config.MaxRetries,
		Category:   categorize(err),
	}); qErr != nil {
		o.logger.Error("dead-letter enqueue failed", "task_id", t.ID, "error", qErr)
	}
}

// Resubmit is the dead-letter retry callback: it moves the failed task
// back to pending so the dispatch loop picks it up through the normal
// ready path.
func (o *Orchestrator) Resubmit(payload *task.Task, repos []string) error {
	if payload == nil {
		return errors.New(errors.CodeInvalidTask, "dead-letter record has no payload")
	}
	if _, err := o.deps.UpdateTaskStatus(payload.ID, task.StatusPending); err != nil {
		return err
	}
	o.logger.Info("dead letter resubmitted", "task_id", payload.ID, "repos", repos)
	return nil
}

// categorize maps an execution error onto a dead-letter category.
func categorize(err error) dlq.ErrorCategory {
	switch errors.AsError(err).Category() {
	case errors.CategoryTimeout:
		return dlq.CategoryNetwork
	case errors.CategoryValidation:
		return dlq.CategoryValidation
	case errors.CategoryCapacity:
		return dlq.CategoryResource
	case errors.CategoryFatal:
		return dlq.CategoryPermanent
	default:
		return dlq.CategoryTransient
	}
}

// Snapshot returns current orchestration progress.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		Status:         o.status,
		TaskCount:      len(o.tasks),
		ActiveCount:    len(o.active),
		ReadyCount:     len(o.deps.GetReadyTasks()),
		CompletedCount: o.completed,
		FailedCount:    o.failed,
		DeadLetters:    o.queue.Size(),
	}
}

// Wait blocks until no task is pending, active, or ready, or the
// orchestrator stops.
func (o *Orchestrator) Wait() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.mu.RLock()
			idle := len(o.active) == 0
			o.mu.RUnlock()
			if idle && len(o.deps.GetReadyTasks()) == 0 {
				return
			}
		}
	}
}
