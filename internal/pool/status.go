// Package pool tracks worker pools, their workers, and current task
// assignments. Every state change is published on the event bus.
package pool

// Status is the lifecycle state of a pool.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusScaling      Status = "scaling"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
)

// IsValid reports whether s is a recognized pool status.
func (s Status) IsValid() bool {
	switch s {
	case StatusInitializing, StatusRunning, StatusScaling, StatusStopped, StatusError:
		return true
	}
	return false
}

// AcceptsWorkers reports whether a pool in this state admits new workers
// and assignments. Stopped and errored pools reject both.
func (s Status) AcceptsWorkers() bool {
	return s != StatusStopped && s != StatusError
}

// WorkerStatus is the state of one worker within its pool.
type WorkerStatus string

const (
	WorkerInitializing WorkerStatus = "initializing"
	WorkerIdle         WorkerStatus = "idle"
	WorkerBusy         WorkerStatus = "busy"
	WorkerError        WorkerStatus = "error"
	WorkerStopping     WorkerStatus = "stopping"
)

// IsValid reports whether s is a recognized worker status.
func (s WorkerStatus) IsValid() bool {
	switch s {
	case WorkerInitializing, WorkerIdle, WorkerBusy, WorkerError, WorkerStopping:
		return true
	}
	return false
}
