// Package task provides the shared task model for mahavishnu.
package task

// Status represents the current state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{
		StatusPending, StatusInProgress, StatusCompleted,
		StatusFailed, StatusCancelled,
	}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status never changes again.
// Failed is not terminal: a DLQ retry may move it back to pending.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether a task may move from one status to another.
// Allowed transitions:
//
//	pending     -> in_progress, cancelled
//	in_progress -> completed, failed, cancelled
//	failed      -> pending (DLQ retry only)
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	case StatusFailed:
		return to == StatusPending
	default:
		return false
	}
}

// Priority represents the urgency/importance of a task.
type Priority string

const (
	// PriorityCritical indicates urgent tasks that need immediate attention.
	PriorityCritical Priority = "critical"
	// PriorityHigh indicates important tasks that should be done soon.
	PriorityHigh Priority = "high"
	// PriorityMedium indicates regular tasks (default).
	PriorityMedium Priority = "medium"
	// PriorityLow indicates tasks that can wait.
	PriorityLow Priority = "low"
)

// ValidPriorities returns all valid priority values.
func ValidPriorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
}

// IsValidPriority returns true if the priority is a valid priority value.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// PriorityOrder returns a numeric value for sorting (lower = higher priority).
func PriorityOrder(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// EdgeType represents the relationship a dependency edge asserts.
type EdgeType string

const (
	// EdgeBlocks means the dependent must not run before the dependency.
	EdgeBlocks EdgeType = "blocks"
	// EdgeRequires is a hard prerequisite, equivalent to blocks for scheduling.
	EdgeRequires EdgeType = "requires"
	// EdgeRelated is informational and never blocks.
	EdgeRelated EdgeType = "related"
	// EdgeSubtask marks a parent/child decomposition; never blocks.
	EdgeSubtask EdgeType = "subtask"
)

// ValidEdgeTypes returns all valid edge type values.
func ValidEdgeTypes() []EdgeType {
	return []EdgeType{EdgeBlocks, EdgeRequires, EdgeRelated, EdgeSubtask}
}

// IsValidEdgeType returns true if the edge type is a valid value.
func IsValidEdgeType(e EdgeType) bool {
	switch e {
	case EdgeBlocks, EdgeRequires, EdgeRelated, EdgeSubtask:
		return true
	default:
		return false
	}
}

// IsBlockingType returns true for edge types that participate in cycle
// prevention and can block the dependent.
func IsBlockingType(e EdgeType) bool {
	return e == EdgeBlocks || e == EdgeRequires
}

// EdgeStatus is the derived status of a dependency edge, governed by the
// source task's status.
type EdgeStatus string

const (
	EdgePending   EdgeStatus = "pending"
	EdgeSatisfied EdgeStatus = "satisfied"
	EdgeFailed    EdgeStatus = "failed"
	EdgeCancelled EdgeStatus = "cancelled"
)

// EdgeStatusFor derives an edge's status from its source task's status.
func EdgeStatusFor(source Status) EdgeStatus {
	switch source {
	case StatusCompleted:
		return EdgeSatisfied
	case StatusFailed:
		return EdgeFailed
	case StatusCancelled:
		return EdgeCancelled
	default:
		return EdgePending
	}
}

// Blocks reports whether an edge in this status blocks its dependent.
// Only pending and failed edges block.
func (s EdgeStatus) Blocks() bool {
	return s == EdgePending || s == EdgeFailed
}
