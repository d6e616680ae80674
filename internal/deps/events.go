// Package deps couples the dependency graph to task status and emits
// lifecycle events as edges are satisfied, failed, or cancelled.
package deps

import (
	"log/slog"
	"time"
)

// EventType identifies a dependency lifecycle event.
type EventType string

const (
	DependencyAdded          EventType = "DEPENDENCY_ADDED"
	DependencyRemoved        EventType = "DEPENDENCY_REMOVED"
	DependencySatisfied      EventType = "DEPENDENCY_SATISFIED"
	DependencyFailed         EventType = "DEPENDENCY_FAILED"
	TaskBlocked              EventType = "TASK_BLOCKED"
	TaskUnblocked            EventType = "TASK_UNBLOCKED"
	AllDependenciesSatisfied EventType = "ALL_DEPENDENCIES_SATISFIED"
	BlockingTasksChanged     EventType = "BLOCKING_TASKS_CHANGED"
)

// Event is a dependency lifecycle notification.
type Event struct {
	Type EventType `json:"type"`
	// TaskID is the task the event concerns (the dependent for edge events).
	TaskID string `json:"task_id"`
	// DependencyID is the edge's source task, when the event concerns an edge.
	DependencyID string `json:"dependency_id,omitempty"`
	// Blocking is the task's current blocker set, for BLOCKING_TASKS_CHANGED.
	Blocking []string  `json:"blocking,omitempty"`
	Time     time.Time `json:"time"`
}

// Handler receives dependency events. Implementations must not retain the
// event's Blocking slice past the call.
type Handler interface {
	Accept(ev Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Event)

// Accept implements Handler.
func (f HandlerFunc) Accept(ev Event) { f(ev) }

// emit delivers events to every handler in order. A panicking handler is
// logged and skipped; it never suppresses delivery to the others.
func emit(logger *slog.Logger, handlers []Handler, evs []Event) {
	for _, ev := range evs {
		for _, h := range handlers {
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("dependency event handler panicked",
							"event", ev.Type, "task", ev.TaskID, "panic", r)
					}
				}()
				h.Accept(ev)
			}()
		}
	}
}
