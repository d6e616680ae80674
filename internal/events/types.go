// Package events provides event types and fan-out infrastructure for
// mahavishnu pool and worker lifecycle notifications.
package events

import (
	"fmt"
	"time"
)

// GlobalChannel is the special channel that receives every event from
// every pool.
const GlobalChannel = "*"

// PoolChannel returns the channel name for a pool's events.
func PoolChannel(poolID string) string {
	return fmt.Sprintf("pool:%s", poolID)
}

// EventType defines the type of event. Values are the exact strings sent
// on the wire.
type EventType string

const (
	// EventPoolSpawned indicates a pool was registered.
	EventPoolSpawned EventType = "pool.spawned"
	// EventPoolScaled indicates a pool's worker bounds or count changed.
	EventPoolScaled EventType = "pool.scaled"
	// EventPoolStatusChanged indicates a pool lifecycle transition.
	EventPoolStatusChanged EventType = "pool.status_changed"
	// EventPoolClosed indicates a pool was closed.
	EventPoolClosed EventType = "pool.closed"
	// EventWorkerAdded indicates a worker joined a pool.
	EventWorkerAdded EventType = "worker.added"
	// EventWorkerRemoved indicates a worker left a pool.
	EventWorkerRemoved EventType = "worker.removed"
	// EventWorkerStatusChanged indicates a worker status transition.
	EventWorkerStatusChanged EventType = "worker.status_changed"
	// EventTaskAssigned indicates a task was handed to a worker.
	EventTaskAssigned EventType = "task.assigned"
	// EventTaskCompleted indicates a worker finished its task.
	EventTaskCompleted EventType = "task.completed"
	// EventSubscriptionLagged tells one subscriber that events were
	// dropped because its delivery queue overflowed.
	EventSubscriptionLagged EventType = "subscription.lagged"
)

// Event is an immutable record generated on a state change. Sequence
// numbers are per-channel, monotonically increasing, and start at zero at
// bus startup.
type Event struct {
	Type      EventType `json:"event"`
	Channel   string    `json:"channel"`
	PoolID    string    `json:"pool_id,omitempty"`
	Data      any       `json:"data"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPoolEvent creates an event for the given pool's channel. Sequence and
// timestamp are stamped by the bus on publish.
func NewPoolEvent(eventType EventType, poolID string, data any) Event {
	return Event{
		Type:    eventType,
		Channel: PoolChannel(poolID),
		PoolID:  poolID,
		Data:    data,
	}
}

// LagData is the payload of a subscription.lagged notice.
type LagData struct {
	// Dropped is how many undelivered events were discarded.
	Dropped int `json:"dropped"`
}
