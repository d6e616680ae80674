// Package api implements the websocket subscription gateway: a framed
// request/response protocol with server-pushed lifecycle events.
package api

import (
	"encoding/json"
	"time"

	"github.com/mahavishnu/mahavishnu/internal/events"
)

// ProtocolVersion is sent in the welcome frame.
const ProtocolVersion = "1.0"

// Frame type strings on the wire.
const (
	FrameWelcome  = "welcome"
	FrameRequest  = "request"
	FrameResponse = "response"
	FrameEvent    = "event"
	FrameError    = "error"
	FramePing     = "ping"
	FramePong     = "pong"
	FrameGoodbye  = "goodbye"
)

// Request event names.
const (
	RequestSubscribe       = "subscribe"
	RequestUnsubscribe     = "unsubscribe"
	RequestGetPoolStatus   = "get_pool_status"
	RequestGetWorkerStatus = "get_worker_status"
	RequestGetDLQStats     = "get_dlq_stats"
	RequestGetReadyTasks   = "get_ready_tasks"
)

// Capabilities lists the request events this gateway answers. Sent in the
// welcome frame.
var Capabilities = []string{
	RequestSubscribe,
	RequestUnsubscribe,
	RequestGetPoolStatus,
	RequestGetWorkerStatus,
	RequestGetDLQStats,
	RequestGetReadyTasks,
}

// WelcomeFrame is the first frame after accept.
type WelcomeFrame struct {
	Type         string   `json:"type"`
	Version      string   `json:"version"`
	SessionID    string   `json:"session_id"`
	Capabilities []string `json:"capabilities"`
}

// RequestFrame is a client request.
type RequestFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id"`
}

// ResponseFrame is a correlated reply.
type ResponseFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Data    any    `json:"data,omitempty"`
	Status  string `json:"status,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// EventFrame is an unsolicited lifecycle notification.
type EventFrame struct {
	Type      string           `json:"type"`
	Event     events.EventType `json:"event"`
	Data      any              `json:"data"`
	Sequence  uint64           `json:"sequence"`
	Channel   string           `json:"channel"`
	Timestamp time.Time        `json:"timestamp"`
}

// ErrorFrame is a structured error, correlated when id is present.
type ErrorFrame struct {
	Type         string `json:"type"`
	ID           string `json:"id,omitempty"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// PingFrame doubles as pong with the type field flipped.
type PingFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// GoodbyeFrame is sent once per session on server shutdown.
type GoodbyeFrame struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// SubscribeData is the data payload of subscribe and unsubscribe requests.
type SubscribeData struct {
	Channel string `json:"channel"`
}

// PoolStatusData is the data payload of get_pool_status requests.
type PoolStatusData struct {
	PoolID string `json:"pool_id"`
}

// WorkerStatusData is the data payload of get_worker_status requests.
type WorkerStatusData struct {
	PoolID   string `json:"pool_id"`
	WorkerID string `json:"worker_id"`
}

// ReadyTasksData is the data payload of get_ready_tasks requests.
type ReadyTasksData struct {
	Limit int `json:"limit"`
}
