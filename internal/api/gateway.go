package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/mahavishnu/mahavishnu/internal/dlq"
	"github.com/mahavishnu/mahavishnu/internal/errors"
	"github.com/mahavishnu/mahavishnu/internal/events"
	"github.com/mahavishnu/mahavishnu/internal/pool"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB

	// Per-session outbound buffer.
	sendBufferSize = 256

	// DefaultPingInterval is the liveness probe period. A peer that
	// misses a pong beyond twice this interval is terminated.
	DefaultPingInterval = 20 * time.Second

	// DefaultRequestTimeout bounds each client request.
	DefaultRequestTimeout = 5 * time.Second
)

// PoolDirectory answers pool and worker status queries.
type PoolDirectory interface {
	PoolStatus(poolID string) (pool.Snapshot, error)
	WorkerStatus(poolID, workerID string) (pool.WorkerSnapshot, error)
}

// QueueStats answers dead-letter queue statistics queries.
type QueueStats interface {
	Statistics() dlq.Statistics
}

// ReadySource answers ready-task queries.
type ReadySource interface {
	GetNextAvailableTasks(limit int) []string
}

// Gateway upgrades websocket connections and serves the subscription
// protocol. Each session runs its own read and write pumps; request
// handlers suspend only on the subsystem they query.
type Gateway struct {
	upgrader websocket.Upgrader
	bus      *events.Bus
	pools    PoolDirectory
	queue    QueueStats
	ready    ReadySource
	logger   *slog.Logger

	pingInterval   time.Duration
	requestTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithPingInterval sets the liveness probe period.
func WithPingInterval(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.pingInterval = d
		}
	}
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.requestTimeout = d
		}
	}
}

// NewGateway creates the subscription gateway.
func NewGateway(bus *events.Bus, pools PoolDirectory, queue QueueStats, ready ReadySource, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		bus:            bus,
		pools:          pools,
		queue:          queue,
		ready:          ready,
		logger:         slog.Default(),
		pingInterval:   DefaultPingInterval,
		requestTimeout: DefaultRequestTimeout,
		sessions:       make(map[string]*session),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// session tracks one client connection and its channel subscriptions.
type session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu   sync.Mutex
	subs map[string]*events.Subscription
}

// ServeHTTP handles websocket upgrade requests.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s := &session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
		subs: make(map[string]*events.Subscription),
	}

	g.mu.Lock()
	g.sessions[s.id] = s
	g.mu.Unlock()

	g.sendFrame(s, WelcomeFrame{
		Type:         FrameWelcome,
		Version:      ProtocolVersion,
		SessionID:    s.id,
		Capabilities: Capabilities,
	})

	go g.readPump(s)
	go g.writePump(s)

	g.logger.Debug("session accepted", "session_id", s.id, "remote", r.RemoteAddr)
}

// pongWait is the read deadline: one missed pong beyond twice the ping
// interval terminates the session.
func (g *Gateway) pongWait() time.Duration {
	return 2 * g.pingInterval
}

// readPump reads frames from the connection until it drops.
func (g *Gateway) readPump(s *session) {
	defer g.closeSession(s)

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(g.pongWait()))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(g.pongWait()))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				g.logger.Error("websocket read error", "session_id", s.id, "error", err)
			}
			return
		}
		g.handleFrame(s, message)
	}
}

// writePump writes queued frames and sends liveness pings.
func (g *Gateway) writePump(s *session) {
	ticker := time.NewTicker(g.pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain queued frames as separate messages.
			n := len(s.send)
			for i := 0; i < n; i++ {
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteMessage(websocket.TextMessage, <-s.send); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame sniffs the frame type before committing to a full decode.
func (g *Gateway) handleFrame(s *session, data []byte) {
	if !gjson.ValidBytes(data) {
		g.sendError(s, "", errors.CodeProtocol, "frame is not valid JSON")
		return
	}

	switch frameType := gjson.GetBytes(data, "type").String(); frameType {
	case FrameRequest:
		var req RequestFrame
		if err := json.Unmarshal(data, &req); err != nil {
			g.sendError(s, "", errors.CodeProtocol, "malformed request frame")
			return
		}
		g.handleRequest(s, req)
	case FramePing:
		g.sendFrame(s, PingFrame{Type: FramePong, Timestamp: time.Now().UTC()})
	case FramePong:
		// Application-level pong; the transport pong handler owns the
		// read deadline.
	case "":
		g.sendError(s, "", errors.CodeProtocol, "frame missing type field")
	default:
		g.sendError(s, "", errors.CodeProtocol, "unexpected frame type: "+frameType)
	}
}

// handleRequest dispatches one request under the per-request timeout. On
// timeout the handler keeps running and its result is dropped.
func (g *Gateway) handleRequest(s *session, req RequestFrame) {
	if req.ID == "" {
		g.sendError(s, "", errors.CodeProtocol, "request missing id")
		return
	}

	type outcome struct {
		resp ResponseFrame
		err  error
	}
	result := make(chan outcome, 1)
	go func() {
		resp, err := g.dispatch(s, req)
		result <- outcome{resp, err}
	}()

	select {
	case out := <-result:
		if out.err != nil {
			e := errors.AsError(out.err)
			g.sendError(s, req.ID, e.Code, e.Error())
			return
		}
		g.sendFrame(s, out.resp)
	case <-time.After(g.requestTimeout):
		g.logger.Warn("request timed out",
			"session_id", s.id,
			"request_id", req.ID,
			"event", req.Event)
		g.sendError(s, req.ID, errors.CodeRequestTimeout, "request timed out")
	}
}

func (g *Gateway) dispatch(s *session, req RequestFrame) (ResponseFrame, error) {
	switch req.Event {
	case RequestSubscribe:
		return g.handleSubscribe(s, req)
	case RequestUnsubscribe:
		return g.handleUnsubscribe(s, req)
	case RequestGetPoolStatus:
		var data PoolStatusData
		if err := decodeData(req.Data, &data); err != nil {
			return ResponseFrame{}, err
		}
		snap, err := g.pools.PoolStatus(data.PoolID)
		if err != nil {
			return ResponseFrame{}, err
		}
		return ResponseFrame{Type: FrameResponse, ID: req.ID, Data: snap}, nil
	case RequestGetWorkerStatus:
		var data WorkerStatusData
		if err := decodeData(req.Data, &data); err != nil {
			return ResponseFrame{}, err
		}
		snap, err := g.pools.WorkerStatus(data.PoolID, data.WorkerID)
		if err != nil {
			return ResponseFrame{}, err
		}
		return ResponseFrame{Type: FrameResponse, ID: req.ID, Data: snap}, nil
	case RequestGetDLQStats:
		return ResponseFrame{Type: FrameResponse, ID: req.ID, Data: g.queue.Statistics()}, nil
	case RequestGetReadyTasks:
		var data ReadyTasksData
		if len(req.Data) > 0 {
			if err := decodeData(req.Data, &data); err != nil {
				return ResponseFrame{}, err
			}
		}
		ids := g.ready.GetNextAvailableTasks(data.Limit)
		return ResponseFrame{Type: FrameResponse, ID: req.ID, Data: map[string]any{"task_ids": ids}}, nil
	default:
		return ResponseFrame{}, errors.Newf(errors.CodeUnknownRequest, "unknown request event %q", req.Event)
	}
}

func decodeData(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return errors.New(errors.CodeProtocol, "request missing data")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return errors.New(errors.CodeProtocol, "malformed request data").WithCause(err)
	}
	return nil
}

// handleSubscribe attaches the session to a channel. Subscribing to a
// channel for a pool that does not exist yet is accepted; events start
// flowing once the pool is spawned. Re-subscribing is idempotent.
func (g *Gateway) handleSubscribe(s *session, req RequestFrame) (ResponseFrame, error) {
	var data SubscribeData
	if err := decodeData(req.Data, &data); err != nil {
		return ResponseFrame{}, err
	}
	if data.Channel == "" {
		return ResponseFrame{}, errors.New(errors.CodeProtocol,
			`subscribe requires a channel (use "*" for all pools)`)
	}

	s.mu.Lock()
	if _, active := s.subs[data.Channel]; !active {
		sub := g.bus.Subscribe(data.Channel)
		s.subs[data.Channel] = sub
		go g.forward(s, sub)
	}
	s.mu.Unlock()

	g.logger.Debug("session subscribed", "session_id", s.id, "channel", data.Channel)
	return ResponseFrame{
		Type:    FrameResponse,
		ID:      req.ID,
		Status:  "subscribed",
		Channel: data.Channel,
	}, nil
}

func (g *Gateway) handleUnsubscribe(s *session, req RequestFrame) (ResponseFrame, error) {
	var data SubscribeData
	if err := decodeData(req.Data, &data); err != nil {
		return ResponseFrame{}, err
	}

	s.mu.Lock()
	sub, active := s.subs[data.Channel]
	delete(s.subs, data.Channel)
	s.mu.Unlock()
	if active {
		g.bus.Unsubscribe(sub)
	}

	return ResponseFrame{
		Type:    FrameResponse,
		ID:      req.ID,
		Status:  "unsubscribed",
		Channel: data.Channel,
	}, nil
}

// forward pushes bus events to the session until the subscription or the
// session closes.
func (g *Gateway) forward(s *session, sub *events.Subscription) {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			g.sendFrame(s, EventFrame{
				Type:      FrameEvent,
				Event:     ev.Type,
				Data:      ev.Data,
				Sequence:  ev.Sequence,
				Channel:   ev.Channel,
				Timestamp: ev.Timestamp,
			})
		}
	}
}

// closeSession releases the session's subscriptions and discards
// in-flight replies.
func (g *Gateway) closeSession(s *session) {
	g.mu.Lock()
	_, exists := g.sessions[s.id]
	delete(g.sessions, s.id)
	g.mu.Unlock()
	if !exists {
		return
	}

	s.mu.Lock()
	subs := make([]*events.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[string]*events.Subscription)
	s.mu.Unlock()
	for _, sub := range subs {
		g.bus.Unsubscribe(sub)
	}

	select {
	case <-s.done:
	default:
		close(s.done)
	}
	_ = s.conn.Close()

	g.logger.Debug("session closed", "session_id", s.id)
}

// sendFrame marshals and enqueues one frame. Frames are dropped when the
// session's outbound buffer is full; channel subscriptions get their lag
// signal from the bus, not from here.
func (g *Gateway) sendFrame(s *session, frame any) {
	msg, err := json.Marshal(frame)
	if err != nil {
		g.logger.Error("failed to marshal frame", "error", err)
		return
	}
	select {
	case s.send <- msg:
	default:
		g.logger.Warn("session send buffer full, dropping frame", "session_id", s.id)
	}
}

func (g *Gateway) sendError(s *session, id string, code errors.Code, message string) {
	g.sendFrame(s, ErrorFrame{
		Type:         FrameError,
		ID:           id,
		ErrorCode:    string(code),
		ErrorMessage: message,
	})
}

// SessionCount returns the number of active sessions.
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// Shutdown sends a goodbye frame to every session, flushes pending
// replies up to the context deadline, then closes the connections. New
// connections are rejected once shutdown begins.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	sessions := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		g.sendFrame(s, GoodbyeFrame{Type: FrameGoodbye, Reason: "server shutting down"})
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for _, s := range sessions {
		for len(s.send) > 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}

	for _, s := range sessions {
		g.closeSession(s)
	}
}
