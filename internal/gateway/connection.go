// Package gateway implements the client-facing WebSocket gateway:
// authorization handshake, heartbeat enforcement, inbound message
// dispatch, and the process-wide connection registry spec.md §4.7/§5
// calls the "ConnectionManager" and its "shared-resource policy".
//
// Generalizes the teacher's Bot (internal/discord): a
// sync.RWMutex-guarded set of live sessions with a sync.Once-guarded
// close, moved from one Discord gateway session per process to one
// WebSocket connection per accepted client, each owning its own
// streaming.MessageProcessor instead of a shared Discord session.
package gateway

import (
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/aurelia-labs/aurelia/internal/streaming"
)

// Connection is the per-client record described in spec.md §3: a unique
// connection_id, authorization state, and the one MessageProcessor that
// owns every turn started on this connection.
type Connection struct {
	ID string

	conn *websocket.Conn

	mu           sync.RWMutex
	authorized   bool
	userID       string
	lastInboundAt time.Time
	lastPongAt   time.Time

	// currentTurnID tracks the turn currently streaming to this client, if
	// any, so a new chat_message knows which turn to supersede (spec.md §4.6).
	currentTurnID string

	processor *streaming.MessageProcessor

	// forwardQueue serializes outbound delivery across turns: Manager.forwardLoop
	// drains one turn's event channel to completion before pulling the next,
	// so a superseded turn's interrupted event always reaches the client
	// before the superseding turn's stream_start (spec.md §4.6, S6).
	forwardQueue chan (<-chan streaming.OutboundEvent)

	closeOnce sync.Once
	done      chan struct{}
}

func newConnection(id string, conn *websocket.Conn, processor *streaming.MessageProcessor, forwardQueueCapacity int) *Connection {
	now := time.Now()
	return &Connection{
		ID:            id,
		conn:          conn,
		lastInboundAt: now,
		lastPongAt:    now,
		processor:     processor,
		forwardQueue:  make(chan (<-chan streaming.OutboundEvent), forwardQueueCapacity),
		done:          make(chan struct{}),
	}
}

// enqueueForward schedules events to be drained by Manager.forwardLoop once
// every turn queued ahead of it has finished forwarding.
func (c *Connection) enqueueForward(events <-chan streaming.OutboundEvent) {
	select {
	case c.forwardQueue <- events:
	case <-c.done:
	}
}

// Authorized reports whether this connection has completed the
// authorization handshake.
func (c *Connection) Authorized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authorized
}

func (c *Connection) authorize(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authorized = true
	c.userID = userID
}

func (c *Connection) touchInbound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastInboundAt = time.Now()
}

func (c *Connection) touchPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPongAt = time.Now()
}

func (c *Connection) lastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPongAt
}

func (c *Connection) lastInbound() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastInboundAt
}

func (c *Connection) setCurrentTurn(turnID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTurnID = turnID
}

func (c *Connection) getCurrentTurn() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentTurnID
}

// close releases this connection's processor and underlying socket exactly
// once, safe to call from multiple goroutines (the manager's authorization
// and read-loop paths and the heartbeat all race to close the same
// connection).
func (c *Connection) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.processor.Shutdown()
		_ = c.conn.Close(code, reason)
	})
}
