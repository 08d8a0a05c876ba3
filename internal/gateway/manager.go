package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/aurelia-labs/aurelia/internal/agentclient"
	"github.com/aurelia-labs/aurelia/internal/config"
	"github.com/aurelia-labs/aurelia/internal/persona"
	"github.com/aurelia-labs/aurelia/internal/streaming"
)

// Authorizer validates the token carried on a connection's first inbound
// authorize message and resolves it to a user ID. Returning a non-nil error
// fails the handshake with authorize_error.
type Authorizer func(ctx context.Context, token string) (userID string, err error)

// Manager is the process-wide registry of live connections described in
// spec.md §4.7/§5's shared-resource policy: a sync.RWMutex-guarded map keyed
// by connection_id, mirroring the cardinality and locking discipline of the
// teacher's Bot (one process-wide registry guarded by one mutex) but scaled
// from "one Discord session" to "N concurrently accepted WebSocket clients".
type Manager struct {
	cfg        config.StreamingConfig
	engine     agentclient.Engine
	persona    *persona.Manager
	authorizer Authorizer

	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewManager wires a Manager around the process-wide agent engine and
// persona catalogue singletons (spec.md §5: "external service clients are
// process-wide singletons").
func NewManager(cfg config.StreamingConfig, engine agentclient.Engine, personaMgr *persona.Manager, authorizer Authorizer) *Manager {
	return &Manager{
		cfg:         cfg,
		engine:      engine,
		persona:     personaMgr,
		authorizer:  authorizer,
		connections: make(map[string]*Connection),
	}
}

// ServeHTTP accepts one WebSocket connection and runs its full lifecycle
// (spec.md §4.7) to completion. It returns once the connection has closed;
// callers typically invoke it from an http.Handler per incoming request.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		slog.Warn("gateway: accept failed", "error", err)
		return
	}

	id := uuid.New().String()
	conn := newConnection(id, wsConn, streaming.NewMessageProcessor(m.cfg), m.cfg.QueueCapacity)

	if !m.authorize(r.Context(), conn) {
		conn.close(websocket.StatusPolicyViolation, "authorization failed")
		return
	}

	m.register(conn)
	defer m.unregister(conn)

	go m.heartbeat(conn)
	go m.forwardLoop(conn)
	m.readLoop(conn)
}

func (m *Manager) register(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID] = conn
}

func (m *Manager) unregister(conn *Connection) {
	conn.close(websocket.StatusNormalClosure, "connection closed")
	m.mu.Lock()
	delete(m.connections, conn.ID)
	m.mu.Unlock()
}

// authorize waits for the first inbound frame with the authorization
// deadline and completes the handshake (spec.md §4.7 step 2-3).
func (m *Manager) authorize(ctx context.Context, conn *Connection) bool {
	deadline := time.Duration(m.cfg.AuthTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	_, data, err := conn.conn.Read(ctx)
	if err != nil {
		slog.Info("gateway: authorize: read failed", "connection_id", conn.ID, "error", err)
		return false
	}

	msg, err := streaming.DecodeInbound(data)
	if err != nil {
		m.send(conn, streaming.AuthorizeErrorEvent{Error: "malformed authorize message"})
		return false
	}

	auth, ok := msg.(streaming.AuthorizeMessage)
	if !ok {
		m.send(conn, streaming.AuthorizeErrorEvent{Error: "first message must be authorize"})
		return false
	}

	userID, err := m.authorizer(ctx, auth.Token)
	if err != nil {
		m.send(conn, streaming.AuthorizeErrorEvent{Error: "invalid token"})
		return false
	}

	conn.authorize(userID)
	return m.send(conn, streaming.AuthorizeSuccessEvent{ConnectionID: conn.ID})
}

// readLoop is step 5 of spec.md §4.7: decode, dispatch, and enforce the
// error budget and inactivity timeout until the peer closes or the error
// budget is exhausted.
func (m *Manager) readLoop(conn *Connection) {
	consecutiveErrors := 0
	inactivity := time.Duration(m.cfg.InactivityTimeoutSeconds) * time.Second

	for {
		ctx, cancel := context.WithTimeout(context.Background(), inactivity)
		_, data, err := conn.conn.Read(ctx)
		cancel()
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				slog.Info("gateway: connection inactive, closing", "connection_id", conn.ID)
			}
			return
		}
		conn.touchInbound()

		msg, err := streaming.DecodeInbound(data)
		if err != nil {
			consecutiveErrors++
			m.send(conn, streaming.ErrorEvent{Code: 400, Error: err.Error()})
			if consecutiveErrors > m.cfg.MaxErrorTolerance {
				slog.Warn("gateway: error budget exceeded, closing", "connection_id", conn.ID)
				return
			}
			time.Sleep(time.Duration(m.cfg.ErrorBackoffSeconds * float64(time.Second)))
			continue
		}
		consecutiveErrors = 0

		m.dispatch(conn, msg)
	}
}

func (m *Manager) dispatch(conn *Connection, msg streaming.InboundMessage) {
	switch v := msg.(type) {
	case streaming.ChatMessage:
		m.handleChatMessage(conn, v)
	case streaming.InterruptStreamMessage:
		if v.TurnID == "" {
			conn.processor.InterruptAll("client_requested")
			return
		}
		turnID, err := uuid.Parse(v.TurnID)
		if err != nil {
			m.send(conn, streaming.ErrorEvent{Code: 400, Error: "invalid turn_id"})
			return
		}
		conn.processor.Interrupt(turnID, "client_requested")
	case streaming.PongMessage:
		conn.touchPong()
	case streaming.FetchBackgroundsMessage:
		m.send(conn, streaming.BackgroundFilesEvent{Files: m.persona.Backgrounds()})
	case streaming.FetchAvatarConfigsMessage:
		m.send(conn, streaming.AvatarConfigFilesEvent{Configs: m.persona.AvatarConfigs()})
	case streaming.SwitchAvatarConfigMessage:
		if err := m.persona.SwitchAvatarConfig(v.File); err != nil {
			m.send(conn, streaming.ErrorEvent{Code: 404, Error: err.Error()})
			return
		}
		m.send(conn, streaming.AvatarConfigSwitchedEvent{File: v.File})
	}
}

func (m *Manager) handleChatMessage(conn *Connection, msg streaming.ChatMessage) {
	stream, err := m.engine.Stream(context.Background(), agentclient.StreamRequest{
		InputMessage: msg.Content,
		SessionID:    msg.SessionID,
		UserID:       msg.UserID,
		AgentID:      msg.AgentID,
		Persona:      msg.Persona,
	})
	if err != nil {
		m.send(conn, streaming.ErrorEvent{Code: 500, Error: err.Error()})
		return
	}

	turnID := conn.processor.StartTurn(msg.SessionID, stream)
	conn.setCurrentTurn(turnID.String())

	events, ok := conn.processor.StreamEvents(turnID)
	if !ok {
		return
	}
	conn.enqueueForward(events)
}

// forwardLoop is the "forwarder" task spec.md §4.7 step 5 describes, and the
// single writer for this connection's socket: it pulls one turn's events at
// a time off forwardQueue and drains that turn's StreamEvents to completion
// — through its terminal event — before ever touching the next queued
// turn's channel. readLoop dispatches chat_message frames one at a time, so
// a superseded turn's events channel is always enqueued before the
// superseding turn's; draining strictly in that order is what guarantees
// interrupted reaches the client before the next turn's stream_start (S6) —
// per-turn goroutines racing on the same socket could never guarantee that.
func (m *Manager) forwardLoop(conn *Connection) {
	for {
		select {
		case events := <-conn.forwardQueue:
			for ev := range events {
				if !m.send(conn, ev) {
					return
				}
			}
		case <-conn.done:
			return
		}
	}
}

func (m *Manager) send(conn *Connection, ev streaming.OutboundEvent) bool {
	data, err := streaming.EncodeOutbound(ev)
	if err != nil {
		slog.Error("gateway: encode outbound event failed", "connection_id", conn.ID, "type", ev.Type(), "error", err)
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.conn.Write(ctx, websocket.MessageText, data); err != nil {
		select {
		case <-conn.done:
		default:
			slog.Info("gateway: write failed", "connection_id", conn.ID, "error", err)
		}
		return false
	}
	return true
}
