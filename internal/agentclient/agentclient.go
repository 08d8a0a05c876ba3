// Package agentclient adapts the "agent engine" external collaborator of
// spec.md §6.2 — stream(input_message, session_id, user_id, agent_id,
// persona?, tools?, stm_service?, ltm_service?) -> async_seq<Event> — behind
// a Go interface the streaming core can drive without depending on any
// specific LLM SDK.
package agentclient

import (
	"context"

	"github.com/aurelia-labs/aurelia/pkg/memory"
	"github.com/aurelia-labs/aurelia/pkg/types"
)

// EventType is the closed set of event kinds the agent stream may produce.
type EventType string

const (
	EventStreamStart EventType = "stream_start"
	EventStreamToken EventType = "stream_token"
	EventToolCall    EventType = "tool_call"
	EventToolResult  EventType = "tool_result"
	EventStreamEnd   EventType = "stream_end"
)

// Event is a single item in the agent's event stream (spec.md §6.2). Fields
// are populated according to Type; unused fields are left at their zero
// value.
type Event struct {
	Type      EventType
	TurnID    string
	SessionID string

	// Chunk carries incremental text for EventStreamToken.
	Chunk string
	// Node optionally identifies the graph node/agent stage that produced
	// this event, forwarded as-is on stream_token/tool_call/tool_result.
	Node string

	// ToolName and Args are set on EventToolCall.
	ToolName string
	Args     string

	// Result is set on EventToolResult.
	Result string

	// Content is the full aggregated response, set on EventStreamEnd.
	Content string
}

// StreamRequest carries everything needed to start one agent turn.
type StreamRequest struct {
	InputMessage string
	SessionID    string
	UserID       string
	AgentID      string
	Persona      string
	Tools        []types.ToolDefinition

	// STM and LTM are the short- and long-term memory collaborators spec.md
	// §6.2 calls stm_service/ltm_service. Either may be nil when memory is
	// not configured; adapters must tolerate that.
	STM memory.SessionStore
	LTM memory.GraphRAGQuerier
}

// Stream is a finite, non-restartable, cancellable sequence of agent [Event]
// values (spec.md §6.2, §9 "generator-style streams"). Exactly one
// EventStreamStart and at most one terminal event (EventStreamEnd) is ever
// produced.
type Stream interface {
	// Events returns the channel of agent events. It is closed by the
	// implementation when the upstream sequence completes, is cancelled, or
	// fails. Callers must drain it to avoid leaking the adapter's goroutine.
	Events() <-chan Event

	// Cancel requests the stream stop producing further events. Cooperative:
	// the underlying goroutine observes cancellation at its next suspension
	// point. Safe to call multiple times and after the stream has already
	// finished.
	Cancel()

	// Err returns the reason the stream terminated abnormally, or nil on a
	// clean EventStreamEnd / explicit Cancel. Only meaningful after Events()
	// has been observed closed.
	Err() error
}

// Engine is the Go expression of the agent engine's stream(...) contract.
type Engine interface {
	// Stream starts one agent turn and returns a handle to its event
	// sequence. The returned error is non-nil only for failures that
	// prevent the stream from starting at all (e.g. invalid credentials);
	// errors encountered mid-stream surface via Stream.Err after the events
	// channel closes.
	Stream(ctx context.Context, req StreamRequest) (Stream, error)
}
