// Package llmengine adapts any pkg/provider/llm.Provider into an
// agentclient.Engine, so the streaming core can drive a plain chat
// completion backend through the same interface as a full agent runtime.
package llmengine

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aurelia-labs/aurelia/internal/agentclient"
	"github.com/aurelia-labs/aurelia/pkg/provider/llm"
	"github.com/aurelia-labs/aurelia/pkg/types"
)

// Engine adapts Provider into an agentclient.Engine: a provider's text
// deltas become stream_token events, tool-call chunks become tool_call
// events, and the chunk channel's close becomes stream_end carrying the
// turn's aggregated content.
//
// Grounded on the teacher's pkg/provider/llm shape
// (StreamCompletion(ctx, req) (<-chan Chunk, error)) and its two concrete
// providers (pkg/provider/llm/openai, pkg/provider/llm/anyllm) — this
// adapter is provider-agnostic and works with either.
type Engine struct {
	Provider llm.Provider

	// SystemPrompt is used as the request's system instruction when a
	// StreamRequest carries no Persona of its own.
	SystemPrompt string
}

// New constructs an Engine wrapping provider.
func New(provider llm.Provider) *Engine {
	return &Engine{Provider: provider}
}

var _ agentclient.Engine = (*Engine)(nil)

// Stream implements agentclient.Engine.
func (e *Engine) Stream(ctx context.Context, req agentclient.StreamRequest) (agentclient.Stream, error) {
	systemPrompt := req.Persona
	if systemPrompt == "" {
		systemPrompt = e.SystemPrompt
	}

	chunks, err := e.Provider.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:     []types.Message{{Role: "user", Content: req.InputMessage}},
		Tools:        req.Tools,
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		return nil, err
	}

	s := &stream{
		events: make(chan agentclient.Event),
		cancel: make(chan struct{}),
	}
	go s.run(ctx, req, chunks)
	return s, nil
}

// stream translates a Provider's Chunk channel into an agentclient.Event
// channel on a dedicated goroutine.
type stream struct {
	events     chan agentclient.Event
	cancel     chan struct{}
	cancelOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *stream) run(ctx context.Context, req agentclient.StreamRequest, chunks <-chan llm.Chunk) {
	defer close(s.events)

	if !s.emit(ctx, agentclient.Event{Type: agentclient.EventStreamStart, SessionID: req.SessionID}) {
		return
	}

	var content strings.Builder
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.cancel:
			return
		case chunk, ok := <-chunks:
			if !ok {
				s.emit(ctx, agentclient.Event{
					Type:      agentclient.EventStreamEnd,
					SessionID: req.SessionID,
					Content:   content.String(),
				})
				return
			}
			if chunk.FinishReason == "error" {
				s.setErr(errors.New("llmengine: provider reported an error chunk"))
				return
			}
			if chunk.Text != "" {
				content.WriteString(chunk.Text)
				if !s.emit(ctx, agentclient.Event{
					Type:      agentclient.EventStreamToken,
					SessionID: req.SessionID,
					Chunk:     chunk.Text,
				}) {
					return
				}
			}
			for _, tc := range chunk.ToolCalls {
				if !s.emit(ctx, agentclient.Event{
					Type:      agentclient.EventToolCall,
					SessionID: req.SessionID,
					ToolName:  tc.Name,
					Args:      tc.Arguments,
				}) {
					return
				}
			}
		}
	}
}

// emit sends ev, returning false if ctx was cancelled or Cancel was called
// before the send could complete — callers should stop processing when it
// returns false.
func (s *stream) emit(ctx context.Context, ev agentclient.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-s.cancel:
		return false
	}
}

func (s *stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *stream) Events() <-chan agentclient.Event { return s.events }

func (s *stream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
