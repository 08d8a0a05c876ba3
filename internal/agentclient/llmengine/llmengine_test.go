package llmengine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurelia-labs/aurelia/internal/agentclient"
	"github.com/aurelia-labs/aurelia/pkg/provider/llm"
	llmmock "github.com/aurelia-labs/aurelia/pkg/provider/llm/mock"
	"github.com/aurelia-labs/aurelia/pkg/types"
)

func drainEvents(t *testing.T, events <-chan agentclient.Event) []agentclient.Event {
	t.Helper()
	var got []agentclient.Event
	for ev := range events {
		got = append(got, ev)
	}
	return got
}

func TestEngine_Stream_TokensAndEnd(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "Hel"},
			{Text: "lo"},
			{FinishReason: "stop"},
		},
	}
	e := New(provider)

	s, err := e.Stream(context.Background(), agentclient.StreamRequest{
		InputMessage: "hi",
		SessionID:    "sess-1",
	})
	require.NoError(t, err)

	events := drainEvents(t, s.Events())
	require.Len(t, events, 4)
	assert.Equal(t, agentclient.EventStreamStart, events[0].Type)
	assert.Equal(t, agentclient.EventStreamToken, events[1].Type)
	assert.Equal(t, "Hel", events[1].Chunk)
	assert.Equal(t, agentclient.EventStreamToken, events[2].Type)
	assert.Equal(t, "lo", events[2].Chunk)
	assert.Equal(t, agentclient.EventStreamEnd, events[3].Type)
	assert.Equal(t, "Hello", events[3].Content)
	assert.NoError(t, s.Err())

	require.Len(t, provider.StreamCalls, 1)
	require.Len(t, provider.StreamCalls[0].Req.Messages, 1)
	assert.Equal(t, "hi", provider.StreamCalls[0].Req.Messages[0].Content)
}

func TestEngine_Stream_ToolCalls(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{ToolCalls: []types.ToolCall{{Name: "lookup", Arguments: `{"q":"weather"}`}}},
		},
	}
	e := New(provider)

	s, err := e.Stream(context.Background(), agentclient.StreamRequest{SessionID: "sess-2"})
	require.NoError(t, err)

	events := drainEvents(t, s.Events())
	require.Len(t, events, 3)
	assert.Equal(t, agentclient.EventToolCall, events[1].Type)
	assert.Equal(t, "lookup", events[1].ToolName)
	assert.Equal(t, `{"q":"weather"}`, events[1].Args)
}

func TestEngine_Stream_ErrorChunkSetsErr(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{FinishReason: "error"}},
	}
	e := New(provider)

	s, err := e.Stream(context.Background(), agentclient.StreamRequest{})
	require.NoError(t, err)

	events := drainEvents(t, s.Events())
	// Only stream_start is emitted before the error chunk aborts the run.
	require.Len(t, events, 1)
	assert.Equal(t, agentclient.EventStreamStart, events[0].Type)
	require.Error(t, s.Err())
}

func TestEngine_Stream_StartFailurePropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("bad credentials")
	provider := &llmmock.Provider{StreamErr: wantErr}
	e := New(provider)

	_, err := e.Stream(context.Background(), agentclient.StreamRequest{})
	assert.ErrorIs(t, err, wantErr)
}

func TestEngine_Stream_PersonaOverridesSystemPrompt(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{StreamChunks: []llm.Chunk{{FinishReason: "stop"}}}
	e := New(provider)
	e.SystemPrompt = "default persona"

	s, err := e.Stream(context.Background(), agentclient.StreamRequest{Persona: "pirate"})
	require.NoError(t, err)
	drainEvents(t, s.Events())

	require.Len(t, provider.StreamCalls, 1)
	assert.Equal(t, "pirate", provider.StreamCalls[0].Req.SystemPrompt)
}

func TestEngine_Stream_CancelStopsDelivery(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{Text: "a"}, {Text: "b"}, {Text: "c"}, {FinishReason: "stop"}},
	}
	e := New(provider)

	s, err := e.Stream(context.Background(), agentclient.StreamRequest{})
	require.NoError(t, err)

	// Consume stream_start, then cancel immediately — the channel must still
	// close rather than block forever.
	<-s.Events()
	s.Cancel()
	drainEvents(t, s.Events())
}
