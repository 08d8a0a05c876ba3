package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurelia-labs/aurelia/internal/agentclient"
	"github.com/aurelia-labs/aurelia/internal/agentclient/mock"
	"github.com/aurelia-labs/aurelia/internal/config"
)

func newTestProcessor() *MessageProcessor {
	var cfg config.Config
	cfg.ApplyDefaults()
	return NewMessageProcessor(cfg.Streaming)
}

func drainAll(t *testing.T, events <-chan OutboundEvent) []OutboundEvent {
	t.Helper()
	var got []OutboundEvent
	for ev := range events {
		got = append(got, ev)
	}
	return got
}

// S6. Superseding turn: starting a second turn while the first is still
// running interrupts the first with reason "superseded" before the second
// turn's stream_start is ever produced.
func TestMessageProcessor_SupersedingTurn(t *testing.T) {
	t.Parallel()

	p := newTestProcessor()

	engine1 := &mock.Engine{Script: []agentclient.Event{
		{Type: agentclient.EventStreamStart},
		{Type: agentclient.EventStreamToken, Chunk: "Hello"},
		{Type: agentclient.EventStreamEnd, Content: "Hello"},
	}}
	stream1, err := engine1.Stream(context.Background(), agentclient.StreamRequest{})
	require.NoError(t, err)

	turn1 := p.StartTurn("session-1", stream1)

	events1, ok := p.StreamEvents(turn1)
	require.True(t, ok)
	// Observe stream_start before starting the second turn, so the
	// supersede genuinely happens mid-stream rather than racing turn1's
	// own natural completion.
	first := <-events1
	assert.IsType(t, StreamStartEvent{}, first)

	engine2 := &mock.Engine{Script: []agentclient.Event{
		{Type: agentclient.EventStreamStart},
		{Type: agentclient.EventStreamEnd, Content: "Hi"},
	}}
	stream2, err := engine2.Stream(context.Background(), agentclient.StreamRequest{})
	require.NoError(t, err)

	turn2 := p.StartTurn("session-1", stream2)
	assert.NotEqual(t, turn1, turn2)

	rest1 := drainAll(t, events1)
	require.NotEmpty(t, rest1)
	interrupted, ok := rest1[len(rest1)-1].(InterruptedEvent)
	require.True(t, ok, "turn1's last event should be interrupted, got %T", rest1[len(rest1)-1])
	assert.Equal(t, "superseded", interrupted.Reason)

	status1, ok := p.TurnStatus(turn1)
	require.True(t, ok)
	assert.Equal(t, StatusInterrupted, status1)

	events2, ok := p.StreamEvents(turn2)
	require.True(t, ok)
	all2 := drainAll(t, events2)
	require.NotEmpty(t, all2)
	assert.IsType(t, StreamStartEvent{}, all2[0])
}

// P8. Turns older than cleanup_ttl in terminal status are removed from the
// processor's turn map by the next StartTurn.
func TestMessageProcessor_CleansUpAgedTerminalTurns(t *testing.T) {
	t.Parallel()

	var cfg config.Config
	cfg.ApplyDefaults()
	p := NewMessageProcessor(cfg.Streaming)
	// Force an effectively-zero TTL so any finished turn is immediately aged.
	p.cleanupTTL = time.Nanosecond

	engine := &mock.Engine{Script: []agentclient.Event{
		{Type: agentclient.EventStreamStart},
		{Type: agentclient.EventStreamEnd, Content: "done"},
	}}
	stream, err := engine.Stream(context.Background(), agentclient.StreamRequest{})
	require.NoError(t, err)

	turn1 := p.StartTurn("session-1", stream)
	events, ok := p.StreamEvents(turn1)
	require.True(t, ok)
	drainAll(t, events) // wait for the turn to reach a terminal status

	assert.Eventually(t, func() bool {
		status, ok := p.TurnStatus(turn1)
		return ok && status.Terminal()
	}, time.Second, time.Millisecond)

	assert.Equal(t, 1, p.TurnCount())

	engine2 := &mock.Engine{Script: []agentclient.Event{
		{Type: agentclient.EventStreamStart},
		{Type: agentclient.EventStreamEnd, Content: "done2"},
	}}
	stream2, err := engine2.Stream(context.Background(), agentclient.StreamRequest{})
	require.NoError(t, err)

	turn2 := p.StartTurn("session-2", stream2)

	_, ok = p.TurnStatus(turn1)
	assert.False(t, ok, "aged terminal turn should have been swept by cleanup")
	_, ok = p.TurnStatus(turn2)
	assert.True(t, ok)
}

// P10: generated session IDs are never reused, and turn IDs across distinct
// turns are always distinct UUIDs.
func TestMessageProcessor_GeneratesFreshSessionID(t *testing.T) {
	t.Parallel()

	p := newTestProcessor()
	engine := &mock.Engine{Script: []agentclient.Event{
		{Type: agentclient.EventStreamStart},
		{Type: agentclient.EventStreamEnd},
	}}
	stream, err := engine.Stream(context.Background(), agentclient.StreamRequest{})
	require.NoError(t, err)

	turn := p.StartTurn("", stream)
	events, ok := p.StreamEvents(turn)
	require.True(t, ok)
	all := drainAll(t, events)
	require.NotEmpty(t, all)
	start, ok := all[0].(StreamStartEvent)
	require.True(t, ok)
	assert.NotEmpty(t, start.SessionID)
}

func TestMessageProcessor_Shutdown(t *testing.T) {
	t.Parallel()

	p := newTestProcessor()
	engine := &mock.Engine{Script: []agentclient.Event{
		{Type: agentclient.EventStreamStart},
	}}
	stream, err := engine.Stream(context.Background(), agentclient.StreamRequest{})
	require.NoError(t, err)

	turn := p.StartTurn("session-1", stream)
	events, ok := p.StreamEvents(turn)
	require.True(t, ok)
	<-events // observe stream_start before shutting down mid-stream

	p.Shutdown()

	all := drainAll(t, events)
	require.NotEmpty(t, all)
	interrupted, ok := all[len(all)-1].(InterruptedEvent)
	require.True(t, ok, "last event should be interrupted, got %T", all[len(all)-1])
	assert.Equal(t, "connection_closed", interrupted.Reason)
}
