package streaming

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aurelia-labs/aurelia/internal/agentclient"
)

// EventPipeline drives a single turn end to end: a producer task translates
// the agent's event stream into the turn's token_queue and event_queue, a
// consumer task chunks and normalizes tokens into tts_ready_chunk events,
// and [EventPipeline.Run] enforces the two-phase end-of-stream barrier from
// spec.md §4.5 — stream_end is only ever enqueued after token_queue has
// drained and the consumer task has itself finished, so a client can never
// observe stream_end before every chunk it implies.
//
// Grounded on the teacher's cascade.Engine producer/consumer goroutine pair
// (internal/engine/cascade/cascade.go), generalized from its single
// LLM-token channel into the turn's two independently-typed queues.
type EventPipeline struct {
	Splitter   *ChunkSplitter
	Normalizer *TextNormalizer
}

// NewEventPipeline constructs an EventPipeline bound to one turn's chunker
// and normalizer. Splitter and Normalizer are not safe for concurrent reuse
// across turns; callers construct a fresh pair per turn.
func NewEventPipeline(splitter *ChunkSplitter, normalizer *TextNormalizer) *EventPipeline {
	return &EventPipeline{Splitter: splitter, Normalizer: normalizer}
}

// Run spawns the producer and consumer as tasks on turn's supervisor and
// blocks until the turn reaches a terminal status. The caller must be
// draining turn.eventQueue concurrently (see [MessageProcessor.StreamEvents])
// or both tasks will stall once it fills.
//
// interruptWaitTimeout bounds phase 1+2 of the barrier: if the consumer has
// not drained and finished within that window, Run gives up waiting rather
// than block the turn from ever reaching a terminal state.
func (p *EventPipeline) Run(turn *TurnState, stream agentclient.Stream, interruptWaitTimeout time.Duration) {
	ctx := turn.supervisor.Context()
	turn.setStatus(StatusRunning)

	consumerDone := make(chan struct{})
	producerDone := make(chan struct{})

	turn.supervisor.Go(func(ctx context.Context) {
		p.consume(ctx, turn, consumerDone)
	})
	turn.supervisor.Go(func(ctx context.Context) {
		defer close(producerDone)
		p.produce(ctx, turn, stream)
	})

	// Wait for the producer to finish (end-of-tokens sentinel pushed) or for
	// the turn to be cancelled before the bounded barrier wait starts.
	select {
	case <-producerDone:
	case <-ctx.Done():
	}

	// Phase 1+2: wait for the consumer to observe the end-of-tokens sentinel,
	// drain whatever preceded it, and return.
	select {
	case <-consumerDone:
	case <-time.After(interruptWaitTimeout):
		slog.Warn("streaming: pipeline: consumer did not finish before timeout",
			"turn_id", turn.TurnID, "timeout", interruptWaitTimeout)
	case <-ctx.Done():
	}

	// Phase 3: only now is stream_end (or the terminal alternative) enqueued.
	// These are final, best-effort sends: by this point ctx may already be
	// done (the interrupted path), so they cannot select on ctx.Done() the
	// way mid-stream sends do without risking silently dropping the very
	// event the barrier exists to deliver.
	var finalStatus Status
	switch {
	case ctx.Err() != nil:
		finalStatus = StatusInterrupted
		p.enqueueFinal(turn, InterruptedEvent{
			TurnID: turn.TurnID.String(),
			Reason: turn.InterruptReason(),
		})
	case stream.Err() != nil:
		finalStatus = StatusFailed
		p.enqueueFinal(turn, ErrorEvent{Code: 500, Error: stream.Err().Error()})
	default:
		finalStatus = StatusCompleted
		p.enqueueFinal(turn, StreamEndEvent{
			TurnID:    turn.TurnID.String(),
			SessionID: turn.SessionID,
			Content:   turn.AggregateContent(),
		})
	}
	turn.setStatus(finalStatus)
}

// produce drains stream's events onto turn's queues until the stream
// reports stream_end, closes, or ctx is cancelled. It always leaves the
// consumer able to terminate: every return path pushes the end-of-tokens
// sentinel (directly, or implicitly via ctx cancellation observed by the
// consumer's own select).
func (p *EventPipeline) produce(ctx context.Context, turn *TurnState, stream agentclient.Stream) {
	defer stream.Cancel()

	// toolCallStarts records when each in-flight tool_call began, keyed by
	// tool name, so the matching tool_result can log duration_ms (spec.md
	// §4.4.1, P6). produce is the sole writer/reader, so no locking is
	// needed.
	toolCallStarts := make(map[string]time.Time)

	// tokens reconstructs the aggregate content when the agent's stream_end
	// carries none, or when the stream closes without a stream_end.
	var tokens strings.Builder

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream.Events():
			if !ok {
				turn.setAggregateContent(tokens.String())
				p.enqueueToken(ctx, turn, tokenItem{IsSentinel: true})
				return
			}
			switch ev.Type {
			case agentclient.EventStreamStart:
				p.enqueueEvent(ctx, turn, StreamStartEvent{
					TurnID:    turn.TurnID.String(),
					SessionID: turn.SessionID,
				})
			case agentclient.EventStreamToken:
				tokens.WriteString(ev.Chunk)
				p.enqueueEvent(ctx, turn, StreamTokenEvent{Chunk: ev.Chunk, Node: ev.Node})
				p.enqueueToken(ctx, turn, tokenItem{Text: ev.Chunk})
			case agentclient.EventToolCall:
				toolCallStarts[ev.ToolName] = time.Now()
				slog.Debug("streaming: pipeline: tool call",
					"turn_id", turn.TurnID, "session_id", turn.SessionID,
					"tool_name", ev.ToolName, "args", ev.Args, "status", "started", "node", ev.Node)
			case agentclient.EventToolResult:
				durationMS := int64(0)
				if started, ok := toolCallStarts[ev.ToolName]; ok {
					durationMS = time.Since(started).Milliseconds()
					delete(toolCallStarts, ev.ToolName)
				}
				slog.Debug("streaming: pipeline: tool result",
					"turn_id", turn.TurnID, "session_id", turn.SessionID,
					"tool_name", ev.ToolName, "result", ev.Result, "status", "completed",
					"duration_ms", durationMS, "node", ev.Node)
			case agentclient.EventStreamEnd:
				content := ev.Content
				if content == "" {
					content = tokens.String()
				}
				turn.setAggregateContent(content)
				p.enqueueToken(ctx, turn, tokenItem{IsSentinel: true})
				return
			}
		}
	}
}

// consume chunks and normalizes tokens from turn.tokenQueue until it sees
// the end-of-tokens sentinel or ctx is cancelled, then closes done.
func (p *EventPipeline) consume(ctx context.Context, turn *TurnState, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-turn.tokenQueue:
			if item.IsSentinel {
				p.emitChunks(ctx, turn, p.Splitter.Finalize())
				return
			}
			p.emitChunks(ctx, turn, p.Splitter.Feed(item.Text))
		}
	}
}

func (p *EventPipeline) emitChunks(ctx context.Context, turn *TurnState, chunks []string) {
	for _, chunk := range chunks {
		norm, ok := p.Normalizer.Process(chunk)
		if !ok {
			continue
		}
		p.enqueueEvent(ctx, turn, TTSReadyChunkEvent{Chunk: norm.Text, Emotion: norm.Emotion})
	}
}

func (p *EventPipeline) enqueueEvent(ctx context.Context, turn *TurnState, ev OutboundEvent) {
	select {
	case turn.eventQueue <- ev:
	case <-ctx.Done():
	}
}

func (p *EventPipeline) enqueueToken(ctx context.Context, turn *TurnState, item tokenItem) {
	select {
	case turn.tokenQueue <- item:
	case <-ctx.Done():
	}
}

// enqueueFinal sends ev without selecting on ctx, since by the time it is
// called ctx may already be done. P2 requires every turn to end with exactly
// one terminal event, so this blocks rather than drop on a full queue — the
// forwarder draining event_queue (see [MessageProcessor.StreamEvents]) is
// always running concurrently and guarantees the send eventually succeeds.
// finalSendTimeout only guards against a caller that stopped draining
// entirely (e.g. a crashed forwarder), logging loudly rather than silently
// discarding the event P2 depends on.
const finalSendTimeout = 30 * time.Second

func (p *EventPipeline) enqueueFinal(turn *TurnState, ev OutboundEvent) {
	timer := time.NewTimer(finalSendTimeout)
	defer timer.Stop()
	select {
	case turn.eventQueue <- ev:
	case <-timer.C:
		slog.Error("streaming: pipeline: final event not delivered within timeout, event_queue stalled",
			"turn_id", turn.TurnID, "type", ev.Type(), "timeout", finalSendTimeout)
	}
}
