package streaming

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurelia-labs/aurelia/internal/agentclient"
	"github.com/aurelia-labs/aurelia/internal/config"
)

// MessageProcessor is the per-connection orchestrator: it owns the map of
// turns for one connection, starts/interrupts/cleans them, and exposes each
// turn's outbound events as a lazy, finite channel.
//
// Generalizes the teacher's Orchestrator (internal/orchestrator), which
// keeps one map-of-agents guarded by a mutex for the lifetime of the
// process, into one map-of-turns guarded by a mutex for the lifetime of a
// single connection.
//
// A MessageProcessor is owned exclusively by one connection; it is not
// shared across connections and callers must not retain a *TurnState
// pointer across goroutines — only the turn_id survives a turn's lifetime
// (see spec.md §9's cyclic-reference note).
type MessageProcessor struct {
	mu    sync.Mutex
	turns map[uuid.UUID]*TurnState

	queueCapacity        int
	cleanupTTL           time.Duration
	interruptWaitTimeout time.Duration

	normalizerRules []config.NormalizationRule
	minChunkLen     int
}

// NewMessageProcessor constructs a MessageProcessor tuned by cfg. Callers
// should have already run [config.Config.ApplyDefaults] so cfg's fields are
// non-zero.
func NewMessageProcessor(cfg config.StreamingConfig) *MessageProcessor {
	return &MessageProcessor{
		turns:                make(map[uuid.UUID]*TurnState),
		queueCapacity:        cfg.QueueCapacity,
		cleanupTTL:           time.Duration(cfg.CleanupTTLSeconds) * time.Second,
		interruptWaitTimeout: time.Duration(cfg.InterruptWaitTimeoutSeconds * float64(time.Second)),
		normalizerRules:      cfg.NormalizationRules,
		minChunkLen:          cfg.MinChunkLen,
	}
}

// StartTurn runs opportunistic cleanup of aged terminal turns, supersedes
// any turn on this connection that is still running (spec.md §4.6's
// concurrent-chat-message policy — interrupt-and-replace, never reject),
// then starts a new turn driven by stream. If sessionID is empty, one is
// generated (P10).
func (p *MessageProcessor) StartTurn(sessionID string, stream agentclient.Stream) uuid.UUID {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	p.mu.Lock()
	p.cleanupLocked()
	var toSupersede []*TurnState
	for _, t := range p.turns {
		if !t.Status().Terminal() {
			toSupersede = append(toSupersede, t)
		}
	}
	turn := newTurnState(sessionID, p.queueCapacity)
	p.turns[turn.TurnID] = turn
	p.mu.Unlock()

	for _, prior := range toSupersede {
		p.interruptAndWait(prior, "superseded")
	}

	pipeline := NewEventPipeline(NewChunkSplitter(p.minChunkLen), NewTextNormalizer(p.normalizerRules))

	go func() {
		pipeline.Run(turn, stream, p.interruptWaitTimeout)
		close(turn.eventQueue)
	}()

	return turn.TurnID
}

// StreamEvents returns the turn's outbound event channel, closed once the
// turn reaches a terminal status and its final event has been enqueued.
// Lazy, finite, not restartable: a second call after the channel closes
// still returns the same (now-drained, closed) channel. ok is false if
// turnID is unknown to this processor.
func (p *MessageProcessor) StreamEvents(turnID uuid.UUID) (events <-chan OutboundEvent, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	turn, found := p.turns[turnID]
	if !found {
		return nil, false
	}
	return turn.eventQueue, true
}

// Interrupt transitions the referenced turn to Interrupted: cancels its
// tasks via TaskSupervisor with a bounded wait, then relies on the
// pipeline's own terminal-state handling to drain queues and emit the
// final interrupted event. Idempotent — a no-op on an unknown or
// already-terminal turn.
func (p *MessageProcessor) Interrupt(turnID uuid.UUID, reason string) {
	p.mu.Lock()
	turn, ok := p.turns[turnID]
	p.mu.Unlock()
	if !ok {
		return
	}
	p.interruptAndWait(turn, reason)
}

// InterruptAll interrupts every currently non-terminal turn on this
// connection, used when an interrupt_stream message carries no turn_id.
func (p *MessageProcessor) InterruptAll(reason string) {
	p.mu.Lock()
	turns := make([]*TurnState, 0, len(p.turns))
	for _, t := range p.turns {
		turns = append(turns, t)
	}
	p.mu.Unlock()

	for _, t := range turns {
		p.interruptAndWait(t, reason)
	}
}

// Shutdown interrupts every active turn and, for each, waits up to
// interruptWaitTimeout for its producer and consumer tasks to finish. It
// does not wait for the turn's status to become terminal; that is set by
// the pipeline goroutine once its final event has been enqueued.
func (p *MessageProcessor) Shutdown() {
	p.InterruptAll("connection_closed")
}

// interruptAndWait is the shared implementation behind Interrupt,
// InterruptAll, and turn-superseding: it is a no-op on an already-terminal
// turn, otherwise it records the reason and cancels the turn's supervisor,
// bounded by interruptWaitTimeout. The supervisor's own cancellation wait
// races harmlessly with the pipeline goroutine's identical bounded wait —
// both observe the same context and WaitGroup.
func (p *MessageProcessor) interruptAndWait(turn *TurnState, reason string) {
	if turn.Status().Terminal() {
		return
	}
	turn.setInterruptReason(reason)
	turn.supervisor.Cancel(p.interruptWaitTimeout)
}

// TurnStatus reports the status of turnID, if known to this processor.
func (p *MessageProcessor) TurnStatus(turnID uuid.UUID) (status Status, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	turn, found := p.turns[turnID]
	if !found {
		return "", false
	}
	return turn.Status(), true
}

// TurnCount returns the number of turns currently tracked by this
// processor, including terminal ones not yet swept by cleanup.
func (p *MessageProcessor) TurnCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.turns)
}

// cleanupLocked removes every terminal turn whose FinishedAt is older than
// cleanupTTL. Callers must hold p.mu. By the time a turn is terminal its
// tasks and queues are already released (the pipeline's closing goroutine
// guarantees this), so deletion here is just map bookkeeping.
func (p *MessageProcessor) cleanupLocked() {
	for id, t := range p.turns {
		if t.finishedOlderThan(p.cleanupTTL) {
			delete(p.turns, id)
		}
	}
}
