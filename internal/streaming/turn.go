// Package streaming implements the real-time conversational streaming core:
// per-turn sentence chunking, text normalization, task supervision, and the
// producer/consumer event pipeline that drives a single turn from an agent
// event stream to client-bound outbound events.
package streaming

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a turn. It only moves forward; once
// terminal it never reopens.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// Terminal reports whether s is one of the turn's terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusInterrupted, StatusFailed:
		return true
	}
	return false
}

// TurnState is the per-turn record owned exclusively by a [MessageProcessor].
// Its queues and tasks are owned by the turn itself and released on every
// terminal path; no goroutine outside the processor holds a pointer into a
// TurnState's internals, only its TurnID.
type TurnState struct {
	TurnID    uuid.UUID
	SessionID string

	mu     sync.Mutex
	status Status

	// eventQueue carries outbound events destined for the client.
	eventQueue chan OutboundEvent
	// tokenQueue carries inbound stream_token events awaiting chunking.
	tokenQueue chan tokenItem

	supervisor *TaskSupervisor

	CreatedAt  time.Time
	FinishedAt time.Time

	// aggregateContent accumulates the final content, either reconstructed
	// from tokens or taken verbatim from the agent's stream_end event.
	aggregateContent string

	// interruptReason is set by MessageProcessor.Interrupt before cancelling
	// the turn's supervisor, so the pipeline's final barrier can attach it to
	// the outbound interrupted event without a second round of signaling.
	interruptReason string
}

// tokenItem is the unit carried on a turn's token_queue: either a text
// fragment or the end-of-tokens sentinel (IsSentinel true).
type tokenItem struct {
	Text       string
	IsSentinel bool
}

// newTurnState allocates a TurnState with bounded queues of the given
// capacity. The turn starts in StatusPending.
func newTurnState(sessionID string, queueCapacity int) *TurnState {
	return &TurnState{
		TurnID:     uuid.New(),
		SessionID:  sessionID,
		status:     StatusPending,
		eventQueue: make(chan OutboundEvent, queueCapacity),
		tokenQueue: make(chan tokenItem, queueCapacity),
		supervisor: newTaskSupervisor(),
		CreatedAt:  time.Now(),
	}
}

// Status returns the turn's current lifecycle status.
func (t *TurnState) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// setStatus transitions the turn to s. It is a no-op if the turn is already
// in a terminal status, enforcing invariant 2 of spec.md §3 ("status only
// moves forward; once terminal, never reopens").
func (t *TurnState) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return
	}
	t.status = s
	if s.Terminal() {
		t.FinishedAt = time.Now()
	}
}

// AggregateContent returns the accumulated final content for this turn.
func (t *TurnState) AggregateContent() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aggregateContent
}

func (t *TurnState) setAggregateContent(content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aggregateContent = content
}

// setInterruptReason records reason for the turn's eventual interrupted
// event. Called by MessageProcessor.Interrupt before cancelling the turn.
func (t *TurnState) setInterruptReason(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interruptReason == "" {
		t.interruptReason = reason
	}
}

// InterruptReason returns the reason recorded for this turn's interruption,
// defaulting to "cancelled" if none was explicitly set (e.g. the turn's
// context was cancelled by something other than MessageProcessor.Interrupt).
func (t *TurnState) InterruptReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interruptReason == "" {
		return "cancelled"
	}
	return t.interruptReason
}

// finishedOlderThan reports whether the turn is terminal and its
// FinishedAt is older than ttl.
func (t *TurnState) finishedOlderThan(ttl time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.status.Terminal() || t.FinishedAt.IsZero() {
		return false
	}
	return time.Since(t.FinishedAt) > ttl
}
