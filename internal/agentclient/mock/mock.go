// Package mock provides a scriptable fake [agentclient.Engine] for the
// streaming core's test suite, in the style of
// internal/agent/mock.NPCAgent: exported *Result/*Error/*Calls fields
// guarded by a mutex, no network, no real provider.
package mock

import (
	"context"
	"sync"

	"github.com/aurelia-labs/aurelia/internal/agentclient"
)

// StreamCall records one invocation of [Engine.Stream].
type StreamCall struct {
	Req agentclient.StreamRequest
}

// Engine is a scriptable fake that replays a fixed [Event] sequence for
// every [Stream] call. Configure Script before the first call; it is read
// once per Stream invocation under lock, so concurrent calls each get an
// independent copy and one call's consumption does not affect another's.
type Engine struct {
	mu sync.Mutex

	// Script is the sequence of events replayed by every Stream call.
	Script []agentclient.Event

	// Err is reported by the returned Stream's Err() once Script has been
	// fully delivered (or the stream was cancelled before exhausting it).
	Err error

	// StreamErr, when non-nil, is returned directly by Stream instead of
	// starting a stream — simulates a failure to start (e.g. bad credentials).
	StreamErr error

	// StreamCalls records every Stream invocation in order.
	StreamCalls []StreamCall

	// CallCountStream is the number of times Stream has been called.
	CallCountStream int
}

var _ agentclient.Engine = (*Engine)(nil)

// Stream implements [agentclient.Engine]. It replays a copy of e.Script on a
// goroutine, respecting ctx cancellation and the returned stream's Cancel.
func (e *Engine) Stream(ctx context.Context, req agentclient.StreamRequest) (agentclient.Stream, error) {
	e.mu.Lock()
	e.CallCountStream++
	e.StreamCalls = append(e.StreamCalls, StreamCall{Req: req})
	streamErr := e.StreamErr
	if streamErr != nil {
		e.mu.Unlock()
		return nil, streamErr
	}
	script := make([]agentclient.Event, len(e.Script))
	copy(script, e.Script)
	finalErr := e.Err
	e.mu.Unlock()

	s := &scriptedStream{
		events: make(chan agentclient.Event),
		cancel: make(chan struct{}),
		err:    finalErr,
	}
	go s.run(ctx, script)
	return s, nil
}

// scriptedStream implements [agentclient.Stream] by replaying a fixed event
// slice onto a channel, stopping early on context cancellation or an
// explicit Cancel call.
type scriptedStream struct {
	events     chan agentclient.Event
	cancel     chan struct{}
	cancelOnce sync.Once

	mu  sync.Mutex
	err error
}

func (s *scriptedStream) run(ctx context.Context, script []agentclient.Event) {
	defer close(s.events)
	for _, ev := range script {
		select {
		case <-ctx.Done():
			return
		case <-s.cancel:
			return
		case s.events <- ev:
		}
	}
}

func (s *scriptedStream) Events() <-chan agentclient.Event { return s.events }

func (s *scriptedStream) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

func (s *scriptedStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
