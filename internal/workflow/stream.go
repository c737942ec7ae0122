package workflow

import (
	"context"

	"github.com/pgagents/pgagents/internal/agent"
)

// Stream is the event sequence of one run. It has a single consumer and
// cannot be restarted.
type Stream struct {
	events chan Event
	err    error
}

type emitFunc func(Event) error

// startStream runs produce on its own goroutine. The channel is closed when
// produce returns; its error is then available from Err.
func startStream(ctx context.Context, produce func(ctx context.Context, emit emitFunc) error) *Stream {
	s := &Stream{events: make(chan Event)}
	go func() {
		defer close(s.events)
		emit := func(event Event) error {
			select {
			case s.events <- event:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		s.err = produce(ctx, emit)
	}()
	return s
}

func (s *Stream) Events() <-chan Event {
	return s.events
}

// Err reports why the run ended. Only valid once Events is closed.
func (s *Stream) Err() error {
	return s.err
}

// FinalConversation drains the stream and returns the last conversation seen
// on an Output or ExecutorInvoked event.
func FinalConversation(s *Stream) ([]agent.Message, error) {
	var last []agent.Message
	for event := range s.Events() {
		if event.Kind == EventOutput || event.Kind == EventExecutorInvoked {
			last = event.Messages
		}
	}
	return last, s.Err()
}
