// Package workflow composes agents into runs: a sequential pipeline, a
// support agent that routes to specialists, and the single product-info
// agent run. Every run ends with exactly one audit record.
package workflow

import (
	"fmt"

	"github.com/pgagents/pgagents/internal/agent"
	"github.com/pgagents/pgagents/internal/llm"
)

type EventKind int

const (
	EventOther EventKind = iota
	EventExecutorInvoked
	EventOutput
)

func (k EventKind) String() string {
	switch k {
	case EventExecutorInvoked:
		return "executor_invoked"
	case EventOutput:
		return "output"
	default:
		return "other"
	}
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is one step of a workflow run. Messages carries the conversation an
// executor starts from (ExecutorInvoked) or the finished conversation
// (Output).
type Event struct {
	Kind     EventKind       `json:"type"`
	Executor string          `json:"executor,omitempty"`
	Messages []agent.Message `json:"messages,omitempty"`
	Payload  any             `json:"payload,omitempty"`
}

// ExecutorCompleted is the payload of the EventOther emitted after each
// participant finishes.
type ExecutorCompleted struct {
	Executor string    `json:"executor"`
	Usage    llm.Usage `json:"usage"`
	Handoff  string    `json:"handoff,omitempty"`
}

func (e Event) String() string {
	if e.Executor == "" {
		return fmt.Sprintf("%s(messages=%d)", e.Kind, len(e.Messages))
	}
	return fmt.Sprintf("%s(executor=%s, messages=%d)", e.Kind, e.Executor, len(e.Messages))
}
