// Package llmtest provides a scripted llm.LLM for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/pgagents/pgagents/internal/llm"
)

// Call records one ChatWithTools invocation.
type Call struct {
	SystemPrompt string
	Messages     []llm.Message
	Tools        []llm.Tool
}

// Step is one scripted reply: either a response or an error.
type Step struct {
	Response *llm.ChatResponse
	Err      error
}

// Scripted replays steps in order and fails once they run out.
type Scripted struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
}

func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Reply is a final text response with the given token count.
func Reply(text string, tokens int) Step {
	return Step{Response: &llm.ChatResponse{
		Content:    text,
		StopReason: "stop",
		Usage:      &llm.Usage{PromptTokens: tokens / 2, CompletionTokens: tokens - tokens/2, TotalTokens: tokens},
	}}
}

// CallTool is a response requesting a single tool call.
func CallTool(id, name, arguments string, tokens int) Step {
	return Step{Response: &llm.ChatResponse{
		ToolCalls:  []llm.ToolCall{{ID: id, Name: name, Arguments: arguments}},
		StopReason: "tool_calls",
		Usage:      &llm.Usage{TotalTokens: tokens},
	}}
}

func Fail(err error) Step {
	return Step{Err: err}
}

func (s *Scripted) ChatWithTools(_ context.Context, systemPrompt string, messages []llm.Message, tools []llm.Tool) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{
		SystemPrompt: systemPrompt,
		Messages:     append([]llm.Message(nil), messages...),
		Tools:        append([]llm.Tool(nil), tools...),
	})
	if len(s.steps) == 0 {
		return nil, fmt.Errorf("llmtest: no scripted response left (call %d)", len(s.calls))
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.Response, step.Err
}

func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Router dispatches by system prompt so several agents can share one fake.
type Router struct {
	mu     sync.Mutex
	routes map[string]*Scripted
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]*Scripted)}
}

func (r *Router) On(systemPrompt string, steps ...Step) *Scripted {
	r.mu.Lock()
	defer r.mu.Unlock()
	scripted := NewScripted(steps...)
	r.routes[systemPrompt] = scripted
	return scripted
}

func (r *Router) ChatWithTools(ctx context.Context, systemPrompt string, messages []llm.Message, tools []llm.Tool) (*llm.ChatResponse, error) {
	r.mu.Lock()
	scripted, ok := r.routes[systemPrompt]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("llmtest: no route for system prompt %q", systemPrompt)
	}
	return scripted.ChatWithTools(ctx, systemPrompt, messages, tools)
}
