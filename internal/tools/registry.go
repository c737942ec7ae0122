// Package tools holds the callable tools handed to agents and the registry
// that dispatches tool calls to their handlers.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgagents/pgagents/internal/llm"
	"github.com/pgagents/pgagents/internal/observability"
)

var ErrUnknownTool = errors.New("unknown tool")

type Handler func(ctx context.Context, args string) (string, error)

type Registry struct {
	tools    []llm.Tool
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a tool. Registering a name twice replaces the earlier
// definition.
func (r *Registry) Register(tool llm.Tool, handler Handler) {
	if _, exists := r.handlers[tool.Name]; exists {
		for i := range r.tools {
			if r.tools[i].Name == tool.Name {
				r.tools[i] = tool
			}
		}
	} else {
		r.tools = append(r.tools, tool)
	}
	r.handlers[tool.Name] = handler
}

func (r *Registry) Tools() []llm.Tool {
	return r.tools
}

func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

func (r *Registry) Execute(ctx context.Context, name, args string) (string, error) {
	handler, ok := r.handlers[name]
	if !ok {
		observability.ObserveToolCall(name, true)
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	result, err := handler(ctx, args)
	observability.ObserveToolCall(name, err != nil)
	return result, err
}
