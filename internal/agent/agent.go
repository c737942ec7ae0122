// Package agent runs one LLM-backed agent: a named instruction set, a model
// and a tool registry, driven through a bounded tool-call loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pgagents/pgagents/internal/llm"
	"github.com/pgagents/pgagents/internal/observability"
	"github.com/pgagents/pgagents/internal/tools"
)

const DefaultMaxToolIterations = 10

const handoffPrefix = "handoff_to_"

var ErrMaxToolIterations = errors.New("agent exceeded tool iterations")

// Message is one conversation entry. AuthorName is set for agent replies.
type Message struct {
	Role       string `json:"role"`
	AuthorName string `json:"author_name,omitempty"`
	Text       string `json:"text"`
}

// Author is the display name: the agent name, or the role for unattributed
// messages.
func (m Message) Author() string {
	if m.AuthorName != "" {
		return m.AuthorName
	}
	if m.Role == llm.RoleAssistant {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}

func UserMessage(text string) Message {
	return Message{Role: llm.RoleUser, Text: text}
}

// Result is the outcome of one agent run. Messages holds only what this run
// added to the conversation. Handoff names the agent the run transferred
// control to, if any.
type Result struct {
	Messages []Message
	Text     string
	Usage    llm.Usage
	Handoff  string
}

type Agent struct {
	name          string
	instructions  string
	model         llm.LLM
	registry      *tools.Registry
	handoffs      []llm.Tool
	maxIterations int
	logger        *slog.Logger
}

type Option func(*Agent)

func WithTools(registry *tools.Registry) Option {
	return func(a *Agent) {
		a.registry = registry
	}
}

// WithHandoffs offers a handoff_to_<target> tool per target. Calling one ends
// the run with Result.Handoff set.
func WithHandoffs(targets ...string) Option {
	return func(a *Agent) {
		for _, target := range targets {
			a.handoffs = append(a.handoffs, llm.Tool{
				Name:        HandoffToolName(target),
				Description: fmt.Sprintf("Transfer the conversation to %s.", target),
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			})
		}
	}
}

func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = observability.LoggerOrDiscard(logger)
	}
}

func HandoffToolName(target string) string {
	return handoffPrefix + target
}

func New(name, instructions string, model llm.LLM, opts ...Option) *Agent {
	a := &Agent{
		name:          name,
		instructions:  instructions,
		model:         model,
		registry:      tools.NewRegistry(),
		maxIterations: DefaultMaxToolIterations,
		logger:        observability.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Name() string {
	return a.name
}

func (a *Agent) Instructions() string {
	return a.instructions
}

// Run continues conversation with this agent's reply. Tool errors are handed
// back to the model as "Error: ..." results; model errors end the run.
func (a *Agent) Run(ctx context.Context, conversation []Message) (Result, error) {
	result, err := a.run(ctx, conversation)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	observability.ObserveAgentRun(a.name, status, result.Usage.TotalTokens)
	return result, err
}

func (a *Agent) run(ctx context.Context, conversation []Message) (Result, error) {
	if a.model == nil {
		return Result{}, fmt.Errorf("agent %s has no model", a.name)
	}
	messages := toLLMMessages(conversation)
	available := append(append([]llm.Tool(nil), a.registry.Tools()...), a.handoffs...)

	var usage llm.Usage
	for i := range a.maxIterations {
		a.logger.DebugContext(ctx, "agent loop iteration",
			slog.String("agent", a.name),
			slog.Int("iteration", i),
			slog.Int("messages", len(messages)),
		)

		resp, err := a.model.ChatWithTools(ctx, a.instructions, messages, available)
		if err != nil {
			return Result{Usage: usage}, fmt.Errorf("agent %s: %w", a.name, err)
		}
		if resp.Usage != nil {
			usage = usage.Add(*resp.Usage)
		}

		if len(resp.ToolCalls) == 0 {
			return a.reply(resp.Content, usage, ""), nil
		}

		for _, tc := range resp.ToolCalls {
			if target, ok := a.handoffTarget(tc.Name); ok {
				a.logger.InfoContext(ctx, "agent handoff", slog.String("agent", a.name), slog.String("target", target))
				return a.reply(resp.Content, usage, target), nil
			}
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, tc := range resp.ToolCalls {
			a.logger.DebugContext(ctx, "executing tool", slog.String("agent", a.name), slog.String("tool", tc.Name), slog.String("id", tc.ID))
			output, err := a.registry.Execute(ctx, tc.Name, tc.Arguments)
			if err != nil {
				output = "Error: " + err.Error()
			}
			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: output, ToolCallID: tc.ID})
		}
	}

	a.logger.WarnContext(ctx, "agent loop hit max iterations", slog.String("agent", a.name), slog.Int("max", a.maxIterations))
	return Result{Usage: usage}, fmt.Errorf("%w: %s stopped after %d iterations", ErrMaxToolIterations, a.name, a.maxIterations)
}

func (a *Agent) reply(text string, usage llm.Usage, handoff string) Result {
	result := Result{Text: text, Usage: usage, Handoff: handoff}
	if strings.TrimSpace(text) != "" {
		result.Messages = []Message{{Role: llm.RoleAssistant, AuthorName: a.name, Text: text}}
	}
	return result
}

func (a *Agent) handoffTarget(toolName string) (string, bool) {
	for _, tool := range a.handoffs {
		if tool.Name == toolName {
			return strings.TrimPrefix(toolName, handoffPrefix), true
		}
	}
	return "", false
}

func toLLMMessages(conversation []Message) []llm.Message {
	out := make([]llm.Message, 0, len(conversation))
	for _, msg := range conversation {
		role := msg.Role
		if role == "" {
			role = llm.RoleUser
		}
		out = append(out, llm.Message{Role: role, Name: msg.AuthorName, Content: msg.Text})
	}
	return out
}
