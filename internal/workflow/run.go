package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pgagents/pgagents/internal/agent"
	"github.com/pgagents/pgagents/internal/audit"
	"github.com/pgagents/pgagents/internal/llm"
	"github.com/pgagents/pgagents/internal/observability"
	"github.com/pgagents/pgagents/internal/tools"
)

var ErrUnknownWorkflow = errors.New("unknown workflow")

// Runner owns the dependencies shared by every run and turns each run into
// one audit record delivered to Sink.
type Runner struct {
	Model        llm.LLM
	Gateway      tools.Gateway
	Sink         audit.Sink
	Logger       *slog.Logger
	Clock        func() time.Time
	AgentOptions []agent.Option
}

// Workflow builds the named workflow: "sequential" or "route".
func (r *Runner) Workflow(name string) (Workflow, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	agents := NewAgents(r.Model, r.Gateway, r.agentOptions()...)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SequentialName:
		return agents.Sequential(), nil
	case RouteName:
		return agents.Route(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}
}

// RunAgent answers question with a single product-info agent. A failed run
// still returns an Error record; the error is returned alongside it.
func (r *Runner) RunAgent(ctx context.Context, question string) (agent.Result, audit.Record, error) {
	logger := r.logger()
	if err := r.validate(); err != nil {
		record := audit.Failed(r.now(), question, err)
		r.emit(ctx, record)
		return agent.Result{}, record, err
	}

	productAgent := NewProductInfoAgent(r.Model, r.Gateway, r.agentOptions()...)
	result, err := productAgent.Run(ctx, []agent.Message{agent.UserMessage(question)})
	if err != nil {
		record := audit.Failed(r.now(), question, err)
		logger.WarnContext(ctx, "agent run failed", slog.String("run_id", record.RunID), slog.Any("error", err))
		r.emit(ctx, record)
		return agent.Result{}, record, err
	}

	record := audit.Healthy(r.now(), question, result.Text, result.Usage.TotalTokens)
	logger.InfoContext(ctx, "agent run completed", slog.String("run_id", record.RunID), slog.Int("total_tokens", record.TotalTokens))
	r.emit(ctx, record)
	return result, record, nil
}

// RunWorkflow drains one run of wf, passing every event to observe, and
// returns the final conversation. Token usage is summed over participants.
func (r *Runner) RunWorkflow(ctx context.Context, wf Workflow, question string, observe func(Event)) ([]agent.Message, audit.Record, error) {
	logger := r.logger()
	if wf == nil {
		err := fmt.Errorf("workflow is required")
		record := audit.Failed(r.now(), question, err)
		r.emit(ctx, record)
		return nil, record, err
	}

	stream := wf.Run(ctx, []agent.Message{agent.UserMessage(question)})
	var (
		final  []agent.Message
		tokens int
	)
	for event := range stream.Events() {
		if observe != nil {
			observe(event)
		}
		switch event.Kind {
		case EventOutput, EventExecutorInvoked:
			final = event.Messages
		case EventOther:
			if completed, ok := event.Payload.(ExecutorCompleted); ok {
				tokens += completed.Usage.TotalTokens
			}
		}
	}

	if err := stream.Err(); err != nil {
		record := audit.Failed(r.now(), question, err).ForWorkflow(wf.Name())
		logger.WarnContext(ctx, "workflow run failed",
			slog.String("workflow", wf.Name()),
			slog.String("run_id", record.RunID),
			slog.Any("error", err),
		)
		r.emit(ctx, record)
		return final, record, err
	}

	record := audit.Healthy(r.now(), question, lastReply(final), tokens).ForWorkflow(wf.Name())
	logger.InfoContext(ctx, "workflow run completed",
		slog.String("workflow", wf.Name()),
		slog.String("run_id", record.RunID),
		slog.Int("messages", len(final)),
		slog.Int("total_tokens", tokens),
	)
	r.emit(ctx, record)
	return final, record, nil
}

func (r *Runner) validate() error {
	if r.Model == nil {
		return fmt.Errorf("llm is required")
	}
	if r.Gateway == nil {
		return fmt.Errorf("gateway is required")
	}
	return nil
}

// emit never fails the run; a sink error is only logged.
func (r *Runner) emit(ctx context.Context, record audit.Record) {
	if err := audit.Emit(ctx, r.Sink, record); err != nil {
		r.logger().WarnContext(ctx, "audit sink failed", slog.String("run_id", record.RunID), slog.Any("error", err))
	}
}

func (r *Runner) agentOptions() []agent.Option {
	return withOptions([]agent.Option{agent.WithLogger(r.Logger)}, r.AgentOptions...)
}

func (r *Runner) logger() *slog.Logger {
	return observability.LoggerOrDiscard(r.Logger)
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func lastReply(conversation []agent.Message) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == llm.RoleAssistant {
			return conversation[i].Text
		}
	}
	return ""
}
