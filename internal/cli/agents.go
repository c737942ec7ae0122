package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgagents/pgagents/internal/agent"
	"github.com/pgagents/pgagents/internal/app"
	"github.com/pgagents/pgagents/internal/workflow"
)

func (rt *commands) newAskCmd() *cobra.Command {
	var showAudit bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question with the product-info agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, record, err := a.Runner.RunAgent(ctx, question)
				if showAudit {
					if werr := writeIndentedJSON(cmd.OutOrStdout(), record); werr != nil {
						return werr
					}
				}
				if err != nil {
					return err
				}
				if !showAudit {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), result.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showAudit, "audit", false, "Print the audit record as JSON instead of the answer")
	return cmd
}

func (rt *commands) newWorkflowCmd(name, short string) *cobra.Command {
	var (
		showEvents bool
		showAudit  bool
	)
	cmd := &cobra.Command{
		Use:   name + " <question>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			return rt.withApp(cmd, func(ctx context.Context, a *app.App) error {
				wf, err := a.Runner.Workflow(name)
				if err != nil {
					return err
				}
				var observe func(workflow.Event)
				if showEvents {
					observe = func(event workflow.Event) { printEvent(out, event) }
				}
				final, record, runErr := a.Runner.RunWorkflow(ctx, wf, question, observe)
				if len(final) > 0 {
					printConversation(out, final)
				}
				if showAudit {
					if err := writeIndentedJSON(out, record); err != nil {
						return err
					}
				}
				return runErr
			})
		},
	}
	cmd.Flags().BoolVar(&showEvents, "events", false, "Print every workflow event as it arrives")
	cmd.Flags().BoolVar(&showAudit, "audit", false, "Print the audit record after the conversation")
	return cmd
}

func printEvent(w io.Writer, event workflow.Event) {
	switch payload := event.Payload.(type) {
	case workflow.ExecutorCompleted:
		_, _ = fmt.Fprintf(w, "event %s executor=%s tokens=%d\n", event.Kind, payload.Executor, payload.Usage.TotalTokens)
	default:
		_, _ = fmt.Fprintf(w, "event %s executor=%s messages=%d\n", event.Kind, event.Executor, len(event.Messages))
	}
}

// printConversation renders each message under a rule with its 1-based
// position and author.
func printConversation(w io.Writer, conversation []agent.Message) {
	_, _ = fmt.Fprintln(w, "===== Final Conversation =====")
	for i, msg := range conversation {
		_, _ = fmt.Fprintf(w, "%s\n%02d [%s]\n%s\n", strings.Repeat("-", 60), i+1, msg.Author(), msg.Text)
	}
}

func writeIndentedJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
