// Package cli implements the pgagents command line.
package cli

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgagents/pgagents/internal/app"
	"github.com/pgagents/pgagents/internal/config"
	"github.com/pgagents/pgagents/internal/observability"
	"github.com/pgagents/pgagents/internal/storage"
)

const serviceName = "pgagents"

// Options carries the process environment into the command tree. Every
// field is optional; tests replace the openers with fakes.
type Options struct {
	Stdout       io.Writer
	Stderr       io.Writer
	Lookup       config.LookupFunc
	OpenApp      func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app.App, error)
	OpenDatabase func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sql.DB, error)
	OpenStore    func(ctx context.Context, cfg config.ObjectStoreConfig) (storage.ObjectStore, error)
}

type commands struct {
	opts    Options
	timeout time.Duration
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}
	if opts.OpenApp == nil {
		opts.OpenApp = app.New
	}
	if opts.OpenDatabase == nil {
		opts.OpenDatabase = app.OpenDatabase
	}
	if opts.OpenStore == nil {
		opts.OpenStore = func(ctx context.Context, cfg config.ObjectStoreConfig) (storage.ObjectStore, error) {
			return app.OpenObjectStore(ctx, cfg)
		}
	}
	rt := &commands{opts: opts}

	root := &cobra.Command{
		Use:   "pgagents",
		Short: "Ask questions of a PostgreSQL product database through LLM agents",
		Long: `pgagents runs LLM agents over a read-only view of a PostgreSQL database.

Configuration is read from PGAGENTS_* environment variables (and a .env file
when present).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.PersistentFlags().DurationVar(&rt.timeout, "timeout", 0, "Abort the command after this long (0 disables)")

	root.AddCommand(
		rt.newAskCmd(),
		rt.newWorkflowCmd("sequential", "Run the schema agent then the service agent"),
		rt.newWorkflowCmd("route", "Let the support agent hand the question to a specialist"),
		rt.newSchemaCmd(),
		rt.newQueryCmd(),
		rt.newMigrateCmd(),
		rt.newAuditReportCmd(),
		rt.newAuditPruneCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = io.WriteString(root.ErrOrStderr(), "error: "+err.Error()+"\n")
		return 1
	}
	return 0
}

func (rt *commands) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if rt.timeout > 0 {
		return context.WithTimeout(ctx, rt.timeout)
	}
	return context.WithCancel(ctx)
}

func (rt *commands) loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(serviceName, rt.opts.Lookup)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, observability.NewLogger(cfg, rt.opts.Stderr), nil
}

// withApp opens the full component graph for the duration of fn.
func (rt *commands) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := rt.loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := rt.commandContext(cmd)
	defer cancel()

	a, err := rt.opts.OpenApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer closeCancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Warn("shutdown incomplete", slog.Any("error", err))
	}
	return runErr
}
