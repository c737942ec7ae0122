package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pgagents/pgagents/internal/config"
	"github.com/pgagents/pgagents/internal/gateway"
	"github.com/pgagents/pgagents/internal/migrations"
)

// withDatabase opens only the connection pool; these commands never reach
// the LLM or the object store.
func (rt *commands) withDatabase(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, db *sql.DB) error) error {
	cfg, logger, err := rt.loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := rt.commandContext(cmd)
	defer cancel()

	db, err := rt.opts.OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	return fn(ctx, cfg, db)
}

func newGateway(cfg config.Config, db *sql.DB) *gateway.Gateway {
	return gateway.New(db,
		gateway.WithSchema(cfg.Gateway.Schema),
		gateway.WithHealthCheck(cfg.Gateway.HealthCheckCheckout),
	)
}

func (rt *commands) newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the column descriptor of the configured schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withDatabase(cmd, func(ctx context.Context, cfg config.Config, db *sql.DB) error {
				columns, err := newGateway(cfg, db).SchemaInfo(ctx)
				if err != nil {
					return err
				}
				return writeIndentedJSON(cmd.OutOrStdout(), columns)
			})
		},
	}
}

func (rt *commands) newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <select statement>",
		Short: "Run a read-only SELECT through the query gateway",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement := strings.Join(args, " ")
			return rt.withDatabase(cmd, func(ctx context.Context, cfg config.Config, db *sql.DB) error {
				outcome := newGateway(cfg, db).ExecuteQuery(ctx, statement)
				if outcome.Kind != gateway.OutcomeRows {
					return errors.New(outcome.Message)
				}
				rows := outcome.Rows
				if rows == nil {
					rows = []gateway.Row{}
				}
				return writeIndentedJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func (rt *commands) newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the shop schema migrations",
	}

	var upSteps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withDatabase(cmd, func(ctx context.Context, _ config.Config, db *sql.DB) error {
				applied, err := migrations.NewRunner().Up(ctx, db, upSteps)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
				return nil
			})
		},
	}
	up.Flags().IntVar(&upSteps, "steps", 0, "Apply at most this many migrations (0 applies all)")

	var downSteps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withDatabase(cmd, func(ctx context.Context, _ config.Config, db *sql.DB) error {
				rolledBack, err := migrations.NewRunner().Down(ctx, db, downSteps)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", rolledBack)
				return nil
			})
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "Number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withDatabase(cmd, func(ctx context.Context, _ config.Config, db *sql.DB) error {
				versions, err := migrations.NewRunner().Status(ctx, db)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
				for _, v := range versions {
					state := "pending"
					if v.Applied {
						state = "applied"
					}
					_, _ = fmt.Fprintf(tw, "%06d\t%s\t%s\n", v.Version, v.Name, state)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}
