package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgagents/pgagents/internal/audit"
	"github.com/pgagents/pgagents/internal/config"
)

func (rt *commands) withReporter(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, reporter *audit.Reporter) error) error {
	cfg, _, err := rt.loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := rt.commandContext(cmd)
	defer cancel()

	store, err := rt.opts.OpenStore(ctx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}
	return fn(ctx, cfg, audit.NewReporter(store))
}

func (rt *commands) newAuditReportCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "audit-report",
		Short: "Summarize archived audit batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withReporter(cmd, func(ctx context.Context, cfg config.Config, reporter *audit.Reporter) error {
				summary, err := reporter.Summarize(ctx, firstNonEmpty(prefix, cfg.Audit.ArchivePrefix))
				if err != nil {
					return err
				}
				return writeIndentedJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Archive prefix (defaults to PGAGENTS_AUDIT_ARCHIVE_PREFIX)")
	return cmd
}

func (rt *commands) newAuditPruneCmd() *cobra.Command {
	var (
		prefix    string
		olderThan time.Duration
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "audit-prune",
		Short: "Delete archived audit batches older than a retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return rt.withReporter(cmd, func(ctx context.Context, cfg config.Config, reporter *audit.Reporter) error {
				cutoff := time.Now().UTC().Add(-olderThan)
				archivePrefix := firstNonEmpty(prefix, cfg.Audit.ArchivePrefix)
				if dryRun {
					expired, err := reporter.Expired(ctx, archivePrefix, cutoff)
					if err != nil {
						return err
					}
					for _, key := range expired {
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "would delete %s\n", key)
					}
					return nil
				}
				deleted, err := reporter.Prune(ctx, archivePrefix, cutoff)
				for _, key := range deleted {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Archive prefix (defaults to PGAGENTS_AUDIT_ARCHIVE_PREFIX)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Delete batches whose partition date is older than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the batches that would be deleted")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
