package migrate

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/compozy/modelstore/cli/helpers"
	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/compozy/modelstore/pkg/config"
	"github.com/compozy/modelstore/pkg/logger"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command and its status subcommand.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Initialize the pool and apply pending migrations",
		Long: `Open the database pool exactly as a service does at startup: verify
connectivity, take the migration lock and apply every pending migration.`,
		RunE: runMigrate,
	}
	cmd.Flags().Bool("wait", false, "Retry until the database accepts connections")
	cmd.Flags().Duration("wait-timeout", 0, "Upper bound for --wait (defaults to runtime.migrate_wait)")
	cmd.AddCommand(newStatusCommand())
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	pgCfg := cfg.Database.ToPostgres()
	if err := maybeWait(cmd, pgCfg, cfg.Runtime.MigrateWait); err != nil {
		return err
	}
	manager, cleanup, err := helpers.SetupManager(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()
	pool, err := manager.Pool()
	if err != nil {
		return err
	}
	states, err := postgres.MigrationStatus(ctx, pool)
	if err != nil {
		return err
	}
	version := int64(0)
	for _, s := range states {
		if s.Applied && s.Version > version {
			version = s.Version
		}
	}
	logger.FromContext(ctx).Info("Database schema ready", "version", version)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
	return err
}

func maybeWait(cmd *cobra.Command, pgCfg *postgres.Config, fallback time.Duration) error {
	wait, err := cmd.Flags().GetBool("wait")
	if err != nil {
		return fmt.Errorf("failed to get wait flag: %w", err)
	}
	if !wait {
		return nil
	}
	timeout, err := cmd.Flags().GetDuration("wait-timeout")
	if err != nil {
		return fmt.Errorf("failed to get wait-timeout flag: %w", err)
	}
	if timeout <= 0 {
		timeout = fallback
	}
	return helpers.WaitForDatabase(cmd.Context(), pgCfg, timeout, postgres.Probe)
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List embedded migrations and whether they are applied",
		RunE:  runStatus,
	}
	cmd.Flags().StringP("format", "f", "table", "Output format (json, table)")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format, err = helpers.OutputFormat(format); err != nil {
		return err
	}
	pool, err := postgres.Open(ctx, config.FromContext(ctx).Database.ToPostgres())
	if err != nil {
		return err
	}
	defer pool.Close()
	states, err := postgres.MigrationStatus(ctx, pool)
	if err != nil {
		return err
	}
	if format == "json" {
		return helpers.WriteJSON(cmd.OutOrStdout(), states)
	}
	return writeStatusTable(cmd.OutOrStdout(), states)
}

func writeStatusTable(out io.Writer, states []postgres.MigrationState) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tFILE")
	for _, s := range states {
		state, at := "pending", "-"
		if s.Applied {
			state = "applied"
			at = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", strconv.FormatInt(s.Version, 10), state, at, s.Path)
	}
	return w.Flush()
}
