package check

import (
	"fmt"

	"github.com/compozy/modelstore/cli/helpers"
	"github.com/compozy/modelstore/engine/infra/postgres"
	"github.com/compozy/modelstore/pkg/config"
	"github.com/compozy/modelstore/pkg/logger"
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command. It probes the database without
// initializing the process-wide pool.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that the database accepts connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			pgCfg := cfg.Database.ToPostgres()
			wait, err := cmd.Flags().GetBool("wait")
			if err != nil {
				return fmt.Errorf("failed to get wait flag: %w", err)
			}
			if wait {
				err = helpers.WaitForDatabase(ctx, pgCfg, cfg.Runtime.MigrateWait, postgres.Probe)
			} else {
				err = postgres.Probe(ctx, pgCfg)
			}
			if err != nil {
				logger.FromContext(ctx).Error("Database check failed", "error", err)
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "database reachable")
			return err
		},
	}
	cmd.Flags().Bool("wait", false, "Retry until the database accepts connections")
	return cmd
}
