package cli

import (
	"github.com/compozy/modelstore/cli/cmd/check"
	configcmd "github.com/compozy/modelstore/cli/cmd/config"
	"github.com/compozy/modelstore/cli/cmd/indexes"
	"github.com/compozy/modelstore/cli/cmd/migrate"
	"github.com/spf13/cobra"
)

const (
	defaultConfigFile = "modelstore.yaml"
	defaultEnvFile    = ".env"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "modelstore",
		Short:         "Manage the modelstore document database",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the YAML configuration file")
	flags.String("env-file", defaultEnvFile, "Path to a .env file inside the working directory")
	flags.String("db-conn-string", "", "PostgreSQL connection string")
	flags.String("db-host", "", "PostgreSQL host")
	flags.String("db-port", "", "PostgreSQL port")
	flags.String("db-user", "", "PostgreSQL user")
	flags.String("db-password", "", "PostgreSQL password")
	flags.String("db-name", "", "PostgreSQL database name")
	flags.String("db-ssl-mode", "", "PostgreSQL SSL mode")
	flags.Int("db-max-open-conns", 0, "Maximum pool size (0 uses the default, otherwise at least 2)")
	flags.Duration("migration-lock-timeout", 0, "How long to wait for another instance to finish migrating")
	flags.String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Emit JSON logs")
	flags.Bool("log-source", false, "Include caller information in logs")
	flags.Bool("metrics", false, "Print pool and system metrics to stderr when the command finishes")

	root.AddCommand(
		migrate.NewMigrateCommand(),
		check.NewCheckCommand(),
		indexes.NewSyncIndexesCommand(),
		configcmd.NewConfigCommand(),
	)

	return root
}
