package cli

import (
	"context"
	"fmt"

	"github.com/compozy/modelstore/pkg/config"
	"github.com/compozy/modelstore/pkg/logger"
	"github.com/spf13/cobra"
)

// SetupGlobalConfig loads the configuration layers selected by the root
// flags, installs the logger and attaches both to the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	envFile, err := resolveEnvFile(cmd)
	if err != nil {
		return err
	}
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	sources := make([]config.Source, 0, 3)
	if envFile != "" {
		sources = append(sources, config.NewDotenvProvider(envFile))
	}
	if configFile != "" {
		sources = append(sources, config.NewYAMLProvider(configFile))
	}
	sources = append(sources, config.NewCLIProvider(extractCLIFlags(cmd)))

	cfg, err := config.NewService().Load(ctx, sources...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	_, _, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, logSource)
	log.Debug("Configuration loaded", "config_file", configFile, "env_file", envFile)

	ctx = logger.ContextWithLogger(ctx, log)
	ctx = config.ContextWithConfig(ctx, cfg)
	cmd.SetContext(ctx)
	return nil
}
