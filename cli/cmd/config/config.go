package config

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/compozy/modelstore/cli/helpers"
	"github.com/compozy/modelstore/pkg/config"
	"github.com/compozy/modelstore/pkg/logger"
	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration diagnostics",
	}
	cmd.AddCommand(NewConfigShowCommand())
	return cmd
}

// NewConfigShowCommand creates the config show subcommand
func NewConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger.FromContext(ctx).Debug("executing config show command")
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}
			if format, err = helpers.OutputFormat(format); err != nil {
				return err
			}
			values := config.Values(config.FromContext(ctx))
			if format == "json" {
				return helpers.WriteJSON(cmd.OutOrStdout(), values)
			}
			return writeTable(cmd.OutOrStdout(), values)
		},
	}
	cmd.Flags().StringP("format", "f", "table", "Output format (json, table)")
	return cmd
}

func writeTable(out io.Writer, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%v\n", k, values[k])
	}
	return w.Flush()
}
