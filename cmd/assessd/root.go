package main

import (
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "assessd",
		Short: "Assessment recommendation service",
		Long: `assessd answers hiring queries with the most relevant assessments from
a spreadsheet catalog, using a persistent vector index and a hosted LLM.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/assessd/config.yaml)")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newIndexCmd(opts),
		newAskCmd(opts),
		newVersionCmd(),
	)
	return cmd
}
