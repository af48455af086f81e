// Package cli implements the tickwork command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// defaultConfig returns TICKWORK_CONFIG or ./tickwork.yaml.
func defaultConfig() string {
	if p := os.Getenv("TICKWORK_CONFIG"); p != "" {
		return p
	}
	return "./tickwork.yaml"
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tickwork",
		Short:        "tickwork runs shell commands on calendar, cron and interval schedules",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfig(), "config file (YAML or JSON, or TICKWORK_CONFIG env)")

	root.AddCommand(
		newRunCmd(),
		newNextCmd(),
		newValidateCmd(),
		newHistoryCmd(),
	)
	return root
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}
