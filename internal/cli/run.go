package cli

import (
	"github.com/spf13/cobra"

	"tickwork/internal/daemon"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler daemon",
		Long:  "Run loads the config, schedules every enabled job and reloads when the config file changes. It stops on SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemon.New(cmd.Context(), configPath(cmd))
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}
}
