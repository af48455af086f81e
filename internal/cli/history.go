package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tickwork/internal/config"
	"tickwork/internal/daemon"
	"tickwork/internal/storage"
	logx "tickwork/pkg/logx"
)

func newHistoryCmd() *cobra.Command {
	var (
		job   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewManager(configPath(cmd)).Load(cmd.Context())
			if err != nil {
				return err
			}
			sc, enabled, err := daemon.StorageConfig(cfg)
			if err != nil {
				return err
			}
			if !enabled {
				return errors.New("storage is disabled in the config; no history is kept")
			}
			st, err := storage.Open(sc, logx.Nop())
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), storage.Query{Job: job, Limit: limit})
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			fmt.Fprintf(out, "%-26s  %-20s  %-25s  %-10s  %-6s  %s\n", "ID", "JOB", "STARTED", "TOOK", "STATUS", "TRIGGER")
			for _, r := range runs {
				status := "ok"
				switch {
				case r.TimedOut:
					status = "timeout"
				case !r.OK:
					status = fmt.Sprintf("exit %d", r.ExitCode)
				}
				fmt.Fprintf(out, "%-26s  %-20s  %-25s  %-10s  %-6s  %s\n",
					r.ID, r.Job, r.StartedAt.Local().Format(time.RFC3339), r.Duration.Round(time.Millisecond), status, r.Trigger)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "only runs of this job")
	cmd.Flags().IntVarP(&limit, "count", "n", 20, "maximum runs to show")
	return cmd
}
