package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tickwork/internal/config"
	"tickwork/pkg/schedule"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and show when each job fires next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := config.NewManager(configPath(cmd))
			cfg, err := m.Load(cmd.Context())
			if err != nil {
				return err
			}
			settings, err := cfg.Scheduler.Settings()
			if err != nil {
				return err
			}

			sched := schedule.New()
			defer sched.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s  %-40s  %s\n", "JOB", "SCHEDULE", "NEXT")
			for _, jc := range cfg.Jobs {
				if !jc.IsEnabled() {
					fmt.Fprintf(out, "%-20s  %-40s  %s\n", jc.Name, "-", "disabled")
					continue
				}
				spec, err := jc.Spec(settings.Location)
				if err != nil {
					return fmt.Errorf("job %s: %w", jc.Name, err)
				}
				next := "never"
				j, err := sched.ScheduleJob(jc.Name, spec, schedule.Func(nil), nil)
				switch {
				case errors.Is(err, schedule.ErrNotScheduled):
				case err != nil:
					return err
				default:
					if t, ok := j.NextInvocation(); ok {
						next = t.In(settings.Location).Format(time.RFC3339)
					}
				}
				fmt.Fprintf(out, "%-20s  %-40s  %s\n", jc.Name, spec, next)
			}
			fmt.Fprintf(out, "\n%s: ok (%d jobs)\n", m.Path(), len(cfg.Jobs))
			return nil
		},
	}
}
