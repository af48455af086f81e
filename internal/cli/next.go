package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"tickwork/internal/cronexpr"
	"tickwork/pkg/schedule"
)

func newNextCmd() *cobra.Command {
	var (
		count int
		tz    string
		from  string
	)
	cmd := &cobra.Command{
		Use:   "next <schedule>",
		Short: "Print upcoming fire times of a schedule",
		Long: `Next parses a schedule the way job configs do and prints its upcoming fire times.

Examples:
  tickwork next "*/15 9-17 * * 1-5"
  tickwork next 90m -n 3
  tickwork next "at: 2030-01-01 09:00" --tz Europe/Berlin`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			if tz != "" {
				l, err := time.LoadLocation(tz)
				if err != nil {
					return fmt.Errorf("--tz: %w", err)
				}
				loc = l
			}
			start := time.Now().In(loc)
			if from != "" {
				t, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				start = t.In(loc)
			}
			spec, err := schedule.Parse(strings.Join(args, " "), loc)
			if err != nil {
				return err
			}
			times, err := upcoming(spec, start, count, loc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(times) == 0 {
				fmt.Fprintf(out, "%s: no fire time after %s\n", spec, start.Format(time.RFC3339))
				return nil
			}
			for _, t := range times {
				fmt.Fprintln(out, t.In(loc).Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of fire times")
	cmd.Flags().StringVar(&tz, "tz", "", "time zone (default local)")
	cmd.Flags().StringVar(&from, "from", "", "start from this RFC3339 time instead of now")
	return cmd
}

// upcoming returns up to n fire times of spec strictly after from, except
// that a fixed instant equal to from is included.
func upcoming(spec schedule.Spec, from time.Time, n int, loc *time.Location) ([]time.Time, error) {
	switch spec.Kind {
	case schedule.KindAt:
		if spec.At.Before(from) {
			return nil, nil
		}
		return []time.Time{spec.At}, nil
	case schedule.KindCron:
		c, err := cronexpr.Parse(spec.Cron, cronexpr.Options{Start: from, End: spec.End, Location: loc})
		if err != nil {
			return nil, err
		}
		return c.Take(n), nil
	case schedule.KindEvery:
		every := cron.Every(spec.Every)
		out := make([]time.Time, 0, n)
		for t := from; len(out) < n; {
			t = every.Next(t)
			out = append(out, t)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported schedule %s", spec)
	}
}
