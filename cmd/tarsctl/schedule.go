package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/scheduler"
)

func newScheduleCmd() *cobra.Command {
	var (
		spec     string
		timezone string
		count    int
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Preview when the schedule will fire",
		Long: `Print the next fire times of a cron expression. Defaults come from
SCHEDULE_CRON and SCHEDULE_TIMEZONE.

Examples:
  tarsctl schedule --cron "0 9 * * 1-5" --tz America/Toronto --count 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return previewSchedule(cmd, spec, timezone, count, time.Now())
		},
	}

	cmd.Flags().StringVar(&spec, "cron", envOr("SCHEDULE_CRON", "0 9 * * *"), "Cron expression (5 fields or descriptor)")
	cmd.Flags().StringVar(&timezone, "tz", envOr("SCHEDULE_TIMEZONE", "UTC"), "IANA timezone the expression is evaluated in")
	cmd.Flags().IntVar(&count, "count", 5, "Number of fire times to print")

	return cmd
}

func previewSchedule(cmd *cobra.Command, spec, timezone string, count int, from time.Time) error {
	if count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	times, err := scheduler.NextTimes(spec, timezone, from, count)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printHeader(out, fmt.Sprintf("Next %d runs of %q (%s)", count, spec, timezone))
	for _, t := range times {
		fmt.Fprintf(out, "  %s  (%s)\n", t.Format("Mon 2006-01-02 15:04 MST"), t.UTC().Format("15:04 UTC"))
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
