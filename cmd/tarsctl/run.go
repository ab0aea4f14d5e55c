package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/id"
	"github.com/ShaurayaMohan/TARS-Windscribe/common/logger"
	"github.com/ShaurayaMohan/TARS-Windscribe/core/config"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/app"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

func newRunCmd() *cobra.Command {
	var (
		hours  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one analysis in-process and deliver the report",
		Long: `Fetch the tickets created in the last --hours, cluster them and post the
report to the configured Slack webhook. With --dry-run the report is printed
instead of posted.

Examples:
  # Analyze the last 24 hours and post to Slack
  tarsctl run

  # Preview a week's report without posting
  tarsctl run --hours 168 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, hours, dryRun)
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "Length of the trailing window in hours")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the report instead of posting it")

	return cmd
}

func runOnce(cmd *cobra.Command, hours int, dryRun bool) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		return err
	}
	logger.Setup(cfg)

	if err := id.Init(id.NodeCLI); err != nil {
		return fmt.Errorf("initializing id generator: %w", err)
	}

	now := time.Now()
	window, err := model.HoursWindow(now, hours, cfg.SupportPal.MaxWindow)
	if err != nil {
		return err
	}
	if err := window.Validate(now, cfg.SupportPal.MaxWindow, model.DefaultClockSkew); err != nil {
		return err
	}

	printHeader(errOut, "TARS ticket analysis")
	fmt.Fprintf(errOut, "Window: %s\n", window)

	tars, err := app.New(ctx, cfg, app.Options{DryRun: dryRun, Out: out})
	if err != nil {
		return err
	}
	defer tars.Close()

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(errOut))
	s.Suffix = " Fetching, analyzing and delivering..."
	s.Start()
	outcome, err := tars.Orchestrator.Run(ctx, window, model.TriggerCLI)
	s.Stop()

	if err != nil {
		if outcome != nil {
			printError(errOut, fmt.Sprintf("Run %d failed while %s", outcome.Run.ID, outcome.Run.FailedStage))
		}
		return err
	}

	return reportOutcome(errOut, outcome, dryRun)
}

func reportOutcome(w io.Writer, outcome *model.RunOutcome, dryRun bool) error {
	run := outcome.Run
	printSuccess(w, fmt.Sprintf("Run %d analyzed %d tickets into %d clusters in %s",
		run.ID, run.TicketCount, run.ClusterCount, run.Duration().Round(time.Millisecond)))

	if outcome.Result != nil {
		for _, warning := range outcome.Result.Warnings {
			printWarning(w, warning.Message)
		}
		printClusters(w, outcome.Result.Clusters)
	}

	if dryRun {
		printWarning(w, "Dry run: report printed, nothing posted")
	} else if outcome.Receipt != nil {
		printSuccess(w, fmt.Sprintf("Report delivered after %d attempt(s)", outcome.Receipt.Attempts))
	}
	return nil
}
