package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sketchreel/internal/config"
	"sketchreel/internal/daemonrun"
	"sketchreel/internal/ledger"
	"sketchreel/internal/logging"
	"sketchreel/internal/pipeline"
	"sketchreel/internal/services"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var development bool
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the watch loop in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:      ctx.logLevel(),
				Development:   development,
				SkipPreflight: skipPreflight,
			})
		},
	}
	cmd.Flags().BoolVar(&development, "dev", false, "Enable development logging")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start even when preflight checks fail")
	return cmd
}

func newOnceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single pull, animate, push cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.commandLogger("")
			if err != nil {
				return err
			}
			return ctx.withLedger(func(cfg *config.Config, store *ledger.Store) error {
				return withLoopLock(cfg, func() error {
					p, err := pipeline.NewFromConfig(cmd.Context(), cfg, store, logger)
					if err != nil {
						return err
					}
					report, cycleErr := p.Cycle(cmd.Context())
					printCycleReport(cmd.OutOrStdout(), report)
					return cycleErr
				})
			})
		},
	}
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var keep bool

	cmd := &cobra.Command{
		Use:   "process <image>",
		Short: "Animate a single drawing without syncing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger("")
			if err != nil {
				return err
			}
			input, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve input: %w", err)
			}
			if _, err := os.Stat(input); err != nil {
				return services.Wrap(services.ErrNotFound, "process", "stat input", input, err)
			}

			if keep {
				copied := *cfg
				copied.Workflow.KeepOutputDirs = true
				cfg = &copied
			}
			runner := pipeline.NewJobRunner(cfg, logger)
			result := runner.Process(services.WithInput(cmd.Context(), filepath.Base(input)), input)

			out := cmd.OutOrStdout()
			if result.Succeeded() {
				fmt.Fprintf(out, "Animated %s in %s\n", filepath.Base(input), result.Duration().Round(100*time.Millisecond))
				fmt.Fprintf(out, "Artifact: %s\n", result.Artifact)
				return nil
			}
			logging.ErrorWithContext(logger, "job failed", "job_failed",
				logging.String("reason", string(result.Reason)),
				logging.Int("exit_code", result.ExitCode),
			)
			if tail := strings.TrimSpace(result.Output); tail != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), tail)
			}
			return fmt.Errorf("animate %s: %s: %w", filepath.Base(input), result.Reason, result.Err)
		},
	}
	cmd.Flags().BoolVar(&keep, "keep-output-dir", false, "Keep the per-job output directory")
	return cmd
}

func printCycleReport(out io.Writer, report pipeline.CycleReport) {
	fmt.Fprintf(out, "Cycle %s: %d input(s)\n", report.ID, report.Inputs)
	if report.Converted > 0 {
		fmt.Fprintf(out, "  converted:     %d\n", report.Converted)
	}
	groups := []struct {
		label string
		names []string
	}{
		{"succeeded", report.Succeeded},
		{"failed", report.Failed},
		{"deferred", report.Deferred},
		{"skipped", report.Skipped},
		{"dead-lettered", report.DeadLettered},
	}
	for _, g := range groups {
		if len(g.names) == 0 {
			continue
		}
		fmt.Fprintf(out, "  %-14s %s\n", g.label+":", strings.Join(g.names, ", "))
	}
	if report.Error != "" {
		fmt.Fprintf(out, "  error:         %s\n", report.Error)
	}
}
