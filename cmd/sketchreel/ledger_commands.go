package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sketchreel/internal/config"
	"sketchreel/internal/fileutil"
	"sketchreel/internal/ledger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show ledger summary and recent attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(cfg *config.Config, store *ledger.Store) error {
				summary, err := store.Summary(cmd.Context())
				if err != nil {
					return err
				}
				attempts, err := store.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Daemon running: %s\n", yesNo(daemonRunning(cfg)))
				fmt.Fprintf(out, "Ledger: %s\n", store.Path())
				fmt.Fprintf(out, "Inputs: %d  Attempts: %d\n", summary.Inputs, summary.Total)
				for _, outcome := range []ledger.Outcome{ledger.OutcomeSucceeded, ledger.OutcomeFailed, ledger.OutcomeDeadLettered} {
					fmt.Fprintf(out, "  %-14s %d\n", outcomeLabel(string(outcome))+":", summary.Counts[outcome])
				}
				if !summary.LastFinished.IsZero() {
					fmt.Fprintf(out, "Last attempt: %s (cycle %s)\n", summary.LastFinished.Local().Format(time.DateTime), summary.LastCycleID)
				}
				if len(attempts) == 0 {
					fmt.Fprintln(out, "No attempts recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"When", "Input", "Outcome", "Reason", "Exit", "Duration"},
					attemptRows(attempts),
					5, 6,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 15, "Number of recent attempts to list")
	return cmd
}

func attemptRows(attempts []ledger.Attempt) [][]string {
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		exit := "-"
		if a.ExitCode != nil {
			exit = strconv.Itoa(*a.ExitCode)
		}
		rows = append(rows, []string{
			a.FinishedAt.Local().Format(time.DateTime),
			a.InputName,
			outcomeLabel(string(a.Outcome)),
			orDash(a.Reason),
			exit,
			a.Duration().Round(time.Second).String(),
		})
	}
	return rows
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func newRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <input>",
		Short: "Forget an input's attempts and move it back from the failed directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := filepath.Base(strings.TrimSpace(args[0]))
			return ctx.withLedger(func(cfg *config.Config, store *ledger.Store) error {
				last, err := store.LastAttempt(cmd.Context(), name)
				if err != nil {
					return err
				}
				source := filepath.Join(cfg.Paths.FailedDir, name)
				if last != nil && last.Outcome == ledger.OutcomeDeadLettered && last.ArtifactPath != "" {
					source = last.ArtifactPath
				}

				removed, err := store.Forget(cmd.Context(), name)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Forgot %d attempt(s) for %s\n", removed, name)

				if _, err := os.Stat(source); err != nil {
					if errors.Is(err, os.ErrNotExist) {
						fmt.Fprintln(out, "No quarantined copy found; the next pull will fetch it from the remote")
						return nil
					}
					return fmt.Errorf("stat %s: %w", source, err)
				}
				target := filepath.Join(cfg.Paths.InputDir, name)
				if err := fileutil.MoveFile(source, target); err != nil {
					return fmt.Errorf("move %s back to input: %w", source, err)
				}
				fmt.Fprintf(out, "Moved %s -> %s\n", source, target)
				return nil
			})
		},
	}
}

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Attempt ledger maintenance",
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete attempts older than a cutoff",
		Long: "Delete attempts older than a cutoff.\n\n" +
			"Inputs whose history is pruned while they still exist on the remote are\n" +
			"pulled and animated again on the next cycle.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return ctx.withLedger(func(_ *config.Config, store *ledger.Store) error {
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d attempt(s)\n", removed)
				return nil
			})
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "Age cutoff")

	ledgerCmd.AddCommand(prune)
	return ledgerCmd
}
