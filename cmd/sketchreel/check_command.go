package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sketchreel/internal/deps"
	"sketchreel/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var pingModelServer bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directories, remote settings and external tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			if pingModelServer {
				results = append(results, preflight.CheckModelServer(cmd.Context(), cfg.ModelServer.PingURL))
			}
			fmt.Fprintln(out, renderHeading("Preflight", colorize))
			for _, r := range results {
				kind := checkOK
				if !r.Passed {
					kind = checkError
				}
				fmt.Fprintln(out, renderCheckLine(r.Name, kind, r.Detail, colorize))
			}

			statuses := preflight.CheckSystemDeps(cfg)
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderHeading("Dependencies", colorize))
			for _, s := range statuses {
				fmt.Fprintln(out, renderCheckLine(s.Name, dependencyKind(s), dependencyDetail(s), colorize))
			}

			var problems []string
			for _, r := range preflight.Failed(results) {
				problems = append(problems, r.Name)
			}
			for _, s := range deps.MissingRequired(statuses) {
				problems = append(problems, s.Name)
			}
			if len(problems) > 0 {
				return fmt.Errorf("check failed: %s", strings.Join(problems, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pingModelServer, "model-server", false, "Also ping the TorchServe endpoint")
	return cmd
}

func dependencyKind(s deps.Status) checkKind {
	switch {
	case s.Available:
		return checkOK
	case s.Optional:
		return checkWarn
	default:
		return checkError
	}
}

func dependencyDetail(s deps.Status) string {
	if s.Available {
		return s.Command
	}
	if s.Description != "" && s.Detail != "" {
		return s.Detail + " (" + s.Description + ")"
	}
	return s.Detail
}
