package preflight

import (
	"context"

	"sketchreel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks that must pass before the watch loop starts.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Input directory", cfg.Paths.InputDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Failed directory", cfg.Paths.FailedDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckRemote(cfg),
	}
	if dir := cfg.Animator.WorkDir; dir != "" {
		results = append(results, CheckDirectoryReadable("Animator workdir", dir))
	}
	return results
}

// Failed filters results down to the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
