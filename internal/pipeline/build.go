package pipeline

import (
	"context"
	"log/slog"

	"sketchreel/internal/config"
	"sketchreel/internal/convert"
	"sketchreel/internal/job"
	"sketchreel/internal/ledger"
	"sketchreel/internal/notifications"
	"sketchreel/internal/remotesync"
	"sketchreel/internal/services/animator"
)

// NewFromConfig wires the production collaborators described by cfg. store
// may be nil, in which case retry state is not persisted and every failing
// input is retried each cycle.
func NewFromConfig(ctx context.Context, cfg *config.Config, store *ledger.Store, logger *slog.Logger) (*Pipeline, error) {
	syncer, err := remotesync.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := Dependencies{
		Syncer:    syncer,
		Jobs:      NewJobRunner(cfg, logger),
		Converter: convert.New(logger, convert.WithHEICConverter(cfg.Convert.HEICConverter)),
		Notifier:  notifications.NewService(cfg),
		Logger:    logger,
	}
	if store != nil {
		deps.Ledger = store
	}
	return New(cfg, deps)
}

// NewJobRunner builds the per-input runner around the configured animator.
func NewJobRunner(cfg *config.Config, logger *slog.Logger) *job.Runner {
	contract := animator.ContractFromConfig(cfg)
	return job.NewRunner(animator.NewRunner(contract, logger), job.Options{
		OutputRoot:       cfg.Paths.OutputDir,
		ExpectedArtifact: contract.ExpectedArtifact,
		CanonicalExt:     contract.CanonicalExt,
		KeepOutputDirs:   cfg.Workflow.KeepOutputDirs,
	}, logger)
}
