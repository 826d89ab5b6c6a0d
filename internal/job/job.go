package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sketchreel/internal/fileutil"
	"sketchreel/internal/logging"
	"sketchreel/internal/services"
	"sketchreel/internal/services/animator"
)

// Outcome is the terminal state of one job.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Reason classifies why a job failed.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonStartFailed     Reason = "start_failed"
	ReasonExitStatus      Reason = "exit_status"
	ReasonMissingArtifact Reason = "missing_artifact"
	ReasonRenameFailed    Reason = "rename_failed"
	ReasonTimeout         Reason = "timeout"
	ReasonCanceled        Reason = "canceled"
)

// Executor runs the animation tool for one input.
type Executor interface {
	Run(ctx context.Context, inputPath, outputDir string) (animator.Execution, error)
}

// Result reports what happened to one input.
type Result struct {
	Input      string
	OutputDir  string
	Artifact   string
	Outcome    Outcome
	Reason     Reason
	ExitCode   int
	Output     string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the canonical artifact was produced.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// Duration returns the wall time the job took.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Options tune the job runner.
type Options struct {
	OutputRoot       string
	ExpectedArtifact string
	CanonicalExt     string
	KeepOutputDirs   bool
}

// Runner turns one input image into a canonical artifact under OutputRoot.
type Runner struct {
	executor Executor
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner constructs a job runner.
func NewRunner(executor Executor, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if !strings.HasPrefix(opts.CanonicalExt, ".") && opts.CanonicalExt != "" {
		opts.CanonicalExt = "." + opts.CanonicalExt
	}
	return &Runner{
		executor: executor,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "job"),
		now:      time.Now,
	}
}

// CanonicalPath returns the final artifact location for an input.
func (r *Runner) CanonicalPath(inputPath string) string {
	return filepath.Join(r.opts.OutputRoot, Stem(inputPath)+r.opts.CanonicalExt)
}

// Process runs the animation tool for inputPath and, when it exits zero and
// leaves the expected artifact behind, renames that artifact to its
// canonical name. Nothing is touched on failure.
func (r *Runner) Process(ctx context.Context, inputPath string) Result {
	result := Result{Input: inputPath, Outcome: OutcomeFailed, ExitCode: -1, StartedAt: r.now()}

	absInput, err := filepath.Abs(inputPath)
	if err != nil {
		return r.fail(result, ReasonStartFailed, fmt.Errorf("resolve input path: %w", err))
	}
	result.Input = absInput
	stem := Stem(absInput)
	result.OutputDir = filepath.Join(r.opts.OutputRoot, stem)
	if err := os.MkdirAll(result.OutputDir, 0o755); err != nil {
		return r.fail(result, ReasonStartFailed, fmt.Errorf("create output directory: %w", err))
	}

	logger := logging.WithContext(ctx, r.logger)
	logger.Info("animating drawing",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("output_dir", result.OutputDir),
	)

	execution, runErr := r.executor.Run(ctx, absInput, result.OutputDir)
	result.ExitCode = execution.ExitCode
	result.Output = execution.Output
	if runErr != nil {
		return r.fail(result, classify(ctx, runErr), runErr)
	}

	produced := filepath.Join(result.OutputDir, r.opts.ExpectedArtifact)
	if !fileutil.Exists(produced) {
		return r.fail(result, ReasonMissingArtifact, services.Wrap(services.ErrExternalTool, "job", "verify artifact",
			fmt.Sprintf("exit 0 but %s not written", r.opts.ExpectedArtifact), nil))
	}

	canonical := filepath.Join(r.opts.OutputRoot, stem+r.opts.CanonicalExt)
	if err := fileutil.MoveFile(produced, canonical); err != nil {
		return r.fail(result, ReasonRenameFailed, fmt.Errorf("rename artifact: %w", err))
	}
	result.Artifact = canonical
	result.Outcome = OutcomeSucceeded
	result.Reason = ReasonNone
	result.FinishedAt = r.now()

	if !r.opts.KeepOutputDirs {
		if err := os.RemoveAll(result.OutputDir); err != nil {
			logger.Warn("output directory cleanup failed", logging.Error(err))
		}
	}

	logger.Info("animation complete",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("artifact", canonical),
		logging.Duration("duration", execution.Duration),
	)
	return result
}

func (r *Runner) fail(result Result, reason Reason, err error) Result {
	result.Outcome = OutcomeFailed
	result.Reason = reason
	result.Err = err
	result.FinishedAt = r.now()
	return result
}

func classify(ctx context.Context, err error) Reason {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.Is(err, services.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, services.ErrExternalTool):
		return ReasonExitStatus
	default:
		return ReasonStartFailed
	}
}

// Stem returns the file name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
