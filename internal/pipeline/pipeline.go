package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sketchreel/internal/config"
	"sketchreel/internal/convert"
	"sketchreel/internal/fileutil"
	"sketchreel/internal/job"
	"sketchreel/internal/ledger"
	"sketchreel/internal/logging"
	"sketchreel/internal/notifications"
	"sketchreel/internal/remotesync"
	"sketchreel/internal/services"
)

// JobRunner processes one input image.
type JobRunner interface {
	Process(ctx context.Context, inputPath string) job.Result
}

// Converter normalises input formats ahead of the job pass.
type Converter interface {
	ConvertDir(ctx context.Context, dir string) (convert.Report, error)
}

// AttemptStore is the slice of the ledger the loop needs.
type AttemptStore interface {
	Record(ctx context.Context, attempt ledger.Attempt) (int64, error)
	Failures(ctx context.Context, input string) (int, error)
	LastAttempt(ctx context.Context, input string) (*ledger.Attempt, error)
}

// Dependencies are the collaborators a Pipeline drives. Converter, Ledger
// and Notifier are optional.
type Dependencies struct {
	Syncer    remotesync.Syncer
	Jobs      JobRunner
	Converter Converter
	Ledger    AttemptStore
	Notifier  notifications.Service
	Logger    *slog.Logger
}

// CycleReport summarises one pass of the watch loop.
type CycleReport struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Inputs       int       `json:"inputs"`
	Succeeded    []string  `json:"succeeded,omitempty"`
	Failed       []string  `json:"failed,omitempty"`
	Deferred     []string  `json:"deferred,omitempty"`
	Skipped      []string  `json:"skipped,omitempty"`
	DeadLettered []string  `json:"dead_lettered,omitempty"`
	Converted    int       `json:"converted"`
	Error        string    `json:"error,omitempty"`
}

// Pipeline owns the pull, animate, push cycle.
type Pipeline struct {
	cfg    *config.Config
	deps   Dependencies
	policy Policy
	logger *slog.Logger

	now   func() time.Time
	newID func() string
	wait  func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	last   *CycleReport
	cycles int
}

// New constructs a Pipeline. Syncer and Jobs are required.
func New(cfg *config.Config, deps Dependencies) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline requires config")
	}
	if deps.Syncer == nil || deps.Jobs == nil {
		return nil, errors.New("pipeline requires a syncer and a job runner")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		policy: PolicyFromConfig(cfg),
		logger: logging.NewComponentLogger(deps.Logger, "pipeline"),
		now:    time.Now,
		newID:  uuid.NewString,
		wait:   sleepContext,
	}, nil
}

// Policy returns the retry policy in effect.
func (p *Pipeline) Policy() Policy {
	return p.policy
}

// LastCycle returns the most recent cycle report, if any cycle ran.
func (p *Pipeline) LastCycle() (CycleReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return CycleReport{}, false
	}
	return *p.last, true
}

// Cycles returns how many cycles have completed since start.
func (p *Pipeline) Cycles() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cycles
}

// Cycle runs one pass: pull, convert, animate every pending input (deleting
// each input whose job succeeded), push. Inputs the ledger already records
// as animated or dead-lettered are discarded without a job. A sync failure aborts the cycle and
// is returned; job failures never do.
func (p *Pipeline) Cycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: p.newID(), StartedAt: p.now()}
	ctx = services.WithCycleID(ctx, report.ID)
	logger := logging.WithContext(ctx, p.logger)

	err := p.cycle(ctx, logger, &report)
	report.FinishedAt = p.now()
	if err != nil {
		report.Error = err.Error()
	}
	p.mu.Lock()
	p.last = &report
	p.cycles++
	p.mu.Unlock()

	if err == nil {
		logger.Info("cycle complete",
			logging.String(logging.FieldEventType, "cycle_complete"),
			logging.Int("inputs", report.Inputs),
			logging.Int("succeeded", len(report.Succeeded)),
			logging.Int("failed", len(report.Failed)),
			logging.Int("deferred", len(report.Deferred)),
			logging.Int("dead_lettered", len(report.DeadLettered)),
			logging.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
		)
	}
	return report, err
}

func (p *Pipeline) cycle(ctx context.Context, logger *slog.Logger, report *CycleReport) error {
	if err := p.deps.Syncer.Pull(ctx, p.cfg.Paths.InputDir); err != nil {
		return p.syncFailed(ctx, logger, "pull", err)
	}

	if p.cfg.Convert.Enabled && p.deps.Converter != nil {
		converted, err := p.deps.Converter.ConvertDir(ctx, p.cfg.Paths.InputDir)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.WarnWithContext(logger, "input conversion pass failed", "convert_pass_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "non-png inputs wait for the next cycle"),
			)
		}
		report.Converted = len(converted.Converted)
	}

	inputs, err := p.pendingInputs()
	if err != nil {
		return err
	}
	report.Inputs = len(inputs)

	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.handleInput(ctx, input, report); err != nil {
			return err
		}
	}

	if err := p.deps.Syncer.Push(ctx, p.cfg.Paths.OutputDir); err != nil {
		return p.syncFailed(ctx, logger, "push", err)
	}
	return nil
}

// pendingInputs lists regular files in the input directory whose names match
// input_glob. Matching ignores case so drawings uploaded as FROG.PNG are not
// silently skipped.
func (p *Pipeline) pendingInputs() ([]string, error) {
	pattern := strings.ToLower(p.cfg.Workflow.InputGlob)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "list inputs", "bad input_glob", err)
	}
	entries, err := os.ReadDir(p.cfg.Paths.InputDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "pipeline", "list inputs", "read input directory", err)
	}
	inputs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, strings.ToLower(entry.Name())); ok {
			inputs = append(inputs, filepath.Join(p.cfg.Paths.InputDir, entry.Name()))
		}
	}
	sort.Strings(inputs)
	return inputs, nil
}

// handleInput applies the retry policy to one input and runs its job. Only
// cancellation is returned as an error.
func (p *Pipeline) handleInput(ctx context.Context, inputPath string, report *CycleReport) error {
	name := filepath.Base(inputPath)
	ctx = services.WithInput(ctx, name)
	logger := logging.WithContext(ctx, p.logger)

	failures, last := p.history(ctx, logger, name)
	if last != nil && last.Outcome != ledger.OutcomeFailed {
		// Skip-existing pulls bring a finished or quarantined input back
		// once it leaves the input directory; requeue clears this.
		logger.Debug("input already settled; discarding re-pulled copy", logging.String("outcome", string(last.Outcome)))
		if err := os.Remove(inputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to discard re-pulled input", logging.Error(err))
		}
		report.Skipped = append(report.Skipped, name)
		return nil
	}
	var lastFinished time.Time
	if last != nil && failures > 0 {
		lastFinished = last.FinishedAt
	}
	decision, remaining := p.policy.Decide(failures, lastFinished, p.now())
	switch decision {
	case DecisionWait:
		logger.Debug("input backing off", logging.Duration("remaining", remaining), logging.Int("failures", failures))
		report.Deferred = append(report.Deferred, name)
		return nil
	case DecisionDeadLetter:
		p.deadLetter(ctx, logger, inputPath, failures, "")
		report.DeadLettered = append(report.DeadLettered, name)
		return nil
	}

	result := p.deps.Jobs.Process(ctx, inputPath)
	if result.Reason == job.ReasonCanceled {
		return ctx.Err()
	}
	p.record(ctx, logger, name, result)

	if result.Succeeded() {
		if err := os.Remove(inputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logger, "failed to remove processed input", "input_cleanup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, p.cleanupImpact()),
			)
		}
		report.Succeeded = append(report.Succeeded, name)
		p.notify(ctx, logger, notifications.EventClipReady, notifications.Payload{
			"input":    name,
			"artifact": result.Artifact,
		})
		return nil
	}

	report.Failed = append(report.Failed, name)
	failures++
	attrs := []logging.Attr{
		logging.String("reason", string(result.Reason)),
		logging.Int("exit_code", result.ExitCode),
		logging.Int("consecutive_failures", failures),
		logging.String(logging.FieldImpact, "input kept for retry"),
	}
	if result.Err != nil {
		attrs = append(attrs, logging.Error(result.Err))
	}
	if result.Output != "" {
		attrs = append(attrs, logging.String("tool_output", result.Output))
	}
	logging.WarnWithContext(logger, "animation failed", "job_failed", attrs...)

	if p.policy.Exhausted(failures) {
		p.deadLetter(ctx, logger, inputPath, failures, string(result.Reason))
		report.DeadLettered = append(report.DeadLettered, name)
	}
	return nil
}

// cleanupImpact describes what happens to a succeeded input that could not
// be removed. With a ledger the next cycle discards it as settled.
func (p *Pipeline) cleanupImpact() string {
	if p.deps.Ledger != nil {
		return "input will be discarded next cycle"
	}
	return "input will be animated again next cycle"
}

func (p *Pipeline) history(ctx context.Context, logger *slog.Logger, name string) (int, *ledger.Attempt) {
	if p.deps.Ledger == nil {
		return 0, nil
	}
	last, err := p.deps.Ledger.LastAttempt(ctx, name)
	if err != nil {
		logger.Warn("ledger lookup failed; treating input as fresh", logging.Error(err))
		return 0, nil
	}
	if last == nil || last.Outcome != ledger.OutcomeFailed {
		return 0, last
	}
	failures, err := p.deps.Ledger.Failures(ctx, name)
	if err != nil {
		logger.Warn("ledger lookup failed; treating input as fresh", logging.Error(err))
		return 0, nil
	}
	return failures, last
}

func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, name string, result job.Result) {
	if p.deps.Ledger == nil {
		return
	}
	attempt := ledger.Attempt{
		CycleID:      cycleID(ctx),
		InputName:    name,
		Outcome:      ledger.OutcomeFailed,
		Reason:       string(result.Reason),
		ArtifactPath: result.Artifact,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
	}
	if result.Succeeded() {
		attempt.Outcome = ledger.OutcomeSucceeded
	}
	if result.ExitCode >= 0 {
		code := result.ExitCode
		attempt.ExitCode = &code
	}
	if result.Err != nil {
		attempt.ErrorMessage = result.Err.Error()
	}
	if _, err := p.deps.Ledger.Record(ctx, attempt); err != nil {
		logger.Warn("failed to record attempt", logging.Error(err))
	}
}

// deadLetter moves a repeatedly failing input into the failed directory so
// it stops consuming a job invocation every cycle.
func (p *Pipeline) deadLetter(ctx context.Context, logger *slog.Logger, inputPath string, failures int, reason string) {
	name := filepath.Base(inputPath)
	dest, err := fileutil.UniquePath(filepath.Join(p.cfg.Paths.FailedDir, name))
	if err == nil {
		if err = os.MkdirAll(p.cfg.Paths.FailedDir, 0o755); err == nil {
			err = fileutil.MoveFile(inputPath, dest)
		}
	}
	if err != nil {
		logging.ErrorWithContext(logger, "failed to quarantine input", "dead_letter_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on "+p.cfg.Paths.FailedDir),
		)
		return
	}

	logging.WarnWithContext(logger, "input dead-lettered", "dead_letter",
		logging.String("moved_to", dest),
		logging.Int("attempts", failures),
		logging.String("reason", reason),
		logging.String(logging.FieldErrorHint, "fix the drawing and run `sketchreel requeue "+name+"`"),
	)
	if p.deps.Ledger != nil {
		now := p.now()
		if _, err := p.deps.Ledger.Record(ctx, ledger.Attempt{
			CycleID:      cycleID(ctx),
			InputName:    name,
			Outcome:      ledger.OutcomeDeadLettered,
			Reason:       reason,
			ArtifactPath: dest,
			StartedAt:    now,
			FinishedAt:   now,
		}); err != nil {
			logger.Warn("failed to record dead letter", logging.Error(err))
		}
	}
	p.notify(ctx, logger, notifications.EventDeadLetter, notifications.Payload{
		"input":    name,
		"attempts": failures,
		"reason":   reason,
		"moved_to": dest,
	})
}

func (p *Pipeline) syncFailed(ctx context.Context, logger *slog.Logger, direction string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logging.ErrorWithContext(logger, "sync failed", "sync_failed",
		logging.String("direction", direction),
		logging.String("remote", p.deps.Syncer.Describe()),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the remote configuration and network"),
	)
	p.notify(ctx, logger, notifications.EventSyncFailed, notifications.Payload{
		"direction": direction,
		"error":     err,
	})
	return fmt.Errorf("%s: %w", direction, err)
}

func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := p.deps.Notifier.Publish(ctx, event, payload); err != nil {
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func cycleID(ctx context.Context) string {
	id, _ := services.CycleIDFromContext(ctx)
	return id
}

// Remote describes the sync backend the pipeline drives.
func (p *Pipeline) Remote() string {
	return p.deps.Syncer.Describe()
}
