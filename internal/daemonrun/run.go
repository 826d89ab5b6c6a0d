package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"sketchreel/internal/config"
	"sketchreel/internal/daemon"
	"sketchreel/internal/deps"
	"sketchreel/internal/ledger"
	"sketchreel/internal/logging"
	"sketchreel/internal/pipeline"
	"sketchreel/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipPreflight starts the loop even when directory or remote checks fail.
	SkipPreflight bool
}

// Run starts the sketchreel watch loop and blocks until SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("sketchreel-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "sketchreel-*.log", Exclude: []string{logPath}},
	)

	if err := checkPreflight(signalCtx, logger, cfg); err != nil && !opts.SkipPreflight {
		return err
	}
	logDependencySnapshot(logger, cfg)

	store, err := ledger.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open attempt ledger", "ledger_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions or remove a corrupt sketchreel.db"),
		)
		return err
	}
	defer store.Close()

	p, err := pipeline.NewFromConfig(signalCtx, cfg, store, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	d, err := daemon.New(cfg, p, store, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	d.OnLocked(claimRuntimeFiles(logger, cfg.Paths.LogDir, logPath))
	if err := d.Run(signalCtx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return fmt.Errorf("%w (lock %s)", err, cfg.LockPath())
		}
		return err
	}
	logger.Info("sketchreel daemon shutting down")
	return nil
}

func checkPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	failed := preflight.Failed(preflight.RunAll(ctx, cfg))
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for _, result := range failed {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "watch loop will not start"),
		)
		names = append(names, result.Name)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
}

// claimRuntimeFiles points sketchreel.log at this run's log and writes the
// pid file. It runs under the daemon lock so a rejected second instance
// leaves both untouched.
func claimRuntimeFiles(logger *slog.Logger, logDir, logPath string) daemon.LockedHook {
	return func() (func(), error) {
		if err := ensureCurrentLogPointer(logDir, logPath); err != nil {
			logger.Warn("unable to update sketchreel.log link", logging.Error(err))
		}
		pidPath := filepath.Join(logDir, "sketchreel.pid")
		if err := writePIDFile(pidPath); err != nil {
			return nil, fmt.Errorf("write pid file: %w", err)
		}
		return func() { _ = os.Remove(pidPath) }, nil
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "sketchreel.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := preflight.CheckSystemDeps(cfg)
	attrs := []any{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("backend", cfg.Remote.Backend),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("api_enabled", strings.TrimSpace(cfg.Paths.APIBind) != ""),
	}
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(snapshotKey(status.Name), status.Available))
	}
	logger.Info("dependency snapshot", attrs...)

	for _, missing := range deps.MissingRequired(statuses) {
		logging.WarnWithContext(logger, "required dependency missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldImpact, "jobs needing it will fail"),
		)
	}
}

func snapshotKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	return key + "_available"
}
