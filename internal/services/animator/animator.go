package animator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"sketchreel/internal/config"
	"sketchreel/internal/logging"
	"sketchreel/internal/services"
)

var commandContext = exec.CommandContext

const (
	outputTailBytes = 4096
	waitDelay       = 5 * time.Second
)

// Contract is the process boundary with the external animation tool: the
// tool is started as `<wrapper...> <command> <args...> <input> <output-dir>`
// and is considered successful only when it exits zero and leaves
// ExpectedArtifact inside the output directory.
type Contract struct {
	Wrapper          []string
	Command          string
	Args             []string
	WorkDir          string
	ExpectedArtifact string
	CanonicalExt     string
	Timeout          time.Duration
	UnsetEnv         []string
}

// ContractFromConfig builds the contract described by the [animator] section.
func ContractFromConfig(cfg *config.Config) Contract {
	if cfg == nil {
		return Contract{}
	}
	return Contract{
		Wrapper:          append([]string(nil), cfg.Animator.Wrapper...),
		Command:          cfg.Animator.Command,
		Args:             append([]string(nil), cfg.Animator.Args...),
		WorkDir:          cfg.Animator.WorkDir,
		ExpectedArtifact: cfg.Animator.ExpectedArtifact,
		CanonicalExt:     cfg.Animator.CanonicalExt,
		Timeout:          cfg.AnimatorTimeout(),
		UnsetEnv:         append([]string(nil), cfg.Animator.UnsetEnv...),
	}
}

// Argv returns the full command line for one invocation.
func (c Contract) Argv(inputPath, outputDir string) []string {
	argv := make([]string, 0, len(c.Wrapper)+len(c.Args)+3)
	argv = append(argv, c.Wrapper...)
	argv = append(argv, c.Command)
	argv = append(argv, c.Args...)
	return append(argv, inputPath, outputDir)
}

// Execution describes a finished invocation.
type Execution struct {
	Argv     []string
	ExitCode int
	Duration time.Duration
	Output   string
}

// Runner executes the animation tool.
type Runner struct {
	contract Contract
	logger   *slog.Logger
}

// NewRunner constructs a Runner for the supplied contract.
func NewRunner(contract Contract, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		contract: contract,
		logger:   logging.NewComponentLogger(logger, "animator"),
	}
}

// Contract returns the runner's contract.
func (r *Runner) Contract() Contract {
	return r.contract
}

// Run invokes the tool and blocks until it exits. Errors carry a marker:
// ErrConfiguration when the process could not start, ErrExternalTool for a
// non-zero exit and ErrTimeout when the configured timeout elapsed.
func (r *Runner) Run(ctx context.Context, inputPath, outputDir string) (Execution, error) {
	argv := r.contract.Argv(inputPath, outputDir)
	result := Execution{Argv: argv, ExitCode: -1}
	if strings.TrimSpace(r.contract.Command) == "" {
		return result, services.Wrap(services.ErrConfiguration, "animator", "run", "command not configured", nil)
	}

	runCtx := ctx
	if r.contract.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.contract.Timeout)
		defer cancel()
	}

	cmd := commandContext(runCtx, argv[0], argv[1:]...) //nolint:gosec
	cmd.Dir = r.contract.WorkDir
	cmd.Env = filterEnv(cmd.Env, r.contract.UnsetEnv)
	cmd.WaitDelay = waitDelay
	tail := &tailBuffer{limit: outputTailBytes}
	cmd.Stdout = tail
	cmd.Stderr = tail

	r.logger.Debug("starting animation tool",
		logging.String("command", strings.Join(argv, " ")),
		logging.String("workdir", r.contract.WorkDir),
	)
	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Output = tail.String()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return result, nil
	}

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if r.contract.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return result, services.Wrap(services.ErrTimeout, "animator", "run",
			fmt.Sprintf("no exit after %s", r.contract.Timeout), err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result, services.Wrap(services.ErrExternalTool, "animator", "run",
			fmt.Sprintf("exit status %d", exitErr.ExitCode()), err)
	}
	return result, services.Wrap(services.ErrConfiguration, "animator", "run", "start "+argv[0], err)
}

// filterEnv drops the named variables from env, falling back to the current
// process environment when env is nil.
func filterEnv(env []string, unset []string) []string {
	if env == nil {
		env = os.Environ()
	}
	if len(unset) == 0 {
		return env
	}
	drop := make(map[string]struct{}, len(unset))
	for _, name := range unset {
		if name = strings.TrimSpace(name); name != "" {
			drop[name] = struct{}{}
		}
	}
	filtered := make([]string, 0, len(env))
	for _, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if _, ok := drop[key]; ok {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

// tailBuffer retains the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
