package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"sketchreel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The remote defaults to the dir backend rooted under the temp directory and
// the animator has no wrapper so stub scripts can stand in for it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.InputDir = filepath.Join(base, "data", "input")
	cfgVal.Paths.OutputDir = filepath.Join(base, "data", "output")
	cfgVal.Paths.FailedDir = filepath.Join(base, "data", "failed")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Remote.Backend = config.BackendDir
	cfgVal.Remote.Name = ""
	cfgVal.Remote.DirRoot = filepath.Join(base, "remote")
	cfgVal.Remote.InputPath = "input"
	cfgVal.Remote.OutputPath = "output"
	cfgVal.Animator.Wrapper = nil
	cfgVal.Animator.Command = "animate"
	cfgVal.Animator.Args = nil
	cfgVal.Animator.WorkDir = base
	cfgVal.Animator.UnsetEnv = nil
	cfgVal.Stitch.Pattern = "*" + cfgVal.Animator.CanonicalExt
	cfgVal.Stitch.FinalVideo = filepath.Join(base, "data", "final_video.mp4")
	cfgVal.ModelServer.ModelStore = filepath.Join(base, "models")
	cfgVal.ModelServer.DownloadWorkDir = base

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRetry overrides the retry policy on the test config.
func WithRetry(maxAttempts, baseDelaySeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.MaxAttempts = maxAttempts
		b.cfg.Retry.BaseDelaySeconds = baseDelaySeconds
	}
}

// WithAnimatorScript writes body as an executable shell script and points
// the animator command at it. The script receives `<input> <output-dir>`.
func WithAnimatorScript(body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := b.binDir()
		target := filepath.Join(binDir, "animate")
		script := "#!/bin/sh\n" + body + "\n"
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			b.t.Fatalf("write animator stub: %v", err)
		}
		b.cfg.Animator.Command = target
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default sketchreel external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"rclone", "ffmpeg", "animate"}
		}
		binDir := b.binDir()
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

func (b *configBuilder) binDir() string {
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	return binDir
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// RemoteInputDir returns the dir-backend remote input folder.
func RemoteInputDir(cfg *config.Config) string {
	return filepath.Join(cfg.Remote.DirRoot, cfg.Remote.InputPath)
}

// RemoteOutputDir returns the dir-backend remote output folder.
func RemoteOutputDir(cfg *config.Config) string {
	return filepath.Join(cfg.Remote.DirRoot, cfg.Remote.OutputPath)
}
