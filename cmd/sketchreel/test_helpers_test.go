package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"sketchreel/internal/config"
	"sketchreel/internal/testsupport"
)

const copyAnimator = `set -e
case "$1" in
  *broken*) echo "no humanoid detected" >&2; exit 2 ;;
esac
cp "$1" "$2/video.gif"`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithAnimatorScript(copyAnimator))
	cfg.Paths.APIBind = ""
	cfg.Notifications.NtfyTopic = ""
	for _, dir := range []string{testsupport.RemoteInputDir(cfg), testsupport.RemoteOutputDir(cfg)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir remote: %v", err)
		}
	}
	t.Setenv("NTFY_TOPIC", "")
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))

	configPath := filepath.Join(testsupport.BaseDir(cfg), "sketchreel.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	// Empty arrays, not omitted keys, so defaults such as the xvfb wrapper
	// do not come back on load.
	copied := *cfg
	copied.Animator.Wrapper = emptyIfNil(copied.Animator.Wrapper)
	copied.Animator.Args = emptyIfNil(copied.Animator.Args)
	copied.Animator.UnsetEnv = emptyIfNil(copied.Animator.UnsetEnv)
	copied.Remote.RcloneFlags = emptyIfNil(copied.Remote.RcloneFlags)
	data, err := toml.Marshal(&copied)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
