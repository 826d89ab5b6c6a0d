package rclone

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"sketchreel/internal/services"
)

var commandContext = exec.CommandContext

const outputTailLines = 20

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if strings.TrimSpace(binary) != "" {
			c.binary = strings.TrimSpace(binary)
		}
	}
}

// WithFlags appends flags to every rclone invocation.
func WithFlags(flags ...string) Option {
	return func(c *CLI) {
		c.flags = append(c.flags, flags...)
	}
}

// CLI wraps the rclone command-line sync tool.
type CLI struct {
	binary string
	flags  []string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "rclone"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Binary reports the executable the client runs.
func (c *CLI) Binary() string {
	return c.binary
}

// Pull copies remote files missing locally into localDir. Google-native
// documents are skipped and files already present locally are never
// re-downloaded.
func (c *CLI) Pull(ctx context.Context, remote, localDir string) error {
	return c.Copy(ctx, remote, localDir, "--drive-skip-gdocs", "--ignore-existing")
}

// Push copies every file under localDir into remote.
func (c *CLI) Push(ctx context.Context, localDir, remote string) error {
	return c.Copy(ctx, localDir, remote)
}

// Copy runs `rclone copy src dst` with the configured and extra flags.
func (c *CLI) Copy(ctx context.Context, src, dst string, extra ...string) error {
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
		return services.Wrap(services.ErrValidation, "rclone", "copy", "source and destination required", nil)
	}
	args := []string{"copy", src, dst}
	args = append(args, extra...)
	args = append(args, c.flags...)

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return services.Wrap(services.ErrExternalTool, "rclone", "copy",
				fmt.Sprintf("%s -> %s exited with status %d%s", src, dst, exitErr.ExitCode(), formatTail(output.String())), err)
		}
		return services.Wrap(services.ErrConfiguration, "rclone", "copy", "start "+c.binary, err)
	}
	return nil
}

func formatTail(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > outputTailLines {
		lines = lines[len(lines)-outputTailLines:]
	}
	return ": " + strings.Join(lines, " | ")
}
