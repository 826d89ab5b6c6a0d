package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"sketchreel/internal/services"
)

var commandContext = exec.CommandContext

const outputTailLines = 15

// Client runs ffmpeg and ffprobe.
type Client struct {
	ffmpeg  string
	ffprobe string
}

// New constructs a Client. An empty ffmpegBinary means "ffmpeg"; ffprobe is
// resolved next to it.
func New(ffmpegBinary string) *Client {
	binary := strings.TrimSpace(ffmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Client{ffmpeg: binary, ffprobe: siblingProbe(binary)}
}

// Binary reports the ffmpeg executable.
func (c *Client) Binary() string {
	return c.ffmpeg
}

// Concat joins the clips listed in a concat demuxer list file into output.
// A codec of "copy" (or empty) remuxes without re-encoding; any other value
// is passed to -c:v with a yuv420p pixel format so GIF clips become
// playable MP4.
func (c *Client) Concat(ctx context.Context, listPath, output, codec string) error {
	args := []string{"-hide_banner", "-y", "-f", "concat", "-safe", "0", "-i", listPath}
	codec = strings.TrimSpace(codec)
	if codec == "" || codec == "copy" {
		args = append(args, "-c", "copy")
	} else {
		args = append(args, "-c:v", codec, "-pix_fmt", "yuv420p")
	}
	args = append(args, output)
	return c.run(ctx, "concat", c.ffmpeg, args)
}

// MuxAudio lays audio under video, trimming to the shorter of the two.
func (c *Client) MuxAudio(ctx context.Context, video, audio, output string) error {
	args := []string{"-hide_banner", "-y", "-i", video, "-i", audio, "-shortest", "-c:v", "copy", "-c:a", "aac", output}
	return c.run(ctx, "mux audio", c.ffmpeg, args)
}

func (c *Client) run(ctx context.Context, op, binary string, args []string) error {
	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return services.Wrap(services.ErrExternalTool, "ffmpeg", op,
				fmt.Sprintf("exited with status %d%s", exitErr.ExitCode(), formatTail(output.String())), err)
		}
		return services.Wrap(services.ErrConfiguration, "ffmpeg", op, "start "+binary, err)
	}
	return nil
}

func siblingProbe(ffmpegBinary string) string {
	if !strings.ContainsRune(ffmpegBinary, filepath.Separator) {
		return "ffprobe"
	}
	return filepath.Join(filepath.Dir(ffmpegBinary), "ffprobe")
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
