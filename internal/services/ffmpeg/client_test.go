package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"reflect"
	"strings"
	"testing"

	"sketchreel/internal/services"
)

func TestConcatCopyArgs(t *testing.T) {
	captured := setHelperCommand(t, "success")

	if err := New("/opt/bin/ffmpeg").Concat(context.Background(), "/tmp/list.txt", "/data/final.mp4", "copy"); err != nil {
		t.Fatalf("Concat returned error: %v", err)
	}
	want := []string{"-hide_banner", "-y", "-f", "concat", "-safe", "0", "-i", "/tmp/list.txt", "-c", "copy", "/data/final.mp4"}
	if captured.name != "/opt/bin/ffmpeg" || !reflect.DeepEqual(captured.args, want) {
		t.Fatalf("unexpected command: %s %v", captured.name, captured.args)
	}
}

func TestConcatReencodeArgs(t *testing.T) {
	captured := setHelperCommand(t, "success")

	if err := New("").Concat(context.Background(), "list.txt", "out.mp4", "libx264"); err != nil {
		t.Fatalf("Concat returned error: %v", err)
	}
	joined := strings.Join(captured.args, " ")
	if !strings.Contains(joined, "-c:v libx264 -pix_fmt yuv420p out.mp4") {
		t.Fatalf("expected re-encode args, got %v", captured.args)
	}
	if captured.name != "ffmpeg" {
		t.Fatalf("expected default binary, got %q", captured.name)
	}
}

func TestMuxAudioArgs(t *testing.T) {
	captured := setHelperCommand(t, "success")

	if err := New("ffmpeg").MuxAudio(context.Background(), "v.mp4", "m.mp3", "v_with_music.mp4"); err != nil {
		t.Fatalf("MuxAudio returned error: %v", err)
	}
	want := []string{"-hide_banner", "-y", "-i", "v.mp4", "-i", "m.mp3", "-shortest", "-c:v", "copy", "-c:a", "aac", "v_with_music.mp4"}
	if !reflect.DeepEqual(captured.args, want) {
		t.Fatalf("unexpected args: %v", captured.args)
	}
}

func TestFailureCarriesOutputTail(t *testing.T) {
	setHelperCommand(t, "failure")

	err := New("ffmpeg").Concat(context.Background(), "list.txt", "out.mp4", "copy")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected ffmpeg output in error, got %v", err)
	}
}

func TestProbeParsesJSON(t *testing.T) {
	captured := setHelperCommand(t, "probe")

	result, err := New("/opt/bin/ffmpeg").Probe(context.Background(), "final.mp4")
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if captured.name != "/opt/bin/ffprobe" {
		t.Fatalf("expected sibling ffprobe, got %q", captured.name)
	}
	if result.VideoStreamCount() != 1 || result.AudioStreamCount() != 1 {
		t.Fatalf("unexpected streams: %+v", result.Streams)
	}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func TestDurationSecondsInvalid(t *testing.T) {
	if got := (ProbeResult{Format: Format{Duration: "n/a"}}).DurationSeconds(); !math.IsNaN(got) {
		t.Fatalf("expected NaN, got %v", got)
	}
	if got := (ProbeResult{}).DurationSeconds(); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

type capturedCommand struct {
	name string
	args []string
}

func setHelperCommand(t *testing.T, mode string) *capturedCommand {
	t.Helper()
	captured := &capturedCommand{}
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured.name = name
		captured.args = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return captured
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "failure":
		fmt.Fprintln(os.Stderr, "list.txt: Invalid data found when processing input")
		os.Exit(1)
	case "probe":
		fmt.Fprint(os.Stdout, `{"streams":[{"index":0,"codec_type":"video","codec_name":"h264"},{"index":1,"codec_type":"audio","codec_name":"aac"}],"format":{"duration":"12.500000"}}`)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
