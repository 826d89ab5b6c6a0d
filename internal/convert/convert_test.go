package convert

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"sketchreel/internal/services"
)

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

func TestConvertDirJPEGToPNG(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "dog.jpg"))
	writeJPEG(t, filepath.Join(dir, "cat.JPEG"))

	report, err := New(nil).ConvertDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ConvertDir returned error: %v", err)
	}
	if want := []string{"cat.JPEG", "dog.jpg"}; !reflect.DeepEqual(report.Converted, want) {
		t.Fatalf("unexpected converted list: %v", report.Converted)
	}

	img, err := imaging.Open(filepath.Join(dir, "dog.png"))
	if err != nil {
		t.Fatalf("open converted png: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 10 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
	if _, err := os.Stat(filepath.Join(dir, "dog.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected source removed after conversion")
	}
	if _, err := os.Stat(filepath.Join(dir, "cat.png")); err != nil {
		t.Fatalf("expected cat.png: %v", err)
	}
}

func TestConvertKeepSource(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "dog.jpg"))

	if _, err := New(nil, WithKeepSource()).ConvertFile(context.Background(), filepath.Join(dir, "dog.jpg")); err != nil {
		t.Fatalf("ConvertFile returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "dog.jpg")); err != nil {
		t.Fatal("expected source kept")
	}
}

func TestConvertDirSkipsExistingUnsupportedAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "dog.jpg"))
	if err := os.WriteFile(filepath.Join(dir, "dog.png"), []byte("already"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := New(nil).ConvertDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ConvertDir returned error: %v", err)
	}
	if !reflect.DeepEqual(report.Existing, []string{"dog.jpg"}) {
		t.Fatalf("unexpected existing list: %v", report.Existing)
	}
	if !reflect.DeepEqual(report.Unsupported, []string{"notes.txt"}) {
		t.Fatalf("unexpected unsupported list: %v", report.Unsupported)
	}
	if !reflect.DeepEqual(report.Failed, []string{"broken.jpg"}) {
		t.Fatalf("unexpected failed list: %v", report.Failed)
	}
	if data, _ := os.ReadFile(filepath.Join(dir, "dog.png")); string(data) != "already" {
		t.Fatal("existing png must not be overwritten")
	}
	for _, name := range []string{"dog.jpg", "notes.txt", "broken.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s must stay in place: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "broken.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("no png expected for corrupt input")
	}
}

func TestConvertFileRejectsUnsupported(t *testing.T) {
	_, err := New(nil).ConvertFile(context.Background(), "/tmp/x.bmp")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConvertHEICWithHeifConvert(t *testing.T) {
	captured := setHelperCommand(t, "success")
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.heic")
	if err := os.WriteFile(src, []byte("heic"), 0o644); err != nil {
		t.Fatal(err)
	}

	target, err := New(nil).ConvertFile(context.Background(), src)
	if err != nil {
		t.Fatalf("ConvertFile returned error: %v", err)
	}
	if target != filepath.Join(dir, "photo.png") {
		t.Fatalf("unexpected target %s", target)
	}
	if captured.name != "heif-convert" {
		t.Fatalf("unexpected converter %q", captured.name)
	}
	if want := []string{src, target}; !reflect.DeepEqual(captured.args, want) {
		t.Fatalf("unexpected args %v", captured.args)
	}
	if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected heic source removed")
	}
}

func TestConvertHEICWithSips(t *testing.T) {
	captured := setHelperCommand(t, "success")
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.HEIC")
	if err := os.WriteFile(src, []byte("heic"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := New(nil, WithHEICConverter("/usr/bin/sips")).ConvertFile(context.Background(), src); err != nil {
		t.Fatalf("ConvertFile returned error: %v", err)
	}
	want := []string{"-s", "format", "png", src, "--out", filepath.Join(dir, "photo.png")}
	if !reflect.DeepEqual(captured.args, want) {
		t.Fatalf("unexpected sips args %v", captured.args)
	}
}

func TestConvertHEICFailure(t *testing.T) {
	setHelperCommand(t, "failure")
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.heic")
	if err := os.WriteFile(src, []byte("heic"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(nil).ConvertFile(context.Background(), src)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unsupported heif") {
		t.Fatalf("expected converter output in error, got %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatal("source must stay after failed conversion")
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
		helperArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "CONVERT_HELPER_MODE="+mode)
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
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}

	if os.Getenv("CONVERT_HELPER_MODE") == "failure" {
		os.Stderr.WriteString("unsupported heif brand\n")
		os.Exit(1)
	}
	// The output path is the last argument for both heif-convert and sips.
	if err := os.WriteFile(args[len(args)-1], []byte("png"), 0o644); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}
