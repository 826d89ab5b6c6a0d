package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"sketchreel/internal/fileutil"
	"sketchreel/internal/logging"
	"sketchreel/internal/services"
)

var commandContext = exec.CommandContext

// Report summarises one ConvertDir pass.
type Report struct {
	Converted   []string
	Existing    []string
	Unsupported []string
	Failed      []string
}

// Converter turns phone-camera drawings into the PNG inputs the animation
// tool expects.
type Converter struct {
	heicConverter string
	removeSource  bool
	logger        *slog.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithHEICConverter selects the external HEIC tool: "heif-convert" (libheif)
// or "sips" (macOS). A path to either binary is also accepted.
func WithHEICConverter(name string) Option {
	return func(c *Converter) {
		if strings.TrimSpace(name) != "" {
			c.heicConverter = strings.TrimSpace(name)
		}
	}
}

// WithKeepSource leaves the original file in place after conversion.
func WithKeepSource() Option {
	return func(c *Converter) {
		c.removeSource = false
	}
}

// New constructs a Converter.
func New(logger *slog.Logger, opts ...Option) *Converter {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Converter{
		heicConverter: "heif-convert",
		removeSource:  true,
		logger:        logging.NewComponentLogger(logger, "convert"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConvertDir converts every convertible file directly under dir. Individual
// failures are logged and reported but never abort the pass; the offending
// file stays where it is.
func (c *Converter) ConvertDir(ctx context.Context, dir string) (Report, error) {
	var report Report
	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, fmt.Errorf("read input directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		path := filepath.Join(dir, name)
		switch kind(path) {
		case kindPNG:
			continue
		case kindUnsupported:
			report.Unsupported = append(report.Unsupported, name)
			logging.WarnWithContext(c.logger, "unsupported input format left in place", "unsupported_input",
				logging.String("file", name),
				logging.String(logging.FieldErrorHint, "upload .png, .jpg, .jpeg or .heic drawings"),
				logging.String(logging.FieldImpact, "file is never animated"),
			)
			continue
		}

		target, err := c.ConvertFile(ctx, path)
		switch {
		case errors.Is(err, ErrTargetExists):
			report.Existing = append(report.Existing, name)
		case err != nil:
			report.Failed = append(report.Failed, name)
			logging.WarnWithContext(c.logger, "input conversion failed", "convert_failed",
				logging.String("file", name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file left in place"),
			)
		default:
			report.Converted = append(report.Converted, name)
			c.logger.Info("converted input",
				logging.String("file", name),
				logging.String("png", filepath.Base(target)),
			)
		}
	}
	return report, nil
}

// ErrTargetExists reports that a PNG with the same stem is already present.
var ErrTargetExists = errors.New("png target already exists")

// ConvertFile converts one jpg/jpeg/heic file to a sibling PNG and returns
// the PNG path. PNG inputs are returned unchanged.
func (c *Converter) ConvertFile(ctx context.Context, path string) (string, error) {
	k := kind(path)
	if k == kindPNG {
		return path, nil
	}
	if k == kindUnsupported {
		return "", services.Wrap(services.ErrValidation, "convert", "detect format",
			fmt.Sprintf("unsupported extension %q", filepath.Ext(path)), nil)
	}

	target := strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
	if _, err := os.Lstat(target); err == nil {
		return target, ErrTargetExists
	}

	var err error
	if k == kindHEIC {
		err = c.convertHEIC(ctx, path, target)
	} else {
		err = convertRaster(path, target)
	}
	if err != nil {
		return "", err
	}
	if c.removeSource {
		if err := os.Remove(path); err != nil {
			c.logger.Warn("failed to remove converted source", logging.String("file", path), logging.Error(err))
		}
	}
	return target, nil
}

func convertRaster(src, dst string) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return services.Wrap(services.ErrValidation, "convert", "decode", filepath.Base(src), err)
	}
	// Clone normalises every source colour model to NRGBA so the PNG always
	// carries an alpha channel.
	rgba := imaging.Clone(img)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, rgba, imaging.PNG); err != nil {
		return services.Wrap(services.ErrValidation, "convert", "encode", filepath.Base(dst), err)
	}
	if err := fileutil.WriteAtomic(dst, &buf, 0o644); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func (c *Converter) convertHEIC(ctx context.Context, src, dst string) error {
	var args []string
	switch filepath.Base(c.heicConverter) {
	case "sips":
		args = []string{"-s", "format", "png", src, "--out", dst}
	default:
		args = []string{src, dst}
	}
	cmd := commandContext(ctx, c.heicConverter, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = os.Remove(dst)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return services.Wrap(services.ErrExternalTool, "convert", "heic",
				fmt.Sprintf("%s exited with status %d: %s", c.heicConverter, exitErr.ExitCode(), strings.TrimSpace(string(output))), err)
		}
		return services.Wrap(services.ErrConfiguration, "convert", "heic", "start "+c.heicConverter, err)
	}
	if !fileutil.Exists(dst) {
		return services.Wrap(services.ErrExternalTool, "convert", "heic", c.heicConverter+" produced no output", nil)
	}
	return nil
}

type fileKind int

const (
	kindUnsupported fileKind = iota
	kindPNG
	kindRaster
	kindHEIC
)

func kind(path string) fileKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return kindPNG
	case ".jpg", ".jpeg":
		return kindRaster
	case ".heic", ".heif":
		return kindHEIC
	default:
		return kindUnsupported
	}
}
