package stitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sketchreel/internal/config"
	"sketchreel/internal/logging"
	"sketchreel/internal/notifications"
	"sketchreel/internal/services"
	"sketchreel/internal/services/ffmpeg"
)

// ErrNoClips reports that nothing matched the clip pattern.
var ErrNoClips = errors.New("no clips to stitch")

// Media is the subset of the ffmpeg client the stitcher drives.
type Media interface {
	Concat(ctx context.Context, listPath, output, codec string) error
	MuxAudio(ctx context.Context, video, audio, output string) error
	Probe(ctx context.Context, path string) (ffmpeg.ProbeResult, error)
}

// Options select the clips and the outputs.
type Options struct {
	SourceDir  string
	Pattern    string
	Output     string
	MusicFile  string
	VideoCodec string
}

// OptionsFromConfig reads the [stitch] section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SourceDir:  cfg.Paths.OutputDir,
		Pattern:    cfg.Stitch.Pattern,
		Output:     cfg.Stitch.FinalVideo,
		MusicFile:  cfg.Stitch.MusicFile,
		VideoCodec: cfg.Stitch.VideoCodec,
	}
}

// Result describes a finished stitch.
type Result struct {
	Clips           []string
	Output          string
	WithMusic       string
	DurationSeconds float64
}

// Final returns the file a viewer should watch.
func (r Result) Final() string {
	if r.WithMusic != "" {
		return r.WithMusic
	}
	return r.Output
}

// Stitcher joins clips with ffmpeg.
type Stitcher struct {
	media    Media
	opts     Options
	notifier notifications.Service
	logger   *slog.Logger
}

// New constructs a Stitcher. notifier may be nil.
func New(media Media, opts Options, notifier notifications.Service, logger *slog.Logger) *Stitcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	if strings.TrimSpace(opts.Pattern) == "" {
		opts.Pattern = "*.gif"
	}
	return &Stitcher{
		media:    media,
		opts:     opts,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "stitch"),
	}
}

// Collect returns the clips under SourceDir whose relative path matches
// Pattern, sorted by that path. The stitcher's own outputs are excluded.
func (s *Stitcher) Collect() ([]string, error) {
	root := s.opts.SourceDir
	exclude := map[string]struct{}{
		filepath.Clean(s.opts.Output):              {},
		filepath.Clean(musicOutput(s.opts.Output)): {},
	}
	var clips []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		matched, err := filepath.Match(s.opts.Pattern, rel)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "stitch", "collect", "bad pattern "+s.opts.Pattern, err)
		}
		if _, skip := exclude[filepath.Clean(path)]; matched && !skip {
			clips = append(clips, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Strings(clips)
	return clips, nil
}

// Run collects clips, concatenates them into Output and, when a music file
// exists, muxes it into a sibling `_with_music.mp4`.
func (s *Stitcher) Run(ctx context.Context) (Result, error) {
	clips, err := s.Collect()
	if err != nil {
		return Result{}, err
	}
	if len(clips) == 0 {
		return Result{}, services.Wrap(services.ErrNotFound, "stitch", "collect",
			fmt.Sprintf("nothing matches %s under %s", s.opts.Pattern, s.opts.SourceDir), ErrNoClips)
	}
	result := Result{Clips: clips, Output: s.opts.Output}

	if err := os.MkdirAll(filepath.Dir(s.opts.Output), 0o755); err != nil {
		return result, fmt.Errorf("create output directory: %w", err)
	}
	listPath, err := s.writeList(clips)
	if err != nil {
		return result, err
	}
	defer os.Remove(listPath)

	s.logger.Info("stitching clips",
		logging.String(logging.FieldEventType, "stitch_start"),
		logging.Int("clips", len(clips)),
		logging.String("output", s.opts.Output),
	)
	if err := s.media.Concat(ctx, listPath, s.opts.Output, s.codecFor(clips)); err != nil {
		return result, err
	}

	if music := strings.TrimSpace(s.opts.MusicFile); music != "" {
		if _, statErr := os.Stat(music); statErr == nil {
			result.WithMusic = musicOutput(s.opts.Output)
			if err := s.media.MuxAudio(ctx, s.opts.Output, music, result.WithMusic); err != nil {
				return result, err
			}
		} else {
			logging.WarnWithContext(s.logger, "music file missing; skipping soundtrack", "music_missing",
				logging.String("music_file", music),
				logging.String(logging.FieldImpact, "final video has no audio"),
			)
		}
	}

	if probe, err := s.media.Probe(ctx, result.Final()); err == nil {
		result.DurationSeconds = probe.DurationSeconds()
	} else {
		s.logger.Debug("ffprobe unavailable for final video", logging.Error(err))
	}

	s.logger.Info("stitch complete",
		logging.String(logging.FieldEventType, "stitch_complete"),
		logging.String("output", result.Final()),
		logging.Int("clips", len(clips)),
	)
	if err := s.notifier.Publish(ctx, notifications.EventStitchComplete, notifications.Payload{
		"clips":  len(clips),
		"output": result.Final(),
	}); err != nil {
		s.logger.Debug("notification failed", logging.Error(err))
	}
	return result, nil
}

// fallbackCodec re-encodes clips whose container cannot be stream-copied
// into the output.
const fallbackCodec = "libx264"

// codecFor returns the configured codec, except that "copy" is only honoured
// when every clip already shares the output's extension.
func (s *Stitcher) codecFor(clips []string) string {
	codec := strings.TrimSpace(s.opts.VideoCodec)
	if codec != "" && codec != "copy" {
		return codec
	}
	want := strings.ToLower(filepath.Ext(s.opts.Output))
	for _, clip := range clips {
		if strings.ToLower(filepath.Ext(clip)) != want {
			logging.WarnWithContext(s.logger, "clips cannot be stream-copied into output; re-encoding", "stitch_reencode",
				logging.String("clip", filepath.Base(clip)),
				logging.String("codec", fallbackCodec),
				logging.String(logging.FieldErrorHint, "set stitch.video_codec to an encoder to silence this warning"),
			)
			return fallbackCodec
		}
	}
	return "copy"
}

func (s *Stitcher) writeList(clips []string) (string, error) {
	file, err := os.CreateTemp(filepath.Dir(s.opts.Output), ".concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	if err := WriteConcatList(file, clips); err != nil {
		file.Close()
		os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return "", fmt.Errorf("close concat list: %w", err)
	}
	return file.Name(), nil
}

// WriteConcatList writes an ffmpeg concat demuxer list. Paths are made
// absolute and single quotes are escaped.
func WriteConcatList(w io.Writer, clips []string) error {
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			return fmt.Errorf("resolve clip path: %w", err)
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(w, "file '%s'\n", escaped); err != nil {
			return fmt.Errorf("write concat list: %w", err)
		}
	}
	return nil
}

func musicOutput(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + "_with_music.mp4"
}
