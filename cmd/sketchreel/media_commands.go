package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sketchreel/internal/convert"
	"sketchreel/internal/notifications"
	"sketchreel/internal/services/ffmpeg"
	"sketchreel/internal/stitch"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var keepSource bool

	cmd := &cobra.Command{
		Use:   "convert [dir]",
		Short: "Convert jpg/heic drawings to png",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger("")
			if err != nil {
				return err
			}
			dir := cfg.Paths.InputDir
			if len(args) == 1 {
				dir = args[0]
			}
			opts := []convert.Option{convert.WithHEICConverter(cfg.Convert.HEICConverter)}
			if keepSource {
				opts = append(opts, convert.WithKeepSource())
			}
			report, err := convert.New(logger, opts...).ConvertDir(cmd.Context(), dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Converted %d file(s) in %s\n", len(report.Converted), dir)
			if len(report.Existing) > 0 {
				fmt.Fprintf(out, "Already converted: %s\n", strings.Join(report.Existing, ", "))
			}
			if len(report.Unsupported) > 0 {
				fmt.Fprintf(out, "Unsupported: %s\n", strings.Join(report.Unsupported, ", "))
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("conversion failed for %s", strings.Join(report.Failed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepSource, "keep-source", false, "Keep the original file after conversion")
	return cmd
}

func newStitchCommand(ctx *commandContext) *cobra.Command {
	var output string
	var music string
	var pattern string
	var source string

	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Concatenate finished clips into one video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger("")
			if err != nil {
				return err
			}

			opts := stitch.OptionsFromConfig(cfg)
			if strings.TrimSpace(output) != "" {
				opts.Output = output
			}
			if strings.TrimSpace(music) != "" {
				opts.MusicFile = music
			}
			if strings.TrimSpace(pattern) != "" {
				opts.Pattern = pattern
			}
			if strings.TrimSpace(source) != "" {
				opts.SourceDir = source
			}

			stitcher := stitch.New(ffmpeg.New(cfg.Stitch.FFmpegBinary), opts, notifications.NewService(cfg), logger)
			result, err := stitcher.Run(cmd.Context())
			if err != nil {
				if errors.Is(err, stitch.ErrNoClips) {
					return fmt.Errorf("no clips matching %q under %s", opts.Pattern, opts.SourceDir)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Stitched %d clip(s)\n", len(result.Clips))
			fmt.Fprintf(out, "Video: %s\n", result.Final())
			if result.DurationSeconds > 0 {
				fmt.Fprintf(out, "Duration: %.1fs\n", result.DurationSeconds)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output video path")
	cmd.Flags().StringVar(&music, "music", "", "Soundtrack to mux into the video")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Clip glob relative to the source directory")
	cmd.Flags().StringVar(&source, "source", "", "Directory holding the clips")
	return cmd
}
