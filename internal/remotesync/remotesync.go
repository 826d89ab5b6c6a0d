package remotesync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sketchreel/internal/config"
	"sketchreel/internal/logging"
	"sketchreel/internal/services"
	"sketchreel/internal/services/gdrive"
	"sketchreel/internal/services/rclone"
)

// Syncer moves files one way between a local directory and a remote mirror.
type Syncer interface {
	// Pull copies remote inputs missing from localDir into it.
	Pull(ctx context.Context, localDir string) error
	// Push copies every file under localDir to the remote output mirror.
	Push(ctx context.Context, localDir string) error
	// Describe names the remote endpoints for logs and status output.
	Describe() string
}

// New builds the Syncer selected by cfg.Remote.Backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Syncer, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "remotesync", "new", "config is nil", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Remote.Backend)) {
	case config.BackendRclone, "":
		cli := rclone.NewCLI(
			rclone.WithBinary(cfg.Remote.RcloneBinary),
			rclone.WithFlags(cfg.Remote.RcloneFlags...),
		)
		return &rcloneSyncer{cli: cli, input: cfg.RemoteInput(), output: cfg.RemoteOutput()}, nil
	case config.BackendGDrive:
		srv, err := gdrive.NewService(ctx, cfg.GDrive)
		if err != nil {
			return nil, err
		}
		client := gdrive.NewClient(srv, cfg.GDrive.InputFolderID, cfg.GDrive.OutputFolderID, logger)
		return &driveSyncer{client: client, input: cfg.GDrive.InputFolderID, output: cfg.GDrive.OutputFolderID}, nil
	case config.BackendDir:
		return NewDirBackend(cfg.Remote.DirRoot, cfg.Remote.InputPath, cfg.Remote.OutputPath), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "remotesync", "new",
			fmt.Sprintf("unknown backend %q", cfg.Remote.Backend), nil)
	}
}

type rcloneSyncer struct {
	cli    *rclone.CLI
	input  string
	output string
}

func (s *rcloneSyncer) Pull(ctx context.Context, localDir string) error {
	return s.cli.Pull(ctx, s.input, localDir)
}

func (s *rcloneSyncer) Push(ctx context.Context, localDir string) error {
	return s.cli.Push(ctx, localDir, s.output)
}

func (s *rcloneSyncer) Describe() string {
	return fmt.Sprintf("rclone %s -> %s", s.input, s.output)
}

type driveSyncer struct {
	client *gdrive.Client
	input  string
	output string
}

func (s *driveSyncer) Pull(ctx context.Context, localDir string) error {
	return s.client.Pull(ctx, localDir)
}

func (s *driveSyncer) Push(ctx context.Context, localDir string) error {
	return s.client.Push(ctx, localDir)
}

func (s *driveSyncer) Describe() string {
	return fmt.Sprintf("gdrive folder %s -> folder %s", s.input, s.output)
}
