package torchserve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"sketchreel/internal/config"
	"sketchreel/internal/fileutil"
	"sketchreel/internal/logging"
	"sketchreel/internal/services"
)

var commandContext = exec.CommandContext

const defaultPingInterval = time.Second

// Server manages a local TorchServe instance.
type Server struct {
	Binary          string
	ModelStore      string
	Models          string
	ModelFile       string
	DownloadCommand []string
	DownloadWorkDir string
	PingURL         string
	PingTimeout     time.Duration
	PingInterval    time.Duration

	client *http.Client
	logger *slog.Logger
}

// FromConfig builds a Server from the [model_server] section.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	ms := cfg.ModelServer
	return &Server{
		Binary:          ms.TorchServeBinary,
		ModelStore:      ms.ModelStore,
		Models:          ms.Models,
		ModelFile:       ms.ModelFile,
		DownloadCommand: append([]string(nil), ms.DownloadCommand...),
		DownloadWorkDir: ms.DownloadWorkDir,
		PingURL:         ms.PingURL,
		PingTimeout:     time.Duration(ms.PingTimeout) * time.Second,
		PingInterval:    defaultPingInterval,
		client:          &http.Client{Timeout: 2 * time.Second},
		logger:          logging.NewComponentLogger(logger, "torchserve"),
	}
}

// ModelPath is the detector archive location inside the model store.
func (s *Server) ModelPath() string {
	return filepath.Join(s.ModelStore, s.ModelFile)
}

// Up ensures the model is present, starts TorchServe and waits for it to
// answer pings.
func (s *Server) Up(ctx context.Context) error {
	if _, err := s.EnsureModel(ctx); err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.WaitReady(ctx)
}

// EnsureModel runs the download command when the model archive is missing.
// It reports whether a download happened.
func (s *Server) EnsureModel(ctx context.Context) (bool, error) {
	if fileutil.Exists(s.ModelPath()) {
		s.logger.Info("detection model present", logging.String("model", s.ModelPath()))
		return false, nil
	}
	if len(s.DownloadCommand) == 0 {
		return false, services.Wrap(services.ErrNotFound, "torchserve", "ensure model",
			s.ModelPath()+" missing and no download_command configured", nil)
	}

	s.logger.Info("downloading detection model",
		logging.String(logging.FieldEventType, "model_download"),
		logging.String("command", strings.Join(s.DownloadCommand, " ")),
	)
	if err := s.run(ctx, "download model", s.DownloadWorkDir, s.DownloadCommand[0], s.DownloadCommand[1:]...); err != nil {
		return false, err
	}
	if !fileutil.Exists(s.ModelPath()) {
		return true, services.Wrap(services.ErrNotFound, "torchserve", "ensure model",
			"download finished but "+s.ModelPath()+" is still missing", nil)
	}
	return true, nil
}

// Start launches TorchServe in the background. TorchServe daemonises itself,
// so the command returns once the server process is spawned.
func (s *Server) Start(ctx context.Context) error {
	info, err := os.Stat(s.ModelStore)
	if err != nil || !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "torchserve", "start",
			"model store directory missing: "+s.ModelStore, err)
	}
	s.logger.Info("starting torchserve",
		logging.String(logging.FieldEventType, "torchserve_start"),
		logging.String("model_store", s.ModelStore),
		logging.String("models", s.Models),
	)
	return s.run(ctx, "start", "", s.Binary, "--start", "--ncs", "--model-store", s.ModelStore, "--models", s.Models)
}

// Stop asks TorchServe to shut down.
func (s *Server) Stop(ctx context.Context) error {
	return s.run(ctx, "stop", "", s.Binary, "--stop")
}

// WaitReady polls PingURL until it returns 200 or PingTimeout elapses.
func (s *Server) WaitReady(ctx context.Context) error {
	timeout := s.PingTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	interval := s.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if s.Ping(waitCtx) == nil {
			s.logger.Info("torchserve is live",
				logging.String(logging.FieldEventType, "torchserve_ready"),
				logging.String("url", s.PingURL),
			)
			return nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return services.Wrap(services.ErrTimeout, "torchserve", "wait ready",
				fmt.Sprintf("%s did not answer within %s", s.PingURL, timeout), nil)
		case <-ticker.C:
		}
	}
}

// Ping performs one health probe.
func (s *Server) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.PingURL, nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping returned %s", resp.Status)
	}
	return nil
}

func (s *Server) run(ctx context.Context, op, dir, name string, args ...string) error {
	cmd := commandContext(ctx, name, args...) //nolint:gosec
	cmd.Dir = dir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return services.Wrap(services.ErrExternalTool, "torchserve", op,
				fmt.Sprintf("exit status %d: %s", exitErr.ExitCode(), strings.TrimSpace(output.String())), err)
		}
		return services.Wrap(services.ErrConfiguration, "torchserve", op, "start "+name, err)
	}
	return nil
}
