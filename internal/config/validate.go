package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateAnimator(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateModelServer(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRemote() error {
	switch c.Remote.Backend {
	case BackendRclone:
		if c.Remote.Name == "" {
			return errors.New("remote.name must be set when remote.backend is rclone (or set SKETCHREEL_REMOTE)")
		}
		if c.Remote.InputPath == "" || c.Remote.OutputPath == "" {
			return errors.New("remote.input_path and remote.output_path must be set")
		}
		if c.Remote.InputPath == c.Remote.OutputPath {
			return errors.New("remote.input_path and remote.output_path must differ")
		}
	case BackendGDrive:
		if c.GDrive.ClientID == "" || c.GDrive.ClientSecret == "" {
			return errors.New("gdrive.client_id and gdrive.client_secret must be set when remote.backend is gdrive (or set GDRIVE_CLIENT_ID/GDRIVE_CLIENT_SECRET)")
		}
		if c.GDrive.RefreshToken == "" {
			return errors.New("gdrive.refresh_token must be set when remote.backend is gdrive (run 'sketchreel gdrive auth')")
		}
		if c.GDrive.InputFolderID == "" || c.GDrive.OutputFolderID == "" {
			return errors.New("gdrive.input_folder_id and gdrive.output_folder_id must be set when remote.backend is gdrive")
		}
	case BackendDir:
		if strings.TrimSpace(c.Remote.DirRoot) == "" {
			return errors.New("remote.dir_root must be set when remote.backend is dir")
		}
		if c.Remote.InputPath == c.Remote.OutputPath {
			return errors.New("remote.input_path and remote.output_path must differ")
		}
	default:
		return fmt.Errorf("remote.backend: unsupported value %q (expected rclone, gdrive, or dir)", c.Remote.Backend)
	}
	return nil
}

func (c *Config) validateAnimator() error {
	if strings.ContainsAny(c.Animator.ExpectedArtifact, `/\`) {
		return errors.New("animator.expected_artifact must be a bare file name")
	}
	if filepath.Clean(c.Paths.InputDir) == filepath.Clean(c.Paths.OutputDir) {
		return errors.New("paths.input_dir and paths.output_dir must differ")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.error_backoff":        c.Workflow.ErrorBackoff,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if _, err := filepath.Match(c.Workflow.InputGlob, "drawing.png"); err != nil {
		return fmt.Errorf("workflow.input_glob: %w", err)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 0 {
		return errors.New("retry.max_attempts must be >= 0")
	}
	if c.Retry.BaseDelaySeconds < 0 {
		return errors.New("retry.base_delay_seconds must be >= 0")
	}
	if c.Retry.BaseDelaySeconds > c.Retry.MaxDelaySeconds {
		return errors.New("retry.max_delay_seconds must be >= retry.base_delay_seconds")
	}
	return nil
}

func (c *Config) validateModelServer() error {
	if !strings.HasPrefix(c.ModelServer.PingURL, "http://") && !strings.HasPrefix(c.ModelServer.PingURL, "https://") {
		return errors.New("model_server.ping_url must be an http(s) URL")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
