package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeRemote(); err != nil {
		return err
	}
	c.normalizeGDrive()
	if err := c.normalizeAnimator(); err != nil {
		return err
	}
	c.normalizeConvert()
	c.normalizeWorkflow()
	c.normalizeRetry()
	if err := c.normalizeStitch(); err != nil {
		return err
	}
	if err := c.normalizeModelServer(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	derived := []struct {
		key   string
		value *string
		name  string
	}{
		{key: "paths.input_dir", value: &c.Paths.InputDir, name: "input"},
		{key: "paths.output_dir", value: &c.Paths.OutputDir, name: "output"},
		{key: "paths.failed_dir", value: &c.Paths.FailedDir, name: "failed"},
	}
	for _, d := range derived {
		if strings.TrimSpace(*d.value) == "" {
			*d.value = filepath.Join(c.Paths.DataDir, d.name)
		}
		if *d.value, err = expandPath(*d.value); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SKETCHREEL_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeRemote() error {
	c.Remote.Backend = strings.ToLower(strings.TrimSpace(c.Remote.Backend))
	if c.Remote.Backend == "" {
		c.Remote.Backend = defaultBackend
	}
	if value, ok := os.LookupEnv("SKETCHREEL_REMOTE"); ok && strings.TrimSpace(value) != "" {
		c.Remote.Name = value
	}
	c.Remote.Name = strings.TrimSuffix(strings.TrimSpace(c.Remote.Name), ":")
	c.Remote.InputPath = strings.Trim(strings.TrimSpace(c.Remote.InputPath), "/")
	c.Remote.OutputPath = strings.Trim(strings.TrimSpace(c.Remote.OutputPath), "/")
	c.Remote.RcloneBinary = strings.TrimSpace(c.Remote.RcloneBinary)
	if c.Remote.RcloneBinary == "" {
		c.Remote.RcloneBinary = defaultRcloneBinary
	}
	flags := c.Remote.RcloneFlags[:0]
	for _, flag := range c.Remote.RcloneFlags {
		if trimmed := strings.TrimSpace(flag); trimmed != "" {
			flags = append(flags, trimmed)
		}
	}
	c.Remote.RcloneFlags = flags
	if strings.TrimSpace(c.Remote.DirRoot) != "" {
		var err error
		if c.Remote.DirRoot, err = expandPath(c.Remote.DirRoot); err != nil {
			return fmt.Errorf("remote.dir_root: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeGDrive() {
	lookups := []struct {
		value *string
		env   string
	}{
		{value: &c.GDrive.ClientID, env: "GDRIVE_CLIENT_ID"},
		{value: &c.GDrive.ClientSecret, env: "GDRIVE_CLIENT_SECRET"},
		{value: &c.GDrive.RefreshToken, env: "GDRIVE_REFRESH_TOKEN"},
	}
	for _, l := range lookups {
		*l.value = strings.TrimSpace(*l.value)
		if *l.value == "" {
			if value, ok := os.LookupEnv(l.env); ok {
				*l.value = strings.TrimSpace(value)
			}
		}
	}
	c.GDrive.InputFolderID = strings.TrimSpace(c.GDrive.InputFolderID)
	c.GDrive.OutputFolderID = strings.TrimSpace(c.GDrive.OutputFolderID)
}

func (c *Config) normalizeAnimator() error {
	c.Animator.Command = strings.TrimSpace(c.Animator.Command)
	if c.Animator.Command == "" {
		c.Animator.Command = defaultAnimatorCommand
	}
	if strings.TrimSpace(c.Animator.WorkDir) != "" {
		var err error
		if c.Animator.WorkDir, err = expandPath(c.Animator.WorkDir); err != nil {
			return fmt.Errorf("animator.workdir: %w", err)
		}
	}
	c.Animator.ExpectedArtifact = strings.TrimSpace(c.Animator.ExpectedArtifact)
	if c.Animator.ExpectedArtifact == "" {
		c.Animator.ExpectedArtifact = defaultExpectedArtifact
	}
	c.Animator.CanonicalExt = strings.ToLower(strings.TrimSpace(c.Animator.CanonicalExt))
	if c.Animator.CanonicalExt == "" {
		c.Animator.CanonicalExt = filepath.Ext(c.Animator.ExpectedArtifact)
	}
	if c.Animator.CanonicalExt != "" && !strings.HasPrefix(c.Animator.CanonicalExt, ".") {
		c.Animator.CanonicalExt = "." + c.Animator.CanonicalExt
	}
	if c.Animator.TimeoutSeconds < 0 {
		c.Animator.TimeoutSeconds = 0
	}
	return nil
}

func (c *Config) normalizeConvert() {
	c.Convert.HEICConverter = strings.TrimSpace(c.Convert.HEICConverter)
	if c.Convert.HEICConverter == "" {
		c.Convert.HEICConverter = defaultHEICConverter
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.InputGlob = strings.TrimSpace(c.Workflow.InputGlob)
	if c.Workflow.InputGlob == "" {
		c.Workflow.InputGlob = defaultInputGlob
	}
	if c.Workflow.ErrorBackoff <= 0 {
		c.Workflow.ErrorBackoff = c.Workflow.PollInterval
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = defaultRetryMultiplier
	}
	if c.Retry.MaxDelaySeconds <= 0 {
		c.Retry.MaxDelaySeconds = defaultRetryMaxDelay
	}
}

func (c *Config) normalizeStitch() error {
	var err error
	c.Stitch.FFmpegBinary = strings.TrimSpace(c.Stitch.FFmpegBinary)
	if c.Stitch.FFmpegBinary == "" {
		c.Stitch.FFmpegBinary = defaultFFmpegBinary
	}
	c.Stitch.Pattern = strings.TrimSpace(c.Stitch.Pattern)
	if c.Stitch.Pattern == "" {
		c.Stitch.Pattern = "*" + c.Animator.CanonicalExt
	}
	c.Stitch.FinalVideo = strings.TrimSpace(c.Stitch.FinalVideo)
	if c.Stitch.FinalVideo == "" {
		c.Stitch.FinalVideo = defaultFinalVideo
	}
	if !filepath.IsAbs(c.Stitch.FinalVideo) && !strings.HasPrefix(c.Stitch.FinalVideo, "~") {
		c.Stitch.FinalVideo = filepath.Join(c.Paths.DataDir, c.Stitch.FinalVideo)
	}
	if c.Stitch.FinalVideo, err = expandPath(c.Stitch.FinalVideo); err != nil {
		return fmt.Errorf("stitch.final_video: %w", err)
	}
	if strings.TrimSpace(c.Stitch.MusicFile) != "" {
		if c.Stitch.MusicFile, err = expandPath(c.Stitch.MusicFile); err != nil {
			return fmt.Errorf("stitch.music_file: %w", err)
		}
	}
	c.Stitch.VideoCodec = strings.TrimSpace(c.Stitch.VideoCodec)
	if c.Stitch.VideoCodec == "" {
		c.Stitch.VideoCodec = defaultVideoCodec
	}
	return nil
}

func (c *Config) normalizeModelServer() error {
	var err error
	c.ModelServer.TorchServeBinary = strings.TrimSpace(c.ModelServer.TorchServeBinary)
	if c.ModelServer.TorchServeBinary == "" {
		c.ModelServer.TorchServeBinary = defaultTorchServeBinary
	}
	if strings.TrimSpace(c.ModelServer.ModelStore) == "" {
		c.ModelServer.ModelStore = defaultModelStore
	}
	if c.ModelServer.ModelStore, err = expandPath(c.ModelServer.ModelStore); err != nil {
		return fmt.Errorf("model_server.model_store: %w", err)
	}
	if strings.TrimSpace(c.ModelServer.DownloadWorkDir) != "" {
		if c.ModelServer.DownloadWorkDir, err = expandPath(c.ModelServer.DownloadWorkDir); err != nil {
			return fmt.Errorf("model_server.download_workdir: %w", err)
		}
	}
	c.ModelServer.PingURL = strings.TrimSpace(c.ModelServer.PingURL)
	if c.ModelServer.PingURL == "" {
		c.ModelServer.PingURL = defaultPingURL
	}
	if c.ModelServer.PingTimeout <= 0 {
		c.ModelServer.PingTimeout = defaultPingTimeout
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
