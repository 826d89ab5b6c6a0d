package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
	FailedDir string `toml:"failed_dir"`
	LogDir    string `toml:"log_dir"`
	StateDir  string `toml:"state_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Remote selects the sync backend and the two remote mirrors.
type Remote struct {
	Backend      string   `toml:"backend"`
	Name         string   `toml:"name"`
	InputPath    string   `toml:"input_path"`
	OutputPath   string   `toml:"output_path"`
	RcloneBinary string   `toml:"rclone_binary"`
	RcloneFlags  []string `toml:"rclone_flags"`
	DirRoot      string   `toml:"dir_root"`
}

// GDrive contains Google Drive API credentials for the gdrive backend.
type GDrive struct {
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	RefreshToken   string `toml:"refresh_token"`
	InputFolderID  string `toml:"input_folder_id"`
	OutputFolderID string `toml:"output_folder_id"`
}

// Animator describes how the external animation tool is invoked and what it
// is expected to leave behind.
type Animator struct {
	Wrapper          []string `toml:"wrapper"`
	Command          string   `toml:"command"`
	Args             []string `toml:"args"`
	WorkDir          string   `toml:"workdir"`
	ExpectedArtifact string   `toml:"expected_artifact"`
	CanonicalExt     string   `toml:"canonical_ext"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
	UnsetEnv         []string `toml:"unset_env"`
}

// Convert controls the input format conversion shim.
type Convert struct {
	Enabled       bool   `toml:"enabled"`
	HEICConverter string `toml:"heic_converter"`
}

// Workflow contains watch loop timing.
type Workflow struct {
	PollInterval   int    `toml:"poll_interval"`
	ErrorBackoff   int    `toml:"error_backoff"`
	InputGlob      string `toml:"input_glob"`
	KeepOutputDirs bool   `toml:"keep_output_dirs"`
}

// Retry is the per-input retry policy applied to failed jobs.
type Retry struct {
	MaxAttempts      int     `toml:"max_attempts"`
	BaseDelaySeconds int     `toml:"base_delay_seconds"`
	MaxDelaySeconds  int     `toml:"max_delay_seconds"`
	Multiplier       float64 `toml:"multiplier"`
}

// Stitch configures the ffmpeg concat step.
type Stitch struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
	Pattern      string `toml:"pattern"`
	FinalVideo   string `toml:"final_video"`
	MusicFile    string `toml:"music_file"`
	VideoCodec   string `toml:"video_codec"`
}

// ModelServer configures the TorchServe helper.
type ModelServer struct {
	TorchServeBinary string   `toml:"torchserve_binary"`
	ModelStore       string   `toml:"model_store"`
	Models           string   `toml:"models"`
	ModelFile        string   `toml:"model_file"`
	DownloadCommand  []string `toml:"download_command"`
	DownloadWorkDir  string   `toml:"download_workdir"`
	PingURL          string   `toml:"ping_url"`
	PingTimeout      int      `toml:"ping_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ClipReady      bool   `toml:"clip_ready"`
	DeadLetter     bool   `toml:"dead_letter"`
	SyncErrors     bool   `toml:"sync_errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for sketchreel.
//
// Configuration sections by subsystem:
//   - Paths: local input/output/quarantine directories, logs, state, API bind
//   - Remote: sync backend selection and remote mirror paths
//   - GDrive: Drive API credentials and folder ids
//   - Animator: external animation tool contract
//   - Convert: jpg/heic to png conversion shim
//   - Workflow: poll interval and sync error backoff
//   - Retry: per-input retry/backoff and dead-letter threshold
//   - Stitch: ffmpeg concat of finished clips
//   - ModelServer: TorchServe startup helper
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Remote        Remote        `toml:"remote"`
	GDrive        GDrive        `toml:"gdrive"`
	Animator      Animator      `toml:"animator"`
	Convert       Convert       `toml:"convert"`
	Workflow      Workflow      `toml:"workflow"`
	Retry         Retry         `toml:"retry"`
	Stitch        Stitch        `toml:"stitch"`
	ModelServer   ModelServer   `toml:"model_server"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sketchreel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("sketchreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories the watch loop works in.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.InputDir, c.Paths.OutputDir, c.Paths.FailedDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the sleep between watch loop cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// ErrorBackoff returns the sleep after a cycle that failed to sync.
func (c *Config) ErrorBackoff() time.Duration {
	return time.Duration(c.Workflow.ErrorBackoff) * time.Second
}

// AnimatorTimeout returns the per-job timeout, zero meaning none.
func (c *Config) AnimatorTimeout() time.Duration {
	return time.Duration(c.Animator.TimeoutSeconds) * time.Second
}

// RemoteInput returns the rclone-style address of the remote input mirror.
func (c *Config) RemoteInput() string {
	return remoteAddress(c.Remote.Name, c.Remote.InputPath)
}

// RemoteOutput returns the rclone-style address of the remote output mirror.
func (c *Config) RemoteOutput() string {
	return remoteAddress(c.Remote.Name, c.Remote.OutputPath)
}

// LedgerPath returns the attempt ledger database location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "sketchreel.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "sketchreel.lock")
}

func remoteAddress(name, subpath string) string {
	name = strings.TrimSuffix(strings.TrimSpace(name), ":")
	subpath = strings.TrimSpace(subpath)
	if name == "" {
		return subpath
	}
	return name + ":" + subpath
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
