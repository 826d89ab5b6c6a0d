package config

const (
	defaultDataDir             = "~/.local/share/sketchreel/data"
	defaultLogDir              = "~/.local/share/sketchreel/logs"
	defaultStateDir            = "~/.local/share/sketchreel"
	defaultBackend             = BackendRclone
	defaultRemoteName          = "gdrive"
	defaultRemoteInputPath     = "VBS-Drawings/input"
	defaultRemoteOutputPath    = "VBS-Drawings/output"
	defaultRcloneBinary        = "rclone"
	defaultAnimatorCommand     = "python3"
	defaultAnimatorScript      = "examples/image_to_animation.py"
	defaultAnimatorWorkDir     = "~/AnimatedDrawings"
	defaultExpectedArtifact    = "video.gif"
	defaultCanonicalExt        = ".gif"
	defaultHEICConverter       = "heif-convert"
	defaultPollInterval        = 15
	defaultErrorBackoff        = 60
	defaultInputGlob           = "*.png"
	defaultRetryMaxDelay       = 900
	defaultRetryMultiplier     = 2.0
	defaultFFmpegBinary        = "ffmpeg"
	defaultFinalVideo          = "final_video.mp4"
	defaultVideoCodec          = "libx264"
	defaultTorchServeBinary    = "torchserve"
	defaultModelStore          = "~/AnimatedDrawings/checkpoints"
	defaultModelFile           = "drawn_humanoid_detector.mar"
	defaultModels              = "drawn_humanoid_detector=drawn_humanoid_detector.mar"
	defaultPingURL             = "http://localhost:8080/ping"
	defaultPingTimeout         = 20
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	defaultModelDownloadScript = "scripts/download_model.py"
)

// Sync backends understood by the remote sync adapter.
const (
	BackendRclone = "rclone"
	BackendGDrive = "gdrive"
	BackendDir    = "dir"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Remote: Remote{
			Backend:      defaultBackend,
			Name:         defaultRemoteName,
			InputPath:    defaultRemoteInputPath,
			OutputPath:   defaultRemoteOutputPath,
			RcloneBinary: defaultRcloneBinary,
		},
		Animator: Animator{
			Wrapper:          []string{"xvfb-run", "-s", "-screen 0 1024x768x24"},
			Command:          defaultAnimatorCommand,
			Args:             []string{defaultAnimatorScript},
			WorkDir:          defaultAnimatorWorkDir,
			ExpectedArtifact: defaultExpectedArtifact,
			CanonicalExt:     defaultCanonicalExt,
			UnsetEnv:         []string{"PYOPENGL_PLATFORM"},
		},
		Convert: Convert{
			Enabled:       true,
			HEICConverter: defaultHEICConverter,
		},
		Workflow: Workflow{
			PollInterval:   defaultPollInterval,
			ErrorBackoff:   defaultErrorBackoff,
			InputGlob:      defaultInputGlob,
			KeepOutputDirs: true,
		},
		Retry: Retry{
			MaxDelaySeconds: defaultRetryMaxDelay,
			Multiplier:      defaultRetryMultiplier,
		},
		Stitch: Stitch{
			FFmpegBinary: defaultFFmpegBinary,
			FinalVideo:   defaultFinalVideo,
			VideoCodec:   defaultVideoCodec,
		},
		ModelServer: ModelServer{
			TorchServeBinary: defaultTorchServeBinary,
			ModelStore:       defaultModelStore,
			Models:           defaultModels,
			ModelFile:        defaultModelFile,
			DownloadCommand:  []string{"python", defaultModelDownloadScript},
			DownloadWorkDir:  defaultAnimatorWorkDir,
			PingURL:          defaultPingURL,
			PingTimeout:      defaultPingTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			ClipReady:      true,
			DeadLetter:     true,
			SyncErrors:     true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
