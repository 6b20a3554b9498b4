package config

const (
	defaultSandboxDir     = "~/.local/share/kiln/sandboxes"
	defaultCacheDir       = "~/.cache/kiln/library"
	defaultArtifactDir    = "~/.local/share/kiln/artifacts"
	defaultTemplateDir    = "~/.local/share/kiln/templates"
	defaultLogDir         = "~/.local/share/kiln/logs"
	defaultAPIBind        = "127.0.0.1:7583"
	defaultBuildTimeout   = 1200
	defaultCaptureTimeout = 600
	defaultRuntimeVersion = "1.4.2"
	defaultEncoderBinary  = "ffmpeg"
	defaultEncoderCodec   = "libx264"
	defaultEncoderPreset  = "veryfast"
	defaultEncoderCRF     = 23
	defaultFramerate      = 30
	defaultScreenshots    = 3
	defaultFrameCount     = 300
	defaultFrameWidth     = 1280
	defaultFrameHeight    = 720
	defaultDraftBaseURL   = "https://openrouter.ai/api/v1/chat/completions"
	defaultDraftModel     = "google/gemini-3-flash-preview"
	defaultDraftTimeout   = 60
	defaultMaxConcurrent  = 2
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SandboxDir:  defaultSandboxDir,
			CacheDir:    defaultCacheDir,
			ArtifactDir: defaultArtifactDir,
			TemplateDir: defaultTemplateDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Engine: Engine{
			BuildTimeout:   defaultBuildTimeout,
			CaptureTimeout: defaultCaptureTimeout,
			RuntimeVersion: defaultRuntimeVersion,
		},
		Encoder: Encoder{
			Binary:    defaultEncoderBinary,
			Codec:     defaultEncoderCodec,
			Preset:    defaultEncoderPreset,
			Quality:   defaultEncoderCRF,
			Framerate: defaultFramerate,
		},
		Media: Media{
			Enabled:     true,
			Screenshots: defaultScreenshots,
			FrameCount:  defaultFrameCount,
			FrameWidth:  defaultFrameWidth,
			FrameHeight: defaultFrameHeight,
		},
		Draft: Draft{
			BaseURL:        defaultDraftBaseURL,
			Model:          defaultDraftModel,
			TimeoutSeconds: defaultDraftTimeout,
		},
		Workflow: Workflow{
			MaxConcurrentBuilds: defaultMaxConcurrent,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
