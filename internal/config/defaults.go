package config

const (
	defaultConfigPath              = "~/.config/stepweave/config.toml"
	defaultDataDir                 = "~/.local/share/stepweave"
	defaultLogDir                  = "~/.local/share/stepweave/logs"
	defaultMediaDir                = "~/.local/share/stepweave/media"
	defaultManifest                = "~/.config/stepweave/tasks.yaml"
	defaultLogRetentionDays        = 30
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLLMBaseURL              = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                = "openai/gpt-4.1-mini"
	defaultLLMTitle                = "stepweave"
	defaultLLMTimeoutSeconds       = 120
	defaultLLMMaxAttempts          = 5
	defaultLLMMalformedRetries     = 2
	defaultEmbeddingBackend        = EmbeddingHTTP
	defaultEmbeddingBaseURL        = "http://localhost:11434"
	defaultEmbeddingModel          = "nomic-embed-text"
	defaultEmbeddingTimeoutSeconds = 60
	defaultEmbeddingDimensions     = 512
	defaultNotableThreshold        = 0.80
	defaultHookThreshold           = 0.70
	defaultLowConfidenceFloor      = 0.80
	defaultHookStrategy            = HookStrategyCluster
	defaultConcurrency             = 4
	defaultFrameTopK               = 1
	defaultWhisperXModel           = "large-v3"
	defaultVADMethod               = "silero"
	defaultFFmpegBinary            = "ffmpeg"
	defaultNtfyRequestTimeout      = 10
)

// Embedding backends.
const (
	EmbeddingHTTP        = "http"
	EmbeddingFingerprint = "fingerprint"
)

// Hook strategies.
const (
	HookStrategyCluster = "cluster"
	HookStrategyLLM     = "llm"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			MediaDir: defaultMediaDir,
			Manifest: defaultManifest,
		},
		LLM: LLM{
			BaseURL:          defaultLLMBaseURL,
			Model:            defaultLLMModel,
			Title:            defaultLLMTitle,
			TimeoutSeconds:   defaultLLMTimeoutSeconds,
			MaxAttempts:      defaultLLMMaxAttempts,
			MalformedRetries: defaultLLMMalformedRetries,
		},
		Embedding: Embedding{
			Backend:        defaultEmbeddingBackend,
			BaseURL:        defaultEmbeddingBaseURL,
			Model:          defaultEmbeddingModel,
			TimeoutSeconds: defaultEmbeddingTimeoutSeconds,
			Dimensions:     defaultEmbeddingDimensions,
		},
		Pipeline: Pipeline{
			NotableThreshold:   defaultNotableThreshold,
			HookThreshold:      defaultHookThreshold,
			LowConfidenceFloor: defaultLowConfidenceFloor,
			HookStrategy:       defaultHookStrategy,
			Concurrency:        defaultConcurrency,
			FrameTopK:          defaultFrameTopK,
		},
		Transcription: Transcription{
			Model:        defaultWhisperXModel,
			VADMethod:    defaultVADMethod,
			FFmpegBinary: defaultFFmpegBinary,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
