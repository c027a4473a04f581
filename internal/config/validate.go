package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. A missing LLM key is not an
// error here: read-only commands work without one, and the run command
// checks it through RequireLLM.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireLLM reports an error when no generation key is configured.
func (c *Config) RequireLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("llm.api_key is required. Set OPENROUTER_API_KEY env var or edit %s (create with 'stepweave config init')", defaultPath)
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.MediaDir) == "" {
		return errors.New("paths.media_dir must be set")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if err := ensurePositiveMap(map[string]int{
		"llm.timeout_seconds": c.LLM.TimeoutSeconds,
		"llm.max_attempts":    c.LLM.MaxAttempts,
	}); err != nil {
		return err
	}
	if c.LLM.MalformedRetries < 0 {
		return errors.New("llm.malformed_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	switch c.Embedding.Backend {
	case EmbeddingHTTP:
		if strings.TrimSpace(c.Embedding.BaseURL) == "" {
			return errors.New("embedding.base_url must be set when embedding.backend is http")
		}
	case EmbeddingFingerprint:
		if c.Embedding.Dimensions <= 0 {
			return errors.New("embedding.dimensions must be positive when embedding.backend is fingerprint")
		}
	default:
		return fmt.Errorf("embedding.backend must be %q or %q, got %q", EmbeddingHTTP, EmbeddingFingerprint, c.Embedding.Backend)
	}
	if c.Embedding.TimeoutSeconds <= 0 {
		return errors.New("embedding.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	for key, value := range map[string]float64{
		"pipeline.notable_threshold":    c.Pipeline.NotableThreshold,
		"pipeline.hook_threshold":       c.Pipeline.HookThreshold,
		"pipeline.low_confidence_floor": c.Pipeline.LowConfidenceFloor,
	} {
		if value < -1 || value > 1 {
			return fmt.Errorf("%s must be between -1 and 1", key)
		}
	}
	switch c.Pipeline.HookStrategy {
	case HookStrategyCluster, HookStrategyLLM:
	default:
		return fmt.Errorf("pipeline.hook_strategy must be %q or %q, got %q", HookStrategyCluster, HookStrategyLLM, c.Pipeline.HookStrategy)
	}
	return ensurePositiveMap(map[string]int{
		"pipeline.concurrency": c.Pipeline.Concurrency,
		"pipeline.frame_top_k": c.Pipeline.FrameTopK,
	})
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.VADMethod {
	case "silero", "pyannote":
	default:
		return fmt.Errorf("transcription.vad_method must be \"silero\" or \"pyannote\", got %q", c.Transcription.VADMethod)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	for stage, level := range c.Logging.StageOverrides {
		switch level {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("logging.stage_overrides.%s: unknown level %q", stage, level)
		}
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
