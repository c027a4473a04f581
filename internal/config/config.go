package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and manifest locations.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	MediaDir string `toml:"media_dir"`
	Manifest string `toml:"manifest"`
}

// LLM contains structured generation connection settings.
type LLM struct {
	APIKey           string `toml:"api_key"`
	BaseURL          string `toml:"base_url"`
	Model            string `toml:"model"`
	Referer          string `toml:"referer"`
	Title            string `toml:"title"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	MaxAttempts      int    `toml:"max_attempts"`
	MalformedRetries int    `toml:"malformed_retries"`
	SendImages       bool   `toml:"send_images"`
}

// Embedding selects and configures the text and image embedding backend.
type Embedding struct {
	// Backend is "http" (Ollama-style service) or "fingerprint" (offline hashing).
	Backend        string `toml:"backend"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	ImageBaseURL   string `toml:"image_base_url"`
	ImageModel     string `toml:"image_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	// Dimensions sizes fingerprint vectors; ignored by the http backend.
	Dimensions int `toml:"dimensions"`
}

// Pipeline contains reconciliation thresholds and concurrency.
type Pipeline struct {
	NotableThreshold   float64 `toml:"notable_threshold"`
	HookThreshold      float64 `toml:"hook_threshold"`
	LowConfidenceFloor float64 `toml:"low_confidence_floor"`
	// HookStrategy is "cluster" or "llm".
	HookStrategy string `toml:"hook_strategy"`
	Concurrency  int    `toml:"concurrency"`
	FrameTopK    int    `toml:"frame_top_k"`
}

// Transcription configures WhisperX for sources materialised without a
// transcript.
type Transcription struct {
	Enabled      bool   `toml:"enabled"`
	Model        string `toml:"model"`
	CUDAEnabled  bool   `toml:"cuda_enabled"`
	VADMethod    string `toml:"vad_method"`
	HFToken      string `toml:"hf_token"`
	FFmpegBinary string `toml:"ffmpeg_binary"`
}

// Notifications configures ntfy alerts for finished runs.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for stepweave.
//
// Configuration sections by subsystem:
//   - Paths: data, log and media directories plus the task manifest
//   - LLM: structured generation endpoint and retry budget
//   - Embedding: text/image embedding backend
//   - Pipeline: clustering thresholds, hook strategy, concurrency
//   - Transcription: optional WhisperX fallback during acquisition
//   - Notifications: optional ntfy topic for run outcomes
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	Embedding     Embedding     `toml:"embedding"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Transcription Transcription `toml:"transcription"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
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
		decoder.DisallowUnknownFields()
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stepweave.toml")
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

// EnsureDirectories creates the data and log directories. The media
// directory is only read, so a missing one is left for acquisition to report.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the artifact store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "stepweave.db")
}

// ExportDir returns the directory holding exported bundles for a task.
func (c *Config) ExportDir(taskID string) string {
	return filepath.Join(c.Paths.DataDir, "exports", taskID)
}

// LockPath returns the run lock file for a task.
func (c *Config) LockPath(taskID string) string {
	return filepath.Join(c.Paths.DataDir, "locks", taskID+".lock")
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

// LLMConfig contains the settings the generation client needs.
type LLMConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	Referer          string
	Title            string
	TimeoutSeconds   int
	MaxAttempts      int
	MalformedRetries int
	SendImages       bool
}

// GetLLM returns the generation connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:           strings.TrimSpace(c.LLM.APIKey),
		BaseURL:          strings.TrimSpace(c.LLM.BaseURL),
		Model:            strings.TrimSpace(c.LLM.Model),
		Referer:          strings.TrimSpace(c.LLM.Referer),
		Title:            strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds:   c.LLM.TimeoutSeconds,
		MaxAttempts:      c.LLM.MaxAttempts,
		MalformedRetries: c.LLM.MalformedRetries,
		SendImages:       c.LLM.SendImages,
	}
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	redacted := *c
	if redacted.LLM.APIKey != "" {
		redacted.LLM.APIKey = "********"
	}
	if redacted.Transcription.HFToken != "" {
		redacted.Transcription.HFToken = "********"
	}
	data, err := toml.Marshal(redacted)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
