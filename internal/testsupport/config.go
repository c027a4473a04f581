package testsupport

import (
	"path/filepath"
	"testing"

	"stepweave/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It selects the offline fingerprint embedder and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.LLM.APIKey = "test"
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.MediaDir = filepath.Join(base, "media")
	cfgVal.Paths.Manifest = filepath.Join(base, "tasks.yaml")
	cfgVal.Embedding.Backend = config.EmbeddingFingerprint
	cfgVal.Embedding.Dimensions = 256

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIKey sets the LLM API key on the test config.
func WithAPIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = key
	}
}

// WithLLMEndpoint points the LLM client at a test server.
func WithLLMEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
	}
}

// WithHookStrategy selects the hook synthesis strategy.
func WithHookStrategy(strategy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.HookStrategy = strategy
	}
}

// WithConcurrency overrides the worker limit.
func WithConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Concurrency = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WithEmbeddingEndpoint selects the HTTP embedding backend served at url.
func WithEmbeddingEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Embedding.Backend = config.EmbeddingHTTP
		b.cfg.Embedding.BaseURL = url
	}
}

// WithNtfyTopic sends run notifications to url.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
	}
}
