package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"stepweave/internal/config"
	"stepweave/internal/deps"
	"stepweave/internal/manifest"
	"stepweave/internal/services/embedding"
	"stepweave/internal/services/llm"
)

const (
	llmTimeout       = 30 * time.Second
	embeddingTimeout = 10 * time.Second
)

// CheckLLM sends one health completion with retries disabled.
func CheckLLM(ctx context.Context, cfg *config.Config) Result {
	const name = "Generation LLM"
	if err := cfg.RequireLLM(); err != nil {
		return Result{Name: name, Detail: "API key missing"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	settings := cfg.GetLLM()
	client := llm.NewClient(llm.Config{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
		Referer: settings.Referer,
		Title:   settings.Title,
	}, llm.WithRetryMaxAttempts(1))
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: settings.Model + " reachable"}
}

// CheckEmbedding embeds a probe string on the http backend. The offline
// fingerprint backend always passes.
func CheckEmbedding(ctx context.Context, cfg *config.Config) Result {
	const name = "Embedding"
	if cfg.Embedding.Backend == config.EmbeddingFingerprint {
		return Result{Name: name, Passed: true, Detail: "offline fingerprint backend"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, embeddingTimeout)
	defer cancel()

	client := embedding.NewClient(embedding.Config{
		BaseURL:        cfg.Embedding.BaseURL,
		Model:          cfg.Embedding.Model,
		TimeoutSeconds: cfg.Embedding.TimeoutSeconds,
	})
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Embedding.Model + " reachable"}
}

// CheckManifest parses the task manifest.
func CheckManifest(path string) Result {
	const name = "Task manifest"
	m, err := manifest.Load(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d tasks)", path, len(m.Tasks))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable and
// writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckOptionalDirectory is CheckDirectoryAccess for a directory created on
// first use.
func CheckOptionalDirectory(name, path string) Result {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first run)", path)}
	}
	return CheckDirectoryAccess(name, path)
}

func binaryResult(status deps.Status) Result {
	switch {
	case status.Available:
		return Result{Name: status.Name, Passed: true, Detail: status.Command}
	case status.Optional:
		return Result{Name: status.Name, Skipped: true, Detail: status.Detail + " (transcription disabled)"}
	default:
		return Result{Name: status.Name, Detail: status.Detail}
	}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (service unreachable)"
	}
	return err.Error()
}
