package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"stepweave/internal/vecmath"
)

const (
	defaultBaseURL     = "http://localhost:11434"
	defaultModel       = "nomic-embed-text"
	defaultHTTPTimeout = 60 * time.Second
	embedPath          = "/api/embed"
)

// Config captures the embedding server settings.
type Config struct {
	BaseURL        string
	Model          string
	ImageBaseURL   string
	ImageModel     string
	TimeoutSeconds int
}

// Client talks to an Ollama-compatible /api/embed endpoint. Image embedding
// uses ImageBaseURL, which must serve the same route for a model that maps
// text and base64 images into one space.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an embedding client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:        strings.TrimSpace(cfg.Model),
			ImageBaseURL: strings.TrimRight(strings.TrimSpace(cfg.ImageBaseURL), "/"),
			ImageModel:   strings.TrimSpace(cfg.ImageModel),
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	return client
}

type embedRequest struct {
	Model  string   `json:"model"`
	Input  []string `json:"input,omitempty"`
	Images []string `json:"images,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Error      string      `json:"error"`
}

// EmbedTexts returns one unit-length vector per text.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	return c.embed(ctx, c.cfg.BaseURL, c.cfg.Model, embedRequest{Input: fillBlank(texts)}, len(texts))
}

// EmbedImages returns one unit-length vector per image path.
func (c *Client) EmbedImages(ctx context.Context, paths []string) ([][]float64, error) {
	if len(paths) == 0 {
		return [][]float64{}, nil
	}
	if c.cfg.ImageBaseURL == "" {
		return nil, errors.New("embed images: image endpoint not configured")
	}
	images := make([]string, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("embed images: read %s: %w", path, err)
		}
		images[i] = base64.StdEncoding.EncodeToString(data)
	}
	return c.embed(ctx, c.cfg.ImageBaseURL, c.imageModel(), embedRequest{Images: images}, len(paths))
}

// ImageSpaceTexts embeds texts with the image model so they can be ranked
// against EmbedImages output.
func (c *Client) ImageSpaceTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	if c.cfg.ImageBaseURL == "" {
		return nil, errors.New("embed texts: image endpoint not configured")
	}
	return c.embed(ctx, c.cfg.ImageBaseURL, c.imageModel(), embedRequest{Input: fillBlank(texts)}, len(texts))
}

// HealthCheck embeds a probe string to confirm the server and model respond.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.EmbedTexts(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding health: %w", err)
	}
	return nil
}

func (c *Client) imageModel() string {
	if c.cfg.ImageModel != "" {
		return c.cfg.ImageModel
	}
	return c.cfg.Model
}

func (c *Client) embed(ctx context.Context, baseURL, model string, payload embedRequest, want int) ([][]float64, error) {
	endpoint, err := url.JoinPath(baseURL, embedPath)
	if err != nil {
		return nil, fmt.Errorf("embedding request: build url: %w", err)
	}
	payload.Model = model
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("embedding request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("embedding request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding request: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("embedding request: decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("embedding request: api error: %s", parsed.Error)
	}
	if len(parsed.Embeddings) != want {
		return nil, fmt.Errorf("embedding request: got %d vectors for %d inputs", len(parsed.Embeddings), want)
	}
	out := make([][]float64, len(parsed.Embeddings))
	for i, vec := range parsed.Embeddings {
		if len(vec) == 0 {
			return nil, fmt.Errorf("embedding request: empty vector at %d", i)
		}
		out[i] = vecmath.Normalize(vec)
	}
	return out, nil
}

// CrossModal returns a view of the client whose text embeddings share the
// image model's space.
func (c *Client) CrossModal() CrossModal {
	return imageSpace{client: c}
}

type imageSpace struct {
	client *Client
}

func (s imageSpace) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	return s.client.ImageSpaceTexts(ctx, texts)
}

func (s imageSpace) EmbedImages(ctx context.Context, paths []string) ([][]float64, error) {
	return s.client.EmbedImages(ctx, paths)
}
