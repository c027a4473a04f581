package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stepweave/internal/services"
)

const (
	jsonObjectType          = "json_object"
	jsonSchemaType          = "json_schema"
	defaultBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout      = 120 * time.Second
	defaultRetryMaxDelay    = 10 * time.Second
	defaultRetryBaseDelay   = 1 * time.Second
	defaultRetryAttempts    = 5
	defaultMalformedRetries = 2
)

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey           string
	BaseURL          string
	Model            string
	Referer          string
	Title            string
	TimeoutSeconds   int
	MaxAttempts      int
	MalformedRetries int
}

// Client wraps an OpenAI-compatible chat completion API.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	malformedRetries int
	sleeper          func(time.Duration)
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

// WithRetryMaxAttempts overrides the transport retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithMalformedRetries overrides how many extra completions are requested
// when the output does not decode into the target type.
func WithMalformedRetries(retries int) Option {
	return func(c *Client) {
		c.malformedRetries = retries
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := defaultRetryAttempts
	if cfg.MaxAttempts > 0 {
		attempts = cfg.MaxAttempts
	}
	malformed := defaultMalformedRetries
	if cfg.MalformedRetries > 0 {
		malformed = cfg.MalformedRetries
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: attempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		malformedRetries: malformed,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// Model reports the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Request is one structured generation call.
type Request struct {
	System string
	Parts  []Part
	// SchemaName labels the output contract; Schema is a JSON Schema document.
	// A nil Schema falls back to plain JSON-object mode.
	SchemaName string
	Schema     any
}

// RefusalError reports that the model declined to answer.
type RefusalError struct {
	Op      string
	Refusal string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("%s: model refused: %s", e.Op, e.Refusal)
}

func (e *RefusalError) Unwrap() error { return services.ErrRefusal }

// MalformedOutputError reports output that never decoded into the target
// type. Partial holds the last raw completion.
type MalformedOutputError struct {
	Op       string
	Attempts int
	Partial  string
	Err      error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: output did not decode after %d attempts: %v (partial: %s)",
		e.Op, e.Attempts, e.Err, summarizePayloadSnippet(e.Partial))
}

func (e *MalformedOutputError) Unwrap() []error { return []error{services.ErrMalformed, e.Err} }

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type emptyContentError struct {
	Op           string
	FinishReason string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, response_snippet=%s)", e.Op, e.FinishReason, e.Snippet)
}

// CompleteStructured sends the request and decodes the model output into
// target. Transport failures are retried with backoff; output that fails to
// decode is re-requested up to the malformed retry budget. It returns the raw
// content that decoded.
func (c *Client) CompleteStructured(ctx context.Context, req Request, target any) (string, error) {
	op := "llm complete"
	if name := strings.TrimSpace(req.SchemaName); name != "" {
		op = "llm " + name
	}
	system := strings.TrimSpace(req.System)
	if system == "" {
		return "", fmt.Errorf("%s: system prompt required", op)
	}
	if len(req.Parts) == 0 {
		return "", fmt.Errorf("%s: content required", op)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "", op, "api key required", nil)
	}

	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Parts},
		},
		Temperature:    0,
		ResponseFormat: responseFormatFor(req),
	}

	attempts := c.malformedRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	var (
		content   string
		decodeErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		var err error
		content, err = c.completionContentWithRetry(ctx, payload, op)
		if err != nil {
			return "", err
		}
		if decodeErr = DecodeLLMJSON(content, target); decodeErr == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", &MalformedOutputError{Op: op, Attempts: attempts, Partial: content, Err: decodeErr}
}

// HealthCheck issues a fast ping to verify the API key and model are usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return errors.New("llm health: api key required")
	}
	payload := chatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You must respond with JSON only."},
			{Role: "user", Content: "Respond with {\"ok\":true}"},
		},
		Temperature:    0,
		ResponseFormat: responseFormat{Type: jsonObjectType},
	}
	content, err := c.completionContentWithRetry(ctx, payload, "llm health")
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

// chatMessage content is either a string or a list of Parts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string `json:"name"`
	Strict bool   `json:"strict"`
	Schema any    `json:"schema"`
}

func responseFormatFor(req Request) responseFormat {
	if req.Schema == nil {
		return responseFormat{Type: jsonObjectType}
	}
	name := strings.TrimSpace(req.SchemaName)
	if name == "" {
		name = "response"
	}
	return responseFormat{
		Type:       jsonSchemaType,
		JSONSchema: &jsonSchema{Name: name, Strict: true, Schema: req.Schema},
	}
}

func (c *Client) completionContentWithRetry(ctx context.Context, payload chatCompletionRequest, op string) (string, error) {
	attempts := c.retryAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		completion, body, err := c.sendChatRequestOnce(ctx, payload)
		if err == nil {
			content, finishReason := extractCompletionPayload(completion)
			switch {
			case content != "":
				return content, nil
			case len(completion.Choices) == 0:
				err = fmt.Errorf("%s: empty choices", op)
			default:
				if refusal := extractCompletionRefusal(completion); refusal != "" {
					return "", &RefusalError{Op: op, Refusal: refusal}
				}
				if finishReason == "content_filter" {
					return "", &RefusalError{Op: op, Refusal: "content filtered"}
				}
				err = &emptyContentError{
					Op:           op,
					FinishReason: finishReason,
					Snippet:      summarizePayloadSnippet(string(body)),
				}
			}
		}

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (c *Client) sendChatRequestOnce(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, []byte, error) {
	var completion chatCompletionResponse
	endpoint, err := url.JoinPath(c.cfg.BaseURL, "")
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: build url: %w", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: http error (timeout=%s): %w", c.timeoutDuration(), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, nil, fmt.Errorf("llm request: read body (timeout=%s): %w", c.timeoutDuration(), err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return completion, body, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, body, fmt.Errorf("llm request: decode response: %w", err)
	}
	if completion.Error != nil {
		return completion, body, fmt.Errorf("llm request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	return completion, body, nil
}
