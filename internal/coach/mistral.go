package coach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/coachkit/coachd/internal/log"
)

var (
	// ErrUnavailable indicates the generation backend could not be reached or
	// returned a non-success status.
	ErrUnavailable = errors.New("generation backend unavailable")

	// ErrEmptyResponse indicates the model returned no usable text.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrInsufficientMaterial indicates the retrieved documents did not contain
	// enough material for a grounded generation.
	ErrInsufficientMaterial = errors.New("insufficient material in retrieved documents")
)

const (
	// DefaultMistralBaseURL is the production Mistral API endpoint.
	DefaultMistralBaseURL = "https://api.mistral.ai"

	// defaultTimeout bounds a single generation call.
	defaultTimeout = 60 * time.Second

	// Client-side rate limit, a conservative floor below the API quota.
	requestsPerSecond = 5
	requestBurst      = 10
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenOption overrides a sampling parameter for a single call.
type GenOption func(*genConfig)

type genConfig struct {
	maxTokens   int
	temperature float32
}

// WithMaxTokens caps the completion length for this call.
func WithMaxTokens(n int) GenOption {
	return func(c *genConfig) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature for this call.
func WithTemperature(t float32) GenOption {
	return func(c *genConfig) {
		if t >= 0 && t <= 2 {
			c.temperature = t
		}
	}
}

// Mistral is an HTTP client for the Mistral chat completion and OCR endpoints.
//
// Mistral is safe for concurrent use. It performs no retries: a failed call
// surfaces as ErrUnavailable and the caller decides what to do.
type Mistral struct {
	baseURL     string
	apiKey      string
	model       string
	ocrModel    string
	temperature float32
	topP        float32
	maxTokens   int
	client      *http.Client
	limiter     *rate.Limiter
	logger      log.Logger
}

// MistralConfig configures the Mistral client.
type MistralConfig struct {
	BaseURL     string // empty = DefaultMistralBaseURL
	APIKey      string
	Model       string // e.g. "mistral-medium-2508"
	OCRModel    string // e.g. "mistral-ocr-latest"
	Temperature float32
	TopP        float32
	MaxTokens   int
	Timeout     time.Duration // zero = defaultTimeout
}

// NewMistral creates a Mistral client.
func NewMistral(cfg MistralConfig, logger log.Logger) *Mistral {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMistralBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Mistral{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		ocrModel:    cfg.OCRModel,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		logger:      logger,
	}
}

// Model returns the configured chat model name.
func (m *Mistral) Model() string {
	return m.model
}

// chatRequest is the /v1/chat/completions request body.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	TopP        float32   `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
}

// chatResponse is the subset of the chat completion response we consume.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Message string `json:"message"`
}

// ChatComplete sends a chat completion request and returns the first choice's
// text. Sampling parameters come from the client configuration unless
// overridden per call.
func (m *Mistral) ChatComplete(ctx context.Context, messages []Message, opts ...GenOption) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("chat completion requires at least one message")
	}

	cfg := &genConfig{maxTokens: m.maxTokens, temperature: m.temperature}
	for _, opt := range opts {
		opt(cfg)
	}

	var parsed chatResponse
	err := m.post(ctx, "/v1/chat/completions", chatRequest{
		Model:       m.model,
		Messages:    messages,
		Temperature: cfg.temperature,
		TopP:        m.topP,
		MaxTokens:   cfg.maxTokens,
	}, &parsed)
	if err != nil {
		return "", err
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}

// ocrRequest is the /v1/ocr request body. The document is passed as a URL,
// which may be a base64 data URL for inline images.
type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrDocument struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

// ocrResponse is the subset of the OCR response we consume.
type ocrResponse struct {
	Pages []struct {
		Markdown string `json:"markdown"`
	} `json:"pages"`
	Message string `json:"message"`
}

// ExtractText runs OCR over an image given as a URL or base64 data URL and
// returns the recognized text, pages joined by blank lines.
func (m *Mistral) ExtractText(ctx context.Context, imageURL string) (string, error) {
	if imageURL == "" {
		return "", fmt.Errorf("image URL is empty")
	}

	var parsed ocrResponse
	err := m.post(ctx, "/v1/ocr", ocrRequest{
		Model:    m.ocrModel,
		Document: ocrDocument{Type: "image_url", ImageURL: imageURL},
	}, &parsed)
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, len(parsed.Pages))
	for _, p := range parsed.Pages {
		if p.Markdown != "" {
			pages = append(pages, p.Markdown)
		}
	}
	if len(pages) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.Join(pages, "\n\n"), nil
}

// modelsResponse is the subset of the /v1/models response we consume.
type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Ping verifies the API key by listing available models.
func (m *Mistral) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("building models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("%w: decoding models response: %w", ErrUnavailable, err)
	}
	m.logger.Debug("generation backend reachable", "models", len(parsed.Data))
	return nil
}

// post sends a JSON request and decodes the JSON response into out.
func (m *Mistral) post(ctx context.Context, path string, payload, out any) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		return fmt.Errorf("%w: %s status %d: %s", ErrUnavailable, path, resp.StatusCode, apiErr.Message)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrUnavailable, err)
	}

	m.logger.Debug("generation call completed", "path", path, "duration", time.Since(start))
	return nil
}
