package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/coachkit/coachd/internal/log"
)

const (
	// DefaultCohereBaseURL is the production Cohere API endpoint.
	DefaultCohereBaseURL = "https://api.cohere.com"

	// defaultTimeout bounds a single embed call.
	defaultTimeout = 30 * time.Second

	// Client-side rate limit. Cohere's production tier allows far more; this
	// is a conservative floor so a hot retrieval loop cannot exhaust the quota.
	requestsPerSecond = 10
	requestBurst      = 20
)

// Cohere is an Embedder backed by the Cohere /v1/embed endpoint.
//
// Cohere is safe for concurrent use. It performs no retries: a failed call
// surfaces as ErrUnavailable and the caller decides what to do.
type Cohere struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
	limiter   *rate.Limiter
	logger    log.Logger
}

// CohereConfig configures the Cohere embedder.
type CohereConfig struct {
	BaseURL   string // empty = DefaultCohereBaseURL
	APIKey    string
	Model     string        // e.g. "embed-multilingual-light-v3.0"
	Dimension int           // expected vector length, e.g. 384
	Timeout   time.Duration // zero = defaultTimeout
}

// NewCohere creates a Cohere embedder.
func NewCohere(cfg CohereConfig, logger log.Logger) *Cohere {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCohereBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Cohere{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		logger:    logger,
	}
}

// Dimension returns the configured vector length.
func (c *Cohere) Dimension() int {
	return c.dimension
}

// embedRequest is the /v1/embed request body.
type embedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

// embedResponse is the subset of the /v1/embed response body we consume.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Message    string      `json:"message"`
}

// Embed calls the Cohere embed endpoint and validates vector dimensions.
func (c *Cohere) Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
	}

	body, err := json.Marshal(embedRequest{
		Texts:     texts,
		Model:     c.model,
		InputType: string(inputType),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr embedResponse
		_ = json.Unmarshal(respBody, &apiErr)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, apiErr.Message)
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrUnavailable, err)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrUnavailable, len(parsed.Embeddings), len(texts))
	}

	for i, vec := range parsed.Embeddings {
		if len(vec) != c.dimension {
			return nil, fmt.Errorf("%w: model %q returned %d dimensions for text %d, expected %d",
				ErrDimensionMismatch, c.model, len(vec), i, c.dimension)
		}
	}

	c.logger.Debug("embedded texts",
		"count", len(texts),
		"input_type", inputType,
		"duration", time.Since(start))

	return parsed.Embeddings, nil
}
