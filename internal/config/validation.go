package config

import (
	"fmt"
	"strings"
)

// knownEmbedDimensions maps Cohere embedding models to their output dimensions.
// The embeddings table is declared vector(384); a model that emits a different
// dimension fails hard at insert time, so mismatches are rejected up front.
var knownEmbedDimensions = map[string]int{
	"embed-multilingual-light-v3.0": 384,
	"embed-english-light-v3.0":      384,
	"embed-multilingual-v3.0":       1024,
	"embed-english-v3.0":            1024,
}

// validSSLModes are the sslmode values accepted by libpq/pgx.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks configuration needed by every command (retrieval + storage).
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.CohereModel) == "" {
		return fmt.Errorf("%w: cohere_model must not be empty", ErrInvalidEmbedModel)
	}

	if c.EmbedDimension <= 0 || c.EmbedDimension > 4096 {
		return fmt.Errorf("%w: embed_dimension must be in (0, 4096], got %d", ErrInvalidDimension, c.EmbedDimension)
	}

	// Known models must agree with the configured dimension; unknown models
	// are allowed and checked at runtime against the provider response.
	if dim, ok := knownEmbedDimensions[c.CohereModel]; ok && dim != c.EmbedDimension {
		return fmt.Errorf("%w: model %q outputs %d dimensions, embed_dimension is %d",
			ErrInvalidDimension, c.CohereModel, dim, c.EmbedDimension)
	}

	if c.TopK < 1 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: top_k must be in [1, %d], got %d", ErrInvalidTopK, MaxTopK, c.TopK)
	}

	switch c.SearchMode {
	case SearchModeApproximate, SearchModeExact:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidSearchMode, c.SearchMode, SearchModeApproximate, SearchModeExact)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be in [0, 2], got %g", ErrInvalidTemperature, c.Temperature)
	}

	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("%w: top_p must be in (0, 1], got %g", ErrInvalidTopP, c.TopP)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 32768 {
		return fmt.Errorf("%w: max_tokens must be in [1, 32768], got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	return c.validatePostgres()
}

// ValidateServe checks additional configuration required by the HTTP server.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("%w: set COACHD_JWT_SECRET", ErrMissingJWTSecret)
	}
	if len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("%w: must be at least %d bytes, got %d",
			ErrInvalidJWTSecret, MinJWTSecretLength, len(c.JWTSecret))
	}

	return nil
}

// RequireProviderKeys checks that external provider credentials are present.
// Separated from Validate so read-only commands against a local store (e.g.
// migrations) do not demand API keys.
func (c *Config) RequireProviderKeys() error {
	if c.CohereAPIKey == "" {
		return fmt.Errorf("%w: COACHD_COHERE_API_KEY not set", ErrMissingAPIKey)
	}
	if c.MistralAPIKey == "" {
		return fmt.Errorf("%w: COACHD_MISTRAL_API_KEY not set", ErrMissingAPIKey)
	}
	return nil
}

func (c *Config) validatePostgres() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be in [1, 65535], got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: dbname must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}
