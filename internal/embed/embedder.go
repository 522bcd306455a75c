// Package embed provides text embedding for the retrieval path.
//
// The Embedder interface is defined here, by the consumer side of the
// provider boundary; the production implementation is the Cohere HTTP client
// in cohere.go. Queries and documents use different input types so the
// provider can optimize the vector for its role.
package embed

import (
	"context"
	"errors"
)

// InputType tells the embedding provider how the text will be used.
type InputType string

const (
	// InputSearchQuery marks text that will be used to search.
	InputSearchQuery InputType = "search_query"

	// InputSearchDocument marks text that will be stored and searched against.
	InputSearchDocument InputType = "search_document"
)

// Sentinel errors for embedding operations, checked with errors.Is().
var (
	// ErrUnavailable indicates the provider could not be reached or refused
	// the request (network failure, bad credentials, rate limit). Calls are
	// not retried internally; retry policy belongs to the caller.
	ErrUnavailable = errors.New("embedding provider unavailable")

	// ErrDimensionMismatch indicates the provider returned vectors whose
	// length differs from the configured dimension. The vector store would
	// reject such vectors outright, so they are stopped here.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyInput indicates no texts were supplied.
	ErrEmptyInput = errors.New("no texts to embed")
)

// Embedder maps texts to fixed-dimension vectors.
//
// Implementations must be safe for concurrent use and must return one vector
// per input text, in order.
type Embedder interface {
	// Embed returns one vector per text. The returned vectors all have
	// Dimension() elements.
	Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error)

	// Dimension returns the vector length this embedder is configured for.
	Dimension() int
}
