// Package retrieve implements the retrieval-augmented-generation query path:
// embed a query, fetch the nearest lesson vectors, and return ranked lessons
// with their cosine distances for prompt grounding.
package retrieve

import (
	"context"
	"fmt"

	"github.com/coachkit/coachd/internal/embed"
	"github.com/coachkit/coachd/internal/knowledge"
	"github.com/coachkit/coachd/internal/log"
)

// Match is one retrieval result. Distance is cosine distance (smaller is more
// similar); Similarity is the 1/(1+distance) convenience score shown to users.
type Match struct {
	Lesson     knowledge.Lesson
	Distance   float64
	Similarity float64
}

// LessonSource is the vector store view the Retriever depends on.
// *knowledge.Store is the production implementation.
type LessonSource interface {
	NearestLessons(ctx context.Context, queryVec []float32, k int32, exact bool) ([]knowledge.LessonHit, error)
}

// Option configures a single retrieval using the functional options pattern.
type Option func(*config)

type config struct {
	topK  int32
	exact bool
}

// WithTopK sets the maximum number of results for this retrieval.
// Values outside [1, 100] fall back to the retriever default.
func WithTopK(k int) Option {
	return func(c *config) {
		if k >= 1 && k <= 100 {
			c.topK = int32(k)
		}
	}
}

// WithExact forces an exact (full scan) nearest-neighbor search, bypassing
// the approximate index. Slower, but the true nearest neighbors are
// guaranteed.
func WithExact() Option {
	return func(c *config) {
		c.exact = true
	}
}

// Retriever orchestrates the retrieval path. It is stateless and safe for
// concurrent use; each call is independent and idempotent.
type Retriever struct {
	embedder embed.Embedder
	source   LessonSource
	fallback *MemoryIndex // optional; nil disables the in-process fallback
	topK     int32
	exact    bool
	logger   log.Logger
}

// New creates a Retriever.
//
// defaultTopK is the result count used when a call does not override it.
// defaultExact selects the search mode (config.SearchModeExact maps to true).
// fallback may be nil; when set, it is consulted after a store failure.
func New(embedder embed.Embedder, source LessonSource, fallback *MemoryIndex, defaultTopK int, defaultExact bool, logger log.Logger) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	if defaultTopK < 1 {
		defaultTopK = 5
	}
	return &Retriever{
		embedder: embedder,
		source:   source,
		fallback: fallback,
		topK:     int32(defaultTopK), // #nosec G115 -- bounded by config validation
		exact:    defaultExact,
		logger:   logger,
	}
}

// Retrieve embeds the query and returns up to K lessons ordered by ascending
// cosine distance.
//
// Provider failures and wrong-dimension embeddings surface as errors wrapping
// embed.ErrUnavailable / embed.ErrDimensionMismatch; nothing is retried here.
// A store failure falls through to the in-process index when one is
// configured.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...Option) ([]Match, error) {
	cfg := &config{topK: r.topK, exact: r.exact}
	for _, opt := range opts {
		opt(cfg)
	}

	vecs, err := r.embedder.Embed(ctx, []string{query}, embed.InputSearchQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	queryVec := vecs[0]
	if len(queryVec) != r.embedder.Dimension() {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, expected %d",
			embed.ErrDimensionMismatch, len(queryVec), r.embedder.Dimension())
	}

	hits, err := r.source.NearestLessons(ctx, queryVec, cfg.topK, cfg.exact)
	if err != nil {
		if r.fallback == nil {
			return nil, fmt.Errorf("nearest-neighbor search: %w", err)
		}
		r.logger.Warn("vector store search failed, using in-process index", "error", err)
		return r.fallback.Search(queryVec, int(cfg.topK)), nil
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		matches = append(matches, Match{
			Lesson:     hit.Lesson,
			Distance:   hit.Distance,
			Similarity: similarity(hit.Distance),
		})
	}
	return matches, nil
}

// similarity converts a cosine distance to the 1/(1+d) score.
func similarity(distance float64) float64 {
	return 1.0 / (1.0 + distance)
}
