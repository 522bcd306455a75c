package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coachkit/coachd/internal/config"
	"github.com/coachkit/coachd/internal/log"
	"github.com/coachkit/coachd/internal/retrieve"
)

// Searcher defines the retrieval operation the search endpoint needs.
// *retrieve.Retriever is the production implementation.
type Searcher interface {
	Retrieve(ctx context.Context, query string, opts ...retrieve.Option) ([]retrieve.Match, error)
}

// SearchHandler handles the vector search endpoint.
type SearchHandler struct {
	searcher Searcher
	logger   log.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(searcher Searcher, logger log.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, logger: logger}
}

// RegisterRoutes registers search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.search)
}

// SearchRequest is the request body for a vector search.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
	Exact bool   `json:"exact"`
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	Lesson     LessonResponse `json:"lesson"`
	Distance   float64        `json:"distance"`
	Similarity float64        `json:"similarity"`
}

// search embeds the query and returns the nearest lessons, closest first.
// Anonymous callers may search; they see public and ownerless lessons only
// through the grounding filter applied at generation time, not here.
func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid search", "query is required")
		return
	}
	if req.TopK < 0 || req.TopK > config.MaxTopK {
		writeError(w, http.StatusBadRequest, "invalid search", "top_k out of range")
		return
	}

	opts := make([]retrieve.Option, 0, 2)
	if req.TopK > 0 {
		opts = append(opts, retrieve.WithTopK(req.TopK))
	}
	if req.Exact {
		opts = append(opts, retrieve.WithExact())
	}

	matches, err := h.searcher.Retrieve(r.Context(), req.Query, opts...)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	results := make([]SearchResult, 0, len(matches))
	for i := range matches {
		results = append(results, SearchResult{
			Lesson:     lessonResponse(&matches[i].Lesson),
			Distance:   matches[i].Distance,
			Similarity: matches[i].Similarity,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
	})
}
