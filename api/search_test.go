package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachkit/coachd/internal/embed"
	"github.com/coachkit/coachd/internal/knowledge"
	"github.com/coachkit/coachd/internal/log"
	"github.com/coachkit/coachd/internal/retrieve"
)

func searchMux(searcher *mockSearcher) *http.ServeMux {
	mux := http.NewServeMux()
	NewSearchHandler(searcher, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestSearchHandler_RankedResults(t *testing.T) {
	searcher := &mockSearcher{matches: []retrieve.Match{
		{
			Lesson:     knowledge.Lesson{ID: uuid.New(), Topic: "inertia"},
			Distance:   0.1,
			Similarity: 1.0 / 1.1,
		},
		{
			Lesson:     knowledge.Lesson{ID: uuid.New(), Topic: "momentum"},
			Distance:   0.4,
			Similarity: 1.0 / 1.4,
		},
	}}
	mux := searchMux(searcher)

	body := `{"query": "what keeps the ball rolling?", "top_k": 2}`
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body))
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "what keeps the ball rolling?", searcher.lastQuery)

	var resp struct {
		Results []SearchResult `json:"results"`
		Total   int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "inertia", resp.Results[0].Lesson.Topic)
	assert.InDelta(t, 0.1, resp.Results[0].Distance, 1e-9)
	assert.Less(t, resp.Results[0].Distance, resp.Results[1].Distance)
}

func TestSearchHandler_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{oops`},
		{"missing query", `{"top_k": 3}`},
		{"top_k too large", `{"query": "q", "top_k": 999}`},
		{"negative top_k", `{"query": "q", "top_k": -1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := searchMux(&mockSearcher{})
			req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSearchHandler_EmbedderDown(t *testing.T) {
	mux := searchMux(&mockSearcher{err: embed.ErrUnavailable})

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query": "q"}`))
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSearchHandler_PassesOptions(t *testing.T) {
	searcher := &mockSearcher{}
	mux := searchMux(searcher)

	req := httptest.NewRequest(http.MethodPost, "/api/search",
		strings.NewReader(`{"query": "q", "top_k": 5, "exact": true}`))
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, searcher.lastOpts, 2)
}
