package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/coachkit/coachd/internal/coach"
	"github.com/coachkit/coachd/internal/log"
)

// Coach request validation constants.
const (
	MaxQueryLength  = 10_000
	MaxAnswerLength = 10_000
	// MaxImageURLLength bounds inline base64 data URLs (roughly a 6 MB image).
	MaxImageURLLength = 8 << 20
)

// Coach defines the generation workflows the coach endpoints need.
// *coach.Service is the production implementation.
type Coach interface {
	Explain(ctx context.Context, owner uuid.UUID, query, imageURL string) (string, error)
	PracticeQuestion(ctx context.Context, owner uuid.UUID, topic string) (string, error)
	GradeAnswer(ctx context.Context, owner uuid.UUID, questionID uuid.UUID, question, studentAnswer, reference string) (*coach.Evaluation, error)
}

// CoachHandler handles explanation and practice endpoints.
type CoachHandler struct {
	coach  Coach
	logger log.Logger
}

// NewCoachHandler creates a new coach handler.
func NewCoachHandler(c Coach, logger log.Logger) *CoachHandler {
	return &CoachHandler{coach: c, logger: logger}
}

// RegisterRoutes registers coach routes on the given mux.
func (h *CoachHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ask", h.ask)
	mux.HandleFunc("POST /api/practice/question", h.practiceQuestion)
	mux.HandleFunc("POST /api/practice/grade", h.practiceGrade)
}

// AskRequest is the request body for a grounded explanation.
// ImageURL may be an https URL or a base64 data URL; its text is OCR'd and
// merged into the query.
type AskRequest struct {
	Query    string `json:"query"`
	ImageURL string `json:"image_url"`
}

// ask answers a question grounded on the caller's lessons.
func (h *CoachHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.Query == "" && req.ImageURL == "" {
		writeError(w, http.StatusBadRequest, "invalid request", "query or image_url is required")
		return
	}
	if len(req.Query) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid request", "query too long")
		return
	}
	if len(req.ImageURL) > MaxImageURLLength {
		writeError(w, http.StatusBadRequest, "invalid request", "image too large")
		return
	}

	answer, err := h.coach.Explain(r.Context(), ownerFrom(r), req.Query, req.ImageURL)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// PracticeQuestionRequest is the request body for generating a question.
type PracticeQuestionRequest struct {
	Topic string `json:"topic"`
}

// practiceQuestion generates one practice question grounded on the caller's
// lessons for the given topic.
func (h *CoachHandler) practiceQuestion(w http.ResponseWriter, r *http.Request) {
	var req PracticeQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "invalid request", "topic is required")
		return
	}
	if len(req.Topic) > MaxTopicLength {
		writeError(w, http.StatusBadRequest, "invalid request", "topic too long")
		return
	}

	question, err := h.coach.PracticeQuestion(r.Context(), ownerFrom(r), req.Topic)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"question": question})
}

// PracticeGradeRequest is the request body for grading an answer.
// QuestionID is optional and links the graded answer to a stored question.
type PracticeGradeRequest struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Reference  string `json:"reference"`
}

// GradeResponse is the grading result.
type GradeResponse struct {
	Evaluation string `json:"evaluation"`
	Grade      string `json:"grade,omitempty"`
	Feedback   string `json:"feedback,omitempty"`
}

// practiceGrade evaluates a student answer against the caller's lessons.
func (h *CoachHandler) practiceGrade(w http.ResponseWriter, r *http.Request) {
	var req PracticeGradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.Question == "" || req.Answer == "" {
		writeError(w, http.StatusBadRequest, "invalid request", "question and answer are required")
		return
	}
	if len(req.Question) > MaxQueryLength || len(req.Answer) > MaxAnswerLength {
		writeError(w, http.StatusBadRequest, "invalid request", "question or answer too long")
		return
	}

	questionID := uuid.Nil
	if req.QuestionID != "" {
		id, err := uuid.Parse(req.QuestionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request", "question_id must be a UUID")
			return
		}
		questionID = id
	}

	eval, err := h.coach.GradeAnswer(r.Context(), ownerFrom(r), questionID, req.Question, req.Answer, req.Reference)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, GradeResponse{
		Evaluation: eval.Text,
		Grade:      eval.Grade,
		Feedback:   eval.Feedback,
	})
}
