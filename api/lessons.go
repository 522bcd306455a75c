package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/coachkit/coachd/internal/knowledge"
	"github.com/coachkit/coachd/internal/log"
)

// Lesson validation constants.
const (
	MaxTitleLength   = 200
	MaxTopicLength   = 200
	MaxSubjectLength = 100
	MaxLevelLength   = 100
	MaxContentLength = 100_000
	DefaultListLimit = 100
	MaxListLimit     = 1000
	MaxListOffset    = 100000 // Reasonable upper bound for pagination offset
)

// LessonStore defines the knowledge operations the lesson endpoints need.
// *knowledge.Store is the production implementation.
type LessonStore interface {
	CreateLesson(ctx context.Context, owner uuid.UUID, params knowledge.LessonParams) (*knowledge.Lesson, error)
	GetLesson(ctx context.Context, caller, id uuid.UUID) (*knowledge.Lesson, error)
	ListLessons(ctx context.Context, owner uuid.UUID, limit, offset int32) ([]knowledge.Lesson, error)
	UpdateLesson(ctx context.Context, caller, id uuid.UUID, params knowledge.LessonParams) (*knowledge.Lesson, error)
	DeleteLesson(ctx context.Context, caller, id uuid.UUID) error
	AddAttachment(ctx context.Context, owner uuid.UUID, params knowledge.AttachmentParams) (*knowledge.Attachment, error)
	ListAttachments(ctx context.Context, caller, lessonID uuid.UUID) ([]knowledge.Attachment, error)
}

// LessonHandler handles lesson and attachment endpoints.
type LessonHandler struct {
	store  LessonStore
	logger log.Logger
}

// NewLessonHandler creates a new lesson handler.
func NewLessonHandler(store LessonStore, logger log.Logger) *LessonHandler {
	return &LessonHandler{store: store, logger: logger}
}

// RegisterRoutes registers lesson routes on the given mux.
func (h *LessonHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/lessons", h.create)
	mux.HandleFunc("GET /api/lessons", h.list)
	mux.HandleFunc("GET /api/lessons/{id}", h.get)
	mux.HandleFunc("PUT /api/lessons/{id}", h.update)
	mux.HandleFunc("DELETE /api/lessons/{id}", h.delete)
	mux.HandleFunc("GET /api/lessons/{id}/attachments", h.listAttachments)
	mux.HandleFunc("POST /api/lessons/{id}/attachments", h.addAttachment)
}

// LessonRequest is the request body for creating or updating a lesson.
type LessonRequest struct {
	Title      string `json:"title"`
	Topic      string `json:"topic"`
	Subject    string `json:"subject"`
	Level      string `json:"level"`
	Content    string `json:"content"`
	Visibility string `json:"visibility"`
}

// LessonResponse is the JSON shape of a lesson.
type LessonResponse struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Title      string    `json:"title"`
	Topic      string    `json:"topic"`
	Subject    string    `json:"subject,omitempty"`
	Level      string    `json:"level,omitempty"`
	Content    string    `json:"content"`
	Visibility string    `json:"visibility"`
	CreatedAt  time.Time `json:"created_at"`
}

func lessonResponse(l *knowledge.Lesson) LessonResponse {
	resp := LessonResponse{
		ID:         l.ID.String(),
		Title:      l.Title,
		Topic:      l.Topic,
		Subject:    l.Subject,
		Level:      l.Level,
		Content:    l.Content,
		Visibility: l.Visibility,
		CreatedAt:  l.CreatedAt,
	}
	if l.OwnerID != uuid.Nil {
		resp.OwnerID = l.OwnerID.String()
	}
	return resp
}

// validate checks field lengths and the visibility value.
func (req *LessonRequest) validate() (string, bool) {
	switch {
	case req.Topic == "":
		return "topic is required", false
	case req.Content == "":
		return "content is required", false
	case len(req.Title) > MaxTitleLength:
		return "title too long (max 200 characters)", false
	case len(req.Topic) > MaxTopicLength:
		return "topic too long (max 200 characters)", false
	case len(req.Subject) > MaxSubjectLength:
		return "subject too long (max 100 characters)", false
	case len(req.Level) > MaxLevelLength:
		return "level too long (max 100 characters)", false
	case len(req.Content) > MaxContentLength:
		return "content too long (max 100000 characters)", false
	case req.Visibility != "" && req.Visibility != knowledge.VisibilityPrivate && req.Visibility != knowledge.VisibilityPublic:
		return "visibility must be private or public", false
	}
	return "", true
}

func (req *LessonRequest) params() knowledge.LessonParams {
	return knowledge.LessonParams{
		Title:      req.Title,
		Topic:      req.Topic,
		Subject:    req.Subject,
		Level:      req.Level,
		Content:    req.Content,
		Visibility: req.Visibility,
	}
}

// create inserts a lesson and embeds its content.
func (h *LessonHandler) create(w http.ResponseWriter, r *http.Request) {
	var req LessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if msg, ok := req.validate(); !ok {
		writeError(w, http.StatusBadRequest, "invalid lesson", msg)
		return
	}

	lesson, err := h.store.CreateLesson(r.Context(), ownerFrom(r), req.params())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, lessonResponse(lesson))
}

// list returns the caller's lessons with pagination support.
// Query parameters:
//   - limit: maximum number of lessons to return (default: 100, max: 1000)
//   - offset: number of lessons to skip (default: 0)
func (h *LessonHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded by MaxListLimit and MaxListOffset
	lessons, err := h.store.ListLessons(r.Context(), ownerFrom(r), int32(limit), int32(offset))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	items := make([]LessonResponse, 0, len(lessons))
	for i := range lessons {
		items = append(items, lessonResponse(&lessons[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lessons": items,
		"total":   len(items),
		"limit":   limit,
		"offset":  offset,
	})
}

// get fetches one lesson by ID.
func (h *LessonHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	lesson, err := h.store.GetLesson(r.Context(), ownerFrom(r), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lessonResponse(lesson))
}

// update replaces a lesson's fields and re-embeds its content.
func (h *LessonHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req LessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if msg, ok := req.validate(); !ok {
		writeError(w, http.StatusBadRequest, "invalid lesson", msg)
		return
	}

	lesson, err := h.store.UpdateLesson(r.Context(), ownerFrom(r), id, req.params())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lessonResponse(lesson))
}

// delete removes a lesson and its embedding rows.
func (h *LessonHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteLesson(r.Context(), ownerFrom(r), id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "lesson deleted"})
}

// AttachmentRequest is the request body for linking an uploaded file.
type AttachmentRequest struct {
	Bucket    string            `json:"bucket"`
	Path      string            `json:"path"`
	PublicURL string            `json:"public_url"`
	Metadata  map[string]string `json:"metadata"`
}

// AttachmentResponse is the JSON shape of an attachment.
type AttachmentResponse struct {
	ID        string            `json:"id"`
	Bucket    string            `json:"bucket"`
	Path      string            `json:"path"`
	PublicURL string            `json:"public_url,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	LessonID  string            `json:"lesson_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func attachmentResponse(a *knowledge.Attachment) AttachmentResponse {
	resp := AttachmentResponse{
		ID:        a.ID.String(),
		Bucket:    a.Bucket,
		Path:      a.Path,
		PublicURL: a.PublicURL,
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
	}
	if a.LessonID != uuid.Nil {
		resp.LessonID = a.LessonID.String()
	}
	return resp
}

// addAttachment records an uploaded file's location against a lesson. The file
// itself lives in the storage bucket; this endpoint only links it.
func (h *LessonHandler) addAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req AttachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.Bucket == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid attachment", "bucket and path are required")
		return
	}

	caller := ownerFrom(r)

	// The lesson must exist and be readable before linking to it.
	if _, err := h.store.GetLesson(r.Context(), caller, id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	attachment, err := h.store.AddAttachment(r.Context(), caller, knowledge.AttachmentParams{
		Bucket:    req.Bucket,
		Path:      req.Path,
		PublicURL: req.PublicURL,
		Metadata:  req.Metadata,
		LessonID:  id,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachmentResponse(attachment))
}

// listAttachments lists the attachments linked to a lesson.
func (h *LessonHandler) listAttachments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	attachments, err := h.store.ListAttachments(r.Context(), ownerFrom(r), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	items := make([]AttachmentResponse, 0, len(attachments))
	for i := range attachments {
		items = append(items, attachmentResponse(&attachments[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attachments": items,
		"total":       len(items),
	})
}

// pathID parses the {id} path segment as a UUID, writing 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id", "expected a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
