package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Source table tags for embedding rows. Every embedding row belongs to
// exactly one source row, identified by one of these tags plus the source id.
const (
	// SourceLessons tags embeddings of lesson content.
	SourceLessons = "lessons"

	// SourceUserQueries tags embeddings of submitted user queries.
	SourceUserQueries = "user_queries"

	// SourceGeneratedQuestions tags embeddings of generated practice questions.
	SourceGeneratedQuestions = "generated_questions"
)

// Lesson visibility values.
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// Lesson is a unit of learning material owned by a user.
type Lesson struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID // uuid.Nil = anonymous
	Title      string
	Topic      string
	Subject    string
	Level      string
	Content    string
	Visibility string
	CreatedAt  time.Time
}

// LessonParams carries the caller-supplied fields of a lesson.
type LessonParams struct {
	Title      string
	Topic      string
	Subject    string
	Level      string
	Content    string
	Visibility string // empty = private
}

// UserQuery is a submitted text query, persisted for later embedding and
// practice-question grounding.
type UserQuery struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	QueryText string
	CreatedAt time.Time
}

// Attachment records where an uploaded file lives in the storage bucket.
// Attachments are created independently of embedding.
type Attachment struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Bucket    string
	Path      string
	PublicURL string
	Metadata  map[string]string
	LessonID  uuid.UUID // uuid.Nil = not linked
	QueryID   uuid.UUID // uuid.Nil = not linked
	CreatedAt time.Time
}

// AttachmentParams carries the caller-supplied fields of an attachment.
type AttachmentParams struct {
	Bucket    string
	Path      string
	PublicURL string
	Metadata  map[string]string
	LessonID  uuid.UUID
	QueryID   uuid.UUID
}

// GeneratedQuestion is a practice question produced by a generation model
// from a lesson and/or a user query.
type GeneratedQuestion struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID
	LessonID     uuid.UUID
	QueryID      uuid.UUID
	QuestionText string
	AuthorModel  string
	CreatedAt    time.Time
}

// Answer ties a user's answer to a generated question, together with the
// model's reference answer, grade, and feedback.
type Answer struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	QuestionID      uuid.UUID
	UserAnswer      string
	ReferenceAnswer string
	Grade           string
	Feedback        string
	CreatedAt       time.Time
}

// AnswerParams carries the fields of a graded answer.
type AnswerParams struct {
	QuestionID      uuid.UUID
	UserAnswer      string
	ReferenceAnswer string
	Grade           string
	Feedback        string
}

// LessonHit is one nearest-neighbor result: the materialized lesson and its
// cosine distance to the query vector.
type LessonHit struct {
	Lesson   Lesson
	Distance float64
}
