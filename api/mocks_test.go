package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coachkit/coachd/internal/coach"
	"github.com/coachkit/coachd/internal/knowledge"
	"github.com/coachkit/coachd/internal/retrieve"
)

// mockLessonStore is a hand-rolled LessonStore for handler tests.
type mockLessonStore struct {
	lesson      *knowledge.Lesson
	lessons     []knowledge.Lesson
	attachment  *knowledge.Attachment
	attachments []knowledge.Attachment
	err         error

	lastOwner  uuid.UUID
	lastID     uuid.UUID
	lastParams knowledge.LessonParams
	deleted    []uuid.UUID
}

func (m *mockLessonStore) CreateLesson(_ context.Context, owner uuid.UUID, params knowledge.LessonParams) (*knowledge.Lesson, error) {
	m.lastOwner = owner
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	if m.lesson != nil {
		return m.lesson, nil
	}
	return &knowledge.Lesson{
		ID: uuid.New(), OwnerID: owner,
		Title: params.Title, Topic: params.Topic, Subject: params.Subject,
		Level: params.Level, Content: params.Content,
		Visibility: params.Visibility, CreatedAt: time.Now(),
	}, nil
}

func (m *mockLessonStore) GetLesson(_ context.Context, caller, id uuid.UUID) (*knowledge.Lesson, error) {
	m.lastOwner = caller
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.lesson, nil
}

func (m *mockLessonStore) ListLessons(_ context.Context, owner uuid.UUID, _, _ int32) ([]knowledge.Lesson, error) {
	m.lastOwner = owner
	return m.lessons, m.err
}

func (m *mockLessonStore) UpdateLesson(_ context.Context, caller, id uuid.UUID, params knowledge.LessonParams) (*knowledge.Lesson, error) {
	m.lastOwner = caller
	m.lastID = id
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return m.lesson, nil
}

func (m *mockLessonStore) DeleteLesson(_ context.Context, caller, id uuid.UUID) error {
	m.lastOwner = caller
	m.lastID = id
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockLessonStore) AddAttachment(_ context.Context, owner uuid.UUID, _ knowledge.AttachmentParams) (*knowledge.Attachment, error) {
	m.lastOwner = owner
	return m.attachment, m.err
}

func (m *mockLessonStore) ListAttachments(_ context.Context, caller, lessonID uuid.UUID) ([]knowledge.Attachment, error) {
	m.lastOwner = caller
	m.lastID = lessonID
	return m.attachments, m.err
}

// mockSearcher is a hand-rolled Searcher for handler tests.
type mockSearcher struct {
	matches []retrieve.Match
	err     error

	lastQuery string
	lastOpts  []retrieve.Option
}

func (m *mockSearcher) Retrieve(_ context.Context, query string, opts ...retrieve.Option) ([]retrieve.Match, error) {
	m.lastQuery = query
	m.lastOpts = opts
	return m.matches, m.err
}

// mockCoach is a hand-rolled Coach for handler tests.
type mockCoach struct {
	answer   string
	question string
	eval     *coach.Evaluation
	err      error

	lastOwner      uuid.UUID
	lastQuery      string
	lastImageURL   string
	lastTopic      string
	lastQuestionID uuid.UUID
}

func (m *mockCoach) Explain(_ context.Context, owner uuid.UUID, query, imageURL string) (string, error) {
	m.lastOwner = owner
	m.lastQuery = query
	m.lastImageURL = imageURL
	return m.answer, m.err
}

func (m *mockCoach) PracticeQuestion(_ context.Context, owner uuid.UUID, topic string) (string, error) {
	m.lastOwner = owner
	m.lastTopic = topic
	return m.question, m.err
}

func (m *mockCoach) GradeAnswer(_ context.Context, owner uuid.UUID, questionID uuid.UUID, _, _, _ string) (*coach.Evaluation, error) {
	m.lastOwner = owner
	m.lastQuestionID = questionID
	return m.eval, m.err
}
