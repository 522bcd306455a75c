// Package coach turns retrieval results into grounded generations: tutoring
// explanations, practice questions, and graded answers, all backed by the
// Mistral chat API and the lesson vector index.
package coach

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coachkit/coachd/internal/knowledge"
	"github.com/coachkit/coachd/internal/log"
	"github.com/coachkit/coachd/internal/retrieve"
)

// Retriever is the retrieval dependency of the Service.
// *retrieve.Retriever is the production implementation.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts ...retrieve.Option) ([]retrieve.Match, error)
}

// Generator is the model backend the Service generates with.
// *Mistral is the production implementation.
type Generator interface {
	ChatComplete(ctx context.Context, messages []Message, opts ...GenOption) (string, error)
	ExtractText(ctx context.Context, imageURL string) (string, error)
}

// Recorder is the persistence view the Service depends on.
// *knowledge.Store is the production implementation.
type Recorder interface {
	RecordQuery(ctx context.Context, owner uuid.UUID, queryText string) (*knowledge.UserQuery, error)
	RecordGeneratedQuestion(ctx context.Context, owner uuid.UUID, lessonID, queryID uuid.UUID, questionText, authorModel string) (*knowledge.GeneratedQuestion, error)
	RecordAnswer(ctx context.Context, owner uuid.UUID, params knowledge.AnswerParams) (*knowledge.Answer, error)
	ListLessons(ctx context.Context, owner uuid.UUID, limit, offset int32) ([]knowledge.Lesson, error)
}

// Evaluation is the result of grading a student answer.
type Evaluation struct {
	// Text is the full model response, math-normalized.
	Text string
	// Grade is the parsed "Score:" line value, empty if absent.
	Grade string
	// Feedback is the parsed "Feedback:" line value, empty if absent.
	Feedback string
}

// Service orchestrates the coach workflows. Retrieval failures degrade to
// ungrounded generation for explanations; persistence failures are logged and
// never fail a generation that already succeeded.
type Service struct {
	retriever Retriever
	generator Generator
	records   Recorder
	model     string // recorded as author_model on generated questions
	topK      int
	logger    log.Logger
}

// NewService creates a Service. model names the generation model for
// provenance records.
func NewService(retriever Retriever, generator Generator, records Recorder, model string, topK int, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	if topK < 1 {
		topK = 3
	}
	return &Service{
		retriever: retriever,
		generator: generator,
		records:   records,
		model:     model,
		topK:      topK,
		logger:    logger,
	}
}

// Explain answers a question grounded on the caller's nearest lessons.
//
// imageURL, when set, is OCR'd and the recognized text is merged into the
// query before retrieval. The submitted query is persisted; a persistence
// failure is logged, not surfaced.
func (s *Service) Explain(ctx context.Context, owner uuid.UUID, query, imageURL string) (string, error) {
	if strings.TrimSpace(query) == "" && imageURL == "" {
		return "", fmt.Errorf("query is empty")
	}

	if imageURL != "" {
		text, err := s.generator.ExtractText(ctx, imageURL)
		if err != nil {
			return "", fmt.Errorf("extracting image text: %w", err)
		}
		if query == "" {
			query = text
		} else {
			query = query + "\n\nText from attached image:\n" + text
		}
	}

	matches := s.relevant(ctx, owner, query)

	if _, err := s.records.RecordQuery(ctx, owner, query); err != nil {
		s.logger.Warn("persisting user query failed", "error", err)
	}

	userPrompt := fmt.Sprintf(
		"%s\n\nQuestion: %s\n\nProvide a clear, educational explanation that directly uses the retrieved documents.",
		formatRetrievedSection(matches, 0), query)

	resp, err := s.generator.ChatComplete(ctx, []Message{
		{Role: "system", Content: explainSystemPrompt},
		{Role: "user", Content: userPrompt},
	})
	if err != nil {
		return "", fmt.Errorf("generating explanation: %w", err)
	}
	return postprocessMath(resp), nil
}

// PracticeQuestion generates one practice question for a topic, grounded
// strictly on the caller's lessons. When the caller owns a lesson whose topic
// matches, that lesson's content drives retrieval so the question stays close
// to the material; otherwise the topic label itself is the retrieval query.
//
// Returns ErrInsufficientMaterial when the model judges the retrieved
// documents too thin to ask anything grounded.
func (s *Service) PracticeQuestion(ctx context.Context, owner uuid.UUID, topic string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", fmt.Errorf("topic is empty")
	}

	retrievalQuery := topic
	var lessonID uuid.UUID
	if lesson := s.lessonByTopic(ctx, owner, topic); lesson != nil {
		retrievalQuery = lesson.Content
		lessonID = lesson.ID
	}

	matches := s.relevant(ctx, owner, retrievalQuery)

	userPrompt := fmt.Sprintf(
		"%s\n\nTask: Create ONE practice question that can be answered using ONLY the retrieved documents.\n"+
			"Target topic label: %s\n\n"+
			"Requirements:\n"+
			"- The question must be tightly grounded in the lesson wording and scope.\n"+
			"- Avoid broad/general textbook questions not covered in the documents.\n"+
			"- Provide only the question text (no explanation, no answer).",
		formatRetrievedSection(matches, 1200), topic)

	resp, err := s.generator.ChatComplete(ctx, []Message{
		{Role: "system", Content: practiceSystemPrompt},
		{Role: "user", Content: userPrompt},
	}, WithMaxTokens(256), WithTemperature(0.8))
	if err != nil {
		return "", fmt.Errorf("generating practice question: %w", err)
	}

	if strings.Contains(resp, InsufficientMaterial) {
		return "", fmt.Errorf("topic %q: %w", topic, ErrInsufficientMaterial)
	}

	question := postprocessMath(resp)

	// Provenance is best effort and only for authenticated callers.
	if owner != uuid.Nil {
		if _, err := s.records.RecordGeneratedQuestion(ctx, owner, lessonID, uuid.Nil, question, s.model); err != nil {
			s.logger.Warn("persisting generated question failed", "error", err)
		}
	}

	return question, nil
}

// GradeAnswer evaluates a student answer against the caller's lessons.
// reference is an optional instructor answer, truncated before prompting.
// questionID may be uuid.Nil when the question was not persisted.
func (s *Service) GradeAnswer(ctx context.Context, owner uuid.UUID, questionID uuid.UUID, question, studentAnswer, reference string) (*Evaluation, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(studentAnswer) == "" {
		return nil, fmt.Errorf("question and student answer are required")
	}

	retrievalQuery := fmt.Sprintf("Question: %s\nStudent answer: %s", question, studentAnswer)
	matches := s.relevant(ctx, owner, retrievalQuery)

	if len(reference) > 600 {
		reference = reference[:600]
	}

	userPrompt := fmt.Sprintf(
		"%s\n\nTask: Evaluate the student's answer using ONLY the retrieved documents.\n"+
			"Question: %s\n"+
			"Student answer: %s\n"+
			"Instructor reference (optional, may be incomplete): %s\n\n"+
			"Output format (plain text):\n"+
			"Score: <0-10>/10\n"+
			"Feedback: <2-6 sentences>\n"+
			"Model answer (grounded): <1-5 sentences>\n"+
			"Citations: <comma-separated document IDs used, or 'none'>",
		formatRetrievedSection(matches, 1400), question, studentAnswer, reference)

	resp, err := s.generator.ChatComplete(ctx, []Message{
		{Role: "system", Content: gradeSystemPrompt},
		{Role: "user", Content: userPrompt},
	}, WithMaxTokens(512))
	if err != nil {
		return nil, fmt.Errorf("grading answer: %w", err)
	}

	eval := parseEvaluation(postprocessMath(resp))

	if owner != uuid.Nil {
		if _, err := s.records.RecordAnswer(ctx, owner, knowledge.AnswerParams{
			QuestionID:      questionID,
			UserAnswer:      studentAnswer,
			ReferenceAnswer: eval.Text,
			Grade:           eval.Grade,
			Feedback:        eval.Feedback,
		}); err != nil {
			s.logger.Warn("persisting answer failed", "error", err)
		}
	}

	return eval, nil
}

// relevant retrieves the nearest lessons and keeps only those the caller owns
// when authenticated. A retrieval failure degrades to no grounding documents
// rather than failing the generation.
func (s *Service) relevant(ctx context.Context, owner uuid.UUID, query string) []retrieve.Match {
	matches, err := s.retriever.Retrieve(ctx, query, retrieve.WithTopK(s.topK))
	if err != nil {
		s.logger.Warn("retrieval failed, generating without grounding", "error", err)
		return nil
	}
	if owner == uuid.Nil {
		return matches
	}

	kept := matches[:0]
	for _, m := range matches {
		if m.Lesson.OwnerID == owner {
			kept = append(kept, m)
		}
	}
	return kept
}

// lessonByTopic finds the caller's lesson with a case-insensitive topic match.
func (s *Service) lessonByTopic(ctx context.Context, owner uuid.UUID, topic string) *knowledge.Lesson {
	lessons, err := s.records.ListLessons(ctx, owner, 1000, 0)
	if err != nil {
		s.logger.Warn("listing lessons for topic lookup failed", "error", err)
		return nil
	}

	want := strings.ToLower(strings.TrimSpace(topic))
	for i := range lessons {
		if strings.ToLower(strings.TrimSpace(lessons[i].Topic)) == want {
			return &lessons[i]
		}
	}
	return nil
}

// parseEvaluation extracts the Score and Feedback lines from a grading
// response. Lines that do not match are left in Text untouched.
func parseEvaluation(text string) *Evaluation {
	eval := &Evaluation{Text: text}
	for _, line := range strings.Split(text, "\n") {
		switch {
		case eval.Grade == "" && strings.HasPrefix(line, "Score:"):
			eval.Grade = strings.TrimSpace(strings.TrimPrefix(line, "Score:"))
		case eval.Feedback == "" && strings.HasPrefix(line, "Feedback:"):
			eval.Feedback = strings.TrimSpace(strings.TrimPrefix(line, "Feedback:"))
		}
	}
	return eval
}
