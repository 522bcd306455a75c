package coach

import (
	"fmt"
	"strings"

	"github.com/coachkit/coachd/internal/retrieve"
)

// InsufficientMaterial is the sentinel the model is instructed to emit when
// the retrieved documents cannot support a grounded generation.
const InsufficientMaterial = "INSUFFICIENT_MATERIAL"

// latexInstruction is appended to every system prompt so equations render in
// markdown clients.
const latexInstruction = "When writing math/science equations, format them in LaTeX. " +
	"Use $$ ... $$ for standalone centered equations and $ ... $ for inline math."

const explainSystemPrompt = "You are an expert learning coach. " +
	"Use the retrieved documents to ground answers and cite document IDs when relevant. " +
	latexInstruction

const practiceSystemPrompt = "You are a learning coach. " +
	"You must ONLY use the retrieved documents as your source of truth. " +
	"Do not introduce concepts, facts, or terminology that are not present in the retrieved documents. " +
	"If the retrieved documents are insufficient to create a good question, say: " + InsufficientMaterial + ". " +
	latexInstruction

const gradeSystemPrompt = "You are a strict grader. Grade ONLY against the retrieved documents. " +
	"Do not reward knowledge that is not present in the retrieved documents. " +
	"If the retrieved documents do not contain enough information to grade reliably, say: " +
	InsufficientMaterial + "_TO_GRADE. " +
	latexInstruction

// formatRetrievedSection renders matches as a grounding block for prompts.
// Each document's content is truncated to maxChars; maxChars <= 0 disables
// truncation.
func formatRetrievedSection(matches []retrieve.Match, maxChars int) string {
	if len(matches) == 0 {
		return "Retrieved documents: none available."
	}

	var b strings.Builder
	b.WriteString("Retrieved documents:\n")
	for _, m := range matches {
		content := m.Lesson.Content
		if maxChars > 0 && len(content) > maxChars {
			content = content[:maxChars]
		}
		fmt.Fprintf(&b, "ID: %s\nTopic: %s\nSubject: %s\nSimilarity: %.4f\n%s\n---\n",
			m.Lesson.ID, m.Lesson.Topic, m.Lesson.Subject, m.Similarity, content)
	}
	return strings.TrimRight(b.String(), "\n")
}
