// Package compose builds the final generation prompt from gathered evidence
// and the user's question.
package compose

import (
	"fmt"
	"strings"

	"github.com/quill0/quill/internal/retrieval"
)

const answerSystem = `You are a helpful assistant. Answer the user's question using the provided context when it is relevant. Context blocks are labeled by origin; prefer document context over web context when they conflict, and say so when they do. If the context does not cover the question, answer from general knowledge and make that clear. Be concise and concrete.`

const generalKnowledgeNote = "No external context is available for this question. Answer from general knowledge."

// System returns the system instructions for answer generation.
func System() string { return answerSystem }

// Prompt renders the generation prompt for one turn. When evidence exists,
// the labeled context precedes the question and the source links are listed
// so the model can cite them; otherwise the prompt states that only general
// knowledge applies.
func Prompt(rc retrieval.Context, question string) string {
	var b strings.Builder

	if rc.Empty() {
		b.WriteString(generalKnowledgeNote)
		b.WriteString("\n\n")
	} else {
		b.WriteString("Context:\n")
		b.WriteString(rc.Text)
		b.WriteString("\n\n")
		if len(rc.Links) > 0 {
			b.WriteString("Sources:\n")
			for _, l := range rc.Links {
				fmt.Fprintf(&b, "- %s\n", l)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	return b.String()
}
