// Package qa turns a question and retrieved legal context into an answer.
package qa

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxContextChars bounds the context handed to a generator.
const DefaultMaxContextChars = 1024

// NoContextAnswer is returned when the context has nothing to say about the question.
const NoContextAnswer = "The provided context does not contain relevant information."

// Generator produces an answer from a question and its supporting context.
type Generator interface {
	Name() string
	Generate(ctx context.Context, question, text string) (string, error)
}

// TruncateContext cuts text to at most limit characters and reports whether it did.
func TruncateContext(text string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	return string([]rune(text)[:limit]), true
}

// BuildPrompt renders the instruction given to a language model.
func BuildPrompt(question, text string) string {
	return fmt.Sprintf(`Based on the following Pakistani law context, answer the question.
If you're not sure or the context doesn't contain relevant information, say so.

Context: %s

Question: %s

Answer:`, strings.TrimSpace(text), strings.TrimSpace(question))
}
