package qa

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"lawqa/pkg/vectorstore"
)

var sentenceEnd = regexp.MustCompile(`[.!?]+(\s+|$)`)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "any": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "how": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "shall": true, "the": true, "to": true,
	"what": true, "when": true, "which": true, "who": true, "with": true,
}

// ExtractiveGenerator answers without a model by quoting the context
// sentences that share the most terms with the question.
type ExtractiveGenerator struct {
	MaxSentences int
}

// NewExtractiveGenerator returns a generator quoting up to three sentences.
func NewExtractiveGenerator() *ExtractiveGenerator {
	return &ExtractiveGenerator{MaxSentences: 3}
}

func (g *ExtractiveGenerator) Name() string { return "extractive" }

// Generate never fails; with no overlapping sentence it returns NoContextAnswer.
func (g *ExtractiveGenerator) Generate(ctx context.Context, question, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	terms := map[string]bool{}
	for _, tok := range vectorstore.Tokenize(question) {
		if !stopwords[tok] {
			terms[tok] = true
		}
	}

	type scored struct {
		pos   int
		score int
		text  string
	}
	var candidates []scored
	for i, sentence := range SplitSentences(text) {
		seen := map[string]bool{}
		score := 0
		for _, tok := range vectorstore.Tokenize(sentence) {
			if terms[tok] && !seen[tok] {
				seen[tok] = true
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{pos: i, score: score, text: sentence})
		}
	}
	if len(candidates) == 0 {
		return NoContextAnswer, nil
	}

	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].score > candidates[b].score })
	limit := g.MaxSentences
	if limit <= 0 {
		limit = 3
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].pos < candidates[b].pos })

	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = c.text
	}
	return strings.Join(parts, " "), nil
}

// SplitSentences splits text after ., ! or ? runs, keeping the punctuation.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
