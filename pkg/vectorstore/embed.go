package vectorstore

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDim matches the width of the sentence embeddings the stores were sized for.
const DefaultDim = 384

// Embedder maps texts to fixed-width vectors.
type Embedder interface {
	Dim() int
	Embed(texts []string) [][]float32
}

// HashEmbedder is a model-free embedder: word unigrams and bigrams are hashed
// into Dim signed buckets and the result is L2-normalized, so inner product
// equals cosine similarity.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns an embedder of width dim (DefaultDim when dim <= 0).
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Dim() int { return e.dim }

// Embed returns one vector per text.
func (e *HashEmbedder) Embed(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embedOne(t)
	}
	return out
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dim)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	Normalize(vec)
	return vec
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(e.dim))
	if sum&(1<<40) != 0 {
		weight = -weight
	}
	vec[bucket] += weight
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Normalize scales vec to unit length in place. A zero vector is left as is.
func Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}
