package vectorstore

import (
	"fmt"
	"sort"
)

// Hit is one search result: the position of a stored vector and its score.
type Hit struct {
	Index int
	Score float32
}

// Index is a brute-force inner-product index.
type Index struct {
	dim     int
	vectors [][]float32
}

// NewIndex returns an empty index of width dim.
func NewIndex(dim int) *Index {
	return &Index{dim: dim}
}

func (x *Index) Dim() int { return x.dim }

func (x *Index) Len() int { return len(x.vectors) }

// Add appends vectors. All of them must have the index width.
func (x *Index) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), x.dim)
		}
	}
	x.vectors = append(x.vectors, vectors...)
	return nil
}

// Search returns up to k hits ordered by descending score; ties keep insertion order.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), x.dim)
	}
	if k > len(x.vectors) {
		k = len(x.vectors)
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]Hit, len(x.vectors))
	for i, v := range x.vectors {
		hits[i] = Hit{Index: i, Score: dot(query, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	return hits[:k], nil
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
