// Package vectorstore embeds text chunks, keeps them in a flat inner-product
// index and persists both to a directory.
package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"lawqa/pkg/textproc"
)

const (
	indexFile = "index.json"
	textsFile = "texts.json"

	// BatchSize is how many chunks are embedded per call.
	BatchSize = 32
)

// ErrEmpty is returned by Search before anything was built or loaded.
var ErrEmpty = errors.New("vector store is empty")

// Result is a retrieved chunk with its similarity to the query.
type Result struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// Store pairs an index with the chunks its vectors were made from.
type Store struct {
	embedder Embedder

	mu    sync.RWMutex
	index *Index
	texts []textproc.Chunk
}

// New returns an empty store using embedder.
func New(embedder Embedder) *Store {
	return &Store{embedder: embedder, index: NewIndex(embedder.Dim())}
}

// Len returns the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.texts)
}

// Build replaces the store contents with embeddings of chunks.
// onBatch, when set, is called after each batch with the number done so far.
func (s *Store) Build(chunks []textproc.Chunk, onBatch func(done, total int)) error {
	index := NewIndex(s.embedder.Dim())
	for start := 0; start < len(chunks); start += BatchSize {
		end := start + BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		if err := index.Add(s.embedder.Embed(texts)...); err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if onBatch != nil {
			onBatch(end, len(chunks))
		}
	}

	s.mu.Lock()
	s.index = index
	s.texts = append([]textproc.Chunk(nil), chunks...)
	s.mu.Unlock()
	return nil
}

// Search embeds query and returns the k most similar chunks.
func (s *Store) Search(query string, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.index.Len() == 0 {
		return nil, ErrEmpty
	}
	q := s.embedder.Embed([]string{query})[0]
	hits, err := s.index.Search(q, k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Index >= len(s.texts) {
			continue
		}
		c := s.texts[h.Index]
		results = append(results, Result{Text: c.Text, Source: c.Source, Score: float64(h.Score)})
	}
	return results, nil
}

type indexFileFormat struct {
	Dim     int         `json:"dim"`
	Vectors [][]float32 `json:"vectors"`
}

// Save writes the index and chunks under dir, creating it when needed.
func (s *Store) Save(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := writeJSON(filepath.Join(dir, indexFile), indexFileFormat{Dim: s.index.Dim(), Vectors: s.index.vectors}); err != nil {
		return err
	}
	return textproc.SaveChunks(filepath.Join(dir, textsFile), s.texts)
}

// Load replaces the store contents with what Save wrote under dir.
func (s *Store) Load(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	var f indexFileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}
	if f.Dim != s.embedder.Dim() {
		return fmt.Errorf("index dimension %d does not match embedder dimension %d", f.Dim, s.embedder.Dim())
	}
	index := NewIndex(f.Dim)
	if err := index.Add(f.Vectors...); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	texts, err := textproc.LoadChunks(filepath.Join(dir, textsFile))
	if err != nil {
		return fmt.Errorf("read texts: %w", err)
	}

	s.mu.Lock()
	s.index = index
	s.texts = texts
	s.mu.Unlock()
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
