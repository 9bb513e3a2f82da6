// Package textproc normalizes extracted document text and cuts it into
// overlapping chunks sized for retrieval.
package textproc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	disallowedChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.,;?!-]`)
	missingSpace    = regexp.MustCompile(`([.!?])([A-Za-z])`)
)

// Clean collapses whitespace, strips everything but word characters and basic
// punctuation, and puts a space after sentence ends glued to the next word.
func Clean(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = disallowedChars.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	return missingSpace.ReplaceAllString(text, "$1 $2")
}

// Chunk is one retrievable piece of a source document.
type Chunk struct {
	ID        string `json:"chunk_id"`
	Text      string `json:"text"`
	Source    string `json:"source"`
	PageCount int    `json:"page_count"`
}

// DefaultSeparators go from coarse to fine; "" splits into characters.
var DefaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

// Splitter splits text recursively on Separators so that chunks stay within
// ChunkSize characters, carrying up to Overlap characters between neighbours.
// A separator stays attached to the start of the piece that follows it.
type Splitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

// NewSplitter returns a Splitter with DefaultSeparators.
func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, chunkSize)
	}
	return &Splitter{ChunkSize: chunkSize, Overlap: overlap, Separators: DefaultSeparators}, nil
}

// Split cuts text into chunks.
func (s *Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return s.split(text, seps)
}

// ChunkDocument splits text and tags each piece with its source.
func (s *Splitter) ChunkDocument(source, text string, pageCount int) []Chunk {
	pieces := s.Split(text)
	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("%s_%d", source, i),
			Text:      p,
			Source:    source,
			PageCount: pageCount,
		})
	}
	return chunks
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var out, fitting []string
	for _, piece := range splitOn(text, separator) {
		if runeLen(piece) < s.ChunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, s.merge(fitting)...)
			fitting = nil
		}
		if len(finer) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, s.split(piece, finer)...)
		}
	}
	if len(fitting) > 0 {
		out = append(out, s.merge(fitting)...)
	}
	return out
}

// merge packs pieces into chunks, keeping a tail of at most Overlap
// characters from one chunk at the head of the next. Pieces already carry
// their separators, so they are concatenated as is.
func (s *Splitter) merge(pieces []string) []string {
	var docs, current []string
	total := 0

	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.ChunkSize && len(current) > 0 {
			if doc := joinDoc(current); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.Overlap || (total+n > s.ChunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := joinDoc(current); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinDoc(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, ""))
}

// splitOn cuts text at separator, prefixing every piece after the first with
// the separator it was cut at. Empty pieces are dropped.
func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, separator)
		for i := 1; i < len(parts); i++ {
			parts[i] = separator + parts[i]
		}
	}

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// SaveChunks writes chunks as indented JSON, creating parent directories.
func SaveChunks(path string, chunks []Chunk) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if chunks == nil {
		chunks = []Chunk{}
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(chunks); err != nil {
		return fmt.Errorf("encode chunks: %w", err)
	}
	return f.Close()
}

// LoadChunks reads chunks written by SaveChunks.
func LoadChunks(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return chunks, nil
}
