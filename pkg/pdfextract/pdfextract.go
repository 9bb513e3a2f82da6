package pdfextract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"lawqa/pkg/logging"
	"lawqa/pkg/textproc"
)

// Document is the raw text of one PDF.
type Document struct {
	Source    string
	Text      string
	PageCount int
}

// ExtractFile reads the plain text of every page of the PDF at path.
func ExtractFile(path string) (doc Document, err error) {
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse %s: %v", filepath.Base(path), r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var b strings.Builder
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	return Document{
		Source:    filepath.Base(path),
		Text:      b.String(),
		PageCount: total,
	}, nil
}

// Processor turns a directory of PDFs into cleaned, split chunks.
type Processor struct {
	Splitter *textproc.Splitter
	Logger   logging.Logger
	Extract  func(path string) (Document, error)
}

// NewProcessor returns a Processor using ExtractFile.
func NewProcessor(splitter *textproc.Splitter, logger logging.Logger) *Processor {
	return &Processor{Splitter: splitter, Logger: logger, Extract: ExtractFile}
}

// ProcessFile extracts, cleans and splits one PDF.
func (p *Processor) ProcessFile(path string) ([]textproc.Chunk, error) {
	doc, err := p.Extract(path)
	if err != nil {
		return nil, err
	}
	return p.Splitter.ChunkDocument(doc.Source, textproc.Clean(doc.Text), doc.PageCount), nil
}

// ProcessDirectory processes every .pdf directly inside dir in name order.
// Files that fail are logged and contribute no chunks.
func (p *Processor) ProcessDirectory(dir string) ([]textproc.Chunk, error) {
	files, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}

	p.Logger.WithFields(map[string]interface{}{"dir": dir, "files": len(files)}).Info("Processing PDF files")

	var all []textproc.Chunk
	for _, path := range files {
		chunks, err := p.ProcessFile(path)
		if err != nil {
			p.Logger.WithField("file", filepath.Base(path)).Error("Error processing PDF", err)
			continue
		}
		p.Logger.WithFields(map[string]interface{}{
			"file":   filepath.Base(path),
			"chunks": len(chunks),
		}).Debug("Processed PDF")
		all = append(all, chunks...)
	}
	return all, nil
}

// ListPDFs returns the .pdf files directly inside dir, sorted by name.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
