/*
 * Copyright (c) 2025 Ishaan Nene
 *
 * This source code is licensed under the MIT license found in the
 * LICENSE file in the root directory of this source tree.
 */
/*
This file consists of the ingest command that prepares everything the API needs before it starts.
It reads every PDF in LAW_BOOKS_DIR, cleans and splits the text into chunks, saves the chunks as JSON,
then embeds them and writes the vector store to VECTOR_STORE_DIR.
Run it again whenever the law books change. The API only reads what this command writes.
*/
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"lawqa/pkg/config"
	"lawqa/pkg/logging"
	"lawqa/pkg/pdfextract"
	"lawqa/pkg/sysmem"
	"lawqa/pkg/textproc"
	"lawqa/pkg/vectorstore"
)

func main() {
	cfg := config.LoadIngest()
	logger := logging.NewLoggerWithOutput("ingest", os.Stderr, cfg.LogLevel)

	splitter, err := textproc.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		logger.Error("Invalid chunking configuration", err)
		os.Exit(2)
	}

	if err := setup(cfg, pdfextract.NewProcessor(splitter, logger), logger, os.Stdout); err != nil {
		logger.Error("Setup failed", err)
		color.Red("Setup failed: %v", err)
		os.Exit(1)
	}
}

// setup processes the law books and writes the chunk file and vector store.
func setup(cfg *config.IngestConfig, proc *pdfextract.Processor, logger logging.Logger, out io.Writer) error {
	fmt.Fprintf(out, "Using device: %s\n", sysmem.Device)
	if snap, err := sysmem.Read(); err != nil {
		logger.Error("Failed to read memory", err)
	} else {
		fmt.Fprintf(out, "Available RAM: %s\n", sysmem.FormatGB(snap.AvailableGB()))
	}

	chunks, err := proc.ProcessDirectory(cfg.LawBooksDir)
	if err != nil {
		return fmt.Errorf("process %s: %w", cfg.LawBooksDir, err)
	}
	fmt.Fprintf(out, "Processed %d text chunks\n", len(chunks))

	if err := textproc.SaveChunks(cfg.ChunksOut, chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	logger.WithField("path", cfg.ChunksOut).Info("Chunks saved")

	store := vectorstore.New(vectorstore.NewHashEmbedder(vectorstore.DefaultDim))
	err = store.Build(chunks, func(done, total int) {
		logger.WithFields(map[string]interface{}{"done": done, "total": total}).Debug("Embedded batch")
	})
	if err != nil {
		return fmt.Errorf("build embeddings: %w", err)
	}
	if err := store.Save(cfg.VectorStoreDir); err != nil {
		return fmt.Errorf("save vector store: %w", err)
	}
	logger.WithFields(map[string]interface{}{
		"dir":    cfg.VectorStoreDir,
		"chunks": store.Len(),
	}).Info("Vector store saved")

	fmt.Fprintln(out, "Setup complete!")
	return nil
}
