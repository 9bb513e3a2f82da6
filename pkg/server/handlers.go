package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lawqa/pkg/cache"
	"lawqa/pkg/logging"
	"lawqa/pkg/metrics"
	"lawqa/pkg/qa"
	"lawqa/pkg/sysmem"
)

// ErrNoQuestion is returned for an ask request without a question.
var ErrNoQuestion = errors.New("no question provided")

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the body of a successful POST /ask.
type AskResponse struct {
	Answer         string         `json:"answer"`
	Sources        []cache.Source `json:"sources"`
	ProcessingTime string         `json:"processing_time"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string  `json:"status"`
	Device          string  `json:"device"`
	MemoryAvailable float64 `json:"memory_available"`
}

// MemoryResponse is the body of GET /memory.
type MemoryResponse struct {
	RAMAvailable string `json:"ram_available"`
	GPUAvailable string `json:"gpu_available"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// sourcedGenerator reports which generator produced the answer.
type sourcedGenerator interface {
	GenerateWithSource(ctx context.Context, question, text string) (string, string, error)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	log := logging.FromContextOr(r.Context(), s.logger)

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrNoQuestion.Error()})
		return
	}

	answer, err := s.answer(r.Context(), question)
	if err != nil {
		log.WithField("question", question).Error("Failed to answer question", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{
		Answer:         answer.Answer,
		Sources:        answer.Sources,
		ProcessingTime: fmt.Sprintf("%.2f seconds", s.now().Sub(start).Seconds()),
	})
}

// answer serves question from the cache or by retrieval and generation.
func (s *Server) answer(ctx context.Context, question string) (*cache.Answer, error) {
	log := logging.FromContextOr(ctx, s.logger)
	lt := metrics.NewLatencyTracker()

	cached, ok, err := s.cache.Get(ctx, question)
	lt.Checkpoint("cache")
	switch {
	case err != nil:
		s.metrics.RecordCacheLookup("error")
		log.Error("Answer cache lookup failed", err)
	case ok:
		s.metrics.RecordCacheLookup("hit")
		s.metrics.IncrementAnswered()
		return cached, nil
	default:
		s.metrics.RecordCacheLookup("miss")
	}

	retrievalStart := time.Now()
	results, err := s.retriever.Search(question, s.cfg.TopK)
	s.metrics.RecordRetrievalTime(time.Since(retrievalStart))
	lt.Checkpoint("retrieve")
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	texts := make([]string, len(results))
	sources := make([]cache.Source, len(results))
	for i, res := range results {
		texts[i] = res.Text
		sources[i] = cache.Source{Source: res.Source, Relevance: res.Score}
	}

	joined, truncated := qa.TruncateContext(strings.Join(texts, "\n"), s.cfg.MaxContextChars)
	if truncated {
		s.metrics.IncrementContextTruncations()
	}

	genStart := time.Now()
	text, generator, err := s.generate(ctx, question, joined)
	s.metrics.RecordGenerationTime(generator, time.Since(genStart))
	lt.Checkpoint("generate")
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	s.metrics.IncrementAnswered()

	result := &cache.Answer{Answer: text, Sources: sources}
	if err := s.cache.Set(ctx, question, result); err != nil {
		log.Error("Answer cache store failed", err)
	}

	fields := map[string]interface{}{
		"generator": generator,
		"sources":   len(sources),
		"truncated": truncated,
		"total_ms":  lt.GetDuration().Milliseconds(),
	}
	for stage, at := range lt.GetAllCheckpoints() {
		fields[stage+"_done_ms"] = at.Milliseconds()
	}
	log.WithFields(fields).Info("Question answered")
	return result, nil
}

func (s *Server) generate(ctx context.Context, question, text string) (string, string, error) {
	if g, ok := s.generator.(sourcedGenerator); ok {
		return g.GenerateWithSource(ctx, question, text)
	}
	answer, err := s.generator.Generate(ctx, question, text)
	return answer, s.generator.Name(), err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap, err := s.memory()
	if err != nil {
		logging.FromContextOr(r.Context(), s.logger).Error("Failed to read memory", err)
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "healthy",
		Device:          sysmem.Device,
		MemoryAvailable: snap.AvailableGB(),
	})
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	snap, err := s.memory()
	if err != nil {
		logging.FromContextOr(r.Context(), s.logger).Error("Failed to read memory", err)
	}
	writeJSON(w, http.StatusOK, MemoryResponse{
		RAMAvailable: sysmem.FormatGB(snap.AvailableGB()),
		GPUAvailable: sysmem.GPUAvailable,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
