package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawqa/pkg/cache"
	"lawqa/pkg/correlation"
	"lawqa/pkg/logging"
	"lawqa/pkg/metrics"
	"lawqa/pkg/sysmem"
	"lawqa/pkg/vectorstore"
)

type fakeRetriever struct {
	results []vectorstore.Result
	err     error
	queries []string
}

func (f *fakeRetriever) Search(query string, k int) ([]vectorstore.Result, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

type recordingGenerator struct {
	answer   string
	err      error
	contexts []string
}

func (g *recordingGenerator) Name() string { return "stub" }

func (g *recordingGenerator) Generate(_ context.Context, _, text string) (string, error) {
	g.contexts = append(g.contexts, text)
	return g.answer, g.err
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*cache.Answer
	getErr  error
}

func newMemoryCache() *memoryCache { return &memoryCache{entries: map[string]*cache.Answer{}} }

func (m *memoryCache) Get(_ context.Context, q string) (*cache.Answer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	a, ok := m.entries[cache.Key(q)]
	return a, ok, nil
}

func (m *memoryCache) Set(_ context.Context, q string, a *cache.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cache.Key(q)] = a
	return nil
}

func (m *memoryCache) Close() error { return nil }

var pakistanPenalCode = []vectorstore.Result{
	{Text: "Whoever voluntarily causes hurt shall be punished.", Source: "ppc.pdf", Score: 0.81},
	{Text: "Assault is punishable with imprisonment.", Source: "ppc.pdf", Score: 0.64},
	{Text: "Arrest without warrant.", Source: "crpc.pdf", Score: 0.12},
	{Text: "Never returned with k=3.", Source: "other.pdf", Score: 0.01},
}

type harness struct {
	srv       *Server
	handler   http.Handler
	retriever *fakeRetriever
	generator *recordingGenerator
	cache     *memoryCache
	logs      *bytes.Buffer
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		retriever: &fakeRetriever{results: pakistanPenalCode},
		generator: &recordingGenerator{answer: "Imprisonment."},
		cache:     newMemoryCache(),
		logs:      &bytes.Buffer{},
	}
	h.srv = New(cfg, Deps{
		Retriever: h.retriever,
		Generator: h.generator,
		Cache:     h.cache,
		Metrics:   metrics.NewMetricsCollector("api"),
		Logger:    logging.NewLoggerWithOutput("api", h.logs, "debug"),
	})
	h.srv.memory = func() (sysmem.Snapshot, error) {
		return sysmem.Snapshot{TotalBytes: 8 << 30, AvailableBytes: 3 << 29}, nil
	}
	h.handler = h.srv.Router()
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestAskAnswersFromRetrievedContext(t *testing.T) {
	h := newHarness(t, Config{})

	rec := h.do(t, http.MethodPost, "/ask", `{"question": " Punishment for attack on a person"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AskResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Imprisonment.", resp.Answer)
	assert.Equal(t, []cache.Source{
		{Source: "ppc.pdf", Relevance: 0.81},
		{Source: "ppc.pdf", Relevance: 0.64},
		{Source: "crpc.pdf", Relevance: 0.12},
	}, resp.Sources)
	assert.Regexp(t, `^\d+\.\d{2} seconds$`, resp.ProcessingTime)

	assert.Equal(t, []string{"Punishment for attack on a person"}, h.retriever.queries)
	require.Len(t, h.generator.contexts, 1)
	assert.Equal(t,
		"Whoever voluntarily causes hurt shall be punished.\nAssault is punishable with imprisonment.\nArrest without warrant.",
		h.generator.contexts[0])

	assert.NotEmpty(t, rec.Header().Get(correlation.HeaderName))
	assert.Contains(t, h.logs.String(), "Question answered")
}

func TestAskTruncatesContext(t *testing.T) {
	h := newHarness(t, Config{MaxContextChars: 20, TopK: 1})

	rec := h.do(t, http.MethodPost, "/ask", `{"question":"hurt"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, h.generator.contexts, 1)
	assert.Equal(t, "Whoever voluntarily ", h.generator.contexts[0])
}

func TestAskServesRepeatQuestionsFromCache(t *testing.T) {
	h := newHarness(t, Config{})

	first := h.do(t, http.MethodPost, "/ask", `{"question":"What is qisas?"}`, nil)
	require.Equal(t, http.StatusOK, first.Code)

	h.generator.answer = "changed"
	second := h.do(t, http.MethodPost, "/ask", `{"question":"what is  QISAS?"}`, nil)
	require.Equal(t, http.StatusOK, second.Code)

	var resp AskResponse
	decode(t, second, &resp)
	assert.Equal(t, "Imprisonment.", resp.Answer)
	assert.Len(t, resp.Sources, 3)
	assert.Len(t, h.retriever.queries, 1)
	assert.Len(t, h.generator.contexts, 1)
}

func TestAskIgnoresCacheFailures(t *testing.T) {
	h := newHarness(t, Config{})
	h.cache.getErr = errors.New("redis down")

	rec := h.do(t, http.MethodPost, "/ask", `{"question":"What is qisas?"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, h.logs.String(), "Answer cache lookup failed")
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		setup   func(h *harness)
		wantErr string
	}{
		{name: "malformed body", body: `{"question":`, wantErr: "invalid request body"},
		{name: "missing question", body: `{}`, wantErr: ErrNoQuestion.Error()},
		{name: "blank question", body: `{"question":"   "}`, wantErr: ErrNoQuestion.Error()},
		{
			name:    "empty store",
			body:    `{"question":"q"}`,
			setup:   func(h *harness) { h.retriever.err = vectorstore.ErrEmpty },
			wantErr: "vector store is empty",
		},
		{
			name:    "generation failure",
			body:    `{"question":"q"}`,
			setup:   func(h *harness) { h.generator.err = errors.New("model timeout") },
			wantErr: "generate answer: model timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			if tt.setup != nil {
				tt.setup(h)
			}
			rec := h.do(t, http.MethodPost, "/ask", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			decode(t, rec, &resp)
			assert.Contains(t, resp["error"], tt.wantErr)
			assert.Empty(t, h.cache.entries)
		})
	}
}

func TestHealthAndMemory(t *testing.T) {
	h := newHarness(t, Config{})

	rec := h.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	decode(t, rec, &health)
	assert.Equal(t, HealthResponse{Status: "healthy", Device: "cpu", MemoryAvailable: 1.5}, health)

	rec = h.do(t, http.MethodGet, "/memory", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var memory MemoryResponse
	decode(t, rec, &memory)
	assert.Equal(t, MemoryResponse{RAMAvailable: "1.50GB", GPUAvailable: "N/A"}, memory)
}

func TestHealthReportsRealMemory(t *testing.T) {
	h := newHarness(t, Config{})
	h.srv.memory = sysmem.Read

	vm, err := mem.VirtualMemory()
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	decode(t, rec, &health)
	assert.Greater(t, health.MemoryAvailable, 0.0)
	assert.LessOrEqual(t, health.MemoryAvailable, float64(vm.Total)/(1<<30))
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	h := newHarness(t, Config{})

	rec := h.do(t, http.MethodGet, "/health", "", http.Header{correlation.HeaderName: {"client-1-abcdef"}})
	assert.Equal(t, "client-1-abcdef", rec.Header().Get(correlation.HeaderName))

	rec = h.do(t, http.MethodGet, "/health", "", http.Header{correlation.HeaderName: {"bad\nid"}})
	assert.True(t, strings.HasPrefix(rec.Header().Get(correlation.HeaderName), "api-"))
}

func TestCORS(t *testing.T) {
	h := newHarness(t, Config{CORSAllowOrigin: "https://lawqa.example"})

	rec := h.do(t, http.MethodOptions, "/ask", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://lawqa.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Empty(t, h.retriever.queries)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t, Config{})
	rec := h.do(t, http.MethodGet, "/ask", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, Config{RequestTimeout: 5 * time.Second})

	h.do(t, http.MethodPost, "/ask", `{"question":"q"}`, nil)
	h.do(t, http.MethodPost, "/ask", `{}`, nil)

	rec := h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `lawqa_requests_total{endpoint="/ask",service="api",status_code="200"} 1`)
	assert.Contains(t, body, `lawqa_requests_total{endpoint="/ask",service="api",status_code="400"} 1`)
	assert.Contains(t, body, `lawqa_cache_lookups_total{result="miss",service="api"} 1`)
	assert.Contains(t, body, `lawqa_answers_total{service="api"} 1`)
}
