// Package server exposes the law question answering HTTP API.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lawqa/pkg/cache"
	"lawqa/pkg/correlation"
	"lawqa/pkg/logging"
	"lawqa/pkg/metrics"
	"lawqa/pkg/qa"
	"lawqa/pkg/sysmem"
	"lawqa/pkg/vectorstore"
)

// Retriever finds the chunks most similar to a query.
type Retriever interface {
	Search(query string, k int) ([]vectorstore.Result, error)
}

// Config tunes request handling.
type Config struct {
	TopK            int
	MaxContextChars int
	RequestTimeout  time.Duration
	CORSAllowOrigin string
}

// Deps are the collaborators a Server answers with. Cache may be nil.
type Deps struct {
	Retriever Retriever
	Generator qa.Generator
	Cache     cache.AnswerCache
	Metrics   *metrics.MetricsCollector
	Logger    logging.Logger
}

// Server handles /ask, /health, /memory and /metrics.
type Server struct {
	cfg       Config
	retriever Retriever
	generator qa.Generator
	cache     cache.AnswerCache
	metrics   *metrics.MetricsCollector
	logger    logging.Logger
	ids       *correlation.IDGenerator

	memory func() (sysmem.Snapshot, error)
	now    func() time.Time
}

// New builds a Server, filling zero config values with defaults.
func New(cfg Config, deps Deps) *Server {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = qa.DefaultMaxContextChars
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.CORSAllowOrigin == "" {
		cfg.CORSAllowOrigin = "*"
	}
	if deps.Cache == nil {
		deps.Cache = cache.NopCache{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetricsCollector("api")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewLogger("api")
	}

	return &Server{
		cfg:       cfg,
		retriever: deps.Retriever,
		generator: deps.Generator,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		ids:       correlation.NewIDGenerator("api"),
		memory:    sysmem.Read,
		now:       time.Now,
	}
}

// Router returns the HTTP handler with middleware applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.withCorrelation)
	r.Use(s.withCORS)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.With(s.instrument("/ask")).Post("/ask", s.handleAsk)
	r.With(s.instrument("/health")).Get("/health", s.handleHealth)
	r.With(s.instrument("/memory")).Get("/memory", s.handleMemory)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	return r
}

// withCorrelation reuses the caller's correlation ID or assigns one, echoes
// it in the response and stores a tagged logger in the request context.
func (s *Server) withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := correlation.ExtractFromHeader(r.Header.Get(correlation.HeaderName))
		if id == "" {
			id = s.ids.Generate()
		}
		w.Header().Set(correlation.HeaderName, id)

		ctx := correlation.WithID(r.Context(), id)
		ctx = logging.WithLoggerContext(ctx, s.logger.WithCorrelationID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.cfg.CORSAllowOrigin)
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+correlation.HeaderName)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Expose-Headers", correlation.HeaderName)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrument(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			s.metrics.RecordRequest(endpoint, strconv.Itoa(status), elapsed)

			logging.FromContextOr(r.Context(), s.logger).WithFields(map[string]interface{}{
				"method":      r.Method,
				"endpoint":    endpoint,
				"status_code": status,
				"duration_ms": elapsed.Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Info("Request handled")
		})
	}
}
