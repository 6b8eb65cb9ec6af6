package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-aggregator/internal/index"
	"github.com/JakeFAU/news-aggregator/internal/metrics"
	"github.com/JakeFAU/news-aggregator/internal/middleware"
	"github.com/JakeFAU/news-aggregator/internal/query"
	"github.com/JakeFAU/news-aggregator/internal/store"
)

const (
	defaultRequestTimeout = 60 * time.Second
	maxSearchLimit        = 500
)

// Options configures a Server.
type Options struct {
	// Index may be nil at construction and installed later with SetIndex.
	Index index.Reader
	// Runs backs the /v1/runs routes. Nil answers 503.
	Runs           store.RunRepository
	MaxResults     int
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server wires HTTP handlers to the index and run repository.
type Server struct {
	router     chi.Router
	idx        atomic.Pointer[readerBox]
	maxResults int
	logger     *zap.Logger
}

type readerBox struct {
	r index.Reader
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = query.DefaultMaxResults
	}
	s := &Server{maxResults: maxResults, logger: logger}
	if opts.Index != nil {
		s.SetIndex(opts.Index)
	}

	runs := NewRunHandler(opts.Runs, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/search", s.search)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", runs.ListRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", runs.GetRun)
				r.Get("/feeds", runs.ListRunFeeds)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetIndex installs the index that /v1/search reads. It may be called while
// serving.
func (s *Server) SetIndex(r index.Reader) {
	if r == nil {
		s.idx.Store(nil)
		return
	}
	s.idx.Store(&readerBox{r: r})
}

func (s *Server) reader() index.Reader {
	if box := s.idx.Load(); box != nil {
		return box.r
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.reader() == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "indexing"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// search handles GET /v1/search?q=&limit=. It answers 400 without a term,
// 503 before an index is installed, and otherwise a query.Result.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := s.maxResults
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(val, maxSearchLimit)
	}
	idx := s.reader()
	if idx == nil {
		s.writeError(w, http.StatusServiceUnavailable, "index not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, query.Search(idx, term, limit))
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, map[string]string{"error": msg})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
