package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/retrieval"
	"github.com/lazypower/recall/internal/store"
)

// Server is the recall HTTP API server.
type Server struct {
	db       *store.DB
	engine   *engine.Engine
	pipeline *retrieval.Pipeline
	logger   *slog.Logger
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a new Server. The engine may be nil, in which case document
// writes answer 503.
func New(db *store.DB, eng *engine.Engine, pipeline *retrieval.Pipeline, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		db:       db,
		engine:   eng,
		pipeline: pipeline,
		logger:   logger.With("component", "server"),
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/retrieve", s.handleRetrieveQuery)
		r.Post("/retrieve", s.handleRetrieve)
		r.Post("/search/hybrid", s.handleSearchHybrid)
		r.Post("/search/vector", s.handleModeSearch(retrieval.ModeVector))
		r.Post("/search/graph", s.handleModeSearch(retrieval.ModeGraph))
		r.Post("/enrich", s.handleEnrich)

		r.Post("/documents", s.handleAddDocument)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Route("/graph", func(r chi.Router) {
			r.Get("/", s.handleReadGraph)
			r.Get("/search", s.handleSearchNodes)
			r.Post("/open", s.handleOpenNodes)
			r.Post("/entities", s.handleCreateEntities)
			r.Delete("/entities", s.handleDeleteEntities)
			r.Post("/relations", s.handleCreateRelations)
			r.Delete("/relations", s.handleDeleteRelations)
			r.Post("/observations", s.handleAddObservations)
			r.Delete("/observations", s.handleDeleteObservations)
		})
	})

	s.router = r
}

// requestLogger logs one line per request once the handler returns.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	modes := []retrieval.Mode{}
	if s.pipeline != nil {
		modes = s.pipeline.Modes()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
		"modes":   modes,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
