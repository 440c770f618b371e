package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/retrieval"
	"github.com/lazypower/recall/internal/store"
)

// RetrieveRequest is the body of POST /api/retrieve and the search routes.
type RetrieveRequest struct {
	Query   string            `json:"query"`
	TopK    *int              `json:"top_k,omitempty"`
	Filters retrieval.Filters `json:"filters,omitempty"`
	Mode    string            `json:"mode,omitempty"`
}

// EnrichRequest is the body of POST /api/enrich.
type EnrichRequest struct {
	Query   string  `json:"query"`
	Context *string `json:"context"`
	TopK    *int    `json:"top_k,omitempty"`
}

// DocumentRequest is the body of POST /api/documents.
type DocumentRequest struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) available(w http.ResponseWriter) bool {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "retrieval pipeline not configured")
		return false
	}
	return true
}

// validTopK rejects negative counts. An absent top_k leaves the pipeline
// default in place and zero asks for no results.
func validTopK(w http.ResponseWriter, topK *int) bool {
	if topK != nil && *topK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must be >= 0")
		return false
	}
	return true
}

func (s *Server) handleRetrieveQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := RetrieveRequest{Query: q.Get("q"), Mode: q.Get("mode")}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	if v := q.Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "top_k must be an integer")
			return
		}
		req.TopK = &n
	}
	s.retrieve(w, r, req)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	s.retrieve(w, r, req)
}

func (s *Server) retrieve(w http.ResponseWriter, r *http.Request, req RetrieveRequest) {
	if !validTopK(w, req.TopK) || !s.available(w) {
		return
	}
	resp := s.pipeline.Retrieve(r.Context(), retrieval.Request{
		Query:   req.Query,
		TopK:    req.TopK,
		Filters: req.Filters,
		Mode:    retrieval.Mode(req.Mode),
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchHybrid(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	if !validTopK(w, req.TopK) || !s.available(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.SearchHybrid(r.Context(), req.Query, req.TopK, req.Filters))
}

// handleModeSearch serves a retrieve pinned to one mode; any mode in the body is ignored.
func (s *Server) handleModeSearch(mode retrieval.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RetrieveRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query required")
			return
		}
		req.Mode = string(mode)
		s.retrieve(w, r, req)
	}
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req EnrichRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	if !validTopK(w, req.TopK) || !s.available(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.EnrichContext(r.Context(), req.Query, req.Context, req.TopK))
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if !decode(w, r, &req) {
		return
	}
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not configured")
		return
	}

	res, err := s.engine.AddDocument(r.Context(), store.Document{
		ID:       req.ID,
		Text:     req.Text,
		Metadata: req.Metadata,
	})
	switch {
	case errors.Is(err, engine.ErrEmptyDocument), errors.Is(err, engine.ErrDocumentTooLarge):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("add document", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.db.GetDocument(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.db.DeleteDocument(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}
