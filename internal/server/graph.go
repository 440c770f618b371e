package server

import (
	"errors"
	"net/http"

	"github.com/lazypower/recall/internal/store"
)

// Graph request bodies mirror the memory tool argument shapes.
type (
	entitiesRequest struct {
		Entities []store.Entity `json:"entities"`
	}
	entityNamesRequest struct {
		EntityNames []string `json:"entityNames"`
	}
	relationsRequest struct {
		Relations []store.Relation `json:"relations"`
	}
	namesRequest struct {
		Names []string `json:"names"`
	}
	observationsRequest struct {
		Observations []ObservationInput `json:"observations"`
	}
	observationDeletionsRequest struct {
		Deletions []ObservationDeletion `json:"deletions"`
	}
)

// ObservationInput adds contents to one entity.
type ObservationInput struct {
	EntityName string   `json:"entityName"`
	Contents   []string `json:"contents"`
}

// ObservationDeletion removes observations from one entity.
type ObservationDeletion struct {
	EntityName   string   `json:"entityName"`
	Observations []string `json:"observations"`
}

// ObservationResult reports what AddObservations stored for one entity.
type ObservationResult struct {
	EntityName        string   `json:"entityName"`
	AddedObservations []string `json:"addedObservations"`
}

// storeError maps store sentinels onto HTTP status codes.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleReadGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.db.ReadGraph()
	if err != nil {
		s.storeError(w, "read graph", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleSearchNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q parameter required")
		return
	}
	g, err := s.db.SearchNodes(q)
	if err != nil {
		s.storeError(w, "search nodes", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleOpenNodes(w http.ResponseWriter, r *http.Request) {
	var req namesRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := s.db.OpenNodes(req.Names)
	if err != nil {
		s.storeError(w, "open nodes", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleCreateEntities(w http.ResponseWriter, r *http.Request) {
	var req entitiesRequest
	if !decode(w, r, &req) {
		return
	}
	created, err := s.db.CreateEntities(req.Entities)
	if err != nil {
		s.storeError(w, "create entities", err)
		return
	}
	if created == nil {
		created = []store.Entity{}
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleDeleteEntities(w http.ResponseWriter, r *http.Request) {
	var req entityNamesRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.db.DeleteEntities(req.EntityNames); err != nil {
		s.storeError(w, "delete entities", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.EntityNames)})
}

func (s *Server) handleCreateRelations(w http.ResponseWriter, r *http.Request) {
	var req relationsRequest
	if !decode(w, r, &req) {
		return
	}
	created, err := s.db.CreateRelations(req.Relations)
	if err != nil {
		s.storeError(w, "create relations", err)
		return
	}
	if created == nil {
		created = []store.Relation{}
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *Server) handleDeleteRelations(w http.ResponseWriter, r *http.Request) {
	var req relationsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.db.DeleteRelations(req.Relations); err != nil {
		s.storeError(w, "delete relations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.Relations)})
}

func (s *Server) handleAddObservations(w http.ResponseWriter, r *http.Request) {
	var req observationsRequest
	if !decode(w, r, &req) {
		return
	}
	out := make([]ObservationResult, 0, len(req.Observations))
	for _, o := range req.Observations {
		added, err := s.db.AddObservations(o.EntityName, o.Contents)
		if err != nil {
			s.storeError(w, "add observations", err)
			return
		}
		if added == nil {
			added = []string{}
		}
		out = append(out, ObservationResult{EntityName: o.EntityName, AddedObservations: added})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteObservations(w http.ResponseWriter, r *http.Request) {
	var req observationDeletionsRequest
	if !decode(w, r, &req) {
		return
	}
	for _, d := range req.Deletions {
		if err := s.db.DeleteObservations(d.EntityName, d.Observations); err != nil {
			s.storeError(w, "delete observations", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.Deletions)})
}
