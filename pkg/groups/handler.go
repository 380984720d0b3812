package groups

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns a chi router serving the store in the json-server layout:
//
//	GET /        all groups
//	GET /{id}    one group, 404 when missing
//
// Mount it under /groups.
func (s *Store) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.handleList)
	r.Get("/{id}", s.handleGet)
	return r
}

func (s *Store) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.List())
}

func (s *Store) handleGet(w http.ResponseWriter, r *http.Request) {
	g, err := s.Get(chi.URLParam(r, "id"))
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
