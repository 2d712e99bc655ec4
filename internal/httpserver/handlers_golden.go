package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"surveyflow/internal/store"
	"surveyflow/internal/survey"
)

// handleGoldenCollection handles GET /golden and POST /golden
func (s *HTTPServer) handleGoldenCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		golden, err := s.store.ListGolden()
		if err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list golden examples: %v", err))
			return
		}
		if golden == nil {
			golden = []survey.GoldenExample{}
		}
		respondJSON(w, http.StatusOK, GoldenListResponse{Golden: golden})

	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var g survey.GoldenExample
		if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if g.Title == "" {
			respondError(w, http.StatusBadRequest, "title is required")
			return
		}
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		g.CreatedAt = time.Now()
		g.UpdatedAt = g.CreatedAt

		if err := s.store.PutGolden(&g); err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save golden example: %v", err))
			return
		}
		respondJSON(w, http.StatusCreated, g)

	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGoldenItem handles GET/PUT/DELETE /golden/{id}
func (s *HTTPServer) handleGoldenItem(w http.ResponseWriter, r *http.Request) {
	// Parse path: /golden/{id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[1] == "" {
		respondError(w, http.StatusBadRequest, "invalid path format (expected /golden/{id})")
		return
	}
	id := parts[1]

	switch r.Method {
	case http.MethodGet:
		g, err := s.store.GetGolden(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, fmt.Sprintf("golden example %q not found", id))
				return
			}
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load golden example: %v", err))
			return
		}
		respondJSON(w, http.StatusOK, g)

	case http.MethodPut:
		existing, err := s.store.GetGolden(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, fmt.Sprintf("golden example %q not found", id))
				return
			}
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load golden example: %v", err))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var g survey.GoldenExample
		if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		g.ID = id
		g.CreatedAt = existing.CreatedAt
		g.UpdatedAt = time.Now()

		if err := s.store.PutGolden(&g); err != nil {
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save golden example: %v", err))
			return
		}
		respondJSON(w, http.StatusOK, g)

	case http.MethodDelete:
		if err := s.store.DeleteGolden(id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, fmt.Sprintf("golden example %q not found", id))
				return
			}
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to delete golden example: %v", err))
			return
		}
		respondJSON(w, http.StatusOK, AckResponse{Status: "ok"})

	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
