package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"surveyflow/internal/store"
	"surveyflow/internal/survey"
)

// handleSubmit handles POST /workflow-submit
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var rfq survey.RFQ
	if err := json.NewDecoder(r.Body).Decode(&rfq); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	run, err := s.engine.Submit(rfq)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("failed to submit workflow: %v", err))
		return
	}

	respondJSON(w, http.StatusCreated, SubmitResponse{
		WorkflowID: run.WorkflowID,
		Status:     survey.StatusStarted,
	})
}

// handleGetSurvey handles GET /survey/{survey_id}
func (s *HTTPServer) handleGetSurvey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Parse path: /survey/{survey_id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[1] == "" {
		respondError(w, http.StatusBadRequest, "invalid path format (expected /survey/{survey_id})")
		return
	}

	sv, err := s.store.GetSurvey(parts[1])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("survey %q not found", parts[1]))
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load survey: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, sv)
}
