package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"surveyflow/internal/store"
	"surveyflow/internal/survey"
	"surveyflow/internal/workflow"
)

// handleReviewByWorkflow handles GET /reviews/by-workflow/{workflow_id}
func (s *HTTPServer) handleReviewByWorkflow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Parse path: /reviews/by-workflow/{workflow_id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] == "" {
		respondError(w, http.StatusBadRequest, "invalid path format (expected /reviews/by-workflow/{workflow_id})")
		return
	}

	rec, err := s.store.GetReviewByWorkflow(parts[2])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("no review for workflow %q", parts[2]))
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load review: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// handleReviewAction dispatches PUT /reviews/{id}/edit-prompt and
// POST /reviews/{id}/decision.
func (s *HTTPServer) handleReviewAction(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[1] == "" {
		respondError(w, http.StatusBadRequest, "invalid path format (expected /reviews/{id}/{action})")
		return
	}

	reviewID, action := parts[1], parts[2]
	switch action {
	case "edit-prompt":
		s.handleEditPrompt(w, r, reviewID)
	case "decision":
		s.handleDecision(w, r, reviewID)
	default:
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown review action %q", action))
	}
}

// handleEditPrompt handles PUT /reviews/{id}/edit-prompt
func (s *HTTPServer) handleEditPrompt(w http.ResponseWriter, r *http.Request, reviewID string) {
	if r.Method != http.MethodPut {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req EditPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.EditedPrompt == "" {
		respondError(w, http.StatusBadRequest, "edited_prompt is required")
		return
	}

	rec, err := s.store.GetReview(reviewID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("review %q not found", reviewID))
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load review: %v", err))
		return
	}
	if rec.ReviewStatus.Terminal() {
		respondError(w, http.StatusConflict, "review is already resolved")
		return
	}

	rec.EditedPromptData = req.EditedPrompt
	rec.PromptEdited = true
	rec.EditReason = req.EditReason
	rec.EditedBy = req.EditedBy
	rec.ReviewStatus = survey.ReviewInReview
	rec.UpdatedAt = time.Now()

	if err := s.store.PutReview(rec); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save review: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// handleDecision handles POST /reviews/{id}/decision
func (s *HTTPServer) handleDecision(w http.ResponseWriter, r *http.Request, reviewID string) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if !req.Decision.Valid() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid decision %q", req.Decision))
		return
	}

	rec, err := s.store.GetReview(reviewID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, fmt.Sprintf("review %q not found", reviewID))
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load review: %v", err))
		return
	}
	if rec.ReviewStatus.Terminal() {
		respondError(w, http.StatusConflict, "review is already decided")
		return
	}

	// Resume the paused run first; the review only flips to terminal once the
	// workflow has accepted the decision.
	if err := s.engine.Decide(rec.WorkflowID, req.Decision); err != nil {
		if errors.Is(err, workflow.ErrNotPaused) || errors.Is(err, workflow.ErrUnknownWorkflow) {
			respondError(w, http.StatusConflict, fmt.Sprintf("cannot resume workflow: %v", err))
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to resume workflow: %v", err))
		return
	}

	if req.Decision == survey.DecisionReject {
		rec.ReviewStatus = survey.ReviewRejected
	} else {
		rec.ReviewStatus = survey.ReviewApproved
	}
	rec.ReviewerNotes = req.Notes
	rec.UpdatedAt = time.Now()

	if err := s.store.PutReview(rec); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save review: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, AckResponse{Status: "ok"})
}
