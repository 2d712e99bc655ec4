package httpserver

import "surveyflow/internal/survey"

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// SubmitResponse acknowledges an RFQ submission.
type SubmitResponse struct {
	WorkflowID string                `json:"workflow_id"`
	SurveyID   string                `json:"survey_id,omitempty"`
	Status     survey.WorkflowStatus `json:"status"`
}

// EditPromptRequest represents a saved prompt edit.
type EditPromptRequest struct {
	EditedPrompt string `json:"edited_prompt"`
	EditReason   string `json:"edit_reason,omitempty"`
	EditedBy     string `json:"edited_by,omitempty"`
}

// DecisionRequest represents a review decision.
type DecisionRequest struct {
	Decision survey.Decision `json:"decision"`
	Notes    string          `json:"notes,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// AckResponse is a minimal acknowledgement body.
type AckResponse struct {
	Status string `json:"status"`
}

// GoldenListResponse represents the list of golden examples.
type GoldenListResponse struct {
	Golden []survey.GoldenExample `json:"golden"`
}
