package survey

import "time"

// WorkflowStatus describes the client-observable lifecycle of one generation job.
type WorkflowStatus string

const (
	StatusIdle       WorkflowStatus = "idle"
	StatusStarted    WorkflowStatus = "started"
	StatusInProgress WorkflowStatus = "in_progress"
	StatusPaused     WorkflowStatus = "paused"
	StatusCompleted  WorkflowStatus = "completed"
	StatusFailed     WorkflowStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RFQ is a request for quotation: the raw brief a survey is generated from.
type RFQ struct {
	Title          string   `yaml:"title" json:"title"`
	Company        string   `yaml:"company,omitempty" json:"company,omitempty"`
	Industry       string   `yaml:"industry,omitempty" json:"industry,omitempty"`
	Description    string   `yaml:"description" json:"description"`
	Objectives     []string `yaml:"objectives,omitempty" json:"objectives,omitempty"`
	TargetAudience string   `yaml:"target_audience,omitempty" json:"target_audience,omitempty"`
	QuestionCount  int      `yaml:"question_count,omitempty" json:"question_count,omitempty"`
}

// QuestionType enumerates the supported question renderings.
type QuestionType string

const (
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionMultiChoice  QuestionType = "multi_choice"
	QuestionOpenText     QuestionType = "open_text"
	QuestionRating       QuestionType = "rating"
	QuestionNPS          QuestionType = "nps"
)

// Question is one item in a generated questionnaire.
type Question struct {
	ID       string       `yaml:"id,omitempty" json:"id"`
	Text     string       `yaml:"text" json:"text"`
	Type     QuestionType `yaml:"type" json:"type"`
	Options  []string     `yaml:"options,omitempty" json:"options,omitempty"`
	Required bool         `yaml:"required,omitempty" json:"required,omitempty"`
}

// Survey is the finished artifact of a generation workflow.
type Survey struct {
	ID         string     `yaml:"id,omitempty" json:"id"`
	WorkflowID string     `yaml:"workflow_id,omitempty" json:"workflow_id"`
	Title      string     `yaml:"title" json:"title"`
	Questions  []Question `yaml:"questions" json:"questions"`
	CreatedAt  time.Time  `yaml:"created_at,omitempty" json:"created_at"`
}

// GoldenExample is a curated reference RFQ→survey transformation used to
// ground the drafting prompt.
type GoldenExample struct {
	ID        string    `yaml:"id,omitempty" json:"id"`
	Title     string    `yaml:"title" json:"title"`
	Industry  string    `yaml:"industry,omitempty" json:"industry,omitempty"`
	RFQ       RFQ       `yaml:"rfq" json:"rfq"`
	Survey    Survey    `yaml:"survey" json:"survey"`
	Notes     string    `yaml:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time `yaml:"created_at,omitempty" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at"`
}

// WorkflowRun is the server-side record of one generation run.
type WorkflowRun struct {
	WorkflowID string         `json:"workflow_id"`
	Status     WorkflowStatus `json:"status"`
	SurveyID   string         `json:"survey_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ReviewStatus describes the server-owned review lifecycle.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewInReview ReviewStatus = "in_review"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Terminal reports whether the review can no longer change.
func (s ReviewStatus) Terminal() bool {
	return s == ReviewApproved || s == ReviewRejected
}

// Decision is a review outcome submitted by a reviewer (or synthesized on
// timeout).
type Decision string

const (
	DecisionApprove          Decision = "approve"
	DecisionReject           Decision = "reject"
	DecisionApproveWithEdits Decision = "approve_with_edits"
)

// Valid reports whether d is one of the accepted decision kinds.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionApproveWithEdits:
		return true
	}
	return false
}

// ReviewRecord is one human-in-the-loop checkpoint pausing a workflow until
// the drafting prompt is approved. The server owns it; clients hold a
// read-through cache copy.
type ReviewRecord struct {
	ID                 string       `json:"id"`
	WorkflowID         string       `json:"workflow_id"`
	ReviewStatus       ReviewStatus `json:"review_status"`
	PromptData         string       `json:"prompt_data"`
	EditedPromptData   string       `json:"edited_prompt_data,omitempty"`
	OriginalPromptData string       `json:"original_prompt_data"`
	PromptEdited       bool         `json:"prompt_edited"`
	EditedBy           string       `json:"edited_by,omitempty"`
	EditReason         string       `json:"edit_reason,omitempty"`
	ReviewDeadline     time.Time    `json:"review_deadline"`
	ReviewerID         string       `json:"reviewer_id,omitempty"`
	ReviewerNotes      string       `json:"reviewer_notes,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// ActivePrompt returns the prompt the generator will actually use: the edited
// variant when one has been saved, otherwise the original draft.
func (r *ReviewRecord) ActivePrompt() string {
	if r.PromptEdited && r.EditedPromptData != "" {
		return r.EditedPromptData
	}
	return r.PromptData
}
