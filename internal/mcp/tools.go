package mcpserver

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"surveyflow/internal/client"
	"surveyflow/internal/survey"
)

// -- submit_rfq --

type submitRFQInput struct {
	Title          string   `json:"title" jsonschema:"Survey title"`
	Company        string   `json:"company,omitempty" jsonschema:"Requesting company"`
	Industry       string   `json:"industry,omitempty" jsonschema:"Industry vertical"`
	Description    string   `json:"description" jsonschema:"What the survey should find out"`
	Objectives     []string `json:"objectives,omitempty" jsonschema:"Research objectives"`
	TargetAudience string   `json:"target_audience,omitempty" jsonschema:"Who will answer the survey"`
	QuestionCount  int      `json:"question_count,omitempty" jsonschema:"Desired number of questions"`
}

type submitRFQOutput struct {
	WorkflowID string                `json:"workflow_id"`
	Status     survey.WorkflowStatus `json:"status"`
}

func submitRFQHandler(ctx context.Context, req *mcpsdk.CallToolRequest, input submitRFQInput) (*mcpsdk.CallToolResult, submitRFQOutput, error) {
	if input.Title == "" {
		return nil, submitRFQOutput{}, fmt.Errorf("title is required")
	}
	resp, err := api.SubmitRFQ(ctx, survey.RFQ{
		Title:          input.Title,
		Company:        input.Company,
		Industry:       input.Industry,
		Description:    input.Description,
		Objectives:     input.Objectives,
		TargetAudience: input.TargetAudience,
		QuestionCount:  input.QuestionCount,
	})
	if err != nil {
		return nil, submitRFQOutput{}, err
	}
	return nil, submitRFQOutput{WorkflowID: resp.WorkflowID, Status: resp.Status}, nil
}

// -- get_review --

type getReviewInput struct {
	WorkflowID string `json:"workflow_id" jsonschema:"Workflow ID the review belongs to"`
}

type getReviewOutput struct {
	Review *survey.ReviewRecord `json:"review"`
}

func getReviewHandler(ctx context.Context, req *mcpsdk.CallToolRequest, input getReviewInput) (*mcpsdk.CallToolResult, getReviewOutput, error) {
	if input.WorkflowID == "" {
		return nil, getReviewOutput{}, fmt.Errorf("workflow_id is required")
	}
	rec, err := api.ReviewByWorkflow(ctx, input.WorkflowID)
	if err != nil {
		return nil, getReviewOutput{}, err
	}
	return nil, getReviewOutput{Review: rec}, nil
}

// -- edit_prompt --

type editPromptInput struct {
	ReviewID     string `json:"review_id" jsonschema:"Review ID"`
	EditedPrompt string `json:"edited_prompt" jsonschema:"Replacement prompt text"`
	EditReason   string `json:"edit_reason,omitempty" jsonschema:"Why the prompt was changed"`
}

type editPromptOutput struct {
	Review *survey.ReviewRecord `json:"review"`
}

func editPromptHandler(ctx context.Context, req *mcpsdk.CallToolRequest, input editPromptInput) (*mcpsdk.CallToolResult, editPromptOutput, error) {
	if input.ReviewID == "" || input.EditedPrompt == "" {
		return nil, editPromptOutput{}, fmt.Errorf("review_id and edited_prompt are required")
	}
	rec, err := api.EditPrompt(ctx, input.ReviewID, client.EditPromptRequest{
		EditedPrompt: input.EditedPrompt,
		EditReason:   input.EditReason,
	})
	if err != nil {
		return nil, editPromptOutput{}, err
	}
	return nil, editPromptOutput{Review: rec}, nil
}

// -- decide_review --

type decideReviewInput struct {
	ReviewID string `json:"review_id" jsonschema:"Review ID"`
	Decision string `json:"decision" jsonschema:"One of approve, reject, approve_with_edits"`
	Notes    string `json:"notes,omitempty" jsonschema:"Reviewer notes"`
}

type decideReviewOutput struct {
	Status string `json:"status"`
}

func decideReviewHandler(ctx context.Context, req *mcpsdk.CallToolRequest, input decideReviewInput) (*mcpsdk.CallToolResult, decideReviewOutput, error) {
	d := survey.Decision(input.Decision)
	if !d.Valid() {
		return nil, decideReviewOutput{}, fmt.Errorf("invalid decision %q", input.Decision)
	}
	if input.ReviewID == "" {
		return nil, decideReviewOutput{}, fmt.Errorf("review_id is required")
	}
	if err := api.SubmitDecision(ctx, input.ReviewID, client.DecisionRequest{Decision: d, Notes: input.Notes}); err != nil {
		return nil, decideReviewOutput{}, err
	}
	return nil, decideReviewOutput{Status: "ok"}, nil
}

// -- get_survey --

type getSurveyInput struct {
	SurveyID string `json:"survey_id" jsonschema:"Survey ID"`
}

type getSurveyOutput struct {
	Survey *survey.Survey `json:"survey"`
}

func getSurveyHandler(ctx context.Context, req *mcpsdk.CallToolRequest, input getSurveyInput) (*mcpsdk.CallToolResult, getSurveyOutput, error) {
	if input.SurveyID == "" {
		return nil, getSurveyOutput{}, fmt.Errorf("survey_id is required")
	}
	sv, err := api.FetchSurvey(ctx, input.SurveyID)
	if err != nil {
		return nil, getSurveyOutput{}, err
	}
	return nil, getSurveyOutput{Survey: sv}, nil
}

// -- list_golden --

type listGoldenInput struct{}

type listGoldenOutput struct {
	Golden []survey.GoldenExample `json:"golden"`
}

func listGoldenHandler(ctx context.Context, req *mcpsdk.CallToolRequest, input listGoldenInput) (*mcpsdk.CallToolResult, listGoldenOutput, error) {
	golden, err := api.ListGolden(ctx)
	if err != nil {
		return nil, listGoldenOutput{}, err
	}
	if golden == nil {
		golden = []survey.GoldenExample{}
	}
	return nil, listGoldenOutput{Golden: golden}, nil
}
