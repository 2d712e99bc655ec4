package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"surveyflow/internal/client"
	"surveyflow/internal/config"
	"surveyflow/internal/output"
	"surveyflow/internal/survey"
)

func newAPIClient() *client.Client {
	cfg, err := config.Load()
	if err != nil {
		output.PrintError(fmt.Errorf("load config: %w", err))
		return nil
	}
	return client.New(cfg.Client.BaseURL, cfg.Client.Token)
}

// RunReviewShow fetches and displays the review attached to a workflow.
func RunReviewShow(workflowID string) {
	api := newAPIClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := api.ReviewByWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			output.PrintError(fmt.Errorf("no review for workflow %s", workflowID))
			return
		}
		output.PrintError(err)
		return
	}

	output.Print(rec, func() {
		fmt.Printf("Review:   %s\n", rec.ID)
		fmt.Printf("Workflow: %s\n", rec.WorkflowID)
		fmt.Printf("Status:   %s\n", rec.ReviewStatus)
		fmt.Printf("Deadline: %s\n", rec.ReviewDeadline.Format(time.RFC3339))
		if rec.PromptEdited {
			fmt.Printf("Edited:   yes (by %s: %s)\n", rec.EditedBy, rec.EditReason)
		}
		if rec.ReviewerNotes != "" {
			fmt.Printf("Notes:    %s\n", rec.ReviewerNotes)
		}
		fmt.Println()
		fmt.Println(indent(rec.ActivePrompt(), "  "))
	})
}

// RunReviewDecide submits an approve or reject decision for the review
// attached to a workflow.
func RunReviewDecide(workflowID, decision, notes string) {
	api := newAPIClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := api.ReviewByWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			output.PrintError(fmt.Errorf("no review for workflow %s", workflowID))
			return
		}
		output.PrintError(err)
		return
	}
	if rec.ReviewStatus.Terminal() {
		output.PrintError(fmt.Errorf("review %s is already %s", rec.ID, rec.ReviewStatus))
		return
	}

	d := survey.Decision(decision)
	if d == survey.DecisionApprove && rec.PromptEdited {
		d = survey.DecisionApproveWithEdits
	}

	if err := api.SubmitDecision(ctx, rec.ID, client.DecisionRequest{Decision: d, Notes: notes}); err != nil {
		output.PrintError(err)
		return
	}

	output.Print(map[string]string{"review_id": rec.ID, "decision": string(d)}, func() {
		fmt.Printf("Decision %s submitted for review %s\n", d, rec.ID)
	})
}

// RunReviewEdit replaces the prompt under review with the contents of a file.
func RunReviewEdit(workflowID, promptFile, reason string) {
	data, err := os.ReadFile(promptFile)
	if err != nil {
		output.PrintError(fmt.Errorf("read prompt file: %w", err))
		return
	}

	api := newAPIClient()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := api.ReviewByWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			output.PrintError(fmt.Errorf("no review for workflow %s", workflowID))
			return
		}
		output.PrintError(err)
		return
	}

	updated, err := api.EditPrompt(ctx, rec.ID, client.EditPromptRequest{
		EditedPrompt: string(data),
		EditReason:   reason,
	})
	if err != nil {
		output.PrintError(err)
		return
	}

	output.Print(updated, func() {
		fmt.Printf("Prompt for review %s updated (status %s)\n", updated.ID, updated.ReviewStatus)
	})
}
