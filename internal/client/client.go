package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"surveyflow/internal/survey"
)

const (
	apiTimeout      = 30 * time.Second
	maxResponseSize = 1 << 20 // 1MB limit for API response bodies
)

// ErrNotFound is returned for 404 responses. For review fetches this is
// expected absence (the record may not be materialized yet), not a failure.
var ErrNotFound = errors.New("not found")

// Client is a thin typed wrapper around the surveyflow HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates an API client for the given base URL and bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: apiTimeout},
	}
}

// SubmitResponse is the server's acknowledgement of an RFQ submission.
type SubmitResponse struct {
	WorkflowID string                `json:"workflow_id"`
	SurveyID   string                `json:"survey_id,omitempty"`
	Status     survey.WorkflowStatus `json:"status"`
}

// EditPromptRequest carries a saved prompt edit.
type EditPromptRequest struct {
	EditedPrompt string `json:"edited_prompt"`
	EditReason   string `json:"edit_reason,omitempty"`
}

// DecisionRequest carries a review decision.
type DecisionRequest struct {
	Decision survey.Decision `json:"decision"`
	Notes    string          `json:"notes,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// SubmitRFQ posts an RFQ and returns the workflow handle assigned by the
// server.
func (c *Client) SubmitRFQ(ctx context.Context, rfq survey.RFQ) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/workflow-submit", rfq, &resp); err != nil {
		return nil, fmt.Errorf("submit rfq: %w", err)
	}
	return &resp, nil
}

// ReviewByWorkflow fetches the pending review for a workflow. A 404 maps to
// ErrNotFound.
func (c *Client) ReviewByWorkflow(ctx context.Context, workflowID string) (*survey.ReviewRecord, error) {
	var rec survey.ReviewRecord
	err := c.do(ctx, http.MethodGet, "/reviews/by-workflow/"+url.PathEscape(workflowID), nil, &rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// EditPrompt saves a prompt edit and returns the updated record. The server is
// the source of truth for prompt_edited, edited_by, and timestamps.
func (c *Client) EditPrompt(ctx context.Context, reviewID string, req EditPromptRequest) (*survey.ReviewRecord, error) {
	var rec survey.ReviewRecord
	if err := c.do(ctx, http.MethodPut, "/reviews/"+url.PathEscape(reviewID)+"/edit-prompt", req, &rec); err != nil {
		return nil, fmt.Errorf("edit prompt: %w", err)
	}
	return &rec, nil
}

// SubmitDecision posts a review decision. Fire-and-forget beyond error
// surfacing; the server resumes the paused workflow out-of-band.
func (c *Client) SubmitDecision(ctx context.Context, reviewID string, req DecisionRequest) error {
	if err := c.do(ctx, http.MethodPost, "/reviews/"+url.PathEscape(reviewID)+"/decision", req, nil); err != nil {
		return fmt.Errorf("submit decision: %w", err)
	}
	return nil
}

// FetchSurvey retrieves a completed survey artifact.
func (c *Client) FetchSurvey(ctx context.Context, surveyID string) (*survey.Survey, error) {
	var sv survey.Survey
	if err := c.do(ctx, http.MethodGet, "/survey/"+url.PathEscape(surveyID), nil, &sv); err != nil {
		return nil, fmt.Errorf("fetch survey: %w", err)
	}
	return &sv, nil
}

// ListGolden lists curated golden examples.
func (c *Client) ListGolden(ctx context.Context) ([]survey.GoldenExample, error) {
	var out struct {
		Golden []survey.GoldenExample `json:"golden"`
	}
	if err := c.do(ctx, http.MethodGet, "/golden", nil, &out); err != nil {
		return nil, fmt.Errorf("list golden: %w", err)
	}
	return out.Golden, nil
}

// AddGolden uploads a curated golden example.
func (c *Client) AddGolden(ctx context.Context, g survey.GoldenExample) (*survey.GoldenExample, error) {
	var saved survey.GoldenExample
	if err := c.do(ctx, http.MethodPost, "/golden", g, &saved); err != nil {
		return nil, fmt.Errorf("add golden: %w", err)
	}
	return &saved, nil
}

// RemoveGolden deletes a golden example by ID.
func (c *Client) RemoveGolden(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/golden/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("remove golden: %w", err)
	}
	return nil
}

// WebSocketURL returns the progress-stream endpoint for a workflow, derived
// from the client base URL (http→ws, https→wss).
func (c *Client) WebSocketURL(workflowID string) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws/survey/" + url.PathEscape(workflowID)
}

// Token returns the configured bearer token (used for the websocket dial
// headers).
func (c *Client) Token() string { return c.token }

// do performs one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d: %.200s", resp.StatusCode, string(respBody))
	}

	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, dst); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
