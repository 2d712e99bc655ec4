package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"surveyflow/internal/survey"
)

const (
	defaultModel     = "claude-3-haiku-20240307"
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	surveyMaxTokens  = 4096
	apiTimeout       = 60 * time.Second
	maxResponseSize  = 1 << 20 // 1MB limit for API response body
)

// AnthropicGenerator drafts questionnaires through the Anthropic Messages
// API. The approved review prompt is sent verbatim as the user message.
type AnthropicGenerator struct {
	APIKey  string
	BaseURL string
	Model   string

	client *http.Client
}

// NewAnthropicGenerator creates an API-backed generator.
func NewAnthropicGenerator(apiKey, baseURL, model string) *AnthropicGenerator {
	return &AnthropicGenerator{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   model,
		client:  &http.Client{Timeout: apiTimeout},
	}
}

// apiMessage represents a message in the Anthropic API format.
type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiRequest represents the Anthropic Messages API request body.
type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

// apiResponse represents the Anthropic Messages API response.
type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends the approved prompt to the model and parses the survey JSON
// out of the reply.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string, rfq survey.RFQ) (*survey.Survey, error) {
	baseURL := g.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := g.Model
	if model == "" {
		model = defaultModel
	}

	reqBody := apiRequest{
		Model:     model,
		MaxTokens: surveyMaxTokens,
		Messages: []apiMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint, err := url.JoinPath(baseURL, "v1/messages")
	if err != nil {
		return nil, fmt.Errorf("build API URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)
	if g.APIKey != "" {
		req.Header.Set("x-api-key", g.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %.200s", resp.StatusCode, string(respBody))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal API response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("API error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var text string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseSurveyJSON(text)
}

// parseSurveyJSON extracts and parses the survey from the model's text
// output.
func parseSurveyJSON(text string) (*survey.Survey, error) {
	// Try direct parse first
	var sv survey.Survey
	if err := json.Unmarshal([]byte(text), &sv); err == nil && len(sv.Questions) > 0 {
		return &sv, nil
	}

	// Try to find the first valid JSON object using json.Decoder.
	// This handles cases where the model wraps JSON in markdown or prose
	// containing braces.
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(text[i:])))
		if err := dec.Decode(&sv); err == nil && len(sv.Questions) > 0 {
			return &sv, nil
		}
	}

	return nil, fmt.Errorf("could not parse survey JSON from response: %.200s", text)
}
