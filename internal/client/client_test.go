package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"surveyflow/internal/survey"
)

func TestBearerTokenSent(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		json.NewEncoder(w).Encode(SubmitResponse{WorkflowID: "wf-1", Status: survey.StatusStarted})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "secret")
	resp, err := c.SubmitRFQ(context.Background(), survey.RFQ{Title: "T"})
	if err != nil {
		t.Fatalf("SubmitRFQ: %v", err)
	}
	if resp.WorkflowID != "wf-1" {
		t.Errorf("WorkflowID = %q", resp.WorkflowID)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
}

func TestReviewByWorkflowNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no review"})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	if _, err := c.ReviewByWorkflow(context.Background(), "wf-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestServerErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"bbolt exploded"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	_, err := c.FetchSurvey(context.Background(), "sv-1")
	if err == nil || !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "bbolt exploded") {
		t.Errorf("err = %v, want status and body surfaced", err)
	}
}

func TestSubmitDecisionPath(t *testing.T) {
	var gotMethod, gotPath string
	var gotReq DecisionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	err := c.SubmitDecision(context.Background(), "rev-1", DecisionRequest{
		Decision: survey.DecisionApprove,
		Reason:   "timeout",
	})
	if err != nil {
		t.Fatalf("SubmitDecision: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/reviews/rev-1/decision" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotReq.Decision != survey.DecisionApprove || gotReq.Reason != "timeout" {
		t.Errorf("decoded request = %+v", gotReq)
	}
}

func TestWebSocketURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8844", "ws://localhost:8844/ws/survey/wf-1"},
		{"https://surveys.example.com", "wss://surveys.example.com/ws/survey/wf-1"},
		{"http://localhost:8844/", "ws://localhost:8844/ws/survey/wf-1"},
	}
	for _, tc := range cases {
		c := New(tc.base, "")
		if got := c.WebSocketURL("wf-1"); got != tc.want {
			t.Errorf("WebSocketURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}
