package workflow

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"surveyflow/internal/generate"
	"surveyflow/internal/store"
	"surveyflow/internal/survey"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewEngine(st, generate.TemplateGenerator{}, nil), st
}

// waitForStatus polls the run until it reaches the wanted status.
func waitForStatus(t *testing.T, r *Run, want survey.WorkflowStatus) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("run never reached %s (status %s)", want, r.Status())
}

func testRFQ() survey.RFQ {
	return survey.RFQ{
		Title:       "Churn Drivers",
		Description: "why do customers leave",
		Industry:    "saas",
		Objectives:  []string{"identify top cancellation reasons"},
	}
}

func TestRunPausesForReviewThenCompletes(t *testing.T) {
	e, st := newTestEngine(t)

	run, err := e.Submit(testRFQ())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, run, survey.StatusPaused)

	// The pause created a pending review holding the drafting prompt.
	rec, err := st.GetReviewByWorkflow(run.WorkflowID)
	if err != nil {
		t.Fatalf("GetReviewByWorkflow: %v", err)
	}
	if rec.ReviewStatus != survey.ReviewPending {
		t.Errorf("ReviewStatus = %s, want pending", rec.ReviewStatus)
	}
	if rec.PromptData == "" || rec.OriginalPromptData != rec.PromptData {
		t.Errorf("review prompt not initialized: %+v", rec)
	}
	if rec.ReviewDeadline.IsZero() {
		t.Error("review deadline not set")
	}

	if err := e.Decide(run.WorkflowID, survey.DecisionApprove); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	<-run.Done()

	if run.Status() != survey.StatusCompleted {
		t.Fatalf("Status = %s, want completed", run.Status())
	}

	persisted, err := st.GetRun(run.WorkflowID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if persisted.Status != survey.StatusCompleted || persisted.SurveyID == "" {
		t.Errorf("persisted run = %+v", persisted)
	}

	sv, err := st.GetSurvey(persisted.SurveyID)
	if err != nil {
		t.Fatalf("GetSurvey: %v", err)
	}
	if sv.WorkflowID != run.WorkflowID || len(sv.Questions) == 0 {
		t.Errorf("stored survey = %+v", sv)
	}
	for _, q := range sv.Questions {
		if q.ID == "" {
			t.Error("question without assigned ID")
		}
	}
}

func TestRejectFailsRun(t *testing.T) {
	e, st := newTestEngine(t)

	run, err := e.Submit(testRFQ())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, run, survey.StatusPaused)

	if err := e.Decide(run.WorkflowID, survey.DecisionReject); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	<-run.Done()

	if run.Status() != survey.StatusFailed {
		t.Errorf("Status = %s, want failed", run.Status())
	}
	persisted, err := st.GetRun(run.WorkflowID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if persisted.Error != "prompt rejected by reviewer" {
		t.Errorf("Error = %q", persisted.Error)
	}
}

func TestEditedPromptUsedAfterApproval(t *testing.T) {
	e, st := newTestEngine(t)

	run, err := e.Submit(testRFQ())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, run, survey.StatusPaused)

	rec, err := st.GetReviewByWorkflow(run.WorkflowID)
	if err != nil {
		t.Fatalf("GetReviewByWorkflow: %v", err)
	}
	rec.EditedPromptData = "rewritten prompt"
	rec.PromptEdited = true
	if err := st.PutReview(rec); err != nil {
		t.Fatalf("PutReview: %v", err)
	}

	if err := e.Decide(run.WorkflowID, survey.DecisionApproveWithEdits); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	<-run.Done()

	if run.Status() != survey.StatusCompleted {
		t.Errorf("Status = %s, want completed", run.Status())
	}
}

func TestDecideGuards(t *testing.T) {
	e, _ := newTestEngine(t)

	if err := e.Decide("nope", survey.DecisionApprove); !errors.Is(err, ErrUnknownWorkflow) {
		t.Errorf("Decide(unknown) = %v, want ErrUnknownWorkflow", err)
	}

	run, err := e.Submit(testRFQ())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, run, survey.StatusPaused)

	if err := e.Decide(run.WorkflowID, survey.DecisionApprove); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	<-run.Done()

	if err := e.Decide(run.WorkflowID, survey.DecisionApprove); !errors.Is(err, ErrNotPaused) {
		t.Errorf("Decide after terminal = %v, want ErrNotPaused", err)
	}
}

func TestSubscribeReplaysHistory(t *testing.T) {
	e, _ := newTestEngine(t)

	run, err := e.Submit(testRFQ())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, run, survey.StatusPaused)

	// Late subscriber still sees the full ordered stream.
	events, cancel := run.Subscribe()
	defer cancel()

	ev := <-events
	if ev.Type != "progress" || ev.Step != "parsing" {
		t.Fatalf("first replayed event = %+v", ev)
	}
	ev = <-events
	if ev.Type != "progress" || ev.Step != "retrieving_examples" {
		t.Fatalf("second replayed event = %+v", ev)
	}
	ev = <-events
	if ev.Type != "paused" {
		t.Fatalf("third replayed event = %+v", ev)
	}

	if err := e.Decide(run.WorkflowID, survey.DecisionApprove); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	var last Event
	for ev := range events {
		last = ev
		if ev.Type == "completed" {
			break
		}
	}
	if last.Type != "completed" || last.SurveyID == "" {
		t.Errorf("terminal event = %+v", last)
	}
}

func TestSubmitRejectsEmptyRFQ(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.Submit(survey.RFQ{}); err == nil {
		t.Error("empty RFQ should be rejected")
	}
}
