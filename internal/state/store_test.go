package state

import (
	"testing"

	"surveyflow/internal/survey"
)

func TestResetStartsFresh(t *testing.T) {
	st := NewStore()
	st.ApplyProgress("parsing", 10, "parsing request")
	st.Reset("wf-1")

	wf := st.Snapshot()
	if wf.Status != survey.StatusStarted {
		t.Errorf("Status = %s, want %s", wf.Status, survey.StatusStarted)
	}
	if wf.WorkflowID != "wf-1" {
		t.Errorf("WorkflowID = %q, want wf-1", wf.WorkflowID)
	}
	if wf.Progress != 0 || wf.CurrentStep != "" {
		t.Errorf("Reset did not clear progress: %+v", wf)
	}
}

func TestApplyProgressForcesInProgress(t *testing.T) {
	st := NewStore()
	st.Reset("wf-1")
	st.ApplyProgress("generating", 60, "generating questionnaire")

	wf := st.Snapshot()
	if wf.Status != survey.StatusInProgress {
		t.Errorf("Status = %s, want %s", wf.Status, survey.StatusInProgress)
	}
	if wf.Progress != 60 || wf.CurrentStep != "generating" {
		t.Errorf("unexpected snapshot: %+v", wf)
	}
}

func TestProgressDroppedAfterTerminal(t *testing.T) {
	st := NewStore()
	st.Reset("wf-1")
	st.SetCompleted("sv-1")
	st.ApplyProgress("generating", 60, "late frame")

	wf := st.Snapshot()
	if wf.Status != survey.StatusCompleted {
		t.Errorf("Status = %s, want %s", wf.Status, survey.StatusCompleted)
	}
	if wf.Progress != 0 {
		t.Errorf("late progress frame applied: %+v", wf)
	}
}

func TestSetCompletedDedupes(t *testing.T) {
	st := NewStore()
	st.Reset("wf-1")

	if !st.SetCompleted("sv-1") {
		t.Fatal("first SetCompleted should report first = true")
	}
	if st.SetCompleted("sv-1") {
		t.Error("second SetCompleted should report first = false")
	}
	if st.SetCompleted("sv-other") {
		t.Error("redelivered completion must not be treated as first")
	}
	if got := st.Snapshot().SurveyID; got != "sv-1" {
		t.Errorf("SurveyID = %q, want sv-1", got)
	}
}

func TestSetFailedDoesNotOverrideCompleted(t *testing.T) {
	st := NewStore()
	st.Reset("wf-1")
	st.SetCompleted("sv-1")
	st.SetFailed("late error")

	wf := st.Snapshot()
	if wf.Status != survey.StatusCompleted {
		t.Errorf("Status = %s, want %s", wf.Status, survey.StatusCompleted)
	}
	if wf.Error != "" {
		t.Errorf("Error = %q, want empty", wf.Error)
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	st := NewStore()
	events, cancel := st.Subscribe()
	defer cancel()

	st.Reset("wf-1")
	st.ApplyProgress("parsing", 10, "parsing request")

	wf := <-events
	if wf.Status != survey.StatusStarted {
		t.Errorf("first event Status = %s, want %s", wf.Status, survey.StatusStarted)
	}
	wf = <-events
	if wf.Status != survey.StatusInProgress || wf.Progress != 10 {
		t.Errorf("second event = %+v", wf)
	}

	cancel()
	if _, ok := <-events; ok {
		t.Error("channel should be closed after cancel")
	}
}
