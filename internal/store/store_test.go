package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"surveyflow/internal/survey"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSurveyRoundTrip(t *testing.T) {
	st := openTestStore(t)

	sv := &survey.Survey{
		ID:         "sv-1",
		WorkflowID: "wf-1",
		Title:      "Customer Pulse",
		Questions: []survey.Question{
			{ID: "q1", Text: "How satisfied are you?", Type: survey.QuestionRating},
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := st.PutSurvey(sv); err != nil {
		t.Fatalf("PutSurvey: %v", err)
	}

	got, err := st.GetSurvey("sv-1")
	if err != nil {
		t.Fatalf("GetSurvey: %v", err)
	}
	if got.Title != sv.Title || len(got.Questions) != 1 {
		t.Errorf("loaded survey = %+v", got)
	}

	if _, err := st.GetSurvey("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSurvey(missing) = %v, want ErrNotFound", err)
	}
}

func TestReviewWorkflowIndex(t *testing.T) {
	st := openTestStore(t)

	rec := &survey.ReviewRecord{
		ID:           "rev-1",
		WorkflowID:   "wf-1",
		ReviewStatus: survey.ReviewPending,
		PromptData:   "draft prompt",
	}
	if err := st.PutReview(rec); err != nil {
		t.Fatalf("PutReview: %v", err)
	}

	got, err := st.GetReviewByWorkflow("wf-1")
	if err != nil {
		t.Fatalf("GetReviewByWorkflow: %v", err)
	}
	if got.ID != "rev-1" {
		t.Errorf("review ID = %q, want rev-1", got.ID)
	}

	// A second review for the same workflow replaces the index entry.
	if err := st.PutReview(&survey.ReviewRecord{ID: "rev-2", WorkflowID: "wf-1"}); err != nil {
		t.Fatalf("PutReview: %v", err)
	}
	got, err = st.GetReviewByWorkflow("wf-1")
	if err != nil {
		t.Fatalf("GetReviewByWorkflow: %v", err)
	}
	if got.ID != "rev-2" {
		t.Errorf("review ID = %q, want rev-2", got.ID)
	}

	if _, err := st.GetReviewByWorkflow("wf-unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReviewByWorkflow(unknown) = %v, want ErrNotFound", err)
	}
}

func TestPutReviewRequiresID(t *testing.T) {
	st := openTestStore(t)
	if err := st.PutReview(&survey.ReviewRecord{WorkflowID: "wf-1"}); err == nil {
		t.Error("PutReview without ID should fail")
	}
}

func TestGoldenCRUD(t *testing.T) {
	st := openTestStore(t)

	base := time.Now().UTC()
	for i, id := range []string{"g-b", "g-a", "g-c"} {
		g := &survey.GoldenExample{
			ID:        id,
			Title:     "Example " + id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := st.PutGolden(g); err != nil {
			t.Fatalf("PutGolden(%s): %v", id, err)
		}
	}

	list, err := st.ListGolden()
	if err != nil {
		t.Fatalf("ListGolden: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListGolden returned %d entries, want 3", len(list))
	}
	// Sorted by creation time, not key order.
	if list[0].ID != "g-b" || list[2].ID != "g-c" {
		t.Errorf("unexpected order: %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}

	if err := st.DeleteGolden("g-a"); err != nil {
		t.Fatalf("DeleteGolden: %v", err)
	}
	if err := st.DeleteGolden("g-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteGolden = %v, want ErrNotFound", err)
	}

	if _, err := st.GetGolden("g-b"); err != nil {
		t.Errorf("GetGolden(g-b): %v", err)
	}
}

func TestRunRoundTrip(t *testing.T) {
	st := openTestStore(t)

	run := &survey.WorkflowRun{
		WorkflowID: "wf-1",
		Status:     survey.StatusStarted,
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.PutRun(run); err != nil {
		t.Fatalf("PutRun: %v", err)
	}

	run.Status = survey.StatusCompleted
	run.SurveyID = "sv-1"
	if err := st.PutRun(run); err != nil {
		t.Fatalf("PutRun update: %v", err)
	}

	got, err := st.GetRun("wf-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != survey.StatusCompleted || got.SurveyID != "sv-1" {
		t.Errorf("loaded run = %+v", got)
	}
}
