package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"surveyflow/internal/generate"
	"surveyflow/internal/store"
	"surveyflow/internal/survey"
)

const (
	defaultReviewBudget = 30 * time.Minute
	maxGoldenExamples   = 3
)

// ErrNotPaused is returned when a decision arrives for a workflow that is not
// waiting on review.
var ErrNotPaused = errors.New("workflow is not paused for review")

// ErrUnknownWorkflow is returned when no run exists for a workflow ID.
var ErrUnknownWorkflow = errors.New("unknown workflow")

// Event is one progress-stream message emitted by a run. It mirrors the wire
// frames of the websocket endpoint.
type Event struct {
	Type     string `json:"type"`
	Step     string `json:"step,omitempty"`
	Percent  int    `json:"percent,omitempty"`
	Message  string `json:"message,omitempty"`
	SurveyID string `json:"survey_id,omitempty"`
}

// Engine owns all in-flight generation runs for the server process.
type Engine struct {
	store        *store.Store
	gen          generate.Generator
	clock        clock.PassiveClock
	reviewBudget time.Duration

	mu   sync.Mutex
	runs map[string]*Run
}

// NewEngine creates an engine over the given store and generation backend.
func NewEngine(st *store.Store, gen generate.Generator, clk clock.PassiveClock) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Engine{
		store:        st,
		gen:          gen,
		clock:        clk,
		reviewBudget: defaultReviewBudget,
		runs:         make(map[string]*Run),
	}
}

// Submit starts a generation run for the RFQ and returns it. The run executes
// in the background; observers attach via Subscribe.
func (e *Engine) Submit(rfq survey.RFQ) (*Run, error) {
	if rfq.Title == "" && rfq.Description == "" {
		return nil, fmt.Errorf("rfq has no title or description")
	}

	r := &Run{
		WorkflowID: uuid.NewString(),
		engine:     e,
		rfq:        rfq,
		status:     survey.StatusStarted,
		subs:       make(map[chan Event]struct{}),
		decisionCh: make(chan survey.Decision, 1),
		doneCh:     make(chan struct{}),
	}

	now := e.clock.Now()
	if err := e.store.PutRun(&survey.WorkflowRun{
		WorkflowID: r.WorkflowID,
		Status:     survey.StatusStarted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	e.mu.Lock()
	e.runs[r.WorkflowID] = r
	e.mu.Unlock()

	go r.execute()
	return r, nil
}

// Get returns the run for a workflow ID.
func (e *Engine) Get(workflowID string) (*Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[workflowID]
	return r, ok
}

// Decide delivers a review decision to a paused run. The server resumes the
// workflow from here; clients never infer resumption locally.
func (e *Engine) Decide(workflowID string, d survey.Decision) error {
	r, ok := e.Get(workflowID)
	if !ok {
		return ErrUnknownWorkflow
	}
	return r.deliverDecision(d)
}

// Run is one in-flight generation job.
type Run struct {
	WorkflowID string

	engine *Engine
	rfq    survey.RFQ

	mu      sync.Mutex
	status  survey.WorkflowStatus
	history []Event
	subs    map[chan Event]struct{}
	decided bool

	decisionCh chan survey.Decision
	doneCh     chan struct{}
}

// Status returns the run's current status.
func (r *Run) Status() survey.WorkflowStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Done returns a channel closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.doneCh }

// Subscribe attaches an observer. Previously emitted events are replayed
// first so late subscribers see the full stream in order.
func (r *Run) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	r.mu.Lock()
	for _, ev := range r.history {
		ch <- ev
	}
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Run) deliverDecision(d survey.Decision) error {
	r.mu.Lock()
	if r.status != survey.StatusPaused {
		r.mu.Unlock()
		return ErrNotPaused
	}
	if r.decided {
		r.mu.Unlock()
		return fmt.Errorf("decision already delivered")
	}
	r.decided = true
	r.mu.Unlock()

	r.decisionCh <- d
	return nil
}

// execute drives the run through its steps: parse, retrieve examples, draft
// prompt, pause for review, generate, store.
func (r *Run) execute() {
	defer close(r.doneCh)

	e := r.engine

	r.emit(Event{Type: "progress", Step: "parsing", Percent: 10, Message: "parsing request"}, survey.StatusInProgress)

	r.emit(Event{Type: "progress", Step: "retrieving_examples", Percent: 30, Message: "retrieving golden examples"}, survey.StatusInProgress)
	all, err := e.store.ListGolden()
	if err != nil {
		r.fail(fmt.Sprintf("retrieve golden examples: %v", err))
		return
	}
	golden := generate.SelectGolden(r.rfq, all, maxGoldenExamples)

	prompt := generate.BuildPrompt(r.rfq, golden)

	now := e.clock.Now()
	rec := &survey.ReviewRecord{
		ID:                 uuid.NewString(),
		WorkflowID:         r.WorkflowID,
		ReviewStatus:       survey.ReviewPending,
		PromptData:         prompt,
		OriginalPromptData: prompt,
		ReviewDeadline:     now.Add(e.reviewBudget),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.store.PutReview(rec); err != nil {
		r.fail(fmt.Sprintf("create review: %v", err))
		return
	}

	r.emit(Event{Type: "paused", Message: "waiting for prompt review"}, survey.StatusPaused)

	decision := <-r.decisionCh
	log.Printf("[workflow] %s resumed with decision %s", r.WorkflowID, decision)

	if decision == survey.DecisionReject {
		r.fail("prompt rejected by reviewer")
		return
	}

	// Reviewers may have edited the prompt while the run was paused; reload
	// the record so generation uses the approved variant.
	rec, err = e.store.GetReviewByWorkflow(r.WorkflowID)
	if err != nil {
		r.fail(fmt.Sprintf("reload review: %v", err))
		return
	}

	r.emit(Event{Type: "progress", Step: "generating", Percent: 60, Message: "generating questionnaire"}, survey.StatusInProgress)

	sv, err := e.gen.Generate(context.Background(), rec.ActivePrompt(), r.rfq)
	if err != nil {
		r.fail(fmt.Sprintf("generate survey: %v", err))
		return
	}
	sv.ID = uuid.NewString()
	sv.WorkflowID = r.WorkflowID
	sv.CreatedAt = e.clock.Now()
	for i := range sv.Questions {
		if sv.Questions[i].ID == "" {
			sv.Questions[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}

	r.emit(Event{Type: "progress", Step: "storing", Percent: 90, Message: "storing survey"}, survey.StatusInProgress)
	if err := e.store.PutSurvey(sv); err != nil {
		r.fail(fmt.Sprintf("store survey: %v", err))
		return
	}

	r.persist(survey.StatusCompleted, sv.ID, "")
	r.emit(Event{Type: "completed", SurveyID: sv.ID}, survey.StatusCompleted)
}

func (r *Run) fail(msg string) {
	log.Printf("[workflow] %s failed: %s", r.WorkflowID, msg)
	r.persist(survey.StatusFailed, "", msg)
	r.emit(Event{Type: "error", Message: msg}, survey.StatusFailed)
}

// emit records the event, fans it out to subscribers, and advances the run
// status.
func (r *Run) emit(ev Event, status survey.WorkflowStatus) {
	r.mu.Lock()
	r.status = status
	r.history = append(r.history, ev)
	for ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	r.mu.Unlock()

	if status == survey.StatusPaused || status == survey.StatusInProgress {
		r.persist(status, "", "")
	}
}

func (r *Run) persist(status survey.WorkflowStatus, surveyID, errMsg string) {
	e := r.engine
	run, err := e.store.GetRun(r.WorkflowID)
	if err != nil {
		log.Printf("[workflow] load run %s: %v", r.WorkflowID, err)
		return
	}
	run.Status = status
	if surveyID != "" {
		run.SurveyID = surveyID
	}
	run.Error = errMsg
	run.UpdatedAt = e.clock.Now()
	if err := e.store.PutRun(run); err != nil {
		log.Printf("[workflow] persist run %s: %v", r.WorkflowID, err)
	}
}
