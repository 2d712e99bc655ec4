package state

import (
	"sync"

	"surveyflow/internal/survey"
)

// Workflow is the client's belief about one server-side generation job.
// Values are snapshots; mutate only through Store methods.
type Workflow struct {
	Status      survey.WorkflowStatus
	WorkflowID  string
	SurveyID    string
	Progress    int
	CurrentStep string
	Message     string
	Error       string
}

// Store holds the workflow state for one submission and fans out snapshots to
// subscribers. It is constructed explicitly and passed to the channel and
// review session so tests can run isolated instances.
type Store struct {
	mu   sync.Mutex
	wf   Workflow
	subs map[chan Workflow]struct{}
}

// NewStore returns a store in the idle state.
func NewStore() *Store {
	return &Store{
		wf:   Workflow{Status: survey.StatusIdle},
		subs: make(map[chan Workflow]struct{}),
	}
}

// Snapshot returns a copy of the current workflow state.
func (s *Store) Snapshot() Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wf
}

// Subscribe registers an observer. The returned cancel func must be called to
// release the subscription. Slow observers miss intermediate snapshots rather
// than blocking writers.
func (s *Store) Subscribe() (<-chan Workflow, func()) {
	ch := make(chan Workflow, 16)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Reset discards all previous state and marks a fresh submission as started.
func (s *Store) Reset(workflowID string) {
	s.mu.Lock()
	s.wf = Workflow{
		Status:     survey.StatusStarted,
		WorkflowID: workflowID,
	}
	s.notifyLocked()
	s.mu.Unlock()
}

// ApplyProgress records a progress frame. Status is forced to in_progress
// unless the workflow is already terminal, in which case the frame is dropped.
func (s *Store) ApplyProgress(step string, percent int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wf.Status.Terminal() {
		return
	}
	s.wf.Status = survey.StatusInProgress
	s.wf.CurrentStep = step
	s.wf.Progress = percent
	s.wf.Message = message
	s.notifyLocked()
}

// SetPaused marks the workflow as waiting on human review.
func (s *Store) SetPaused(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wf.Status.Terminal() {
		return
	}
	s.wf.Status = survey.StatusPaused
	s.wf.Message = message
	s.notifyLocked()
}

// SetCompleted records terminal success. It returns true only the first time
// the survey ID is set, so the artifact fetch can be deduplicated when a
// reconnect redelivers the completed frame.
func (s *Store) SetCompleted(surveyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.wf.SurveyID == ""
	if first {
		s.wf.SurveyID = surveyID
	}
	s.wf.Status = survey.StatusCompleted
	s.wf.Error = ""
	s.notifyLocked()
	return first
}

// SetFailed records terminal failure with a human-readable message. Completed
// workflows stay completed.
func (s *Store) SetFailed(errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wf.Status == survey.StatusCompleted {
		return
	}
	s.wf.Status = survey.StatusFailed
	s.wf.Error = errMsg
	s.notifyLocked()
}

func (s *Store) notifyLocked() {
	for ch := range s.subs {
		select {
		case ch <- s.wf:
		default:
		}
	}
}
