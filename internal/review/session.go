package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"surveyflow/internal/client"
	"surveyflow/internal/notify"
	"surveyflow/internal/survey"
)

const (
	defaultFetchAttempts = 4
	defaultFetchBackoff  = time.Second
	defaultBudget        = 30 * time.Minute
	defaultWarnAt        = 5 * time.Minute
)

var (
	// ErrNoReviewData is returned when the fetch retry budget is exhausted
	// without the server materializing a review record.
	ErrNoReviewData = errors.New("no review data")

	// ErrNoActiveReview is returned for operations that need a cached record.
	ErrNoActiveReview = errors.New("no active review")

	// ErrAlreadyDecided is returned when a decision has already been submitted
	// for this review.
	ErrAlreadyDecided = errors.New("review already decided")

	// ErrSubmissionInFlight is returned when a decision submission is already
	// on the wire.
	ErrSubmissionInFlight = errors.New("decision submission in flight")

	// ErrSessionClosed is returned when the session was torn down.
	ErrSessionClosed = errors.New("review session closed")
)

// API is the slice of the HTTP client the session needs. Tests substitute
// fakes.
type API interface {
	ReviewByWorkflow(ctx context.Context, workflowID string) (*survey.ReviewRecord, error)
	EditPrompt(ctx context.Context, reviewID string, req client.EditPromptRequest) (*survey.ReviewRecord, error)
	SubmitDecision(ctx context.Context, reviewID string, req client.DecisionRequest) error
}

// Options configures a Session. WorkflowID and API are required.
type Options struct {
	WorkflowID string
	API        API

	Clock    clock.WithTicker
	Notifier notify.Notifier

	FetchAttempts int
	FetchBackoff  time.Duration
	Budget        time.Duration // countdown budget once a review is active
	WarnAt        time.Duration // remaining time at which the one-shot warning fires
}

// Session manages the human-in-the-loop review lifecycle for one workflow:
// it resolves the pending review (tolerating the server-side race between the
// pause signal and the record write), tracks a wall-clock countdown, and
// guarantees the review reaches a terminal state even if nobody acts.
type Session struct {
	workflowID string
	api        API
	clock      clock.WithTicker
	notifier   notify.Notifier

	fetchAttempts int
	fetchBackoff  time.Duration
	budgetSecs    int
	warnAtSecs    int

	mu           sync.Mutex
	record       *survey.ReviewRecord
	reviewNotes  string
	editing      bool
	editedPrompt string
	editReason   string
	remaining    int
	warned       bool
	ticking      bool
	inFlight     bool
	submitted    bool
	closed       bool

	stopCh chan struct{}
}

// New creates a review session. Call Activate to begin the fetch sub-protocol.
func New(opts Options) (*Session, error) {
	if opts.WorkflowID == "" {
		return nil, fmt.Errorf("review: workflow ID is required")
	}
	if opts.API == nil {
		return nil, fmt.Errorf("review: API client is required")
	}

	s := &Session{
		workflowID:    opts.WorkflowID,
		api:           opts.API,
		clock:         opts.Clock,
		notifier:      opts.Notifier,
		fetchAttempts: opts.FetchAttempts,
		fetchBackoff:  opts.FetchBackoff,
		stopCh:        make(chan struct{}),
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.notifier == nil {
		s.notifier = notify.LogNotifier{}
	}
	if s.fetchAttempts <= 0 {
		s.fetchAttempts = defaultFetchAttempts
	}
	if s.fetchBackoff <= 0 {
		s.fetchBackoff = defaultFetchBackoff
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	warnAt := opts.WarnAt
	if warnAt <= 0 {
		warnAt = defaultWarnAt
	}
	s.budgetSecs = int(budget / time.Second)
	s.warnAtSecs = int(warnAt / time.Second)
	return s, nil
}

// Activate runs the fetch-with-retry sub-protocol: up to the attempt budget,
// with exponential backoff between attempts (base doubling each time). The
// pause-for-review signal and the review-record write are not atomic
// server-side, so early 404s are expected absence, not errors. On success the
// record is cached and the countdown starts.
func (s *Session) Activate(ctx context.Context) (survey.ReviewRecord, error) {
	for attempt := 0; attempt < s.fetchAttempts; attempt++ {
		if attempt > 0 {
			delay := s.fetchBackoff << (attempt - 1)
			t := s.clock.NewTimer(delay)
			select {
			case <-t.C():
			case <-ctx.Done():
				t.Stop()
				return survey.ReviewRecord{}, ctx.Err()
			case <-s.stopCh:
				t.Stop()
				return survey.ReviewRecord{}, ErrSessionClosed
			}
			t.Stop()
		}

		rec, err := s.api.ReviewByWorkflow(ctx, s.workflowID)
		if err == nil {
			s.mu.Lock()
			s.record = rec
			s.mu.Unlock()
			if !rec.ReviewStatus.Terminal() {
				s.startCountdown()
			}
			return *rec, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return survey.ReviewRecord{}, err
		}
		log.Printf("[review] fetch attempt %d/%d for workflow %s: %v",
			attempt+1, s.fetchAttempts, s.workflowID, err)
	}
	return survey.ReviewRecord{}, ErrNoReviewData
}

// Record returns a copy of the cached review record.
func (s *Session) Record() (survey.ReviewRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return survey.ReviewRecord{}, false
	}
	return *s.record, true
}

// Remaining returns the countdown seconds left.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Decided reports whether a decision (human or synthesized) has been
// submitted.
func (s *Session) Decided() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// SetNotes stores the reviewer's notes draft, sent with the next decision.
func (s *Session) SetNotes(notes string) {
	s.mu.Lock()
	s.reviewNotes = notes
	s.mu.Unlock()
}

// Notes returns the current reviewer notes draft.
func (s *Session) Notes() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reviewNotes
}

// Submit sends a human review decision. Exactly one decision is accepted per
// review; failures are surfaced to the caller and never retried
// automatically (retrying is the user's call, to avoid double-decisioning).
// The notes draft is cleared regardless of outcome.
func (s *Session) Submit(ctx context.Context, decision survey.Decision, reason string) error {
	if !decision.Valid() {
		return fmt.Errorf("invalid decision %q", decision)
	}

	s.mu.Lock()
	if s.record == nil {
		s.mu.Unlock()
		return ErrNoActiveReview
	}
	if s.submitted {
		s.mu.Unlock()
		return ErrAlreadyDecided
	}
	if s.inFlight {
		s.mu.Unlock()
		return ErrSubmissionInFlight
	}
	s.inFlight = true
	reviewID := s.record.ID
	notes := s.reviewNotes
	s.mu.Unlock()

	err := s.api.SubmitDecision(ctx, reviewID, client.DecisionRequest{
		Decision: decision,
		Notes:    notes,
		Reason:   reason,
	})

	s.mu.Lock()
	s.inFlight = false
	s.reviewNotes = ""
	if err == nil {
		s.submitted = true
		s.applyDecisionLocked(decision, notes)
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("[review] decision submission for review %s failed: %v", reviewID, err)
		return err
	}
	return nil
}

func (s *Session) applyDecisionLocked(decision survey.Decision, notes string) {
	if s.record == nil {
		return
	}
	switch decision {
	case survey.DecisionReject:
		s.record.ReviewStatus = survey.ReviewRejected
	default:
		s.record.ReviewStatus = survey.ReviewApproved
	}
	if notes != "" {
		s.record.ReviewerNotes = notes
	}
}

// StartEdit enters edit mode, seeding the local draft from the current
// prompt. The draft is independent of the cached record until SaveEdit.
func (s *Session) StartEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return ErrNoActiveReview
	}
	if s.record.ReviewStatus.Terminal() || s.submitted {
		return ErrAlreadyDecided
	}
	s.editing = true
	if s.editedPrompt == "" {
		s.editedPrompt = s.record.ActivePrompt()
	}
	return nil
}

// SetDraft updates the local edit draft. Nothing is persisted.
func (s *Session) SetDraft(prompt, reason string) {
	s.mu.Lock()
	s.editedPrompt = prompt
	s.editReason = reason
	s.mu.Unlock()
}

// Draft returns the local edit draft and its reason.
func (s *Session) Draft() (prompt, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editedPrompt, s.editReason
}

// Editing reports whether the session is in edit mode.
func (s *Session) Editing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

// ResetToOriginal overwrites the local draft from the pristine original
// prompt. It does not persist anything.
func (s *Session) ResetToOriginal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return ErrNoActiveReview
	}
	s.editedPrompt = s.record.OriginalPromptData
	return nil
}

// SaveEdit persists the draft. On success the server's response replaces the
// cached record wholesale (the server owns prompt_edited, edited_by, and
// timestamps) and edit mode exits. On failure local state is left untouched.
func (s *Session) SaveEdit(ctx context.Context) (survey.ReviewRecord, error) {
	s.mu.Lock()
	if s.record == nil {
		s.mu.Unlock()
		return survey.ReviewRecord{}, ErrNoActiveReview
	}
	reviewID := s.record.ID
	req := client.EditPromptRequest{
		EditedPrompt: s.editedPrompt,
		EditReason:   s.editReason,
	}
	s.mu.Unlock()

	rec, err := s.api.EditPrompt(ctx, reviewID, req)
	if err != nil {
		return survey.ReviewRecord{}, err
	}

	s.mu.Lock()
	s.record = rec
	s.editing = false
	s.editedPrompt = ""
	s.editReason = ""
	s.mu.Unlock()
	return *rec, nil
}

// Close tears the session down: the countdown ticker stops and any pending
// fetch wait aborts. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stopCh)
	return nil
}

// startCountdown begins the once-per-second countdown. Safe to call more than
// once; only the first call starts a ticker.
func (s *Session) startCountdown() {
	s.mu.Lock()
	if s.ticking || s.submitted || s.closed {
		s.mu.Unlock()
		return
	}
	s.ticking = true
	s.remaining = s.budgetSecs
	s.mu.Unlock()

	go s.tickLoop()
}

func (s *Session) tickLoop() {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			fire, warn, done := s.tick()
			if warn {
				s.notifier.Send(notify.Notification{
					Title:   "Review expiring",
					Message: fmt.Sprintf("review for workflow %s auto-approves in %d minutes", s.workflowID, s.warnAtSecs/60),
				})
			}
			if fire {
				s.autoResolve()
				return
			}
			if done {
				return
			}
		case <-s.stopCh:
			return
		}
	}
}

// tick advances the countdown by one second. The clock is paused (not
// stopped) while a submission is in flight, and stops for good once any
// decision has been submitted.
func (s *Session) tick() (fire, warn, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitted {
		s.ticking = false
		return false, false, true
	}
	if s.inFlight || s.remaining <= 0 {
		return false, false, false
	}

	s.remaining--
	if !s.warned && s.remaining == s.warnAtSecs {
		s.warned = true
		warn = true
	}
	if s.remaining == 0 {
		fire = true
	}
	return fire, warn, false
}

// autoResolve synthesizes the timeout approval. It fires at most once; if a
// human decision won the race it does nothing.
func (s *Session) autoResolve() {
	s.mu.Lock()
	if s.submitted || s.inFlight || s.record == nil {
		s.ticking = false
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	reviewID := s.record.ID
	s.mu.Unlock()

	log.Printf("[review] countdown expired for review %s, auto-approving", reviewID)
	err := s.api.SubmitDecision(context.Background(), reviewID, client.DecisionRequest{
		Decision: survey.DecisionApprove,
		Reason:   "timeout",
	})

	s.mu.Lock()
	s.inFlight = false
	s.reviewNotes = ""
	// The synthesized decision fires exactly once, success or not; the
	// countdown freezes at zero either way.
	s.submitted = true
	s.ticking = false
	if err == nil {
		s.applyDecisionLocked(survey.DecisionApprove, "")
	}
	s.mu.Unlock()

	if err != nil {
		log.Printf("[review] timeout auto-approval for review %s failed: %v", reviewID, err)
		return
	}
	s.notifier.Send(notify.Notification{
		Title:   "Review auto-approved",
		Message: fmt.Sprintf("review for workflow %s was auto-approved after the countdown expired", s.workflowID),
	})
}
