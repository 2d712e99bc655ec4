package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"surveyflow/internal/client"
	"surveyflow/internal/notify"
	"surveyflow/internal/review"
	"surveyflow/internal/state"
	"surveyflow/internal/survey"
)

// Options configures the workflow watch view.
type Options struct {
	Store      *state.Store
	API        *client.Client
	WorkflowID string
	Auto       bool
	Notifier   notify.Notifier
	Done       <-chan struct{} // closed when the progress channel stops
}

type watchMode int

const (
	modeWatch watchMode = iota
	modeEdit
	modeNotes
)

// stateMsg carries a workflow snapshot from the state store.
type stateMsg state.Workflow

// channelDoneMsg is sent when the progress channel has stopped.
type channelDoneMsg struct{}

// reviewActivatedMsg is sent when the review session resolved (or failed to
// resolve) the pending review record.
type reviewActivatedMsg struct {
	rec survey.ReviewRecord
	err error
}

// decisionDoneMsg is sent after a decision submission attempt.
type decisionDoneMsg struct {
	decision survey.Decision
	err      error
}

// editSavedMsg is sent after a prompt edit save attempt.
type editSavedMsg struct {
	rec survey.ReviewRecord
	err error
}

// countdownMsg drives the once-per-second countdown refresh.
type countdownMsg time.Time

// Model is the workflow watch TUI model.
type Model struct {
	opts Options

	wf       state.Workflow
	spinner  spinner.Model
	progress progress.Model

	mode       watchMode
	sess       *review.Session
	rec        *survey.ReviewRecord
	remaining  int
	editArea   textarea.Model
	notesInput textinput.Model

	width     int
	done      bool
	statusMsg string
	err       string
}

func newModel(opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = stepStyle

	pb := progress.New(progress.WithDefaultGradient())

	ta := textarea.New()
	ta.SetHeight(12)

	ti := textinput.New()
	ti.Placeholder = "reviewer notes"

	return Model{
		opts:       opts,
		wf:         opts.Store.Snapshot(),
		spinner:    sp,
		progress:   pb,
		editArea:   ta,
		notesInput: ti,
	}
}

// Watch runs the workflow watch TUI until the workflow terminates or the user
// quits. Progress arrives via the state store; the review pause is handled
// inline with approve/reject/edit keys.
func Watch(opts Options) error {
	m := newModel(opts)
	p := tea.NewProgram(m)

	events, cancel := opts.Store.Subscribe()
	defer cancel()
	go func() {
		for wf := range events {
			p.Send(stateMsg(wf))
		}
	}()
	go func() {
		<-opts.Done
		p.Send(channelDoneMsg{})
	}()

	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = min(msg.Width-8, 60)
		m.editArea.SetWidth(min(msg.Width-10, 76))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.wf = state.Workflow(msg)
		var cmd tea.Cmd
		if m.wf.Status == survey.StatusPaused && m.sess == nil {
			cmd = m.startReview()
		}
		if m.wf.Status.Terminal() && m.done {
			return m, m.quit()
		}
		return m, cmd

	case channelDoneMsg:
		m.done = true
		if m.wf.Status.Terminal() {
			return m, m.quit()
		}
		return m, nil

	case reviewActivatedMsg:
		if msg.err != nil {
			m.err = fmt.Sprintf("review fetch failed: %v", msg.err)
			return m, nil
		}
		rec := msg.rec
		m.rec = &rec
		m.remaining = m.sess.Remaining()
		cmds := []tea.Cmd{tickCountdown()}
		if m.opts.Auto {
			cmds = append(cmds, m.submitDecision(survey.DecisionApprove))
		}
		return m, tea.Batch(cmds...)

	case countdownMsg:
		if m.sess == nil || m.sess.Decided() {
			return m, nil
		}
		m.remaining = m.sess.Remaining()
		if rec, ok := m.sess.Record(); ok {
			m.rec = &rec
		}
		return m, tickCountdown()

	case decisionDoneMsg:
		if msg.err != nil {
			m.err = fmt.Sprintf("decision failed: %v", msg.err)
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("decision %s submitted", msg.decision)
		m.err = ""
		return m, nil

	case editSavedMsg:
		if msg.err != nil {
			m.err = fmt.Sprintf("save edit failed: %v", msg.err)
			return m, nil
		}
		rec := msg.rec
		m.rec = &rec
		m.mode = modeWatch
		m.statusMsg = "prompt edit saved"
		m.err = ""
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeEdit:
		switch msg.String() {
		case "esc":
			m.mode = modeWatch
			return m, nil
		case "ctrl+s":
			if m.sess != nil {
				_, reason := m.sess.Draft()
				m.sess.SetDraft(m.editArea.Value(), reason)
				return m, m.saveEdit()
			}
			return m, nil
		case "ctrl+r":
			if m.sess != nil {
				if err := m.sess.ResetToOriginal(); err == nil {
					draft, _ := m.sess.Draft()
					m.editArea.SetValue(draft)
				}
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.editArea, cmd = m.editArea.Update(msg)
		return m, cmd

	case modeNotes:
		switch msg.String() {
		case "esc":
			m.mode = modeWatch
			return m, nil
		case "enter":
			if m.sess != nil {
				m.sess.SetNotes(m.notesInput.Value())
				m.statusMsg = "notes saved"
			}
			m.mode = modeWatch
			return m, nil
		}
		var cmd tea.Cmd
		m.notesInput, cmd = m.notesInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, m.quit()
	case "a":
		if m.reviewOpen() {
			decision := survey.DecisionApprove
			if m.rec.PromptEdited {
				decision = survey.DecisionApproveWithEdits
			}
			return m, m.submitDecision(decision)
		}
	case "r":
		if m.reviewOpen() {
			return m, m.submitDecision(survey.DecisionReject)
		}
	case "e":
		if m.reviewOpen() {
			if err := m.sess.StartEdit(); err != nil {
				m.err = err.Error()
				return m, nil
			}
			draft, _ := m.sess.Draft()
			m.editArea.SetValue(draft)
			m.editArea.Focus()
			m.mode = modeEdit
			return m, textarea.Blink
		}
	case "n":
		if m.reviewOpen() {
			m.notesInput.SetValue(m.sess.Notes())
			m.notesInput.Focus()
			m.mode = modeNotes
			return m, textinput.Blink
		}
	}
	return m, nil
}

// reviewOpen reports whether there is an undecided review to act on.
func (m Model) reviewOpen() bool {
	return m.sess != nil && m.rec != nil && !m.sess.Decided() && !m.rec.ReviewStatus.Terminal()
}

// startReview creates the review session and kicks off the fetch protocol.
func (m *Model) startReview() tea.Cmd {
	notifier := m.opts.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	sess, err := review.New(review.Options{
		WorkflowID: m.opts.WorkflowID,
		API:        m.opts.API,
		Notifier:   notifier,
	})
	if err != nil {
		m.err = err.Error()
		return nil
	}
	m.sess = sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		rec, err := sess.Activate(ctx)
		return reviewActivatedMsg{rec: rec, err: err}
	}
}

func (m Model) submitDecision(decision survey.Decision) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := sess.Submit(ctx, decision, "")
		return decisionDoneMsg{decision: decision, err: err}
	}
}

func (m Model) saveEdit() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		rec, err := sess.SaveEdit(ctx)
		return editSavedMsg{rec: rec, err: err}
	}
}

func (m Model) quit() tea.Cmd {
	if m.sess != nil {
		m.sess.Close()
	}
	return tea.Quit
}

func tickCountdown() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return countdownMsg(t)
	})
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("surveyflow"))
	b.WriteString("  workflow " + m.opts.WorkflowID + "\n\n")

	switch m.wf.Status {
	case survey.StatusCompleted:
		b.WriteString(statusOkStyle.Render("✓ completed") + "\n")
		b.WriteString(messageStyle.Render("survey "+m.wf.SurveyID+" generated") + "\n")
	case survey.StatusFailed:
		b.WriteString(statusErrorStyle.Render("✗ failed") + "\n")
		b.WriteString(statusErrorStyle.Render(m.wf.Error) + "\n")
	case survey.StatusPaused:
		b.WriteString(m.viewReview())
	default:
		b.WriteString(m.spinner.View())
		b.WriteString(stepStyle.Render(" "+m.wf.CurrentStep) + "\n")
		b.WriteString(m.progress.ViewAs(float64(m.wf.Progress)/100) + "\n")
		if m.wf.Message != "" {
			b.WriteString(messageStyle.Render(m.wf.Message) + "\n")
		}
	}

	if m.statusMsg != "" {
		b.WriteString("\n" + statusOkStyle.Render(m.statusMsg))
	}
	if m.err != "" {
		b.WriteString("\n" + statusErrorStyle.Render(m.err))
	}
	b.WriteString(helpStyle.Render("\n" + m.helpLine()))
	return appStyle.Render(b.String())
}

func (m Model) viewReview() string {
	if m.rec == nil {
		return m.spinner.View() + stepStyle.Render(" waiting for review record") + "\n"
	}

	var b strings.Builder
	b.WriteString(reviewLabelStyle.Render("Prompt review") + "  ")
	style := countdownStyle
	if m.remaining <= 300 {
		style = countdownUrgentStyle
	}
	b.WriteString(style.Render("auto-approve in "+fmtCountdown(m.remaining)) + "\n\n")

	switch m.mode {
	case modeEdit:
		b.WriteString(m.editArea.View() + "\n")
	case modeNotes:
		b.WriteString(m.notesInput.View() + "\n")
	default:
		b.WriteString(promptStyle.Render(truncateLines(m.rec.ActivePrompt(), 12)) + "\n")
		if m.rec.PromptEdited {
			b.WriteString(reviewLabelStyle.Render("(prompt edited)") + "\n")
		}
	}
	return reviewBorderStyle.Render(b.String()) + "\n"
}

func (m Model) helpLine() string {
	switch m.mode {
	case modeEdit:
		return "ctrl+s save · ctrl+r restore original · esc cancel"
	case modeNotes:
		return "enter save notes · esc cancel"
	}
	if m.reviewOpen() {
		return "a approve · r reject · e edit prompt · n notes · q quit"
	}
	return "q quit"
}

func fmtCountdown(secs int) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func truncateLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + "\n…"
}
