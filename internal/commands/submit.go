package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"surveyflow/internal/channel"
	"surveyflow/internal/client"
	"surveyflow/internal/config"
	"surveyflow/internal/notify"
	"surveyflow/internal/output"
	"surveyflow/internal/review"
	"surveyflow/internal/state"
	"surveyflow/internal/survey"
	"surveyflow/internal/tui"
)

// fetchedSurvey holds the artifact fetched by the completion hook.
type fetchedSurvey struct {
	mu sync.Mutex
	sv *survey.Survey
	ch chan struct{}
}

// RunSubmit submits an RFQ file and follows the workflow until it terminates.
func RunSubmit(path string, auto, plain bool, outFile string) {
	cfg, err := config.Load()
	if err != nil {
		output.PrintError(fmt.Errorf("load config: %w", err))
		return
	}
	api := client.New(cfg.Client.BaseURL, cfg.Client.Token)
	notifier := buildNotifier(cfg)

	rfq, err := readRFQ(path)
	if err != nil {
		output.PrintError(err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	resp, err := api.SubmitRFQ(ctx, *rfq)
	cancel()
	if err != nil {
		output.PrintError(err)
		return
	}

	st := state.NewStore()
	st.Reset(resp.WorkflowID)

	header := http.Header{}
	if api.Token() != "" {
		header.Set("Authorization", "Bearer "+api.Token())
	}

	fetched := &fetchedSurvey{ch: make(chan struct{})}
	ch, err := channel.Open(channel.Options{
		URL:    api.WebSocketURL(resp.WorkflowID),
		Header: header,
		Store:  st,
		OnCompleted: func(surveyID string) {
			fctx, fcancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer fcancel()
			sv, err := api.FetchSurvey(fctx, surveyID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[submit] fetch survey %s: %v\n", surveyID, err)
			}
			fetched.mu.Lock()
			fetched.sv = sv
			fetched.mu.Unlock()
			close(fetched.ch)
		},
	})
	if err != nil {
		output.PrintError(err)
		return
	}
	defer ch.Close()

	interactive := !plain && !output.JSONMode && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		if err := tui.Watch(tui.Options{
			Store:      st,
			API:        api,
			WorkflowID: resp.WorkflowID,
			Auto:       auto,
			Notifier:   notifier,
			Done:       ch.Done(),
		}); err != nil {
			output.PrintError(err)
			return
		}
	} else {
		followPlain(api, st, ch, resp.WorkflowID, auto, notifier)
	}

	finish(st, fetched, outFile)
}

// readRFQ parses the request-for-questionnaire YAML file.
func readRFQ(path string) (*survey.RFQ, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rfq file: %w", err)
	}
	var rfq survey.RFQ
	if err := yaml.Unmarshal(data, &rfq); err != nil {
		return nil, fmt.Errorf("parse rfq file: %w", err)
	}
	if rfq.Title == "" {
		return nil, fmt.Errorf("rfq file %s: title is required", path)
	}
	return &rfq, nil
}

// buildNotifier assembles the notification sink: always the process log, plus
// the configured webhook when one is set.
func buildNotifier(cfg *config.Config) notify.Notifier {
	if cfg.Notify.WebhookURL == "" {
		return notify.LogNotifier{}
	}
	return notify.NewMultiNotifier(
		notify.LogNotifier{},
		notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookFormat, nil),
	)
}

// followPlain renders workflow progress as log lines and handles the review
// pause inline on stdin.
func followPlain(api *client.Client, st *state.Store, ch *channel.Channel, workflowID string, auto bool, notifier notify.Notifier) {
	events, cancel := st.Subscribe()
	defer cancel()

	fmt.Printf("Workflow %s submitted\n", workflowID)

	var (
		lastLine      string
		reviewHandled bool
	)
	for {
		select {
		case wf, ok := <-events:
			if !ok {
				return
			}
			if line := progressLine(wf); line != "" && line != lastLine {
				fmt.Println(line)
				lastLine = line
			}
			if wf.Status == survey.StatusPaused && !reviewHandled {
				reviewHandled = true
				runPlainReview(api, workflowID, auto, notifier)
			}
		case <-ch.Done():
			return
		}
	}
}

func progressLine(wf state.Workflow) string {
	switch wf.Status {
	case survey.StatusInProgress:
		return fmt.Sprintf("  [%3d%%] %s: %s", wf.Progress, wf.CurrentStep, wf.Message)
	case survey.StatusPaused:
		return fmt.Sprintf("  [paused] %s", wf.Message)
	case survey.StatusCompleted:
		return fmt.Sprintf("  [done] survey %s generated", wf.SurveyID)
	case survey.StatusFailed:
		return fmt.Sprintf("  [failed] %s", wf.Error)
	}
	return ""
}

// runPlainReview drives the review session on a plain terminal: fetch the
// record (tolerating the pause/record race), then either auto-approve or ask
// the operator for a decision.
func runPlainReview(api *client.Client, workflowID string, auto bool, notifier notify.Notifier) {
	sess, err := review.New(review.Options{
		WorkflowID: workflowID,
		API:        api,
		Notifier:   notifier,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "review setup failed: %v\n", err)
		return
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	rec, err := sess.Activate(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "review fetch failed: %v\n", err)
		return
	}

	fmt.Println()
	fmt.Println("── Prompt review ──────────────────────────────")
	fmt.Printf("Review %s (deadline %s)\n", rec.ID, rec.ReviewDeadline.Format(time.RFC3339))
	fmt.Println(indent(rec.ActivePrompt(), "  "))

	if auto {
		if err := sess.Submit(context.Background(), survey.DecisionApprove, ""); err != nil {
			fmt.Fprintf(os.Stderr, "auto-approve failed: %v\n", err)
			return
		}
		fmt.Println("Prompt auto-approved")
		return
	}

	promptDecision(sess)
}

// promptDecision loops on stdin until a decision has been submitted. The
// countdown keeps running in the background; if it expires first the session
// reports the review as already decided.
func promptDecision(sess *review.Session) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("[a]pprove  [r]eject  [e]dit prompt  [n]otes  [o]riginal prompt > ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "a":
			decision := survey.DecisionApprove
			if edited, _ := sess.Record(); edited.PromptEdited {
				decision = survey.DecisionApproveWithEdits
			}
			if submitOnce(sess, decision) {
				return
			}
		case "r":
			if submitOnce(sess, survey.DecisionReject) {
				return
			}
		case "e":
			editInEditor(sess)
		case "n":
			fmt.Print("notes: ")
			notes, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			sess.SetNotes(strings.TrimSpace(notes))
		case "o":
			if err := sess.ResetToOriginal(); err != nil {
				fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
				continue
			}
			fmt.Println("draft restored to the original prompt (unsaved)")
		default:
			continue
		}
	}
}

func submitOnce(sess *review.Session, decision survey.Decision) bool {
	err := sess.Submit(context.Background(), decision, "")
	switch {
	case err == nil:
		fmt.Printf("Decision %s submitted\n", decision)
		return true
	case errors.Is(err, review.ErrAlreadyDecided):
		fmt.Println("Review was already decided (countdown may have expired)")
		return true
	default:
		fmt.Fprintf(os.Stderr, "decision failed: %v\n", err)
		return false
	}
}

// editInEditor spawns $EDITOR on a temp file seeded with the current prompt
// and saves the result as a prompt edit.
func editInEditor(sess *review.Session) {
	if err := sess.StartEdit(); err != nil {
		fmt.Fprintf(os.Stderr, "edit failed: %v\n", err)
		return
	}
	draft, reason := sess.Draft()

	tmp, err := os.CreateTemp("", "surveyflow-prompt-*.txt")
	if err != nil {
		fmt.Fprintf(os.Stderr, "edit failed: %v\n", err)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(draft); err != nil {
		tmp.Close()
		fmt.Fprintf(os.Stderr, "edit failed: %v\n", err)
		return
	}
	tmp.Close()

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	cmd := exec.Command(editor, tmp.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "editor failed: %v\n", err)
		return
	}

	edited, err := os.ReadFile(tmp.Name())
	if err != nil {
		fmt.Fprintf(os.Stderr, "edit failed: %v\n", err)
		return
	}
	sess.SetDraft(string(edited), reason)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := sess.SaveEdit(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "save edit failed: %v\n", err)
		return
	}
	fmt.Println("Prompt edit saved")
}

// finish renders the terminal outcome and the fetched survey, if any.
func finish(st *state.Store, fetched *fetchedSurvey, outFile string) {
	wf := st.Snapshot()
	if wf.Status == survey.StatusFailed {
		output.PrintError(fmt.Errorf("workflow failed: %s", wf.Error))
		return
	}
	if wf.Status != survey.StatusCompleted {
		output.PrintError(fmt.Errorf("workflow ended in state %s", wf.Status))
		return
	}

	select {
	case <-fetched.ch:
	case <-time.After(45 * time.Second):
		output.PrintError(fmt.Errorf("survey %s was not fetched in time", wf.SurveyID))
		return
	}

	fetched.mu.Lock()
	sv := fetched.sv
	fetched.mu.Unlock()
	if sv == nil {
		output.PrintError(fmt.Errorf("survey %s could not be fetched", wf.SurveyID))
		return
	}

	if outFile != "" {
		data, err := json.MarshalIndent(sv, "", "  ")
		if err != nil {
			output.PrintError(err)
			return
		}
		if err := os.WriteFile(outFile, data, 0o644); err != nil {
			output.PrintError(fmt.Errorf("write survey file: %w", err))
			return
		}
	}

	output.Print(sv, func() {
		fmt.Println()
		fmt.Printf("Survey %s: %s\n", sv.ID, sv.Title)
		for i, q := range sv.Questions {
			fmt.Printf("  %2d. [%s] %s\n", i+1, q.Type, q.Text)
		}
		if outFile != "" {
			fmt.Printf("Written to %s\n", outFile)
		}
	})
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
