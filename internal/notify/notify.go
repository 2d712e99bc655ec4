package notify

import (
	"log"
	"strings"
)

// Notification represents a user-facing notification. Forced decisions (the
// review timeout auto-approval) are always narrated through one of these so
// they are never silent.
type Notification struct {
	Title   string
	Message string
}

// Notifier sends notifications.
type Notifier interface {
	Send(n Notification) error
	Name() string
}

// LogNotifier writes notifications to the process log. It is the default
// sink for CLI runs without a configured webhook.
type LogNotifier struct{}

// Send logs the notification.
func (LogNotifier) Send(n Notification) error {
	log.Printf("[notify] %s: %s", n.Title, n.Message)
	return nil
}

// Name returns the name of this notifier.
func (LogNotifier) Name() string { return "log" }

// MultiNotifier sends notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(ns ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: ns}
}

// Send dispatches the notification to all registered notifiers.
// Returns the first error encountered, but attempts all notifiers.
func (m *MultiNotifier) Send(n Notification) error {
	var firstErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Name returns the name of this notifier.
func (m *MultiNotifier) Name() string {
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}
