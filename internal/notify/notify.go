// Package notify delivers reconciliation notifications to operators.
// Delivery is best effort: callers log failures and never abort a run on them.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/yairfalse/ilmarinen/internal/logger"
)

// Notifier sends one message
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Multi fans a message out to every notifier and joins their errors
type Multi []Notifier

// Notify calls each notifier in order, even after a failure
func (m Multi) Notify(ctx context.Context, subject, body string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a notifier backed by log
func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, subject, body string) error {
	n.log.WithFields(map[string]interface{}{
		"subject": subject,
		"body":    body,
	}).Info("notification")
	return nil
}

// Recorder keeps notifications in memory
type Recorder struct {
	Messages []Message
	Err      error
}

// Message is one recorded notification
type Message struct {
	Subject string
	Body    string
}

func (r *Recorder) Notify(ctx context.Context, subject, body string) error {
	r.Messages = append(r.Messages, Message{Subject: subject, Body: body})
	return r.Err
}

// Last returns the most recent message
func (r *Recorder) Last() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

func wrapSinkError(sink string, err error) error {
	return fmt.Errorf("%s notification failed: %w", sink, err)
}
