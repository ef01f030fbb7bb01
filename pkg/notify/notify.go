// Package notify delivers the run summary by email and, optionally, to a
// webhook. Delivery problems are logged and never fail a run.
package notify

import (
	"context"
	"errors"

	"github.com/cosreg/regwatch/internal/utils"
)

// Message is a notification with optional file attachments.
type Message struct {
	Subject     string
	Body        string
	Attachments []string
}

// Notifier delivers a Message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FromEnv builds the notifiers configured in the environment. Incomplete
// SMTP settings are logged and skipped.
func FromEnv(log utils.Logger) Multi {
	log = utils.OrNop(log)
	var out Multi

	cfg := SMTPConfigFromEnv()
	if cfg.Complete() {
		out = append(out, NewSMTP(cfg, log))
	} else {
		log.Warnf("SMTP settings incomplete (HOST/PORT/USER/PASS/TO), skipping email")
	}
	if url := getEnv("NOTIFY_WEBHOOK_URL", ""); url != "" {
		out = append(out, NewWebhook(url, log))
	}
	return out
}

// Deliver sends msg and logs the outcome. It never returns an error.
func Deliver(ctx context.Context, n Notifier, msg Message, log utils.Logger) {
	log = utils.OrNop(log)
	if n == nil {
		return
	}
	if m, ok := n.(Multi); ok && len(m) == 0 {
		log.Infof("No notifier configured, summary not sent")
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		log.Errorf("Could not send notification: %v", err)
		return
	}
	log.Infof("Notification sent: %s", msg.Subject)
}
