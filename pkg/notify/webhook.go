package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/cosreg/regwatch/internal/utils"
	"github.com/cosreg/regwatch/pkg/whttp"
)

// Webhook posts the summary as JSON. Attachments are listed by file name.
type Webhook struct {
	url    string
	client *retryablehttp.Client
	log    utils.Logger
}

type webhookPayload struct {
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments,omitempty"`
}

func NewWebhook(url string, log utils.Logger) *Webhook {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 20 * time.Second
	client.Logger = nil
	return &Webhook{url: url, client: client, log: utils.OrNop(log)}
}

func (w *Webhook) Notify(ctx context.Context, msg Message) error {
	p := webhookPayload{Subject: msg.Subject, Body: msg.Body}
	for _, a := range msg.Attachments {
		p.Attachments = append(p.Attachments, filepath.Base(a))
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	res, err := whttp.Send(ctx, &whttp.Request{
		URL:     w.url,
		Method:  "POST",
		Headers: []whttp.Header{{Name: "Content-Type", Value: "application/json"}},
		Body:    body,
	}, w.client.StandardClient())
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if !res.OK() {
		if res.Title != "" {
			return fmt.Errorf("webhook: status %d (%s)", res.StatusCode, res.Title)
		}
		return fmt.Errorf("webhook: status %d", res.StatusCode)
	}
	w.log.Debugf("Webhook accepted summary (%d)", res.StatusCode)
	return nil
}
