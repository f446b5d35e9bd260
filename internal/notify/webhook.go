package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/siritami/gatewaysync/internal/iface"
)

// Webhook posts status messages to a chat webhook endpoint. A Webhook with
// an empty or malformed URL is a usable no-op, so callers never need to
// special-case an unconfigured notifier.
type Webhook struct {
	url  string
	http iface.Doer
}

// NewWebhook creates a notifier targeting rawURL. The URL is only checked
// at delivery time; an unusable URL downgrades the notifier to a no-op.
func NewWebhook(rawURL string, doer iface.Doer) *Webhook {
	return &Webhook{url: rawURL, http: doer}
}

type webhookPayload struct {
	Content string `json:"content"`
	Body    string `json:"body"`
}

// Notify implements iface.Notifier. Delivery is best-effort: every failure
// is logged and swallowed, and the original caller is never affected.
func (w *Webhook) Notify(ctx context.Context, message string) {
	if !usableURL(w.url) {
		if w.url != "" {
			log.Printf("WARN: webhook URL %q is not a valid http(s) URL; dropping notification", w.url)
		}
		return
	}

	body, err := json.Marshal(webhookPayload{Content: message, Body: message})
	if err != nil {
		log.Printf("WARN: failed to marshal webhook payload: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("WARN: failed to create webhook request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		log.Printf("WARN: webhook delivery failed: %v", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("WARN: webhook returned status %d", resp.StatusCode)
	}
}

func usableURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
