package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body when the
// webhook has a secret.
const SignatureHeader = "X-Sim-Signature"

// webhookPayload is the JSON body POSTed for every alert.
type webhookPayload struct {
	Alert
	Source string `json:"source"`
	TS     string `json:"ts"`
}

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookNotifier creates a notifier for url. An empty secret disables
// request signing.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	w := &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	if secret != "" {
		w.secret = []byte(secret)
	}
	return w
}

// Sign returns the signature the receiver should expect for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Alert:  alert,
		Source: "strategy-sim",
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != nil {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s answered %d", w.url, resp.StatusCode)
	}
	log.Printf("[notify] webhook delivered %q", alert.Title)
	return nil
}
