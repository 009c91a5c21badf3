package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/toolkit-community/helpdesk/pkg/protocol"
)

// SignatureHeader carries the HMAC-SHA256 signature of a webhook body.
const SignatureHeader = "X-Hub-Signature-256"

// WebhookPayload is the JSON body posted for each escalation.
type WebhookPayload struct {
	Event      string              `json:"event"`
	Escalation protocol.Escalation `json:"escalation"`
}

// Webhook posts escalations as signed JSON to an arbitrary HTTP endpoint.
type Webhook struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier. If secret is set, every request
// carries a "sha256=<hex>" signature in SignatureHeader.
func NewWebhook(url, secret string, logger *slog.Logger) (*Webhook, error) {
	if url == "" {
		return nil, fmt.Errorf("notify: webhook url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("component", "notify.webhook"),
	}, nil
}

func (w *Webhook) Escalate(ctx context.Context, e protocol.Escalation) error {
	body, err := json.Marshal(WebhookPayload{Event: "escalation", Escalation: e})
	if err != nil {
		return fmt.Errorf("notify: webhook: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set(SignatureHeader, sign(body, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("notify: webhook: status %d", resp.StatusCode)
	}
	w.logger.Debug("escalation delivered", "thread", e.ThreadID)
	return nil
}

// sign returns the HMAC-SHA256 signature of body as "sha256=<hex>".
func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// verify checks a signature produced by sign.
func verify(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Escalator is anything that can deliver an escalation.
type Escalator interface {
	Escalate(ctx context.Context, e protocol.Escalation) error
}

// Multi fans an escalation out to every notifier. All are attempted; the
// failures are joined.
type Multi []Escalator

func (m Multi) Escalate(ctx context.Context, e protocol.Escalation) error {
	var errs []error
	for _, n := range m {
		if err := n.Escalate(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
