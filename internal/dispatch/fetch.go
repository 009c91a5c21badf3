package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/toolkit-community/helpdesk/internal/connector"
)

const defaultMaxAttachmentBytes = 2 << 20 // 2MB

// AttachmentFetcher downloads the raw text of an attachment.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches attachments over HTTP, truncating bodies at MaxBytes.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPFetcher returns a fetcher with a bounded client timeout.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if maxBytes <= 0 {
		maxBytes = defaultMaxAttachmentBytes
	}
	return &HTTPFetcher{
		Client:   &http.Client{Timeout: timeout},
		MaxBytes: maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch attachment: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch attachment: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes))
	if err != nil {
		return "", fmt.Errorf("fetch attachment: read: %w", err)
	}
	return string(body), nil
}

// scannable reports whether an attachment looks like a log or text file.
func scannable(a connector.Attachment) bool {
	return strings.HasSuffix(strings.ToLower(a.Name), ".log") || strings.Contains(a.ContentType, "text")
}
