package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// MaxEvidenceBytes truncates any fetched body. Pages are free-text evidence,
// not data dumps; anything past this adds nothing to a verdict.
const MaxEvidenceBytes = 15000

// Evidence is the raw result of one URL fetch. Body is text: it flows
// straight into the sanitizer and the verdict engines.
type Evidence struct {
	OK     bool
	Status int
	Body   string
	IsJSON bool
}

// Fetcher retrieves evidence URLs with retries and a hard per-request timeout.
type Fetcher struct {
	Client     *http.Client
	Retries    int
	RetryDelay time.Duration
}

// NewFetcher builds a fetcher with the resolution pipeline's defaults:
// 15 s timeout, 3 retries spaced 10 s apart.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:     &http.Client{Timeout: 15 * time.Second},
		Retries:    3,
		RetryDelay: 10 * time.Second,
	}
}

// FetchURL downloads an evidence page. Transient failures are retried; the
// response is truncated to MaxEvidenceBytes.
func (f *Fetcher) FetchURL(ctx context.Context, url string) (*Evidence, error) {
	var lastErr error
	for attempt := 0; attempt < f.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.RetryDelay):
			}
		}

		ev, err := f.fetchOnce(ctx, url)
		if err == nil {
			return ev, nil
		}
		lastErr = err
		log.Printf("[WARN] evidence fetch %s (attempt %d/%d): %v", url, attempt+1, f.Retries, err)
	}
	return nil, fmt.Errorf("evidence fetch %s: %w", url, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*Evidence, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; poolwarden/1.0)")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxEvidenceBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	ev := &Evidence{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 400,
		Status: resp.StatusCode,
		Body:   string(body),
	}
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || json.Valid(body) {
		ev.IsJSON = true
	}
	return ev, nil
}
