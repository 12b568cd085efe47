// Package upstream wraps outbound HTTP to third-party chain APIs with a
// shared failure taxonomy, per-provider pacing, and bounded retries.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

// Outcome classifies a finished upstream attempt. The runner's retry
// policy keys off this, never off raw status codes.
type Outcome int

const (
	Ok Outcome = iota
	RateLimited
	TransientServer
	TransientNetwork
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case RateLimited:
		return "rate_limited"
	case TransientServer:
		return "transient_server"
	case TransientNetwork:
		return "transient_network"
	default:
		return "fatal"
	}
}

// Error is the classified failure for one upstream attempt.
type Error struct {
	Outcome    Outcome
	Status     int           // 0 for network-level failures
	RetryAfter time.Duration // only set for RateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream %s (status %d): %v", e.Outcome, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Outcome, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify extracts the outcome from an error chain, defaulting to
// Fatal for errors that did not come from this package.
func Classify(err error) Outcome {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Outcome
	}
	return Fatal
}

// secretFields are stripped from request bodies before they reach logs.
var secretFields = regexp.MustCompile(`(?i)("(?:password|passphrase|privateKey|mnemonic)"\s*:\s*)"[^"]*"`)

func redact(body []byte) string {
	const max = 512
	s := secretFields.ReplaceAllString(string(body), `$1"[redacted]"`)
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// Client executes single HTTP attempts and classifies the result. It
// carries no pacing; Runner layers that on top.
type Client struct {
	HTTP *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// Do runs one request and returns the response body on 2xx. Any other
// result comes back as an *Error carrying the outcome.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, &Error{Outcome: Fatal, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Outcome: TransientNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &Error{Outcome: TransientNetwork, Status: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{
			Outcome:    RateLimited,
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s %s: %s", method, url, redact(respBody)),
		}
	case resp.StatusCode == 500 || resp.StatusCode == 502 || resp.StatusCode == 503 || resp.StatusCode == 504:
		return nil, &Error{
			Outcome: TransientServer,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%s %s: %s", method, url, redact(respBody)),
		}
	default:
		log.Printf("[UPSTREAM] fatal status %d from %s %s: %s", resp.StatusCode, method, url, redact(respBody))
		return nil, &Error{
			Outcome: Fatal,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%s %s: %s", method, url, redact(respBody)),
		}
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
