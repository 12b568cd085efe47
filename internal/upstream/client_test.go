package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDoClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		retryAfter  string
		wantOutcome Outcome
		wantRetry   time.Duration
	}{
		{"ok", 200, "", Ok, 0},
		{"created", 201, "", Ok, 0},
		{"rate limited with header", 429, "3", RateLimited, 3 * time.Second},
		{"rate limited no header", 429, "", RateLimited, 0},
		{"internal error", 500, "", TransientServer, 0},
		{"bad gateway", 502, "", TransientServer, 0},
		{"service unavailable", 503, "", TransientServer, 0},
		{"gateway timeout", 504, "", TransientServer, 0},
		{"bad request", 400, "", Fatal, 0},
		{"unauthorized", 401, "", Fatal, 0},
		{"not found", 404, "", Fatal, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"hello":"world"}`))
			}))
			defer srv.Close()

			c := NewClient(5 * time.Second)
			body, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
			if tt.wantOutcome == Ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if string(body) != `{"hello":"world"}` {
					t.Errorf("body = %q", body)
				}
				return
			}
			var ue *Error
			if !errors.As(err, &ue) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if ue.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", ue.Outcome, tt.wantOutcome)
			}
			if ue.RetryAfter != tt.wantRetry {
				t.Errorf("retryAfter = %s, want %s", ue.RetryAfter, tt.wantRetry)
			}
			if ue.Status != tt.status {
				t.Errorf("status = %d, want %d", ue.Status, tt.status)
			}
		})
	}
}

func TestDoNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(time.Second)
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if Classify(err) != TransientNetwork {
		t.Errorf("classify = %s, want %s", Classify(err), TransientNetwork)
	}
}

func TestDoContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c(t).Do(ctx, http.MethodGet, srv.URL, nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func c(t *testing.T) *Client {
	t.Helper()
	return NewClient(5 * time.Second)
}

func TestDoSendsHeadersAndBody(t *testing.T) {
	var gotKey, gotCT, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotCT = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := c(t).Do(context.Background(), http.MethodPost, srv.URL,
		map[string]string{"X-Api-Key": "secret"}, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotKey != "secret" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotCT != "application/json" {
		t.Errorf("content-type = %q", gotCT)
	}
	if gotBody != `{"a":1}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestRedact(t *testing.T) {
	in := []byte(`{"user":"a","password":"hunter2","passphrase":"tr0ub4dor"}`)
	out := redact(in)
	if strings.Contains(out, "hunter2") || strings.Contains(out, "tr0ub4dor") {
		t.Errorf("secrets leaked: %s", out)
	}
	if !strings.Contains(out, "[redacted]") {
		t.Errorf("missing redaction marker: %s", out)
	}
	if !strings.Contains(out, `"user":"a"`) {
		t.Errorf("non-secret field mangled: %s", out)
	}
}
