package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const maxAttempts = 3

// Runner is the per-provider execution gate: a weighted semaphore caps
// in-flight requests, a minimum start-to-start spacing paces attempts,
// and transient failures are retried with classified backoff.
type Runner struct {
	name    string
	client  *Client
	sem     *semaphore.Weighted
	spacing time.Duration

	mu        sync.Mutex
	lastStart time.Time

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRunner(name string, client *Client, slots int64, spacing time.Duration) *Runner {
	return &Runner{
		name:    name,
		client:  client,
		sem:     semaphore.NewWeighted(slots),
		spacing: spacing,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// reserveSlot claims the next allowed start time under the spacing rule
// and returns how long the caller must wait for it. The reservation is
// made under the lock so concurrent attempts queue behind each other
// instead of stampeding when the current wait ends.
func (r *Runner) reserveSlot() time.Duration {
	if r.spacing <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	target := r.lastStart.Add(r.spacing)
	if target.After(now) {
		r.lastStart = target
		return target.Sub(now)
	}
	r.lastStart = now
	return 0
}

// Do executes one logical request: semaphore admission, then up to
// maxAttempts paced attempts with outcome-specific backoff.
func (r *Runner) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := r.sleep(ctx, r.reserveSlot()); err != nil {
			return nil, err
		}
		out, err := r.client.Do(ctx, method, url, headers, body)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var ue *Error
		if !errors.As(err, &ue) {
			return nil, err // context cancellation, not retryable
		}
		var backoff time.Duration
		switch ue.Outcome {
		case RateLimited:
			backoff = ue.RetryAfter + time.Duration(math.Pow(1.5, float64(attempt))*float64(time.Second))
		case TransientServer:
			backoff = time.Second
		case TransientNetwork:
			backoff = 2 * time.Second
		default:
			return nil, err
		}
		if attempt < maxAttempts {
			log.Printf("[%s] attempt %d/%d failed (%s), retrying in %s", r.name, attempt, maxAttempts, ue.Outcome, backoff)
			if err := r.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// GetJSON runs a GET and decodes the JSON body into out. A body that
// fails to decode is a fatal error, not a retryable one.
func (r *Runner) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	body, err := r.Do(ctx, http.MethodGet, url, headers, nil)
	if err != nil {
		return err
	}
	return r.decode(url, body, out)
}

// PostJSON marshals in, POSTs it, and decodes the JSON response into out.
// out may be nil when the caller only cares about the status.
func (r *Runner) PostJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return &Error{Outcome: Fatal, Err: err}
		}
	}
	respBody, err := r.Do(ctx, http.MethodPost, url, headers, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return r.decode(url, respBody, out)
}

func (r *Runner) decode(url string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		log.Printf("[%s] malformed JSON from %s: %v", r.name, url, err)
		return &Error{Outcome: Fatal, Err: err}
	}
	return nil
}

// RPCError is a JSON-RPC error object surfaced to the caller so
// adapters can decide whether it is a logical miss or a real failure.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return "rpc error " + e.Message
}

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPC issues a JSON-RPC 2.0 call and decodes result into out. A
// server-reported error comes back as *RPCError.
func (r *Runner) RPC(ctx context.Context, url string, headers map[string]string, method string, params, out any) error {
	req := rpcRequest{Jsonrpc: "2.0", ID: 1, Method: method, Params: params}
	var resp rpcResponse
	if err := r.PostJSON(ctx, url, headers, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return &Error{Outcome: Fatal, Err: err}
	}
	return nil
}
