package sched

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RetryPolicy retries transient HTTP failures with exponential backoff plus
// jitter. A server-supplied Retry-After acts as a floor for the wait: jitter
// never shortens it. MaxBackoff caps the final delay.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	MaxBackoff time.Duration

	// jitter returns a random duration in [0, d). Overridable in tests.
	jitter func(d time.Duration) time.Duration
}

var jitterMu sync.Mutex
var jitterRng = rand.New(rand.NewSource(time.Now().UnixNano()))

func defaultJitter(d time.Duration) time.Duration {
	if d < 1 {
		return 0
	}
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return time.Duration(jitterRng.Int63n(int64(d)))
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 4, Base: 500 * time.Millisecond, MaxBackoff: 30 * time.Second}
}

// Delay computes the wait before retry number attempt (0-based).
// delay = min(MaxBackoff, max(retryAfter, Base*2^attempt + jitter)).
func (p RetryPolicy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	j := p.jitter
	if j == nil {
		j = defaultJitter
	}
	d := p.Base<<uint(attempt) + j(p.Base)
	if retryAfter > d {
		d = retryAfter
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// ParseRetryAfter parses a Retry-After header value: either delta-seconds or
// an HTTP-date. Returns 0 when absent or unparseable.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// StatusError is returned by DoRequest when retries are exhausted on a
// retryable HTTP status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "unexpected status: " + e.Status }

// DoRequest issues the request built by build, retrying per the policy on
// transport errors and retryable statuses. build is called per attempt so the
// request body can be recreated. The response body of a retried attempt is
// fully drained before the connection is reused. Non-retryable statuses are
// returned to the caller untouched.
func (p RetryPolicy) DoRequest(ctx context.Context, client *http.Client, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err == nil && !RetryableStatus(resp.StatusCode) {
			return resp, nil
		}
		var retryAfter time.Duration
		if err == nil {
			retryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
			// drain so the underlying connection is not leaked
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
		} else {
			lastErr = err
		}
		if attempt >= p.MaxRetries {
			return nil, lastErr
		}
		select {
		case <-time.After(p.Delay(attempt, retryAfter)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
