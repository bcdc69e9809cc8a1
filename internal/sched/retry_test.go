package sched

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDelayBoundedByMaxBackoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 10, Base: time.Second, MaxBackoff: 8 * time.Second}
	for attempt := 0; attempt < 12; attempt++ {
		if d := p.Delay(attempt, 0); d > p.MaxBackoff {
			t.Fatalf("attempt %d: delay %s exceeds max backoff", attempt, d)
		}
	}
}

func TestDelayRetryAfterIsFloor(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, Base: 10 * time.Millisecond, MaxBackoff: 30 * time.Second,
		jitter: func(time.Duration) time.Duration { return 0 }}
	for attempt := 0; attempt < 5; attempt++ {
		if d := p.Delay(attempt, 5*time.Second); d < 5*time.Second {
			t.Fatalf("attempt %d: delay %s below Retry-After floor", attempt, d)
		}
	}
}

func TestDelayGrowsExponentially(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, Base: 10 * time.Millisecond, MaxBackoff: time.Minute,
		jitter: func(time.Duration) time.Duration { return 0 }}
	if p.Delay(0, 0) != 10*time.Millisecond || p.Delay(2, 0) != 40*time.Millisecond {
		t.Fatalf("unexpected exponential progression: %s, %s", p.Delay(0, 0), p.Delay(2, 0))
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if d := ParseRetryAfter("5", now); d != 5*time.Second {
		t.Fatalf("seconds form: got %s", d)
	}
	date := now.Add(10 * time.Second).Format(http.TimeFormat)
	if d := ParseRetryAfter(date, now); d < 9*time.Second || d > 11*time.Second {
		t.Fatalf("http-date form: got %s", d)
	}
	if d := ParseRetryAfter("", now); d != 0 {
		t.Fatalf("empty form: got %s", d)
	}
	if d := ParseRetryAfter("garbage", now); d != 0 {
		t.Fatalf("garbage form: got %s", d)
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !RetryableStatus(code) {
			t.Fatalf("%d should be retryable", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404} {
		if RetryableStatus(code) {
			t.Fatalf("%d should not be retryable", code)
		}
	}
}

func TestDoRequestRetriesThenSucceeds(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(503)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	p := RetryPolicy{MaxRetries: 4, Base: time.Millisecond, MaxBackoff: 10 * time.Millisecond,
		jitter: func(time.Duration) time.Duration { return 0 }}
	resp, err := p.DoRequest(context.Background(), ts.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, "GET", ts.URL, nil)
	})
	if err != nil {
		t.Fatalf("DoRequest: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("status=%d calls=%d", resp.StatusCode, calls)
	}
}

func TestDoRequestExhaustsRetries(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(502)
	}))
	defer ts.Close()

	p := RetryPolicy{MaxRetries: 2, Base: time.Millisecond, MaxBackoff: 5 * time.Millisecond,
		jitter: func(time.Duration) time.Duration { return 0 }}
	_, err := p.DoRequest(context.Background(), ts.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, "GET", ts.URL, nil)
	})
	se, ok := err.(*StatusError)
	if !ok || se.Code != 502 {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", calls)
	}
}

func TestDoRequestDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(404)
	}))
	defer ts.Close()

	p := DefaultRetryPolicy()
	resp, err := p.DoRequest(context.Background(), ts.Client(), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, "GET", ts.URL, nil)
	})
	if err != nil {
		t.Fatalf("DoRequest: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("status=%d calls=%d, want single 404", resp.StatusCode, calls)
	}
}
