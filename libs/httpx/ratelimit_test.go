package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) { return false, errors.New("down") }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
}

func TestRateLimitPerDevice(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RateLimit(NewMemoryLimiter(1, time.Minute), HeaderKey("X-Device-Id"), logger, false)(okHandler())

	send := func(device string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
		req.Header.Set("X-Device-Id", device)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		return rw.Code
	}
	if code := send("a"); code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	if code := send("a"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send("b"); code != http.StatusAccepted {
		t.Fatalf("expected other device to pass, got %d", code)
	}
}

func TestRateLimitFailOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	rw := httptest.NewRecorder()
	RateLimit(failingLimiter{}, ClientIP, logger, true)(okHandler()).ServeHTTP(rw, req)
	if rw.Code != http.StatusAccepted {
		t.Fatalf("expected fail-open pass, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	RateLimit(failingLimiter{}, ClientIP, logger, false)(okHandler()).ServeHTTP(rw, req)
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "req-1" || rw.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("request id not propagated: %q / %q", seen, rw.Header().Get(RequestIDHeader))
	}
}
