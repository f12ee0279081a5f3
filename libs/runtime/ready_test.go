package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyHandlerReportsFailures(t *testing.T) {
	h := ReadyHandler(0,
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "mqtt", Check: func(context.Context) error { return errors.New("not connected") }},
		ReadyCheck{Name: "skipped"},
	)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "mqtt: not connected") {
		t.Fatalf("unexpected body: %q", rw.Body.String())
	}
}

func TestReadyHandlerOK(t *testing.T) {
	rw := httptest.NewRecorder()
	ReadyHandler(0).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG").String() != "DEBUG" {
		t.Fatalf("expected debug level")
	}
	if ParseLevel("bogus").String() != "INFO" {
		t.Fatalf("expected info fallback")
	}
}
