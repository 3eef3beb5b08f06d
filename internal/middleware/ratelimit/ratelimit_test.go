package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLimiter_AllowBurstThenLimit(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, Burst: 3})
	for i := 0; i < 3; i++ {
		if !l.Allow("a") {
			t.Fatalf("request %d should pass within burst", i+1)
		}
	}
	if l.Allow("a") {
		t.Fatal("fourth immediate request should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("clients have separate buckets")
	}
	m := l.Metrics()
	if m.Limited != 1 || m.ClientCount != 2 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(Config{})
	if l.burst != 10 {
		t.Fatalf("burst = %d, want 10", l.burst)
	}
	if l := NewLimiter(Config{RequestsPerMinute: 2}); l.burst != 1 {
		t.Fatalf("burst = %d, want 1", l.burst)
	}
}

func TestMiddleware(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1, Burst: 1})
	h := l.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	do := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/encaissements/search", nil))
		return rec
	}

	if rec := do(http.MethodPost); rec.Code != http.StatusNoContent {
		t.Fatalf("first POST: %d", rec.Code)
	}
	rec := do(http.MethodPost)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST: %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	if rec := do(http.MethodGet); rec.Code != http.StatusNoContent {
		t.Fatalf("GET is never limited, got %d", rec.Code)
	}
}
