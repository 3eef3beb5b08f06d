// Package trace tags every request with an id and logs its outcome.
package trace

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"caisse/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type ctxKey struct{}

type Metrics struct {
	TotalRequests int64
	ServerErrors  int64
}

type Middleware struct {
	extractIP func(*http.Request) string
	base      *log.Logger
	total     atomic.Int64
	errors    atomic.Int64
}

func NewMiddleware(logger *log.Logger, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{extractIP: extractIP, base: logger}
}

// Handler assigns the request id (reusing a well-formed incoming one),
// attaches a request-scoped logger and logs completion.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := incomingID(r)
		if id == "" {
			id = NewRequestID()
		}
		w.Header().Set(HeaderRequestID, id)

		ip := ""
		if m.extractIP != nil {
			ip = m.extractIP(r)
		}
		logger := m.base.With(log.FieldRequestID, id)
		ctx := context.WithValue(r.Context(), ctxKey{}, id)
		ctx = log.NewContext(ctx, logger)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		m.total.Add(1)
		if rw.status >= 500 {
			m.errors.Add(1)
		}
		log.NewStructuredLogger(logger).LogHTTPEnd(ctx, r, rw.status, time.Since(start).Milliseconds(), ip)
	})
}

func incomingID(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get(HeaderRequestID))
	if _, err := uuid.Parse(v); err != nil {
		return ""
	}
	return v
}

func NewRequestID() string {
	return uuid.NewString()
}

// RequestID returns the id assigned by Handler, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (m *Middleware) Metrics() Metrics {
	return Metrics{TotalRequests: m.total.Load(), ServerErrors: m.errors.Load()}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
