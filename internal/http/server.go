// Package http serves the encaissement back-office: the ledger page and its
// htmx partials, exports, the appointment recap and the probes.
package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"caisse/internal/cache"
	"caisse/internal/core"
	"caisse/internal/ledger"
	"caisse/internal/log"
	"caisse/internal/middleware/ratelimit"
	"caisse/internal/middleware/security"
	"caisse/internal/middleware/trace"
	"caisse/internal/remote"
	"caisse/internal/storage"
	appweb "caisse/web"
)

type (
	// LedgerLoader fetches a token's dataset, or its last snapshot.
	LedgerLoader interface {
		Load(ctx context.Context, token string) (core.Dataset, error)
		Fallback(ctx context.Context, token string) (core.Dataset, error)
	}

	SheetsExporter interface {
		Export(ctx context.Context, b ledger.Bucket, rows []ledger.Row) (string, error)
	}

	// BookingAPI is what the recap pages need from the salon API.
	BookingAPI interface {
		remote.ServiceLister
		remote.EmployeeLister
		remote.AppointmentCreator
	}

	// Checker reports whether a dependency is ready.
	Checker func(ctx context.Context) error
)

// Deps are the collaborators of the server. Sheets and Booking are optional.
type Deps struct {
	Loader  LedgerLoader
	Deleter ledger.Deleter
	Booking BookingAPI
	Sheets  SheetsExporter
	// Ready maps a dependency name to its readiness check.
	Ready map[string]Checker
}

type Options struct {
	SessionTTL         time.Duration
	SessionMax         int
	RateLimitPerMinute int
	TrustedProxies     []string
	Location           *time.Location
	Logger             *log.Logger
	// Now overrides the clock; tests use it to pin "today".
	Now func() time.Time
}

type Server struct {
	http.Server
	templates *template.Template
	deps      Deps
	logger    *log.Logger
	now       func() time.Time

	sessions *cache.LRUCache[*ledger.Session]
	caches   *cache.Manager
	limiter  *ratelimit.Limiter
	guard    *security.Guard
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	if deps.Loader == nil || deps.Deleter == nil {
		return nil, fmt.Errorf("http server needs a loader and a deleter")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.SessionMax <= 0 {
		opts.SessionMax = 500
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location

	guard, err := security.NewGuard(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		templates: t,
		deps:      deps,
		logger:    opts.Logger,
		now:       func() time.Time { return now().In(loc) },
		sessions:  cache.NewLRUCache[*ledger.Session](opts.SessionMax, opts.SessionTTL).WithClock(now),
		caches:    cache.NewManager(),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		guard:     guard,
	}
	s.tracer = trace.NewMiddleware(opts.Logger, guard.ClientIP)

	s.caches.Register("sessions", s.sessions)
	s.caches.Register("rate_limit", s.limiter.Cache())
	s.caches.StartCleanup(5 * time.Minute)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssets(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /encaissements", s.handleIndex)
	mux.HandleFunc("POST /encaissements/bucket", s.handleBucket)
	mux.HandleFunc("POST /encaissements/search", s.handleSearch)
	mux.HandleFunc("POST /encaissements/sort", s.handleSort)
	mux.HandleFunc("POST /encaissements/invert", s.handleInvert)
	mux.HandleFunc("POST /encaissements/refresh", s.handleRefresh)
	mux.HandleFunc("POST /encaissements/delete-mode", s.handleDeleteMode)
	mux.HandleFunc("POST /encaissements/choose/{id}", s.handleChoose)
	mux.HandleFunc("POST /encaissements/cancel", s.handleCancel)
	mux.HandleFunc("POST /encaissements/confirm", s.handleConfirm)
	mux.HandleFunc("GET /encaissements/export.csv", s.handleExportCSV)
	mux.HandleFunc("GET /encaissements/export.xlsx", s.handleExportXLSX)
	mux.HandleFunc("POST /encaissements/export/sheets", s.handleExportSheets)
	mux.HandleFunc("GET /api/encaissements", s.handleAPILedger)

	mux.HandleFunc("GET /rdv/recap", s.handleRecap)
	mux.HandleFunc("POST /rdv/confirm", s.handleConfirmAppointment)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.guard.ClientIP, s.handleRateLimited)(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = s.tracer.Handler(h)
	h = s.guard.Middleware(h)
	return h
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).Warn("Rate limit exceeded", log.FieldPath, r.URL.Path)
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		TriggerErrorNotification("Trop de requêtes, réessayez dans un instant.").
		Write(w)
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{}
	code := http.StatusOK
	for name, check := range s.deps.Ready {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			log.FromContext(ctx).Warn("Readiness check failed", "dependency", name, log.FieldError, err.Error())
			continue
		}
		status[name] = "ok"
	}
	writeJSON(w, code, status)
}

// session returns the caller's ledger session, loading it on first use.
func (s *Server) session(ctx context.Context, token string) (*ledger.Session, error) {
	sess, cached := s.sessions.GetOrSet(storage.OwnerKey(token), func() *ledger.Session {
		return ledger.NewSession(s.now)
	})
	if cached && sess.Loaded() {
		return sess, nil
	}
	if err := s.load(ctx, token, sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// load refreshes sess from the API. When that fails and the session has no
// rows yet, the token's snapshot is used instead, unless the API refused
// the token. On failure the session
// keeps its previous rows.
func (s *Server) load(ctx context.Context, token string, sess *ledger.Session) error {
	logger := log.FromContext(ctx)
	ds, err := s.deps.Loader.Load(ctx, token)
	if err != nil {
		logger.Warn("Ledger refresh failed", log.FieldOperation, log.OpLoad, log.FieldError, err.Error())
		if sess.Loaded() || errors.Is(err, remote.ErrUnauthorized) {
			return err
		}
		snap, ferr := s.deps.Loader.Fallback(ctx, token)
		if ferr != nil {
			return err
		}
		if lerr := sess.Load(snap); lerr != nil {
			return err
		}
		logger.Info("Serving snapshot after failed load", "fetched_at", snap.FetchedAt)
		return nil
	}
	if err := sess.Load(ds); err != nil {
		logger.Error("Ledger data rejected", log.FieldOperation, log.OpLoad, log.FieldError, err.Error())
		return err
	}
	return nil
}
