// Package http serves the billing JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cobros/internal/cache"
	"cobros/internal/log"
	"cobros/internal/metrics"
	"cobros/internal/services"
)

const (
	// HeaderOwnerID carries the opaque owner id every request is scoped to.
	HeaderOwnerID   = "X-Owner-ID"
	HeaderRequestID = "X-Request-ID"

	maxBodyBytes    = 1 << 20
	maxImportBytes  = 8 << 20
	cacheCleanEvery = 5 * time.Minute
)

// Options configures NewServer. Zero values fall back to sensible defaults.
type Options struct {
	Addr               string
	DefaultOwnerID     string
	RateLimitPerMinute int
	DashboardCacheSize int
	DashboardCacheTTL  time.Duration
	Metrics            *metrics.Metrics
	Logger             *log.Logger
}

// Server wraps http.Server with the billing handlers and their caches.
type Server struct {
	http.Server

	billing        *services.BillingService
	metrics        *metrics.Metrics
	logger         *log.Logger
	defaultOwnerID string

	dashboards   *cache.LRUCache[services.Dashboard]
	dashGenMu    sync.Mutex
	dashGen      map[string]uint64 // per owner, bumped on every invalidation
	cacheManager *cache.Manager
	rateLimiter  *rateLimiter
	security     *securityMetrics

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(svc *services.BillingService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Component: log.ComponentHTTP, Level: slog.LevelInfo})
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.DefaultOwnerID == "" {
		opts.DefaultOwnerID = "default"
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 60
	}
	if opts.DashboardCacheSize <= 0 {
		opts.DashboardCacheSize = 128
	}
	if opts.DashboardCacheTTL <= 0 {
		opts.DashboardCacheTTL = time.Minute
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		billing:        svc,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		defaultOwnerID: opts.DefaultOwnerID,
		dashboards:     cache.NewLRUCache[services.Dashboard](opts.DashboardCacheSize, opts.DashboardCacheTTL),
		dashGen:        make(map[string]uint64),
		cacheManager:   cache.NewManager(),
		rateLimiter:    newRateLimiter(opts.RateLimitPerMinute),
		security:       &securityMetrics{},
	}
	s.cacheManager.Register(s.dashboards)
	s.cacheManager.StartCleanup(cacheCleanEvery)

	s.routes(mux)
	var h http.Handler = s.withMiddleware(mux)
	h = log.RequestIDMiddleware(func(r *http.Request) string { return r.Header.Get(HeaderRequestID) })(h)
	h = log.Middleware(s.logger)(h)
	s.Handler = withRequestID(h)
	return s
}

// withRequestID makes sure every request and response carries X-Request-ID,
// keeping a caller-supplied value.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeInput(r.Header.Get(HeaderRequestID))
		if id == "" || len(id) > 64 {
			id = generateRequestID()
		}
		r.Header.Set(HeaderRequestID, id)
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/clients", s.handleListClients)
	mux.HandleFunc("POST /api/clients", s.handleCreateClient)
	mux.HandleFunc("POST /api/clients/import", s.handleImportClients)
	mux.HandleFunc("GET /api/clients/{id}", s.handleGetClient)
	mux.HandleFunc("PUT /api/clients/{id}", s.handleUpdateClient)
	mux.HandleFunc("DELETE /api/clients/{id}", s.handleDeleteClient)
	mux.HandleFunc("GET /api/clients/{id}/payments", s.handleListClientPayments)
	mux.HandleFunc("GET /api/clients/{id}/statement.pdf", s.handleStatement)

	mux.HandleFunc("GET /api/payments", s.handleListPayments)
	mux.HandleFunc("POST /api/payments", s.handleRecordPayment)

	mux.HandleFunc("GET /api/status", s.handlePeriodStatus)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/upcoming", s.handleUpcoming)

	mux.HandleFunc("GET /api/export/clients.csv", s.handleExportClients)
	mux.HandleFunc("GET /api/export/payments.csv", s.handleExportPayments)
}

// withMiddleware logs the request, applies security headers and rate limits
// writes per client IP. It expects the request logger in the context.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		ctx := r.Context()
		logger := log.FromContext(ctx)

		setSecurityHeaders(w)

		if detectSuspiciousRequest(r, s.security) {
			logger.WarnContext(ctx, "Suspicious request",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldComponent, log.ComponentSecurity)
		}

		if isWrite(r.Method) && !s.rateLimiter.allow(clientIP, s.security) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldComponent, log.ComponentRateLimit)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		structured := log.NewStructuredLogger(logger)
		structured.LogHTTPStart(ctx, r, clientIP)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		structured.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
		s.metrics.RequestDuration.
			WithLabelValues(r.Method, routeLabel(r), statusClass(rw.statusCode)).
			Observe(duration.Seconds())
	})
}

// Shutdown stops the background cleanups and then the HTTP server. It is
// safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// routeLabel keeps the metric's route label bounded by using the matched
// mux pattern instead of the raw path.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
