// Package api serves visibility calculation and validation over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cprosche/visibility-testing/internal/auth"
	"github.com/cprosche/visibility-testing/internal/health"
	"github.com/cprosche/visibility-testing/internal/metrics"
	"github.com/cprosche/visibility-testing/internal/propagation"
	"github.com/cprosche/visibility-testing/internal/validate"
)

// DefaultMaxSamples bounds the time grid of one request: a full day at 1 s.
const DefaultMaxSamples = 86401

// Options configures the server.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	MaxBodyBytes      int64
	MaxSamples        int
	Auth              auth.Config

	Registry  *propagation.Registry
	Reference string
	Compare   validate.Options
	Version   string
	Readiness *health.Readiness
	Logger    *slog.Logger
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = DefaultMaxSamples
	}
	if opts.Readiness == nil {
		opts.Readiness = health.NewReadiness()
		opts.Readiness.SetReady()
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Minute
	}

	h := &handlers{opts: opts, logger: opts.Logger.With("component", "api")}

	mux := http.NewServeMux()
	public := make(map[string]bool)
	quiet := make(map[string]bool)
	for _, rt := range h.routes() {
		mux.Handle(rt.pattern, rt.handler)
		public[rt.pattern] = rt.public
		quiet[rt.pattern] = rt.quiet
	}
	// matched resolves a request to the pattern that will serve it.
	matched := func(m map[string]bool) func(*http.Request) bool {
		return func(r *http.Request) bool {
			_, pattern := mux.Handler(r)
			return m[pattern]
		}
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(opts.Auth, matched(public))(handler)
	handler = loggingMiddleware(opts.Logger, matched(quiet))(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
		handler: handler,
		logger:  opts.Logger,
	}
}

// Handler returns the full middleware chain, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// route is one entry of the API surface. public routes skip authentication
// and quiet routes log at debug level.
type route struct {
	pattern string
	handler http.Handler
	public  bool
	quiet   bool
}

// routes is the single list of endpoints the server mounts. Engine metadata
// is public; calculation and validation spend CPU and always require a token.
func (h *handlers) routes() []route {
	return []route{
		{pattern: "GET /healthz", handler: http.HandlerFunc(health.Healthz), public: true, quiet: true},
		{pattern: "GET /readyz", handler: http.HandlerFunc(h.opts.Readiness.Readyz), public: true, quiet: true},
		{pattern: "GET /metrics", handler: metrics.Handler(), public: true, quiet: true},
		{pattern: "GET /api/v1/engines", handler: http.HandlerFunc(h.listEngines), public: true},
		{pattern: "GET /api/v1/engines/{name}", handler: http.HandlerFunc(h.getEngine), public: true},
		{pattern: "POST /api/v1/visibility", handler: http.HandlerFunc(h.visibility)},
		{pattern: "POST /api/v1/validate", handler: http.HandlerFunc(h.validate)},
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, quiet func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if quiet(r) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
