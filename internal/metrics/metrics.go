// Package metrics holds the Prometheus collectors for calculations, validation
// verdicts, and the HTTP surface.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "visval"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples emitted by the sample generator.",
		},
		[]string{"engine"},
	)

	skippedInstantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_instants_total",
			Help:      "Grid instants skipped because propagation failed.",
		},
		[]string{"engine"},
	)

	windowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Visibility windows detected.",
		},
		[]string{"engine"},
	)

	calculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Test case calculations by outcome.",
		},
		[]string{"engine", "outcome"},
	)

	calculationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_seconds",
			Help:      "Wall time of one test case calculation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"engine"},
	)

	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "case_verdicts_total",
			Help:      "Validation outcomes per implementation.",
		},
		[]string{"implementation", "verdict"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		samplesTotal,
		skippedInstantsTotal,
		windowsTotal,
		calculationsTotal,
		calculationDurationSeconds,
		verdictsTotal,
	)
}

// RecordSamples counts generator output for one test case.
func RecordSamples(engine string, emitted, skipped int) {
	samplesTotal.WithLabelValues(engine).Add(float64(emitted))
	skippedInstantsTotal.WithLabelValues(engine).Add(float64(skipped))
}

// RecordWindows counts detected windows for one test case.
func RecordWindows(engine string, n int) {
	windowsTotal.WithLabelValues(engine).Add(float64(n))
}

// RecordCalculation records one calculation's duration and outcome.
func RecordCalculation(engine string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	calculationsTotal.WithLabelValues(engine, outcome).Inc()
	calculationDurationSeconds.WithLabelValues(engine).Observe(d.Seconds())
}

// RecordVerdict counts one validated case. verdict is "passed", "failed",
// "no_reference", or "implementation_error".
func RecordVerdict(implementation, verdict string) {
	verdictsTotal.WithLabelValues(implementation, verdict).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// WriteTextfile writes the default registry in the text exposition format,
// for node_exporter's textfile collector. The file is replaced atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// knownRoutes are the exact paths served by the API.
var knownRoutes = map[string]bool{
	"/":                  true,
	"/healthz":           true,
	"/readyz":            true,
	"/metrics":           true,
	"/api/v1/engines":    true,
	"/api/v1/visibility": true,
	"/api/v1/validate":   true,
}

const engineRoutePrefix = "/api/v1/engines/"

// normalizeRoute maps a request path to a bounded label set so scanners and
// per-engine paths cannot blow up metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if name, ok := strings.CutPrefix(path, engineRoutePrefix); ok && name != "" && !strings.Contains(name, "/") {
		return engineRoutePrefix + "{name}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
