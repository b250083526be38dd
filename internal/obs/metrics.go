// Package obs holds the Prometheus collectors of the service.
package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	loginTokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "login_tokens_issued_total",
		Help: "Magic login tokens created.",
	})

	loginTokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_token_validations_total",
			Help: "Magic login token validations by outcome.",
		},
		[]string{"outcome"},
	)

	loginTokensSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "login_tokens_swept_total",
		Help: "Login tokens deleted by the retention sweep.",
	})

	deliveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_delivery_attempts_total",
			Help: "Email delivery attempts by result.",
		},
		[]string{"result"},
	)

	initOnce sync.Once
)

// Init registers all collectors in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			loginTokensIssued, loginTokenValidations, loginTokensSwept, deliveryAttempts,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func TokenIssued() { loginTokensIssued.Inc() }

// TokenValidation records a consume attempt. outcome is "ok", "not_found",
// "expired", "already_used" or "ineligible".
func TokenValidation(outcome string) { loginTokenValidations.WithLabelValues(outcome).Inc() }

func TokensSwept(n int) { loginTokensSwept.Add(float64(n)) }

// DeliveryAttempt records one send attempt; result is "ok" or "error".
func DeliveryAttempt(result string) { deliveryAttempts.WithLabelValues(result).Inc() }

// Instrument measures request count, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// tokenRoutes have a secret or an id as their second segment.
var tokenRoutes = map[string]bool{
	"magic-login":     true,
	"secure-download": true,
	"download-file":   true,
}

// CanonicalPath replaces path parameters with placeholders. Magic-link and
// download tokens must never end up in label values.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}

	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case len(parts) == 2 && tokenRoutes[parts[0]]:
		return "/" + parts[0] + "/:token/"
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "verify-email":
		return "/api/verify-email/:token/"
	case len(parts) == 4 && parts[0] == "admin" && parts[1] == "users" && parts[3] == "active":
		return "/admin/users/:id/active"
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
