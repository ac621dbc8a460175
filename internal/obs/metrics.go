package obs

import (
	"net/http"
	"strconv"
	"strings"
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

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})

	bulkUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bulk_updates_total",
		Help: "Total number of accepted bulk animal updates.",
	})

	statusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "animal_status_transitions_total",
			Help: "Animal status transitions by resulting status.",
		},
		[]string{"status"},
	)
)

// Init registers the service metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		ready, bulkUpdatesTotal, statusTransitionsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
	} else {
		ready.Set(0)
	}
}

// ObserveBulkUpdate records an accepted bulk update.
func ObserveBulkUpdate() {
	bulkUpdatesTotal.Inc()
}

// ObserveStatusTransition records a completed status transition.
func ObserveStatusTransition(status string) {
	statusTransitionsTotal.WithLabelValues(status).Inc()
}

// CanonicalPath collapses resource identifiers in request paths so metric
// label cardinality stays bounded. Unknown shapes pass through untouched.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	seg := strings.Split(strings.Trim(p, "/"), "/")
	if len(seg) < 3 || seg[0] != "v1" {
		return p
	}
	switch seg[1] {
	case "animals":
		if !isNumeric(seg[2]) {
			return p
		}
		switch len(seg) {
		case 3:
			return "/v1/animals/:id"
		case 4:
			switch seg[3] {
			case "comments", "tags", "quarantine-end":
				return "/v1/animals/:id/" + seg[3]
			}
		case 5:
			if seg[3] == "tags" {
				return "/v1/animals/:id/tags/:tagID"
			}
		}
	case "groups":
		if !isNumeric(seg[2]) {
			return p
		}
		switch len(seg) {
		case 3:
			return "/v1/groups/:id"
		case 4:
			if seg[3] == "members" {
				return "/v1/groups/:id/members"
			}
		case 5:
			if seg[3] == "members" {
				return "/v1/groups/:id/members/:userID"
			}
		}
	case "users":
		if len(seg) == 3 {
			return "/v1/users/:id"
		}
	}
	return p
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Instrument wraps a handler with RPS, latency and in-flight metrics keyed by
// canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streaming through the metrics wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
