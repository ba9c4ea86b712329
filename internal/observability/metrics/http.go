package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	turnsTotal     *prometheus.CounterVec
	refusalsTotal  *prometheus.CounterVec
	retrievedUnits *prometheus.HistogramVec
	turnDuration   *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total completed conversation turns by mode and policy.",
		},
		[]string{"service", "mode", "policy"},
	)
	refusalsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "conversation",
			Name:      "refusals_total",
			Help:      "Total turns answered with the fixed refusal phrase.",
		},
		[]string{"service", "mode"},
	)
	retrievedUnits := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "conversation",
			Name:      "retrieved_units",
			Help:      "Distribution of retrieved units per turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "conversation",
			Name:      "turn_duration_seconds",
			Help:      "Turn execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		turnsTotal,
		refusalsTotal,
		retrievedUnits,
		turnDuration,
	)

	return &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		turnsTotal:      turnsTotal,
		refusalsTotal:   refusalsTotal,
		retrievedUnits:  retrievedUnits,
		turnDuration:    turnDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses per-user and per-session segments so label
// cardinality stays bounded.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/v1/users/") {
		return path
	}
	parts := strings.Split(path, "/")
	// /v1/users/{user_id}/...
	if len(parts) > 3 {
		parts[3] = "{user_id}"
	}
	// /v1/users/{user_id}/sessions/{session_id}/...
	if len(parts) > 5 && parts[4] == "sessions" {
		parts[5] = "{session_id}"
	}
	return strings.Join(parts, "/")
}

func (m *HTTPServerMetrics) RecordTurn(service, mode, policy string, unitCount int, refused bool, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if policy == "" {
		policy = "unknown"
	}
	m.turnsTotal.WithLabelValues(service, mode, policy).Inc()
	m.retrievedUnits.WithLabelValues(service).Observe(float64(unitCount))
	m.turnDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
	if refused {
		m.refusalsTotal.WithLabelValues(service, mode).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
