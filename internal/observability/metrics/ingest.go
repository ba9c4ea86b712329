package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type IngestMetrics struct {
	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestInFlight prometheus.Gauge
	dedupHitsTotal *prometheus.CounterVec
}

// NewIngestMetrics registers the ingestion collectors on the server's shared
// registry so one /metrics endpoint serves both surfaces.
func NewIngestMetrics(service string, server *HTTPServerMetrics) *IngestMetrics {
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total document ingestions by status.",
		},
		[]string{"service", "status"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Document ingestion duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	ingestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rag",
			Subsystem: "ingest",
			Name:      "in_flight",
			Help:      "Number of in-flight document ingestions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	dedupHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "ingest",
			Name:      "dedup_hits_total",
			Help:      "Total uploads short-circuited by the registry dedup check.",
		},
		[]string{"service"},
	)

	server.registry.MustRegister(ingestTotal, ingestDuration, ingestInFlight, dedupHitsTotal)

	return &IngestMetrics{
		ingestTotal:    ingestTotal,
		ingestDuration: ingestDuration,
		ingestInFlight: ingestInFlight,
		dedupHitsTotal: dedupHitsTotal,
	}
}

func (m *IngestMetrics) StartIngest() {
	m.ingestInFlight.Inc()
}

func (m *IngestMetrics) FinishIngest(service string, duration time.Duration, err error) {
	m.ingestInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.ingestTotal.WithLabelValues(service, status).Inc()
	m.ingestDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *IngestMetrics) RecordDedupHit(service string) {
	m.dedupHitsTotal.WithLabelValues(service).Inc()
}
