package embeddings

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all embedding-related metrics.
type Metrics struct {
	duration  *prometheus.HistogramVec
	batchSize *prometheus.HistogramVec
	errors    *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered against reg. A nil
// registerer produces unregistered (no-op at scrape time) collectors, which
// is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "braind_embedding_generation_duration_seconds",
			Help:    "Duration of embedding generation in seconds, labeled by model and operation.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"model", "operation"}),
		batchSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "braind_embedding_batch_size",
			Help:    "Number of texts per embedding batch request.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"model", "operation"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "braind_embedding_errors_total",
			Help: "Total embedding generation errors by model and operation.",
		}, []string{"model", "operation"}),
	}
}

// RecordGeneration records embedding generation metrics.
func (m *Metrics) RecordGeneration(model, operation string, duration time.Duration, batchSize int, err error) {
	m.duration.WithLabelValues(model, operation).Observe(duration.Seconds())
	if batchSize > 0 {
		m.batchSize.WithLabelValues(model, operation).Observe(float64(batchSize))
	}
	if err != nil {
		m.errors.WithLabelValues(model, operation).Inc()
	}
}
