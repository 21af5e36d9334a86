package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds indexing-run metrics.
type Metrics struct {
	runs          *prometheus.CounterVec
	filesWritten  prometheus.Counter
	filesSkipped  *prometheus.CounterVec
	filesFailed   prometheus.Counter
	chunksWritten prometheus.Counter
}

// NewMetrics creates a Metrics instance registered against reg. A nil
// registerer produces unregistered collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "braind_index_runs_total",
			Help: "Total indexing runs by outcome.",
		}, []string{"outcome"}),
		filesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "braind_index_files_written_total",
			Help: "Total files fully written during indexing runs.",
		}),
		filesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "braind_index_files_skipped_total",
			Help: "Total files skipped during indexing runs, by reason.",
		}, []string{"reason"}),
		filesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "braind_index_files_failed_total",
			Help: "Total files that failed during indexing runs.",
		}),
		chunksWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "braind_index_chunks_written_total",
			Help: "Total chunks written during indexing runs.",
		}),
	}
}
