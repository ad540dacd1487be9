package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Export outcomes
const (
	OutcomeReady    = "ready"
	OutcomePartial  = "partial"
	OutcomeNotReady = "not_ready"
)

// Metrics holds the Prometheus metrics for scanning and exporting receipts
type Metrics struct {
	ReceiptsScanned prometheus.Counter
	ExportRequests  *prometheus.CounterVec
	ExportedRows    prometheus.Counter
	BatchSize       prometheus.Histogram
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReceiptsScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipt_export_receipts_scanned_total",
			Help: "Total number of receipts extracted from uploaded files",
		}),
		ExportRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "receipt_export_requests_total",
			Help: "Total export requests by outcome",
		}, []string{"outcome"}),
		ExportedRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "receipt_export_rows_total",
			Help: "Total number of rows written to export files",
		}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "receipt_export_batch_size",
			Help:    "Number of receipts submitted per export",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),
	}
}

// IncrementScanned records receipts extracted by the scanner
func (m *Metrics) IncrementScanned(n int) {
	if m != nil {
		m.ReceiptsScanned.Add(float64(n))
	}
}

// ObserveExport records one export request, the size of the submitted batch
// and the number of rows actually written.
func (m *Metrics) ObserveExport(outcome string, batch, rows int) {
	if m == nil {
		return
	}
	m.ExportRequests.WithLabelValues(outcome).Inc()
	m.BatchSize.Observe(float64(batch))
	m.ExportedRows.Add(float64(rows))
}
