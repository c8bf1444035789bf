// Package metrics holds the Prometheus collectors for the extraction
// pipeline. Collectors register with the default registry on import.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "policyocr"

var (
	documentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Documents processed, by outcome.",
		},
		[]string{"status"}, // completed or a failure reason
	)

	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Wall-clock time to process one document.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		},
		[]string{"status"},
	)

	pagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "raster",
			Name:      "pages_total",
			Help:      "Pages rasterized.",
		},
	)

	rasterDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "raster",
			Name:      "page_duration_seconds",
			Help:      "Time to render one page.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	ocrPageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ocr",
			Name:      "page_duration_seconds",
			Help:      "Time to recognize one page, including a retry.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"backend"},
	)

	ocrRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ocr",
			Name:      "retries_total",
			Help:      "Pages recognized a second time after a transient backend failure.",
		},
		[]string{"backend"},
	)

	ocrFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ocr",
			Name:      "failures_total",
			Help:      "Pages that could not be recognized.",
		},
		[]string{"backend", "kind"}, // unavailable, timeout, other
	)

	fieldsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "fields_total",
			Help:      "Resolved fields, by status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(documentsTotal)
	prometheus.MustRegister(pipelineDuration)
	prometheus.MustRegister(pagesTotal)
	prometheus.MustRegister(rasterDuration)
	prometheus.MustRegister(ocrPageDuration)
	prometheus.MustRegister(ocrRetries)
	prometheus.MustRegister(ocrFailures)
	prometheus.MustRegister(fieldsTotal)
}

// RecordDocument records the outcome of one pipeline run.
func RecordDocument(status string, d time.Duration) {
	documentsTotal.WithLabelValues(status).Inc()
	pipelineDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordPage records one rendered page.
func RecordPage(d time.Duration) {
	pagesTotal.Inc()
	rasterDuration.Observe(d.Seconds())
}

// RecordOCRPage records how long one page took to recognize.
func RecordOCRPage(backend string, d time.Duration) {
	ocrPageDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// RecordOCRRetry increments the retry counter
func RecordOCRRetry(backend string) {
	ocrRetries.WithLabelValues(backend).Inc()
}

// RecordOCRFailure counts a page that failed after any retry.
func RecordOCRFailure(backend, kind string) {
	ocrFailures.WithLabelValues(backend, kind).Inc()
}

// RecordFields adds resolved field counts keyed by status.
func RecordFields(counts map[string]int) {
	for status, n := range counts {
		fieldsTotal.WithLabelValues(status).Add(float64(n))
	}
}
