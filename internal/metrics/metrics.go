// Package metrics provides the Prometheus metrics exported on /metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
)

// SorterMetrics tracks classifier traffic, service health and image outcomes.
// It satisfies both classifier.Observer and analysis.Observer.
type SorterMetrics struct {
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ServiceUp       *prometheus.GaugeVec
	ImagesTotal     *prometheus.CounterVec
	BatchesTotal    prometheus.Counter

	registry *prometheus.Registry
}

// NewSorterMetrics creates the metrics and registers them with registry.
func NewSorterMetrics(registry *prometheus.Registry) (*SorterMetrics, error) {
	m := &SorterMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register sorter metrics: %w", err)
	}
	return m, nil
}

func (m *SorterMetrics) initMetrics() {
	m.RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laundry_classifier_requests_total",
			Help: "Total number of classifier requests partitioned by service and outcome.",
		},
		[]string{"service", "outcome"},
	)
	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "laundry_classifier_request_duration_seconds",
			Help:    "Time taken for a classifier request to complete",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"service"},
	)
	m.ServiceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "laundry_classifier_up",
			Help: "Whether the last health probe of a classifier succeeded (1) or not (0)",
		},
		[]string{"service"},
	)
	m.ImagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laundry_images_processed_total",
			Help: "Total number of images processed partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	m.BatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "laundry_batches_total",
			Help: "Total number of upload batches processed.",
		},
	)
}

// ObserveRequest records one classifier call.
func (m *SorterMetrics) ObserveRequest(service classifier.Service, outcome string, elapsed time.Duration) {
	m.RequestTotal.WithLabelValues(string(service), outcome).Inc()
	m.RequestDuration.WithLabelValues(string(service)).Observe(elapsed.Seconds())
}

// ObserveHealth records the result of a health probe.
func (m *SorterMetrics) ObserveHealth(service classifier.Service, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	m.ServiceUp.WithLabelValues(string(service)).Set(v)
}

// ObserveImage records how an image ended up.
func (m *SorterMetrics) ObserveImage(outcome string) {
	m.ImagesTotal.WithLabelValues(outcome).Inc()
}

// IncrementBatches counts a processed batch.
func (m *SorterMetrics) IncrementBatches() {
	m.BatchesTotal.Inc()
}

// Registry returns the registry the metrics were registered with.
func (m *SorterMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Describe implements the prometheus.Collector interface.
func (m *SorterMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RequestTotal.Describe(ch)
	m.RequestDuration.Describe(ch)
	m.ServiceUp.Describe(ch)
	m.ImagesTotal.Describe(ch)
	ch <- m.BatchesTotal.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *SorterMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RequestTotal.Collect(ch)
	m.RequestDuration.Collect(ch)
	m.ServiceUp.Collect(ch)
	m.ImagesTotal.Collect(ch)
	ch <- m.BatchesTotal
}
