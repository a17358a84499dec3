package shared

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollectors groups the exported Prometheus instruments. A nil
// *PrometheusCollectors is valid and records nothing.
type PrometheusCollectors struct {
	EstimateRequests *prometheus.CounterVec
	EstimateDuration prometheus.Histogram
	DatasetRefreshes *prometheus.CounterVec
	DatasetRecords   prometheus.Gauge
}

// NewPrometheusCollectors creates the collectors and registers them with reg
func NewPrometheusCollectors(reg prometheus.Registerer) (*PrometheusCollectors, error) {
	collectors := &PrometheusCollectors{
		EstimateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipo_yield",
			Name:      "estimate_requests_total",
			Help:      "Return estimates served, by outcome.",
		}, []string{"outcome"}),
		EstimateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ipo_yield",
			Name:      "estimate_duration_seconds",
			Help:      "Time spent computing a return estimate.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
		DatasetRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipo_yield",
			Name:      "dataset_refreshes_total",
			Help:      "Dataset snapshot refreshes, by outcome.",
		}, []string{"outcome"}),
		DatasetRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ipo_yield",
			Name:      "dataset_records",
			Help:      "Allotment records in the current snapshot.",
		}),
	}

	for _, collector := range []prometheus.Collector{
		collectors.EstimateRequests,
		collectors.EstimateDuration,
		collectors.DatasetRefreshes,
		collectors.DatasetRecords,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return collectors, nil
}

// ObserveEstimate records one estimate outcome and its duration
func (c *PrometheusCollectors) ObserveEstimate(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.EstimateRequests.WithLabelValues(outcome).Inc()
	c.EstimateDuration.Observe(elapsed.Seconds())
}

// ObserveRefresh records one snapshot refresh outcome and the resulting record count
func (c *PrometheusCollectors) ObserveRefresh(outcome string, records int) {
	if c == nil {
		return
	}
	c.DatasetRefreshes.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		c.DatasetRecords.Set(float64(records))
	}
}
