package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/refresh"
)

const namespace = "prtg_exporter"

// Cycle results used as the result label value.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// RefreshMetrics records refresh cycle outcomes. It implements
// refresh.Observer.
type RefreshMetrics struct {
	Cycles      *prometheus.CounterVec
	Duration    prometheus.Histogram
	Sensors     prometheus.Gauge
	Channels    prometheus.Gauge
	LastSuccess prometheus.Gauge
}

// NewRefreshMetrics creates the metrics and registers them on reg.
func NewRefreshMetrics(reg prometheus.Registerer) (*RefreshMetrics, error) {
	m := &RefreshMetrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Total number of refresh cycles by result.",
		}, []string{"result"}),

		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh cycles, successful or not.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		}),

		Sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors",
			Help:      "Number of sensors in the last published snapshot.",
		}),

		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Number of channels in the last published snapshot.",
		}),

		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh cycle.",
		}),
	}

	for _, c := range []prometheus.Collector{m.Cycles, m.Duration, m.Sensors, m.Channels, m.LastSuccess} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("observability: register: %w", err)
		}
	}
	// Expose both series from the start so rate() works before the first error.
	m.Cycles.WithLabelValues(ResultSuccess)
	m.Cycles.WithLabelValues(ResultError)
	return m, nil
}

// ObserveCycle implements refresh.Observer.
func (m *RefreshMetrics) ObserveCycle(_ context.Context, c refresh.Cycle) {
	m.Duration.Observe(c.Duration.Seconds())
	if c.Err != nil {
		m.Cycles.WithLabelValues(ResultError).Inc()
		return
	}
	m.Cycles.WithLabelValues(ResultSuccess).Inc()
	m.Sensors.Set(float64(c.Sensors))
	m.Channels.Set(float64(c.Channels))
	m.LastSuccess.Set(float64(c.Started.Add(c.Duration).Unix()))
}
