package prediction

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics: счётчики сверки предсказаний
type Metrics struct {
	Snapshots       prometheus.Counter
	Corrections     prometheus.Counter
	PredictionError prometheus.Histogram
	DroppedSegments prometheus.Counter
}

// NewMetrics создаёт метрики; reg == nil оставляет их незарегистрированными
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "physsim",
			Subsystem: "prediction",
			Name:      "snapshots_total",
			Help:      "Authoritative motion snapshots received",
		}),
		Corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "physsim",
			Subsystem: "prediction",
			Name:      "corrections_total",
			Help:      "Local predictions snapped to the authoritative position",
		}),
		PredictionError: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "physsim",
			Subsystem: "prediction",
			Name:      "error_pixels",
			Help:      "Divergence between predicted and authoritative position",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		}),
		DroppedSegments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "physsim",
			Subsystem: "prediction",
			Name:      "dropped_segments_total",
			Help:      "Remote motion segments dropped because the queue was full",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Snapshots, m.Corrections, m.PredictionError, m.DroppedSegments)
	}
	return m
}
