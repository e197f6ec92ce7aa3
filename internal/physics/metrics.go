package physics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics: счётчики движка столкновений
type Metrics struct {
	SolverCalls     prometheus.Counter
	Collisions      *prometheus.CounterVec
	WedgedForecasts prometheus.Counter
	ChunkLoads      prometheus.Counter
	ChunkEvictions  prometheus.Counter
	Structures      prometheus.Gauge
	TrackedEntities prometheus.Gauge
}

// NewMetrics создаёт метрики и регистрирует их в reg. При nil метрики
// остаются незарегистрированными (удобно в тестах).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SolverCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "physsim",
			Subsystem: "physics",
			Name:      "solver_calls_total",
			Help:      "Number of collision solver invocations",
		}),
		Collisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "physsim",
			Subsystem: "physics",
			Name:      "collisions_total",
			Help:      "Collision results by reason",
		}, []string{"reason"}),
		WedgedForecasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "physsim",
			Subsystem: "physics",
			Name:      "wedged_forecasts_total",
			Help:      "Forecast updates that made no progress",
		}),
		ChunkLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "physsim",
			Subsystem: "physics",
			Name:      "chunk_loads_total",
			Help:      "Terrain chunks loaded into the local window",
		}),
		ChunkEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "physsim",
			Subsystem: "physics",
			Name:      "chunk_evictions_total",
			Help:      "Chunks evicted from the local window",
		}),
		Structures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "physsim",
			Subsystem: "physics",
			Name:      "structures",
			Help:      "Structures currently placed",
		}),
		TrackedEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "physsim",
			Subsystem: "physics",
			Name:      "tracked_entities",
			Help:      "Entities with a forecast",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.SolverCalls,
			m.Collisions,
			m.WedgedForecasts,
			m.ChunkLoads,
			m.ChunkEvictions,
			m.Structures,
			m.TrackedEntities,
		)
	}
	return m
}

func (m *Metrics) observeCollision(res CollisionResult) {
	m.SolverCalls.Inc()
	if res.Reason != ReasonNone {
		m.Collisions.WithLabelValues(res.Reason.String()).Inc()
	}
}
