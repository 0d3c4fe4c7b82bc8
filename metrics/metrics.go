// Package metrics exposes the producer's Prometheus instruments. Every
// Metrics value owns its own registry so tests and multiple producers in
// one process never collide on registration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every metric name.
const Namespace = "zkfocil"

// Election results used as the "result" label.
const (
	ResultElected  = "elected"
	ResultRejected = "rejected"
	ResultForced   = "forced"
)

// Transaction origins used as the "origin" label.
const (
	OriginPool        = "pool"
	OriginSynthesized = "synthesized"
)

// Metrics groups the instruments the producer updates on every attempt.
type Metrics struct {
	registry *prometheus.Registry

	ElectionAttempts *prometheus.CounterVec
	BlocksProduced   prometheus.Counter
	TxIncluded       *prometheus.CounterVec
	TxBurned         prometheus.Counter
	TicksSkipped     *prometheus.CounterVec
	ChainHeight      prometheus.Gauge
	PoolSize         prometheus.Gauge
	AttemptDuration  prometheus.Histogram
}

// New creates and registers all instruments on a fresh registry. When
// withRuntime is set the Go and process collectors are registered as well.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ElectionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "election",
			Name:      "attempts_total",
			Help:      "Election attempts by result.",
		}, []string{"result"}),
		BlocksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "chain",
			Name:      "blocks_produced_total",
			Help:      "Blocks appended after genesis.",
		}),
		TxIncluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "chain",
			Name:      "transactions_included_total",
			Help:      "Transactions included in appended blocks by origin.",
		}, []string{"origin"}),
		TxBurned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "txpool",
			Name:      "transactions_burned_total",
			Help:      "Transactions removed from the pool by attempts that failed.",
		}),
		TicksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "producer",
			Name:      "ticks_skipped_total",
			Help:      "Timer ticks that did not start an attempt, by reason.",
		}, []string{"reason"}),
		ChainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "chain",
			Name:      "height",
			Help:      "Number of blocks in the chain, genesis included.",
		}),
		PoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "txpool",
			Name:      "size",
			Help:      "Transactions waiting in the pool.",
		}),
		AttemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "producer",
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of production attempts.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
	reg.MustRegister(
		m.ElectionAttempts,
		m.BlocksProduced,
		m.TxIncluded,
		m.TxBurned,
		m.TicksSkipped,
		m.ChainHeight,
		m.PoolSize,
		m.AttemptDuration,
	)
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the registry holding the instruments.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveAttempt records how long an attempt that started at start took.
func (m *Metrics) ObserveAttempt(start time.Time) {
	m.AttemptDuration.Observe(time.Since(start).Seconds())
}
