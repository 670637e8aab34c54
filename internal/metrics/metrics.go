// Package metrics exposes Prometheus collectors for judge calls and prize payouts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	JudgeCalls     *prometheus.CounterVec
	JudgeLatency   *prometheus.HistogramVec
	Wins           *prometheus.CounterVec
	Payouts        *prometheus.CounterVec
	PayoutWei      *prometheus.CounterVec
	Conflicts      prometheus.Counter
	DebatesSettled prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		JudgeCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neural_garden_judge_calls_total",
				Help: "Judge completions by purpose and outcome",
			},
			[]string{"purpose", "outcome"},
		),
		JudgeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "neural_garden_judge_latency_seconds",
				Help:    "Judge completion latency",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"purpose"},
		),
		Wins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neural_garden_wins_total",
				Help: "Detected wins by tournament mode",
			},
			[]string{"mode"},
		),
		Payouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neural_garden_payouts_total",
				Help: "Prize transfers by resulting status",
			},
			[]string{"mode", "status"},
		),
		PayoutWei: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "neural_garden_payout_wei_total",
				Help: "Confirmed prize value in wei",
			},
			[]string{"mode"},
		),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neural_garden_store_conflicts_total",
			Help: "Tournament saves rejected for a stale version",
		}),
		DebatesSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neural_garden_debates_resolved_total",
			Help: "Debate tournaments resolved",
		}),
	}

	registry.MustRegister(
		m.JudgeCalls,
		m.JudgeLatency,
		m.Wins,
		m.Payouts,
		m.PayoutWei,
		m.Conflicts,
		m.DebatesSettled,
	)
	return m
}

func (m *Metrics) ObserveJudge(purpose string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.JudgeCalls.WithLabelValues(purpose, outcome).Inc()
	m.JudgeLatency.WithLabelValues(purpose).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
