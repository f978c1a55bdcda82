// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pagepilot"

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
	StatusSkip   = "skipped"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Completed orchestrator operations by kind and status.",
	}, []string{"kind", "status"})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_total",
		Help:      "Executed actions by kind and status.",
	}, []string{"kind", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of orchestrator operations including session setup.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"kind"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of open browser or static sessions.",
	})

	selectedElements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "selected_elements_total",
		Help:      "Elements reported by interactive selection sessions.",
	})
)

func status(err error) string {
	if err != nil {
		return StatusFailed
	}

	return StatusOK
}

// ObserveRun records one finished Run, Map, Extract or Describe call.
func ObserveRun(kind string, started time.Time, err error) {
	runsTotal.WithLabelValues(kind, status(err)).Inc()
	runDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func ObserveAction(kind, result string) {
	actionsTotal.WithLabelValues(kind, result).Inc()
}

func SessionOpened() {
	activeSessions.Inc()
}

func SessionClosed() {
	activeSessions.Dec()
}

func ElementSelected() {
	selectedElements.Inc()
}
