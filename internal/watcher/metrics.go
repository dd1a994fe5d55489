package watcher

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pollCyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watcher_poll_cycles_total",
		Help: "Completed poll cycles, including failed ones.",
	})

	pollFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watcher_poll_failures_total",
		Help: "Poll cycles abandoned before processing (search or transport failure).",
	})

	jobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watcher_jobs_total",
		Help: "Per-job terminal outcomes.",
	}, []string{"outcome"})
)

var registerOnce sync.Once

// MustRegisterMetrics registers the watcher collectors with the default
// Prometheus registry exactly once.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(pollCyclesTotal, pollFailuresTotal, jobsTotal)
	})
}
