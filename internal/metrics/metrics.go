package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stop modes.
const (
	ModeSingle = "single"
	ModeSweep  = "sweep"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	robotStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "atom_robots",
			Subsystem: "robot",
			Name:      "starts_total",
			Help:      "Number of successful robot starts.",
		},
	)
	robotStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atom_robots",
			Subsystem: "robot",
			Name:      "stops_total",
			Help:      "Number of robots stopped, by mode (single or sweep).",
		}, []string{"mode"},
	)
	robotStopSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atom_robots",
			Subsystem: "robot",
			Name:      "stop_skipped_total",
			Help:      "Active runs skipped by the stop sweep, by reason.",
		}, []string{"reason"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "atom_robots",
			Subsystem: "robot",
			Name:      "run_duration_seconds",
			Help:      "Recorded run duration of stopped robots.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600, 4 * 3600, 24 * 3600},
		},
	)
	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "atom_robots",
			Subsystem: "lifecycle",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the lifecycle lock.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atom_robots",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{robotStarts, robotStops, robotStopSkipped, runDuration, lockWait, httpRequests}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer. HandlerFor serves a specific gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Helpers below no-op until Register has been called.

func IncStart() {
	if regOK.Load() {
		robotStarts.Inc()
	}
}

func IncStop(mode string) {
	if regOK.Load() {
		robotStops.WithLabelValues(mode).Inc()
	}
}

func IncStopSkipped(reason string) {
	if regOK.Load() {
		robotStopSkipped.WithLabelValues(reason).Inc()
	}
}

func ObserveRunDuration(seconds int64) {
	if regOK.Load() {
		runDuration.Observe(float64(seconds))
	}
}

func ObserveLockWait(d time.Duration) {
	if regOK.Load() {
		lockWait.Observe(d.Seconds())
	}
}

func IncHTTPRequest(route, code string) {
	if regOK.Load() {
		httpRequests.WithLabelValues(route, code).Inc()
	}
}
