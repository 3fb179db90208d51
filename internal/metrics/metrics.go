// ABOUTME: Prometheus metrics for synchronization rounds and the time server
// ABOUTME: Implements engine.Observer and records HTTP request counts and latency
package metrics

import (
	"strconv"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "netclock"

// Metrics holds every collector. Create one per Registerer.
type Metrics struct {
	fetches      *prometheus.CounterVec
	retries      prometheus.Counter
	rounds       *prometheus.CounterVec
	offset       prometheus.Gauge
	rtt          prometheus.Histogram
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fetch_total",
				Help:      "Time source fetch attempts by result.",
			},
			[]string{"result"},
		),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries scheduled after a failed fetch.",
		}),
		rounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_rounds_total",
				Help:      "Completed synchronization rounds by strategy and result.",
			},
			[]string{"strategy", "result"},
		),
		offset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offset_ms",
			Help:      "Offset committed by the last successful round, in milliseconds.",
		}),
		rtt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_rtt_seconds",
			Help:      "Round-trip time of successful fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests served.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	collectors := []prometheus.Collector{
		m.fetches, m.retries, m.rounds, m.offset, m.rtt, m.httpRequests, m.httpDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveFetch counts a fetch and records its RTT on success
func (m *Metrics) ObserveFetch(url string, rtt time.Duration, err error) {
	if err != nil {
		m.fetches.WithLabelValues("error").Inc()
		return
	}
	m.fetches.WithLabelValues("success").Inc()
	m.rtt.Observe(rtt.Seconds())
}

// ObserveRetry counts a scheduled retry
func (m *Metrics) ObserveRetry(url string, attempt int, err error) {
	m.retries.Inc()
}

// ObserveRound counts a round and tracks the committed offset
func (m *Metrics) ObserveRound(strategy engine.Strategy, offset float64, err error) {
	if err != nil {
		m.rounds.WithLabelValues(string(strategy), "error").Inc()
		return
	}
	m.rounds.WithLabelValues(string(strategy), "success").Inc()
	m.offset.Set(offset)
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

var _ engine.Observer = (*Metrics)(nil)
