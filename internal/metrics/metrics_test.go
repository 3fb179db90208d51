// ABOUTME: Tests for Prometheus metrics
// ABOUTME: Verifies observer callbacks update the expected collectors
package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m
}

func TestObserveFetch(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveFetch("https://a", 25*time.Millisecond, nil)
	m.ObserveFetch("https://a", 30*time.Millisecond, nil)
	m.ObserveFetch("https://b", 0, errors.New("down"))

	if got := testutil.ToFloat64(m.fetches.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 successful fetches, got %f", got)
	}
	if got := testutil.ToFloat64(m.fetches.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed fetch, got %f", got)
	}
	if samples := testutil.CollectAndCount(m.rtt); samples != 1 {
		t.Fatalf("expected RTT histogram to be collected once, got %d", samples)
	}
}

func TestObserveRetry(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveRetry("https://a", 1, errors.New("down"))
	m.ObserveRetry("https://a", 2, errors.New("down"))

	if got := testutil.ToFloat64(m.retries); got != 2 {
		t.Fatalf("expected 2 retries, got %f", got)
	}
}

func TestObserveRound(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveRound(engine.StrategyAverage, 42.5, nil)
	m.ObserveRound(engine.StrategyAverage, 0, engine.ErrAllSourcesFailed)

	if got := testutil.ToFloat64(m.rounds.WithLabelValues("average", "success")); got != 1 {
		t.Fatalf("expected 1 successful round, got %f", got)
	}
	if got := testutil.ToFloat64(m.rounds.WithLabelValues("average", "error")); got != 1 {
		t.Fatalf("expected 1 failed round, got %f", got)
	}
	if got := testutil.ToFloat64(m.offset); got != 42.5 {
		t.Fatalf("expected offset gauge 42.5, got %f", got)
	}
}

func TestObserveHTTP(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveHTTP("GET", "/time", 200, 3*time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/time", "200")); got != 1 {
		t.Fatalf("expected 1 request, got %f", got)
	}
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}
