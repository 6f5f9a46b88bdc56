package metrics_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arclane/ratelimitd"
	"github.com/arclane/ratelimitd/metrics"
)

func TestCollectorKeyStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(metrics.WithRegistry(reg))

	limiter, err := ratelimitd.NewFixedWindow(1, 60)
	if err != nil {
		t.Fatal(err)
	}
	wrapped := metrics.Wrap(limiter, metrics.FixedWindow, collector)
	ctx := context.Background()

	if _, err := wrapped.Allow(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	if _, err := wrapped.Allow(ctx, "k1"); err != nil {
		t.Fatal(err)
	}

	stats := collector.KeyStats("k1")
	if stats.Allowed != 1 || stats.Denied != 1 {
		t.Fatalf("expected 1 allowed and 1 denied, got %+v", stats)
	}

	if got := collector.KeyStats("unseen"); got.Allowed != 0 || got.Denied != 0 {
		t.Fatalf("expected zero stats for an unseen key, got %+v", got)
	}
}

func TestCollectorSetRedisConnected(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(metrics.WithRegistry(reg))

	collector.SetRedisConnected(true)
	assertGauge(t, reg, "ratelimit_redis_connected", 1)

	collector.SetRedisConnected(false)
	assertGauge(t, reg, "ratelimit_redis_connected", 0)
}

func assertGauge(t *testing.T, reg *prometheus.Registry, name string, want float64) {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetGauge().GetValue() != want {
				t.Fatalf("%s = %v, want %v", name, m.GetGauge().GetValue(), want)
			}
			return
		}
	}
	t.Fatalf("metric %s not found", name)
}
