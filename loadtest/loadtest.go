// Package loadtest drives synthetic concurrent traffic at a ratelimitd.Limiter
// for benchmarking and capacity planning. golang.org/x/time/rate paces each
// worker so a run can simulate a target request rate rather than simply
// hammering as fast as possible — grounded on the same library
// omd02-GoRateLimiter's pkg/adaptive/limiter.go uses to gate requests,
// repurposed here to pace them instead.
package loadtest

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/arclane/ratelimitd"
)

// Config describes one load test run.
type Config struct {
	// ConcurrentThreads is the number of worker goroutines issuing requests.
	ConcurrentThreads int
	// RequestsPerThread is how many Allow calls each worker makes.
	RequestsPerThread int
	// KeyFunc returns the key a given (thread, request) index should use.
	// Defaults to a single shared key "loadtest" if nil.
	KeyFunc func(thread, request int) string
	// RatePerSecond paces the aggregate request rate across all workers.
	// Zero means unpaced (as fast as possible).
	RatePerSecond float64
}

// Result summarizes a completed run.
type Result struct {
	TotalRequests int64
	Allowed       int64
	Denied        int64
	Errors        int64
	Elapsed       time.Duration
	P50Latency    time.Duration
	P95Latency    time.Duration
	P99Latency    time.Duration
}

// Run drives Config against limiter and returns aggregate Result.
func Run(ctx context.Context, limiter ratelimitd.Limiter, cfg Config) Result {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(thread, request int) string { return "loadtest" }
	}

	var limiterRate *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiterRate = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(1, int(cfg.RatePerSecond)))
	}

	var allowed, denied, errs int64
	latencies := make([][]time.Duration, cfg.ConcurrentThreads)

	start := time.Now()
	var wg sync.WaitGroup
	for t := 0; t < cfg.ConcurrentThreads; t++ {
		t := t
		wg.Add(1)
		latencies[t] = make([]time.Duration, 0, cfg.RequestsPerThread)
		go func() {
			defer wg.Done()
			for r := 0; r < cfg.RequestsPerThread; r++ {
				if limiterRate != nil {
					if err := limiterRate.Wait(ctx); err != nil {
						return
					}
				}
				select {
				case <-ctx.Done():
					return
				default:
				}

				reqStart := time.Now()
				res, err := limiter.Allow(ctx, keyFunc(t, r))
				elapsed := time.Since(reqStart)
				latencies[t] = append(latencies[t], elapsed)

				if err != nil {
					atomic.AddInt64(&errs, 1)
					continue
				}
				if res.Allowed {
					atomic.AddInt64(&allowed, 1)
				} else {
					atomic.AddInt64(&denied, 1)
				}
			}
		}()
	}
	wg.Wait()

	all := flatten(latencies)
	p50, p95, p99 := percentiles(all)

	return Result{
		TotalRequests: allowed + denied + errs,
		Allowed:       allowed,
		Denied:        denied,
		Errors:        errs,
		Elapsed:       time.Since(start),
		P50Latency:    p50,
		P95Latency:    p95,
		P99Latency:    p99,
	}
}

func flatten(groups [][]time.Duration) []time.Duration {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]time.Duration, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func percentiles(d []time.Duration) (p50, p95, p99 time.Duration) {
	if len(d) == 0 {
		return 0, 0, 0
	}
	sorted := make([]time.Duration, len(d))
	copy(sorted, d)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(p float64) time.Duration {
		idx := int(p * float64(len(sorted)-1))
		return sorted[idx]
	}
	return at(0.5), at(0.95), at(0.99)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
