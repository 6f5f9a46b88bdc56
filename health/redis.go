package health

import (
	"context"
	"time"
)

// Pinger is satisfied by redis.UniversalClient's Ping method (and by
// miniredis-backed clients in tests), kept narrow so this package doesn't
// need to import go-redis directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisLatency is a Source reporting Redis reachability as a P95LatencyMs
// proxy: the time the last PING took. CPUUtilization and ErrorRatePct are
// always zero since a PING alone can't measure either; combine this with a
// Prometheus source via Combine to get a complete Snapshot.
type RedisLatency struct {
	client  Pinger
	timeout time.Duration
}

// NewRedisLatency wraps client. timeout bounds each PING; zero defaults to
// 2 seconds.
func NewRedisLatency(client Pinger, timeout time.Duration) *RedisLatency {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisLatency{client: client, timeout: timeout}
}

func (r *RedisLatency) FetchMetrics() (Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	err := r.client.Ping(ctx)
	elapsed := time.Since(start)
	if err != nil {
		// A failed PING is itself a critical health signal: report it as
		// saturating error rate rather than surfacing the error, so a
		// Combine'd controller still reacts to a dead backend.
		return Snapshot{ErrorRatePct: 100}, nil
	}
	return Snapshot{P95LatencyMs: float64(elapsed.Milliseconds())}, nil
}

// Combine merges several sources into one Snapshot by taking the maximum of
// each field across every source that didn't error. A source erroring
// doesn't fail the whole combination; it's simply excluded from that tick.
func Combine(sources ...Source) Source {
	return combinedSource{sources: sources}
}

type combinedSource struct {
	sources []Source
}

func (c combinedSource) FetchMetrics() (Snapshot, error) {
	var out Snapshot
	var any bool
	for _, s := range c.sources {
		snap, err := s.FetchMetrics()
		if err != nil {
			continue
		}
		any = true
		if snap.CPUUtilization > out.CPUUtilization {
			out.CPUUtilization = snap.CPUUtilization
		}
		if snap.P95LatencyMs > out.P95LatencyMs {
			out.P95LatencyMs = snap.P95LatencyMs
		}
		if snap.ErrorRatePct > out.ErrorRatePct {
			out.ErrorRatePct = snap.ErrorRatePct
		}
	}
	if !any {
		return Snapshot{}, errAllSourcesFailed
	}
	return out, nil
}
