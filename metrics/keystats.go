package metrics

import (
	"sync/atomic"
	"time"

	"github.com/arclane/ratelimitd/registry"
)

// KeyStats is a point-in-time snapshot of one key's lifetime allow/deny
// counts, exposed for admin/debugging surfaces that need per-key detail
// Prometheus' own cardinality limits make unsuitable as a label.
type KeyStats struct {
	Allowed int64
	Denied  int64
}

type keyCounter struct {
	allowed atomic.Int64
	denied  atomic.Int64
}

func (k *keyCounter) record(allowed bool) {
	if allowed {
		k.allowed.Add(1)
	} else {
		k.denied.Add(1)
	}
}

func (k *keyCounter) snapshot() KeyStats {
	return KeyStats{Allowed: k.allowed.Load(), Denied: k.denied.Load()}
}

// keyStatsRegistry reuses registry.Registry's sharded-map shape to keep
// per-key counters off a single global lock.
type keyStatsRegistry struct {
	reg *registry.Registry[*keyCounter]
}

func newKeyStatsRegistry() *keyStatsRegistry {
	// KeyStats are cumulative for the process lifetime; idle eviction here
	// would silently reset a quiet key's counters on its next request, so
	// use a TTL long enough that only genuinely abandoned keys are reclaimed.
	return &keyStatsRegistry{reg: registry.New[*keyCounter](24 * time.Hour)}
}

func (r *keyStatsRegistry) get(key string) *keyCounter {
	return r.reg.Get(key, func() *keyCounter { return &keyCounter{} })
}
