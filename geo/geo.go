// Package geo applies compliance-zone and region-specific rate limit
// overrides. Grounded directly on the composite package's priority-tiebreak
// shape, since the two are structurally the same problem: pick the
// highest-priority rule among the ones that match.
package geo

import (
	"sort"
	"sync"

	"github.com/arclane/ratelimitd"
	"github.com/arclane/ratelimitd/resolve"
)

// Rule binds a key pattern and optional geo filters to an override config.
// A zero-value filter field means "matches any value" for that dimension.
type Rule struct {
	Name           string
	KeyPattern     string
	Country        string
	Region         string
	ComplianceZone string
	Limits         ratelimitd.RateLimitConfig
	Priority       int
}

func (r Rule) matchesKey(key string) bool {
	if r.KeyPattern == "" || r.KeyPattern == "*" {
		return true
	}
	if len(r.KeyPattern) > 0 && r.KeyPattern[len(r.KeyPattern)-1] == '*' {
		prefix := r.KeyPattern[:len(r.KeyPattern)-1]
		return len(key) >= len(prefix) && key[:len(prefix)] == prefix
	}
	return r.KeyPattern == key
}

func (r Rule) matchesContext(ctx resolve.Context) bool {
	if r.Country != "" && r.Country != ctx.Country {
		return false
	}
	if r.Region != "" && r.Region != ctx.Region {
		return false
	}
	if r.ComplianceZone != "" && r.ComplianceZone != ctx.ComplianceZone {
		return false
	}
	return true
}

// specificity counts how many of the three geo dimensions a rule pins down,
// used as the tiebreak ahead of Priority: a rule naming country+zone beats
// one naming country alone even at equal priority.
func (r Rule) specificity() int {
	n := 0
	if r.Country != "" {
		n++
	}
	if r.Region != "" {
		n++
	}
	if r.ComplianceZone != "" {
		n++
	}
	return n
}

// Manager indexes geo rules and answers resolve.GeoSource queries. A
// zero-value resolve.Context (no country/region/zone set) never matches any
// rule with a non-empty filter, which disables the overlay entirely for
// callers that don't supply geo context.
type Manager struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// SetRules replaces the full rule table.
func (m *Manager) SetRules(rules []Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append([]Rule(nil), rules...)
}

// Match implements resolve.GeoSource.
func (m *Manager) Match(key string, ctx resolve.Context) (ratelimitd.RateLimitConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []Rule
	for _, r := range m.rules {
		if r.matchesKey(key) && r.matchesContext(ctx) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return ratelimitd.RateLimitConfig{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].specificity() != candidates[j].specificity() {
			return candidates[i].specificity() > candidates[j].specificity()
		}
		return candidates[i].Priority > candidates[j].Priority
	})
	return candidates[0].Limits, true
}
