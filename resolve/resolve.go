// Package resolve produces the effective ratelimitd.RateLimitConfig for a
// given key and request context, composing manual overrides, schedule
// overlays, geographic rules, adaptive adjustments, per-key static
// configuration, pattern rules, and a global default — in that precedence
// order, highest first.
//
// Resolution is cached per (key, context fingerprint) in a bounded LRU,
// mirroring cache.LocalCache's bounded-map-with-oldest-eviction shape. No
// sub-source's error or panic is allowed to reach the caller: a failing
// source is treated as "no match" and resolution falls through to the next
// rule in the chain.
package resolve

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arclane/ratelimitd"
)

// Context carries the optional request-time inputs that can influence
// resolution: a geo location and a point in time. Empty Country, Region and
// ComplianceZone disable the geo overlay for a lookup; a zero Now means the
// current time.
type Context struct {
	Country        string
	Region         string
	ComplianceZone string
	Now            time.Time
}

// Fingerprint returns a stable identifier for the parts of Context that
// affect resolution, used as part of the cache key.
func (c Context) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString(c.Country)
	sb.WriteByte('|')
	sb.WriteString(c.Region)
	sb.WriteByte('|')
	sb.WriteString(c.ComplianceZone)
	return sb.String()
}

// OverrideSource reports a manual adaptive override for a key, if any.
type OverrideSource interface {
	Override(key string) (ratelimitd.RateLimitConfig, bool)
}

// ScheduleSource reports the highest-priority active schedule override
// matching key at the given time, if any.
type ScheduleSource interface {
	ActiveOverride(key string, now time.Time) (ratelimitd.RateLimitConfig, bool)
}

// GeoSource reports the highest-priority geographic rule matching key and
// geo context, if any.
type GeoSource interface {
	Match(key string, ctx Context) (ratelimitd.RateLimitConfig, bool)
}

// AdaptiveSource reports the adaptive-adjusted config for a key, if any.
type AdaptiveSource interface {
	Adjusted(key string) (ratelimitd.RateLimitConfig, bool)
}

// PatternRule is a single glob-based rule in the pattern rule table.
// Pattern supports a single trailing/embedded '*' wildcard per segment
// (e.g. "user:*", "tenant:*:api").
type PatternRule struct {
	Pattern   string
	Config    ratelimitd.RateLimitConfig
	CreatedAt time.Time
}

func (p PatternRule) literalPrefixLen() int {
	if i := strings.IndexByte(p.Pattern, '*'); i >= 0 {
		return i
	}
	return len(p.Pattern)
}

func (p PatternRule) wildcardCount() int {
	return strings.Count(p.Pattern, "*")
}

func (p PatternRule) matches(key string) bool {
	return globMatch(p.Pattern, key)
}

// globMatch supports '*' as "match any run of characters" within a single
// pattern, split on '*' into literal segments that must appear in order.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := len(parts) - 1
	for i := 1; i < last; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	return strings.HasSuffix(s, parts[last])
}

// Resolver composes all configuration sources and caches results.
type Resolver struct {
	Overrides OverrideSource
	Schedules ScheduleSource
	Geo       GeoSource
	Adaptive  AdaptiveSource

	mu       sync.RWMutex
	static   map[string]ratelimitd.RateLimitConfig
	patterns []PatternRule
	global   ratelimitd.RateLimitConfig
	onWarn   func(msg string, err error)

	cache *lru
}

// Option configures a Resolver at construction time.
type Option func(*Resolver)

// WithGlobalDefault sets the fallback config used when nothing else matches.
func WithGlobalDefault(cfg ratelimitd.RateLimitConfig) Option {
	return func(r *Resolver) { r.global = cfg }
}

// WithWarnHandler installs a callback invoked whenever a sub-source fails
// or panics during resolution. If nil, warnings are silently dropped.
func WithWarnHandler(fn func(msg string, err error)) Option {
	return func(r *Resolver) { r.onWarn = fn }
}

// WithCacheSize sets the bounded LRU's maximum entry count. Default: 10000.
func WithCacheSize(n int) Option {
	return func(r *Resolver) { r.cache = newLRU(n) }
}

// New constructs a Resolver. Overrides/Schedules/Geo/Adaptive may be nil to
// disable that precedence tier (useful in tests or minimal deployments).
func New(opts ...Option) *Resolver {
	r := &Resolver{
		static: make(map[string]ratelimitd.RateLimitConfig),
		cache:  newLRU(10000),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetStatic installs the per-key static configuration table, replacing any
// existing entries, and invalidates the cache.
func (r *Resolver) SetStatic(cfgs map[string]ratelimitd.RateLimitConfig) {
	r.mu.Lock()
	r.static = cfgs
	r.mu.Unlock()
	r.Reload()
}

// SetPatterns installs the pattern rule table, replacing any existing
// entries, and invalidates the cache.
func (r *Resolver) SetPatterns(rules []PatternRule) {
	sorted := make([]PatternRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].literalPrefixLen() != sorted[j].literalPrefixLen() {
			return sorted[i].literalPrefixLen() > sorted[j].literalPrefixLen()
		}
		if sorted[i].wildcardCount() != sorted[j].wildcardCount() {
			return sorted[i].wildcardCount() < sorted[j].wildcardCount()
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	r.mu.Lock()
	r.patterns = sorted
	r.mu.Unlock()
	r.Reload()
}

// Reload invalidates the entire resolution cache. Callers (an admin API, C6,
// C7) should call this after any write that could change a resolution
// outcome.
func (r *Resolver) Reload() {
	r.cache.clear()
}

// InvalidateKey invalidates cached entries for a single key across all
// context fingerprints.
func (r *Resolver) InvalidateKey(key string) {
	r.cache.removePrefix(key + "\x00")
}

func (r *Resolver) warn(msg string, err error) {
	if r.onWarn != nil {
		r.onWarn(msg, err)
	}
}

// Resolve returns the effective RateLimitConfig for key under ctx. Resolve
// is pure given unchanged inputs and the current cache/table generation:
// repeated calls with the same key and ctx fingerprint return the same
// config until Reload/InvalidateKey/SetStatic/SetPatterns is called.
func (r *Resolver) Resolve(key string, ctx Context) ratelimitd.RateLimitConfig {
	cacheKey := key + "\x00" + ctx.Fingerprint()
	if cfg, ok := r.cache.get(cacheKey); ok {
		return cfg
	}

	cfg := r.resolveUncached(key, ctx)
	r.cache.put(cacheKey, cfg)
	return cfg
}

func (r *Resolver) resolveUncached(key string, ctx Context) ratelimitd.RateLimitConfig {
	if cfg, ok := r.tryOverride(key); ok {
		return cfg
	}
	if cfg, ok := r.trySchedule(key, ctx); ok {
		return cfg
	}
	if cfg, ok := r.tryGeo(key, ctx); ok {
		return cfg
	}
	if cfg, ok := r.tryAdaptive(key); ok {
		return cfg
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.static[key]; ok {
		return cfg
	}
	for _, p := range r.patterns {
		if p.matches(key) {
			return p.Config
		}
	}
	return r.global
}

func (r *Resolver) tryOverride(key string) (cfg ratelimitd.RateLimitConfig, ok bool) {
	if r.Overrides == nil {
		return cfg, false
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.warn("override source panicked", nil)
			ok = false
		}
	}()
	return r.Overrides.Override(key)
}

func (r *Resolver) trySchedule(key string, ctx Context) (cfg ratelimitd.RateLimitConfig, ok bool) {
	if r.Schedules == nil {
		return cfg, false
	}
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.warn("schedule source panicked", nil)
			ok = false
		}
	}()
	return r.Schedules.ActiveOverride(key, now)
}

func (r *Resolver) tryGeo(key string, ctx Context) (cfg ratelimitd.RateLimitConfig, ok bool) {
	if r.Geo == nil || (ctx.Country == "" && ctx.Region == "" && ctx.ComplianceZone == "") {
		return cfg, false
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.warn("geo source panicked", nil)
			ok = false
		}
	}()
	return r.Geo.Match(key, ctx)
}

func (r *Resolver) tryAdaptive(key string) (cfg ratelimitd.RateLimitConfig, ok bool) {
	if r.Adaptive == nil {
		return cfg, false
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.warn("adaptive source panicked", nil)
			ok = false
		}
	}()
	return r.Adaptive.Adjusted(key)
}
