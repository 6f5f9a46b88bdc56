// Package schedule applies time-bound rate limit overrides: one-time windows,
// event-driven windows activated externally, and recurring cron-driven
// windows. Grounded on cache.LocalCache's background ticker/eviction loop
// shape, with cron parsing from robfig/cron/v3.
package schedule

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arclane/ratelimitd"
)

// Kind selects how a Schedule's active window is determined.
type Kind string

const (
	OneTime      Kind = "one_time"
	EventDriven  Kind = "event_driven"
	Recurring    Kind = "recurring"
)

// Transition ramps a schedule's boundary instead of switching the limit
// instantaneously: RampUpMin minutes after the window opens, ActiveLimits is
// phased in linearly from FallbackLimits; RampDownMin minutes before the
// window closes, it is phased back out the same way. With FallbackLimits
// unset the ramp runs from ActiveLimits to itself and has no effect.
type Transition struct {
	RampUpMin   int
	RampDownMin int
}

// Schedule is a single named override window. Priority breaks ties when more
// than one schedule is active for the same key at the same time — higher
// wins.
type Schedule struct {
	Name         string
	Kind         Kind
	KeyPattern   string
	ActiveLimits ratelimitd.RateLimitConfig
	Priority     int
	Enabled      bool

	// FallbackLimits, if set, is the baseline Transition ramps toward/from
	// at the window boundary, e.g. a reduced rate rather than zero. Without
	// it, Transition ramps toward ActiveLimits itself and is a no-op.
	FallbackLimits *ratelimitd.RateLimitConfig

	// Transition, if set, phases ActiveLimits in/out around the window
	// boundary instead of switching at the instant isActive flips.
	Transition *Transition

	// OneTime/EventDriven
	StartTime time.Time
	EndTime   time.Time

	// Recurring
	CronExpr string
	Duration time.Duration
	Timezone *time.Location

	schedule cron.Schedule // parsed CronExpr, resolved once at Add time
	active   atomic.Bool   // EventDriven toggle, set via Manager.Trigger/Clear
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func (s *Schedule) validate() error {
	if s.Name == "" {
		return &ratelimitd.ErrConfigViolation{Reason: "schedule requires a name"}
	}
	if s.KeyPattern == "" {
		return &ratelimitd.ErrConfigViolation{Reason: "schedule requires a key_pattern"}
	}
	if err := s.ActiveLimits.Validate(); err != nil {
		return err
	}
	if s.Transition != nil && (s.Transition.RampUpMin < 0 || s.Transition.RampDownMin < 0) {
		return &ratelimitd.ErrConfigViolation{Reason: "schedule transition minutes must be non-negative"}
	}
	switch s.Kind {
	case OneTime, EventDriven:
		if !s.StartTime.Before(s.EndTime) {
			return &ratelimitd.ErrConfigViolation{Reason: "schedule start_time must precede end_time"}
		}
	case Recurring:
		parsed, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return &ratelimitd.ErrConfigViolation{Reason: "invalid cron expression: " + err.Error()}
		}
		s.schedule = parsed
		if s.Duration <= 0 {
			return &ratelimitd.ErrConfigViolation{Reason: "recurring schedule requires a positive duration"}
		}
		if s.Timezone == nil {
			s.Timezone = time.UTC
		}
	default:
		return &ratelimitd.ErrConfigViolation{Reason: "unknown schedule kind: " + string(s.Kind)}
	}
	return nil
}

// isActive reports whether s covers instant now. Recurring schedules are
// always evaluated in their own Timezone, regardless of the timezone now was
// constructed in, since a cron expression's wall-clock meaning depends on
// the zone it was authored against.
func (s *Schedule) isActive(now time.Time) bool {
	switch s.Kind {
	case OneTime:
		return !now.Before(s.StartTime) && now.Before(s.EndTime)
	case EventDriven:
		return s.active.Load()
	case Recurring:
		local := now.In(s.Timezone)
		prev := s.schedule.Next(local.Add(-s.Duration))
		return !local.Before(prev) && local.Before(prev.Add(s.Duration))
	default:
		return false
	}
}

// window returns the current occurrence's [start, end) bounds, used only to
// compute ramp position for Transition. EventDriven has no natural boundary
// (Trigger/Clear are instantaneous admin actions), so it never ramps.
func (s *Schedule) window(now time.Time) (start, end time.Time, ok bool) {
	switch s.Kind {
	case OneTime:
		return s.StartTime, s.EndTime, true
	case Recurring:
		local := now.In(s.Timezone)
		prev := s.schedule.Next(local.Add(-s.Duration))
		return prev, prev.Add(s.Duration), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// effectiveLimits applies s.Transition's ramp, if any, blending from (or
// back to) s.FallbackLimits across the RampUpMin/RampDownMin window around
// the schedule's boundary. Outside any ramp window, or with no Transition
// configured, it returns s.ActiveLimits unchanged.
func (s *Schedule) effectiveLimits(now time.Time) ratelimitd.RateLimitConfig {
	if s.Transition == nil {
		return s.ActiveLimits
	}
	start, end, ok := s.window(now)
	if !ok {
		return s.ActiveLimits
	}
	from := s.ActiveLimits
	if s.FallbackLimits != nil {
		from = *s.FallbackLimits
	}

	if rampUp := time.Duration(s.Transition.RampUpMin) * time.Minute; rampUp > 0 {
		if elapsed := now.Sub(start); elapsed >= 0 && elapsed < rampUp {
			return blend(from, s.ActiveLimits, float64(elapsed)/float64(rampUp))
		}
	}
	if rampDown := time.Duration(s.Transition.RampDownMin) * time.Minute; rampDown > 0 {
		if remaining := end.Sub(now); remaining >= 0 && remaining < rampDown {
			return blend(from, s.ActiveLimits, float64(remaining)/float64(rampDown))
		}
	}
	return s.ActiveLimits
}

// blend linearly interpolates a's capacity-like fields toward b by fraction
// t ∈ [0, 1], truncating toward zero. Algorithm/Mode/KeyPrefix and
// other non-numeric fields are taken from b (the schedule's own
// ActiveLimits), since a ramp changes throughput, not shape.
func blend(a, b ratelimitd.RateLimitConfig, t float64) ratelimitd.RateLimitConfig {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	lerp := func(x, y int64) int64 {
		return x + int64(float64(y-x)*t)
	}
	out := b
	out.MaxRequests = lerp(a.MaxRequests, b.MaxRequests)
	out.Capacity = lerp(a.Capacity, b.Capacity)
	out.RefillRate = lerp(a.RefillRate, b.RefillRate)
	out.LeakRate = lerp(a.LeakRate, b.LeakRate)
	out.Rate = lerp(a.Rate, b.Rate)
	out.Burst = lerp(a.Burst, b.Burst)
	return out
}

func matchesKey(pattern, key string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	return pattern == key || globMatch(pattern, key)
}

func globMatch(pattern, s string) bool {
	// Single trailing-wildcard form is all schedules need ("tenant:*").
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(s) >= len(prefix) && s[:len(prefix)] == prefix
	}
	return pattern == s
}

// Manager holds the set of configured schedules and answers
// resolve.ScheduleSource queries against them.
type Manager struct {
	mu        sync.RWMutex
	schedules map[string]*Schedule

	closeCh chan struct{}
	closed  bool
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		schedules: make(map[string]*Schedule),
		closeCh:   make(chan struct{}),
	}
}

// Add validates and installs s, replacing any existing schedule of the same
// name.
func (m *Manager) Add(s *Schedule) error {
	if err := s.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.Name] = s
	return nil
}

// Remove deletes a schedule by name.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, name)
}

// Trigger activates an EVENT_DRIVEN schedule by name. No-op for other kinds.
func (m *Manager) Trigger(name string) {
	m.mu.RLock()
	s, ok := m.schedules[name]
	m.mu.RUnlock()
	if ok && s.Kind == EventDriven {
		s.active.Store(true)
	}
}

// Clear deactivates an EVENT_DRIVEN schedule by name.
func (m *Manager) Clear(name string) {
	m.mu.RLock()
	s, ok := m.schedules[name]
	m.mu.RUnlock()
	if ok && s.Kind == EventDriven {
		s.active.Store(false)
	}
}

// ActiveOverride implements resolve.ScheduleSource: it returns the
// highest-priority enabled schedule whose key pattern matches key and whose
// window covers now, if any, with its Transition ramp (if configured)
// already applied for now.
func (m *Manager) ActiveOverride(key string, now time.Time) (ratelimitd.RateLimitConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []*Schedule
	for _, s := range m.schedules {
		if s.Enabled && matchesKey(s.KeyPattern, key) && s.isActive(now) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return ratelimitd.RateLimitConfig{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Priority > candidates[j].Priority })
	return candidates[0].effectiveLimits(now), true
}

// List returns the names of all configured schedules, for admin surfaces.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.schedules))
	for name := range m.schedules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close is a no-op placeholder matching the other managers' lifecycle shape;
// Manager currently has no background goroutine of its own since isActive is
// computed on demand rather than via a ticker.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closeCh)
	}
}
