package schedule

import (
	"testing"
	"time"

	"github.com/arclane/ratelimitd"
)

func cfg(capacity int64) ratelimitd.RateLimitConfig {
	return ratelimitd.RateLimitConfig{Algorithm: ratelimitd.AlgorithmTokenBucket, Capacity: capacity, RefillRate: 1}
}

func TestOneTimeScheduleActiveWithinWindow(t *testing.T) {
	m := NewManager()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	err := m.Add(&Schedule{
		Name:         "flash-sale",
		Kind:         OneTime,
		Enabled:      true,
		KeyPattern:   "checkout:*",
		ActiveLimits: cfg(500),
		StartTime:    now.Add(-time.Hour),
		EndTime:      now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, ok := m.ActiveOverride("checkout:42", now)
	if !ok || got.Capacity != 500 {
		t.Fatalf("expected active override capacity=500, got %+v ok=%v", got, ok)
	}

	if _, ok := m.ActiveOverride("checkout:42", now.Add(2*time.Hour)); ok {
		t.Fatal("expected no override outside the window")
	}
}

func TestEventDrivenScheduleTriggerAndClear(t *testing.T) {
	m := NewManager()
	if err := m.Add(&Schedule{
		Name:         "incident",
		Kind:         EventDriven,
		Enabled:      true,
		KeyPattern:   "*",
		ActiveLimits: cfg(10),
		StartTime:    time.Unix(0, 0),
		EndTime:      time.Unix(1, 0),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, ok := m.ActiveOverride("anything", time.Now()); ok {
		t.Fatal("expected inactive before Trigger")
	}

	m.Trigger("incident")
	if _, ok := m.ActiveOverride("anything", time.Now()); !ok {
		t.Fatal("expected active after Trigger")
	}

	m.Clear("incident")
	if _, ok := m.ActiveOverride("anything", time.Now()); ok {
		t.Fatal("expected inactive after Clear")
	}
}

func TestRecurringSchedulePriorityTiebreak(t *testing.T) {
	m := NewManager()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC) // Thursday

	if err := m.Add(&Schedule{
		Name:         "business-hours",
		Kind:         Recurring,
		Enabled:      true,
		KeyPattern:   "api:*",
		ActiveLimits: cfg(1000),
		CronExpr:     "0 9 * * *",
		Duration:     8 * time.Hour,
		Timezone:     time.UTC,
		Priority:     1,
	}); err != nil {
		t.Fatalf("Add business-hours: %v", err)
	}
	if err := m.Add(&Schedule{
		Name:         "degraded-mode",
		Kind:         Recurring,
		Enabled:      true,
		KeyPattern:   "api:*",
		ActiveLimits: cfg(100),
		CronExpr:     "0 9 * * *",
		Duration:     8 * time.Hour,
		Timezone:     time.UTC,
		Priority:     10,
	}); err != nil {
		t.Fatalf("Add degraded-mode: %v", err)
	}

	got, ok := m.ActiveOverride("api:x", now)
	if !ok {
		t.Fatal("expected a match at the start of the cron window")
	}
	if got.Capacity != 100 {
		t.Fatalf("expected higher-priority degraded-mode (capacity=100) to win, got %+v", got)
	}
}

func TestAddRejectsInvalidCron(t *testing.T) {
	m := NewManager()
	err := m.Add(&Schedule{
		Name:         "bad",
		Kind:         Recurring,
		Enabled:      true,
		KeyPattern:   "*",
		ActiveLimits: cfg(1),
		CronExpr:     "not a cron expression",
		Duration:     time.Minute,
	})
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestAddRejectsOneTimeWithBackwardsWindow(t *testing.T) {
	m := NewManager()
	now := time.Now()
	err := m.Add(&Schedule{
		Name:         "bad",
		Kind:         OneTime,
		Enabled:      true,
		KeyPattern:   "*",
		ActiveLimits: cfg(1),
		StartTime:    now,
		EndTime:      now.Add(-time.Hour),
	})
	if err == nil {
		t.Fatal("expected error when end_time precedes start_time")
	}
}

func TestDisabledScheduleNeverMatches(t *testing.T) {
	m := NewManager()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := m.Add(&Schedule{
		Name:         "paused",
		Kind:         OneTime,
		Enabled:      false,
		KeyPattern:   "checkout:*",
		ActiveLimits: cfg(500),
		StartTime:    now.Add(-time.Hour),
		EndTime:      now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, ok := m.ActiveOverride("checkout:42", now); ok {
		t.Fatal("expected a disabled schedule to never match, even within its window")
	}
}

func TestTransitionRampsUpFromFallbackLimits(t *testing.T) {
	m := NewManager()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fallback := cfg(100)
	if err := m.Add(&Schedule{
		Name:           "ramped-sale",
		Kind:           OneTime,
		Enabled:        true,
		KeyPattern:     "checkout:*",
		ActiveLimits:   cfg(1000),
		FallbackLimits: &fallback,
		Transition:     &Transition{RampUpMin: 10, RampDownMin: 10},
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	atStart, ok := m.ActiveOverride("checkout:42", start)
	if !ok || atStart.Capacity != 100 {
		t.Fatalf("expected capacity=100 at the very start of the ramp, got %+v ok=%v", atStart, ok)
	}

	mid, ok := m.ActiveOverride("checkout:42", start.Add(5*time.Minute))
	if !ok || mid.Capacity <= 100 || mid.Capacity >= 1000 {
		t.Fatalf("expected an intermediate capacity halfway through the ramp, got %+v ok=%v", mid, ok)
	}

	after, ok := m.ActiveOverride("checkout:42", start.Add(30*time.Minute))
	if !ok || after.Capacity != 1000 {
		t.Fatalf("expected full capacity=1000 once past the ramp-up window, got %+v ok=%v", after, ok)
	}

	nearEnd, ok := m.ActiveOverride("checkout:42", start.Add(55*time.Minute))
	if !ok || nearEnd.Capacity <= 100 || nearEnd.Capacity >= 1000 {
		t.Fatalf("expected an intermediate capacity during ramp-down, got %+v ok=%v", nearEnd, ok)
	}
}

func TestNoTransitionLeavesActiveLimitsUnchanged(t *testing.T) {
	m := NewManager()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := m.Add(&Schedule{
		Name:         "plain",
		Kind:         OneTime,
		Enabled:      true,
		KeyPattern:   "checkout:*",
		ActiveLimits: cfg(1000),
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, ok := m.ActiveOverride("checkout:42", start)
	if !ok || got.Capacity != 1000 {
		t.Fatalf("expected unramped capacity=1000 from the window's start, got %+v ok=%v", got, ok)
	}
}
