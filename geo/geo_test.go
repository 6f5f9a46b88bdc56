package geo

import (
	"testing"

	"github.com/arclane/ratelimitd"
	"github.com/arclane/ratelimitd/resolve"
)

func cfg(capacity int64) ratelimitd.RateLimitConfig {
	return ratelimitd.RateLimitConfig{Algorithm: ratelimitd.AlgorithmTokenBucket, Capacity: capacity, RefillRate: 1}
}

func TestMatchDisabledWithoutContext(t *testing.T) {
	m := NewManager()
	m.SetRules([]Rule{{Name: "eu-strict", KeyPattern: "*", ComplianceZone: "GDPR", Limits: cfg(10)}})

	if _, ok := m.Match("user:1", resolve.Context{}); ok {
		t.Fatal("expected no match with zero-value context against a zone-filtered rule")
	}
}

func TestMatchByComplianceZone(t *testing.T) {
	m := NewManager()
	m.SetRules([]Rule{{Name: "eu-strict", KeyPattern: "*", ComplianceZone: "GDPR", Limits: cfg(10)}})

	got, ok := m.Match("user:1", resolve.Context{ComplianceZone: "GDPR"})
	if !ok || got.Capacity != 10 {
		t.Fatalf("expected match capacity=10, got %+v ok=%v", got, ok)
	}

	if _, ok := m.Match("user:1", resolve.Context{ComplianceZone: "CCPA"}); ok {
		t.Fatal("expected no match for a different compliance zone")
	}
}

func TestMatchSpecificityBeatsPriority(t *testing.T) {
	m := NewManager()
	m.SetRules([]Rule{
		{Name: "country-only", KeyPattern: "*", Country: "DE", Limits: cfg(100), Priority: 100},
		{Name: "country-and-zone", KeyPattern: "*", Country: "DE", ComplianceZone: "GDPR", Limits: cfg(5), Priority: 1},
	})

	got, ok := m.Match("user:1", resolve.Context{Country: "DE", ComplianceZone: "GDPR"})
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Capacity != 5 {
		t.Fatalf("expected the more specific rule (capacity=5) to win despite lower priority, got %+v", got)
	}
}

func TestMatchKeyPatternPrefix(t *testing.T) {
	m := NewManager()
	m.SetRules([]Rule{{Name: "checkout-eu", KeyPattern: "checkout:*", Country: "FR", Limits: cfg(20)}})

	if _, ok := m.Match("search:1", resolve.Context{Country: "FR"}); ok {
		t.Fatal("expected no match for a non-matching key pattern")
	}
	if got, ok := m.Match("checkout:99", resolve.Context{Country: "FR"}); !ok || got.Capacity != 20 {
		t.Fatalf("expected match capacity=20, got %+v ok=%v", got, ok)
	}
}
