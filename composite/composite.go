// Package composite combines multiple named rate limiters into a single
// decision under one of five combination logics, grounded in the
// check-then-consume split already used by
// omd02-GoRateLimiter/pkg/static_limiter's hybrid token-bucket +
// sliding-window-counter limiter.
package composite

import (
	"context"
	"fmt"
	"strings"

	"github.com/arclane/ratelimitd"
)

// Logic selects how sub-limiter votes are combined into one decision.
type Logic string

const (
	AllMustPass     Logic = "all_must_pass"
	AnyCanPass      Logic = "any_can_pass"
	WeightedAverage Logic = "weighted_average"
	HierarchicalAnd Logic = "hierarchical_and"
	PriorityBased   Logic = "priority_based"
)

// Scope tags a sub-limit's position in the HIERARCHICAL_AND evaluation
// order (USER → TENANT → GLOBAL).
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeTenant Scope = "tenant"
	ScopeGlobal Scope = "global"
)

var hierarchyOrder = map[Scope]int{ScopeUser: 0, ScopeTenant: 1, ScopeGlobal: 2}

// Peeker is implemented by sub-limiters that can report whether a request
// would be allowed without consuming any quota. ratelimitd's in-memory
// token bucket, fixed window, leaky bucket and GCRA backends implement this
// (the leaky bucket's Peek consumes in Shaping mode); sub-limiters that
// don't are consumed directly, which means a denied ALL_MUST_PASS/
// ANY_CAN_PASS/WEIGHTED_AVERAGE decision may still have consumed quota from
// an earlier Peeker-less sub-limiter in the list (documented tradeoff, see
// DESIGN.md).
type Peeker interface {
	Peek(ctx context.Context, key string, n int) (*ratelimitd.Result, error)
}

// SubLimit is one named component of a composite decision.
type SubLimit struct {
	Name     string
	Scope    Scope
	Weight   float64
	Priority int
	Limiter  ratelimitd.Limiter
}

// ComponentResult captures one sub-limiter's contribution to a decision.
type ComponentResult struct {
	Name      string
	Allowed   bool
	Remaining int64
	Limit     int64
	Scope     Scope
}

// Result is the outcome of a composite TryConsume call.
type Result struct {
	Allowed           bool
	Components        []ComponentResult
	LimitingComponent string // name of the first component that caused a denial
}

// Limiter fans a single key out to an ordered set of SubLimits and combines
// their votes under Logic.
type Limiter struct {
	Logic     Logic
	SubLimits []SubLimit
}

// New constructs a composite Limiter. At least one SubLimit is required.
func New(logic Logic, subs []SubLimit) (*Limiter, error) {
	if len(subs) == 0 {
		return nil, &ratelimitd.ErrConfigViolation{Reason: "composite limiter requires at least one sub-limit"}
	}
	return &Limiter{Logic: logic, SubLimits: subs}, nil
}

// TryConsume evaluates all sub-limiters under l.Logic and returns the
// combined decision.
func (l *Limiter) TryConsume(ctx context.Context, key string, n int) (*Result, error) {
	switch l.Logic {
	case AllMustPass:
		return l.allMustPass(ctx, key, n)
	case AnyCanPass:
		return l.anyCanPass(ctx, key, n)
	case WeightedAverage:
		return l.weightedAverage(ctx, key, n)
	case HierarchicalAnd:
		return l.hierarchicalAnd(ctx, key, n)
	case PriorityBased:
		return l.priorityBased(ctx, key, n)
	default:
		return nil, fmt.Errorf("composite: unknown logic %q", l.Logic)
	}
}

func check(ctx context.Context, sub SubLimit, key string, n int) (*ratelimitd.Result, error) {
	if p, ok := sub.Limiter.(Peeker); ok {
		return p.Peek(ctx, key, n)
	}
	return sub.Limiter.AllowN(ctx, key, n)
}

func commit(ctx context.Context, sub SubLimit, key string, n int) (*ratelimitd.Result, error) {
	return sub.Limiter.AllowN(ctx, key, n)
}

func toComponent(sub SubLimit, r *ratelimitd.Result) ComponentResult {
	return ComponentResult{Name: sub.Name, Allowed: r.Allowed, Remaining: r.Remaining, Limit: r.Limit, Scope: sub.Scope}
}

// allMustPass runs a check pass across every sub-limiter first; only if
// every vote is "allowed" does it run the commit pass over the Peeker
// sub-limiters. A denial consumes nothing from sub-limiters that implement
// Peeker; a sub-limiter without Peek that voted "allowed" in the check pass
// has already been charged and is not restored.
func (l *Limiter) allMustPass(ctx context.Context, key string, n int) (*Result, error) {
	components := make([]ComponentResult, 0, len(l.SubLimits))
	allowed := true
	var limiting string

	for _, sub := range l.SubLimits {
		r, err := check(ctx, sub, key, n)
		if err != nil {
			return nil, fmt.Errorf("composite: checking %q: %w", sub.Name, err)
		}
		components = append(components, toComponent(sub, r))
		if !r.Allowed {
			allowed = false
			if limiting == "" {
				limiting = sub.Name
			}
		}
	}

	if !allowed {
		return &Result{Allowed: false, Components: components, LimitingComponent: limiting}, nil
	}

	// Every sub-limiter voted allow under Peek/AllowN snapshot conditions;
	// commit for real. A sub-limiter without a Peeker already consumed
	// during the check pass above, so re-running AllowN for it here would
	// double-charge — only commit the ones that were peeked, not consumed.
	for _, sub := range l.SubLimits {
		if _, wasPeeked := sub.Limiter.(Peeker); !wasPeeked {
			continue
		}
		if _, err := commit(ctx, sub, key, n); err != nil {
			return nil, fmt.Errorf("composite: committing %q: %w", sub.Name, err)
		}
	}

	return &Result{Allowed: true, Components: components}, nil
}

func (l *Limiter) anyCanPass(ctx context.Context, key string, n int) (*Result, error) {
	components := make([]ComponentResult, 0, len(l.SubLimits))
	for _, sub := range l.SubLimits {
		r, err := check(ctx, sub, key, n)
		if err != nil {
			return nil, fmt.Errorf("composite: checking %q: %w", sub.Name, err)
		}
		components = append(components, toComponent(sub, r))
		if r.Allowed {
			if _, wasPeeked := sub.Limiter.(Peeker); wasPeeked {
				if _, err := commit(ctx, sub, key, n); err != nil {
					return nil, fmt.Errorf("composite: committing %q: %w", sub.Name, err)
				}
			}
			return &Result{Allowed: true, Components: components}, nil
		}
	}
	return &Result{Allowed: false, Components: components, LimitingComponent: l.SubLimits[0].Name}, nil
}

func (l *Limiter) weightedAverage(ctx context.Context, key string, n int) (*Result, error) {
	components := make([]ComponentResult, 0, len(l.SubLimits))
	var weightedSum, totalWeight float64
	var limiting string

	for _, sub := range l.SubLimits {
		r, err := check(ctx, sub, key, n)
		if err != nil {
			return nil, fmt.Errorf("composite: checking %q: %w", sub.Name, err)
		}
		components = append(components, toComponent(sub, r))
		totalWeight += sub.Weight
		if r.Allowed {
			weightedSum += sub.Weight
		} else if limiting == "" {
			limiting = sub.Name
		}
	}

	allowed := totalWeight > 0 && weightedSum/totalWeight > 0.5

	if !allowed {
		return &Result{Allowed: false, Components: components, LimitingComponent: limiting}, nil
	}

	for _, sub := range l.SubLimits {
		if _, wasPeeked := sub.Limiter.(Peeker); !wasPeeked {
			continue
		}
		if _, err := commit(ctx, sub, key, n); err != nil {
			return nil, fmt.Errorf("composite: committing %q: %w", sub.Name, err)
		}
	}

	return &Result{Allowed: true, Components: components}, nil
}

// hierarchicalAnd evaluates USER, then TENANT, then GLOBAL, denying and
// stopping (without consulting later scopes) on the first denial.
func (l *Limiter) hierarchicalAnd(ctx context.Context, key string, n int) (*Result, error) {
	ordered := make([]SubLimit, len(l.SubLimits))
	copy(ordered, l.SubLimits)
	sortByHierarchy(ordered)

	var components []ComponentResult
	for _, sub := range ordered {
		r, err := commit(ctx, sub, key, n)
		if err != nil {
			return nil, fmt.Errorf("composite: consuming %q: %w", sub.Name, err)
		}
		components = append(components, toComponent(sub, r))
		if !r.Allowed {
			return &Result{Allowed: false, Components: components, LimitingComponent: sub.Name}, nil
		}
	}
	return &Result{Allowed: true, Components: components}, nil
}

// priorityBased evaluates highest-priority first, denying and stopping
// (without consulting lower-priority sub-limiters) on the first denial.
func (l *Limiter) priorityBased(ctx context.Context, key string, n int) (*Result, error) {
	ordered := make([]SubLimit, len(l.SubLimits))
	copy(ordered, l.SubLimits)
	sortByPriorityDesc(ordered)

	var components []ComponentResult
	for _, sub := range ordered {
		r, err := commit(ctx, sub, key, n)
		if err != nil {
			return nil, fmt.Errorf("composite: consuming %q: %w", sub.Name, err)
		}
		components = append(components, toComponent(sub, r))
		if !r.Allowed {
			return &Result{Allowed: false, Components: components, LimitingComponent: sub.Name}, nil
		}
	}
	return &Result{Allowed: true, Components: components}, nil
}

func sortByHierarchy(subs []SubLimit) {
	insertionSortBy(subs, func(a, b SubLimit) bool {
		return hierarchyOrder[a.Scope] < hierarchyOrder[b.Scope]
	})
}

func sortByPriorityDesc(subs []SubLimit) {
	insertionSortBy(subs, func(a, b SubLimit) bool {
		return a.Priority > b.Priority
	})
}

// insertionSortBy is a stable sort; composite sub-limit lists are always
// small (a handful of scopes/priorities), so O(n^2) insertion sort avoids
// pulling in sort.Slice's reflection overhead for no real benefit.
func insertionSortBy(subs []SubLimit, less func(a, b SubLimit) bool) {
	for i := 1; i < len(subs); i++ {
		for j := i; j > 0 && less(subs[j], subs[j-1]); j-- {
			subs[j], subs[j-1] = subs[j-1], subs[j]
		}
	}
}

// String renders a Result for logging.
func (r *Result) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "allowed=%v", r.Allowed)
	if !r.Allowed {
		fmt.Fprintf(&sb, " limiting=%s", r.LimitingComponent)
	}
	return sb.String()
}
