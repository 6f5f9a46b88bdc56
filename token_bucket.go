package ratelimitd

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arclane/ratelimitd/registry"
)

// idleEvictionTTL is how long an in-memory bucket can go untouched before
// the registry sweeper reclaims it. A bucket always holds fewer tokens than
// its capacity implies after this long, so eviction loses no information
// beyond what the next Allow call would recompute from scratch.
const idleEvictionTTL = 10 * time.Minute

// NewTokenBucket creates a Token Bucket rate limiter.
// capacity is the maximum number of tokens (burst size).
// refillRate is the number of tokens added per second.
// Pass WithRedis for distributed mode; omit for in-memory.
func NewTokenBucket(capacity, refillRate int64, opts ...Option) (Limiter, error) {
	if capacity <= 0 || refillRate <= 0 {
		return nil, fmt.Errorf("ratelimitd: capacity and refillRate must be positive")
	}
	o := applyOptions(opts)

	if o.RedisClient != nil {
		return &tokenBucketRedis{
			redis:      o.RedisClient,
			capacity:   capacity,
			refillRate: refillRate,
			opts:       o,
		}, nil
	}
	return &tokenBucketMemory{
		states:     registry.New[*tokenBucketState](idleEvictionTTL),
		capacity:   capacity,
		refillRate: refillRate,
		opts:       o,
	}, nil
}

// ─── In-Memory ───────────────────────────────────────────────────────────────

type tokenBucketState struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

type tokenBucketMemory struct {
	states     *registry.Registry[*tokenBucketState]
	capacity   int64
	refillRate int64
	opts       *Options
}

func (t *tokenBucketMemory) Allow(ctx context.Context, key string) (*Result, error) {
	return t.AllowN(ctx, key, 1)
}

func (t *tokenBucketMemory) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	capacity := t.opts.resolveLimit(key, t.capacity)
	state := t.states.Get(key, func() *tokenBucketState {
		return &tokenBucketState{
			tokens:     float64(capacity),
			lastRefill: time.Now(),
		}
	})

	state.mu.Lock()
	defer state.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(state.lastRefill).Seconds()
	state.tokens = math.Min(float64(capacity), state.tokens+elapsed*float64(t.refillRate))
	state.lastRefill = now

	cost := float64(n)
	if state.tokens >= cost {
		state.tokens -= cost
		remaining := int64(math.Floor(state.tokens))
		return &Result{
			Allowed:   true,
			Remaining: remaining,
			Limit:     capacity,
		}, nil
	}

	deficit := cost - state.tokens
	retryAfter := time.Duration(math.Ceil(deficit/float64(t.refillRate)) * float64(time.Second))
	return &Result{
		Allowed:    false,
		Remaining:  0,
		Limit:      capacity,
		RetryAfter: retryAfter,
	}, nil
}

func (t *tokenBucketMemory) Reset(ctx context.Context, key string) error {
	t.states.Evict(key)
	return nil
}

// Peek reports whether n tokens are currently available without consuming
// them. Used by the composite package's dry-run check pass so a denied
// ALL_MUST_PASS/ANY_CAN_PASS/WEIGHTED_AVERAGE decision has no side effect on
// any sub-limiter.
func (t *tokenBucketMemory) Peek(ctx context.Context, key string, n int) (*Result, error) {
	state := t.states.Get(key, func() *tokenBucketState {
		return &tokenBucketState{tokens: float64(t.capacity), lastRefill: time.Now()}
	})
	state.mu.Lock()
	defer state.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(state.lastRefill).Seconds()
	projected := math.Min(float64(t.capacity), state.tokens+elapsed*float64(t.refillRate))

	cost := float64(n)
	if projected >= cost {
		return &Result{Allowed: true, Remaining: int64(math.Floor(projected - cost)), Limit: t.capacity}, nil
	}
	return &Result{Allowed: false, Remaining: 0, Limit: t.capacity}, nil
}

// ─── Redis ────────────────────────────────────────────────────────────────────

var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local data = redis.call('HGETALL', key)
local tokens = max_tokens
local last_refill = now

if #data > 0 then
  local fields = {}
  for i = 1, #data, 2 do
    fields[data[i]] = data[i + 1]
  end
  tokens = tonumber(fields['tokens']) or max_tokens
  last_refill = tonumber(fields['last_refill']) or now
end

local elapsed = now - last_refill
tokens = math.min(max_tokens, tokens + elapsed * refill_rate)

local allowed = 0
local remaining = math.floor(tokens)
local retry_after = 0

if tokens >= cost then
  tokens = tokens - cost
  remaining = math.floor(tokens)
  allowed = 1
else
  local deficit = cost - tokens
  retry_after = math.ceil(deficit / refill_rate)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', tostring(now))
redis.call('EXPIRE', key, math.ceil(max_tokens / refill_rate) + 1)

return { allowed, remaining, retry_after }
`)

type tokenBucketRedis struct {
	redis      redis.UniversalClient
	capacity   int64
	refillRate int64
	opts       *Options
}

func (t *tokenBucketRedis) Allow(ctx context.Context, key string) (*Result, error) {
	return t.AllowN(ctx, key, 1)
}

func (t *tokenBucketRedis) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	fullKey := t.opts.FormatKey(key)
	capacity := t.opts.resolveLimit(key, t.capacity)
	now := float64(time.Now().UnixNano()) / 1e9

	result, err := tokenBucketScript.Run(ctx, t.redis, []string{fullKey},
		capacity,
		t.refillRate,
		now,
		n,
	).Int64Slice()
	if err != nil {
		if t.opts.FailOpen {
			return &Result{Allowed: true, Remaining: capacity - 1, Limit: capacity}, nil
		}
		return &Result{Allowed: false, Remaining: 0, Limit: capacity}, fmt.Errorf("ratelimitd: redis error: %w", err)
	}

	allowed := result[0] == 1
	remaining := result[1]
	retryAfterSec := result[2]

	return &Result{
		Allowed:    allowed,
		Remaining:  remaining,
		Limit:      capacity,
		RetryAfter: time.Duration(retryAfterSec) * time.Second,
	}, nil
}

func (t *tokenBucketRedis) Reset(ctx context.Context, key string) error {
	fullKey := t.opts.FormatKey(key)
	return t.redis.Del(ctx, fullKey).Err()
}
